// Package model はドメインモデルを定義する。
package model

import "time"

// LinkedAccount はチャット上のアクターとプロビジョニング済みアカウントの紐付けを表す。
// actor_idを主キーとしてレジストリ（PostgreSQL）に永続化される。
type LinkedAccount struct {
	ActorID          string // 外部チャットのアクターID
	MediaAccountID   string // メディアサーバー側のアカウントID
	RequestAccountID string // リクエスト管理サービス側のアカウントID
	Username         string
	Tier             string // trial / vip / permanent 等の自由ラベル
	CreatedAt        time.Time
	ExpiresAt        *time.Time // nilの場合は無期限
}

// Expired は指定時刻時点でリースが失効しているかを返す。
func (a *LinkedAccount) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// IntentKind は管理者の複数ステップコマンドの種別を表す。
type IntentKind string

const (
	// IntentCreatePermanent は無期限アカウント作成の保留コマンド。
	IntentCreatePermanent IntentKind = "create_permanent"
	// IntentCreateTrial はトライアルアカウント作成の保留コマンド。
	IntentCreateTrial IntentKind = "create_trial"
	// IntentCreateVIP はVIPアカウント作成の保留コマンド。
	IntentCreateVIP IntentKind = "create_vip"
	// IntentAwaitLinkCredentials は認証情報の入力待ちを示す。
	IntentAwaitLinkCredentials IntentKind = "await_link_credentials"
)

// PendingIntent は1アクターにつき最大1件の保留中コマンドを表す。
// トラッカーが所有し、消費または明示的なクリアで必ず破棄される。
type PendingIntent struct {
	ActorID   string
	Kind      IntentKind
	CreatedAt time.Time
}

// ProvisioningRequest はプロビジョニングサーガへの入力を表す。
// 永続化されず、オーケストレーターが1回だけ消費する。
type ProvisioningRequest struct {
	TargetActorID   string
	DesiredUsername string
	DurationDays    int // 0の場合は無期限
	Tier            string
}
