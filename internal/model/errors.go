// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: provision, auth, registry, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAccountAlreadyExists = "ACCOUNT_ALREADY_EXISTS"
	ErrCodeAccountCreateFailed  = "ACCOUNT_CREATE_FAILED"
	ErrCodeLinkageFailed        = "LINKAGE_FAILED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeNotImported          = "NOT_IMPORTED"
	ErrCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	ErrCodeIntentNotFound       = "INTENT_NOT_FOUND"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeTransportError       = "TRANSPORT_ERROR"
)

// NewAccountAlreadyExistsError は同名アカウントが既に存在する場合のエラーを生成する。
// accountIDには既存アカウントのIDを設定する（この呼び出しで作成されたものではない）。
func NewAccountAlreadyExistsError(username, accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountAlreadyExists,
		Message:  fmt.Sprintf("アカウント %s は既に存在します（ID: %s）。", username, accountID),
		Category: "provision",
		Action:   "別のユーザー名を指定するか、既存アカウントの紐付けを確認してください。",
	}
}

// NewAccountCreateFailedError はメディアサーバーでのアカウント作成失敗エラーを生成する。
func NewAccountCreateFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountCreateFailed,
		Message:  fmt.Sprintf("メディアサーバーでのアカウント作成に失敗しました: %s", reason),
		Category: "provision",
		Action:   "メディアサーバーの稼働状況を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewLinkageFailedError はリクエストサービスへの連携失敗エラーを生成する。
// 補償処理（作成済みアカウントの削除）が実行済みであることを前提とする。
func NewLinkageFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeLinkageFailed,
		Message:  fmt.Sprintf("リクエストサービスへのアカウント取り込みに失敗しました: %s", reason),
		Category: "provision",
		Action:   "リクエストサービスの稼働状況を確認し、再度お試しください。作成途中のアカウントは削除済みです。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ネットワーク障害とは区別され、資格情報そのものの誤りを示す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "メディアサーバーのログイン情報を確認して再度お試しください。",
	}
}

// NewNotImportedError はリクエストサービス未登録エラーを生成する。
func NewNotImportedError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeNotImported,
		Message:  fmt.Sprintf("アカウント %s はリクエストサービスに登録されていません。", username),
		Category: "auth",
		Action:   "管理者によるプロビジョニングが必要です。管理者に連絡してください。",
	}
}

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
func NewAccountNotFoundError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("アカウントが見つかりません: %s", key),
		Category: "registry",
		Action:   "アクターIDまたはユーザー名を確認してください。",
	}
}

// NewIntentNotFoundError は保留コマンド未検出エラーを生成する。
// アカウント未検出とは区別され、コマンドフローの期限切れや未開始を示す。
func NewIntentNotFoundError(actorID string) *APIError {
	return &APIError{
		Code:     ErrCodeIntentNotFound,
		Message:  fmt.Sprintf("保留中のコマンドがありません: %s", actorID),
		Category: "validation",
		Action:   "新しいコマンドから開始してください。",
	}
}

// NewInvalidRequestError は入力不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewTransportError は外部サービスとの通信エラーを生成する。
// タイムアウトを含むあらゆるネットワーク障害はこのエラーに分類され、呼び出し側で再試行可能。
func NewTransportError(service, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeTransportError,
		Message:  fmt.Sprintf("%s との通信に失敗しました: %s", service, reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
