// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/mediagate/internal/model"
)

// LinkedAccountRepository は紐付けアカウント（レジストリ）の永続化インターフェース。
// actor_idをキーとする単一行のアップサート/削除は同一キーに対する競合書き込みを
// 直列化する（単一行トランザクション相当）。
type LinkedAccountRepository interface {
	// Upsert はactor_idをキーに紐付けアカウントを挿入または更新する。
	Upsert(ctx context.Context, account *model.LinkedAccount) error

	// FindByActorID は指定アクターの紐付けアカウントを取得する。見つからない場合はnilを返す。
	FindByActorID(ctx context.Context, actorID string) (*model.LinkedAccount, error)

	// FindByUsername はユーザー名（大文字小文字を区別しない）で紐付けアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.LinkedAccount, error)

	// ListAll は全紐付けアカウントをcreated_at昇順で返す。
	ListAll(ctx context.Context) ([]*model.LinkedAccount, error)

	// ListExpired はexpires_atがnow以前の紐付けアカウントを返す。
	// expires_atがNULL（無期限）の行は対象外。
	ListExpired(ctx context.Context, now time.Time) ([]*model.LinkedAccount, error)

	// DeleteByActorID は指定アクターの紐付けアカウントを削除する。
	// 行が存在しない場合もエラーにしない（冪等）。
	DeleteByActorID(ctx context.Context, actorID string) error
}
