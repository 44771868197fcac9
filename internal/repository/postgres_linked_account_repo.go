package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/mediagate/internal/model"
)

// PostgresLinkedAccountRepo はPostgreSQLを使用した紐付けアカウントリポジトリ。
type PostgresLinkedAccountRepo struct {
	db *sql.DB
}

// NewPostgresLinkedAccountRepo はPostgresLinkedAccountRepoを生成する。
func NewPostgresLinkedAccountRepo(db *sql.DB) *PostgresLinkedAccountRepo {
	return &PostgresLinkedAccountRepo{db: db}
}

// Upsert はactor_idをキーに紐付けアカウントを挿入または更新する。
// ON CONFLICTによる単一文のアップサートで、同一アクターへの競合書き込みを直列化する。
func (r *PostgresLinkedAccountRepo) Upsert(ctx context.Context, account *model.LinkedAccount) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO linked_accounts (actor_id, media_account_id, request_account_id, username, tier, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (actor_id) DO UPDATE SET
		     media_account_id   = EXCLUDED.media_account_id,
		     request_account_id = EXCLUDED.request_account_id,
		     username           = EXCLUDED.username,
		     tier               = EXCLUDED.tier,
		     expires_at         = EXCLUDED.expires_at`,
		account.ActorID,
		account.MediaAccountID,
		nullString(account.RequestAccountID),
		account.Username,
		account.Tier,
		account.CreatedAt,
		nullTime(account.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert linked account: %w", err)
	}

	return nil
}

// FindByActorID は指定アクターの紐付けアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresLinkedAccountRepo) FindByActorID(ctx context.Context, actorID string) (*model.LinkedAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT actor_id, media_account_id, request_account_id, username, tier, created_at, expires_at
		 FROM linked_accounts WHERE actor_id = $1`,
		actorID,
	)

	account, err := scanLinkedAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find linked account by actor ID: %w", err)
	}

	return account, nil
}

// FindByUsername はユーザー名（大文字小文字を区別しない）で紐付けアカウントを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresLinkedAccountRepo) FindByUsername(ctx context.Context, username string) (*model.LinkedAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT actor_id, media_account_id, request_account_id, username, tier, created_at, expires_at
		 FROM linked_accounts WHERE lower(username) = lower($1)`,
		username,
	)

	account, err := scanLinkedAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find linked account by username: %w", err)
	}

	return account, nil
}

// ListAll は全紐付けアカウントをcreated_at昇順で返す。
func (r *PostgresLinkedAccountRepo) ListAll(ctx context.Context) ([]*model.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT actor_id, media_account_id, request_account_id, username, tier, created_at, expires_at
		 FROM linked_accounts ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer rows.Close()

	return collectLinkedAccounts(rows)
}

// ListExpired はexpires_atがnow以前の紐付けアカウントを返す。
func (r *PostgresLinkedAccountRepo) ListExpired(ctx context.Context, now time.Time) ([]*model.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT actor_id, media_account_id, request_account_id, username, tier, created_at, expires_at
		 FROM linked_accounts
		 WHERE expires_at IS NOT NULL AND expires_at <= $1
		 ORDER BY expires_at`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired linked accounts: %w", err)
	}
	defer rows.Close()

	return collectLinkedAccounts(rows)
}

// DeleteByActorID は指定アクターの紐付けアカウントを削除する。
// 行が存在しない場合もエラーにしない（冪等）。
func (r *PostgresLinkedAccountRepo) DeleteByActorID(ctx context.Context, actorID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM linked_accounts WHERE actor_id = $1`,
		actorID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete linked account: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanLinkedAccount は1行をLinkedAccountに読み取る。
func scanLinkedAccount(row rowScanner) (*model.LinkedAccount, error) {
	account := &model.LinkedAccount{}
	var requestAccountID sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(
		&account.ActorID,
		&account.MediaAccountID,
		&requestAccountID,
		&account.Username,
		&account.Tier,
		&account.CreatedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if requestAccountID.Valid {
		account.RequestAccountID = requestAccountID.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		account.ExpiresAt = &t
	}

	return account, nil
}

// collectLinkedAccounts は全行をLinkedAccountのスライスに読み取る。
func collectLinkedAccounts(rows *sql.Rows) ([]*model.LinkedAccount, error) {
	var accounts []*model.LinkedAccount
	for rows.Next() {
		account, err := scanLinkedAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate linked accounts: %w", err)
	}
	return accounts, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ LinkedAccountRepository = (*PostgresLinkedAccountRepo)(nil)
