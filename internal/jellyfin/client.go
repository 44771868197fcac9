// Package jellyfin はメディアサーバー（アイデンティティバックエンド）のAPIクライアントを提供する。
// アカウントの作成・検索・削除と資格情報による認証を含む。
package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrInvalidCredentials は認証拒否（HTTP 401）を示す。
// ネットワーク障害とは区別され、呼び出し側が再試行ではなくユーザーへの通知を選べるようにする。
var ErrInvalidCredentials = errors.New("認証に失敗しました")

// User はメディアサーバー上のアカウントを表す。
type User struct {
	ID     string `json:"Id"`
	Name   string `json:"Name"`
	Policy Policy `json:"Policy"`
}

// Policy はアカウントの権限設定を表す。
type Policy struct {
	IsAdministrator            bool `json:"IsAdministrator"`
	EnableUserPreferenceAccess bool `json:"EnableUserPreferenceAccess"`
	EnableMediaPlayback        bool `json:"EnableMediaPlayback"`
	EnableLiveTvAccess         bool `json:"EnableLiveTvAccess"`
	EnableLiveTvManagement     bool `json:"EnableLiveTvManagement"`
}

// DefaultPolicy はプロビジョニングで作成するアカウントの固定ポリシーを返す。
// 管理者権限なし、メディア再生可、ライブTV不可。
func DefaultPolicy() Policy {
	return Policy{
		IsAdministrator:            false,
		EnableUserPreferenceAccess: true,
		EnableMediaPlayback:        true,
		EnableLiveTvAccess:         false,
		EnableLiveTvManagement:     false,
	}
}

// createUserRequest はアカウント作成エンドポイントへのリクエストボディ。
type createUserRequest struct {
	Name     string `json:"Name"`
	Password string `json:"Password"`
	Policy   Policy `json:"Policy"`
}

// authenticateRequest は認証エンドポイントへのリクエストボディ。
type authenticateRequest struct {
	Username string `json:"Username"`
	Pw       string `json:"Pw"`
}

// authenticateResponse は認証エンドポイントのレスポンス。
type authenticateResponse struct {
	User User `json:"User"`
}

// Client はメディアサーバーAPIのクライアント。
// 静的APIトークン（X-Emby-Tokenヘッダー）で認証する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// ListUsers は全アカウントを取得する。
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.doJSON(ctx, http.MethodGet, "/Users", nil, &users); err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// FindUserByName は名前が一致するアカウントを検索する（大文字小文字を区別しない）。
// 見つからない場合はnilを返す。
func (c *Client) FindUserByName(ctx context.Context, name string) (*User, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Name, name) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// CreateUser は指定の名前・パスワード・ポリシーでアカウントを作成する。
// パスワードはリクエストボディにのみ含め、ログには一切出力しない。
func (c *Client) CreateUser(ctx context.Context, name, password string, policy Policy) (*User, error) {
	reqBody := createUserRequest{
		Name:     name,
		Password: password,
		Policy:   policy,
	}

	var created User
	if err := c.doJSON(ctx, http.MethodPost, "/Users", &reqBody, &created); err != nil {
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("アカウント作成レスポンスにIDが含まれていません")
	}

	c.logger.Info("メディアサーバーにアカウントを作成しました",
		slog.String("account_id", created.ID),
		slog.String("username", name),
	)

	return &created, nil
}

// DeleteUser は指定IDのアカウントを削除する。
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/Users/"+id, nil, nil); err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}
	return nil
}

// Authenticate は名前とパスワードで認証し、サーバー側の正式なアカウントを返す。
// 入力名は大文字小文字を区別せずに照合されるため、返り値のNameが正式な表記となる。
// 認証拒否（HTTP 401）の場合はErrInvalidCredentialsを返す。
func (c *Client) Authenticate(ctx context.Context, name, password string) (*User, error) {
	reqBody := authenticateRequest{Username: name, Pw: password}

	body, err := json.Marshal(&reqBody)
	if err != nil {
		return nil, fmt.Errorf("認証リクエストの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Users/AuthenticateByName", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("認証リクエストの作成に失敗しました: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("認証リクエストの送信に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("メディアサーバーがステータス %d を返しました", resp.StatusCode)
	}

	var authResp authenticateResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return nil, fmt.Errorf("認証レスポンスのパースに失敗しました: %w", err)
	}
	if authResp.User.ID == "" {
		return nil, fmt.Errorf("認証レスポンスにアカウントIDが含まれていません")
	}

	return &authResp.User, nil
}

// doJSON はJSONリクエストを送信し、成功時にレスポンスをoutへデコードする。
// outがnilの場合はレスポンスボディを破棄する。
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストボディの構築に失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("メディアサーバーAPIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("メディアサーバーAPIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("メディアサーバーAPIがステータス %d を返しました", resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}

// setHeaders は認証トークンとJSONヘッダーを設定する。
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
