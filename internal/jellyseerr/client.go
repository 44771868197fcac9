// Package jellyseerr はリクエストサービス（メディアリクエスト管理バックエンド）のAPIクライアントを提供する。
// メディアサーバーアカウントの取り込み・検索・削除とメディアリクエストの作成を含む。
package jellyseerr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// User はリクエストサービス上のアカウントを表す。
// MediaAccountIDは対応するメディアサーバー側アカウントのID。
type User struct {
	ID             int    `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	MediaAccountID string `json:"jellyfinUserId"`
}

// listUsersResponse はユーザー一覧エンドポイントのレスポンス。
type listUsersResponse struct {
	Results []User `json:"results"`
}

// importRequest はメディアサーバーアカウント取り込みエンドポイントへのリクエストボディ。
type importRequest struct {
	MediaAccountIDs []string `json:"jellyfinUserIds"`
}

// MediaRequest はメディアリクエスト作成の入力を表す。
// プロビジョニングの外側（チャットフロント連携）で使用する。
type MediaRequest struct {
	MediaType string `json:"mediaType"` // movie または tv
	MediaID   int    `json:"mediaId"`   // TMDB ID
	UserID    int    `json:"userId,omitempty"`
	Seasons   []int  `json:"seasons,omitempty"`
}

// Client はリクエストサービスAPIのクライアント。
// 静的APIキー（X-Api-Keyヘッダー）で認証する。
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

// ImportFromMediaServer はメディアサーバーのアカウントをリクエストサービスへ取り込む。
// リモート側で非同期に完了する場合があるため、呼び出し側はベストエフォートとして扱うこと。
func (c *Client) ImportFromMediaServer(ctx context.Context, mediaAccountID string) error {
	reqBody := importRequest{MediaAccountIDs: []string{mediaAccountID}}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/user/import-from-jellyfin", &reqBody, nil); err != nil {
		return fmt.Errorf("アカウントの取り込みに失敗しました: %w", err)
	}
	return nil
}

// ListUsers はアカウント一覧を取得する。takeは最大取得件数。
func (c *Client) ListUsers(ctx context.Context, take int) ([]User, error) {
	var resp listUsersResponse
	path := "/api/v1/user?take=" + strconv.Itoa(take)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	return resp.Results, nil
}

// FindUserByMediaAccountID はメディアサーバー側アカウントIDが一致するユーザーを検索する。
// 見つからない場合はnilを返す。
func (c *Client) FindUserByMediaAccountID(ctx context.Context, mediaAccountID string, take int) (*User, error) {
	users, err := c.ListUsers(ctx, take)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].MediaAccountID == mediaAccountID {
			return &users[i], nil
		}
	}
	return nil, nil
}

// DeleteUser は指定IDのアカウントを削除する。
func (c *Client) DeleteUser(ctx context.Context, id int) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/user/"+strconv.Itoa(id), nil, nil); err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}
	return nil
}

// CreateRequest はメディアリクエストを作成する。
func (c *Client) CreateRequest(ctx context.Context, req MediaRequest) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/request", &req, nil); err != nil {
		return fmt.Errorf("メディアリクエストの作成に失敗しました: %w", err)
	}
	return nil
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
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("リクエストサービスAPIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("リクエストサービスAPIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("リクエストサービスAPIがステータス %d を返しました", resp.StatusCode)
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
