// Package notify はエンドユーザーへの直接通知を提供する。
// チャットフロントエンドが公開する通知ゲートウェイへのHTTPクライアントを含む。
// 配送はベストエフォートであり、失敗してもプロビジョニング結果は巻き戻されない。
package notify

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

	"github.com/google/uuid"
)

// ErrNotConfigured は通知ゲートウェイが未設定であることを示す。
// 呼び出し側は配送失敗と同様にフォールバック表示へ切り替える。
var ErrNotConfigured = errors.New("通知ゲートウェイが設定されていません")

// directMessage は通知ゲートウェイへのリクエストボディ。
// IdempotencyKeyにより再送時の二重配送を防ぐ。
type directMessage struct {
	Recipient      string `json:"recipient"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Client は通知ゲートウェイのHTTPクライアント。
// 静的Bearerトークンで認証する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, token string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// SendDirect は指定アクターへテキストメッセージを配送する。
// アクターが一度もコンタクトしていない場合などはゲートウェイがエラーを返す。
func (c *Client) SendDirect(ctx context.Context, actorID, text string) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	msg := directMessage{
		Recipient:      actorID,
		Text:           text,
		IdempotencyKey: uuid.NewString(),
	}

	body, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("通知リクエストの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("通知リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("通知ゲートウェイの呼び出しに失敗しました",
			slog.String("recipient", actorID),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("通知ゲートウェイがエラーステータスを返しました",
			slog.String("recipient", actorID),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("通知ゲートウェイがステータス %d を返しました", resp.StatusCode)
	}

	return nil
}
