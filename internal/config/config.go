// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// メディアサーバー（アカウント・認証のバックエンド）
	MediaServerURL    string
	MediaServerAPIKey string

	// リクエストサービス（メディアリクエスト管理のバックエンド）
	RequestServerURL    string
	RequestServerAPIKey string

	// 通知ゲートウェイ（未設定の場合は通知を行わない）
	NotifyGatewayURL   string
	NotifyGatewayToken string

	// 管理API
	AdminAPIToken string

	// HTTP
	HTTPTimeout time.Duration
	ServerPort  string

	// Provisioning
	ImportRetryBackoff  time.Duration // リクエストサービス取り込み失敗後の待機時間
	RequestUserPageSize int           // リクエストサービスのユーザー一覧取得件数
	TrialDays           int
	VIPDays             int

	// Sweeper
	SweepInterval time.Duration

	// Intent
	IntentTTL time.Duration // 0の場合は保留コマンドを無期限に保持する

	// Rate Limit（req/min単位）
	RateLimitGeneral   int
	RateLimitProvision int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.MediaServerURL = os.Getenv("MEDIA_SERVER_URL")
	if cfg.MediaServerURL == "" {
		missing = append(missing, "MEDIA_SERVER_URL")
	}

	cfg.MediaServerAPIKey = os.Getenv("MEDIA_SERVER_API_KEY")
	if cfg.MediaServerAPIKey == "" {
		missing = append(missing, "MEDIA_SERVER_API_KEY")
	}

	cfg.RequestServerURL = os.Getenv("REQUEST_SERVER_URL")
	if cfg.RequestServerURL == "" {
		missing = append(missing, "REQUEST_SERVER_URL")
	}

	cfg.RequestServerAPIKey = os.Getenv("REQUEST_SERVER_API_KEY")
	if cfg.RequestServerAPIKey == "" {
		missing = append(missing, "REQUEST_SERVER_API_KEY")
	}

	cfg.AdminAPIToken = os.Getenv("ADMIN_API_TOKEN")
	if cfg.AdminAPIToken == "" {
		missing = append(missing, "ADMIN_API_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.NotifyGatewayURL = getEnvString("NOTIFY_GATEWAY_URL", "")
	cfg.NotifyGatewayToken = getEnvString("NOTIFY_GATEWAY_TOKEN", "")
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 15*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ImportRetryBackoff = getEnvDuration("IMPORT_RETRY_BACKOFF", 2*time.Second)
	cfg.RequestUserPageSize = getEnvInt("REQUEST_USER_PAGE_SIZE", 1000)
	cfg.TrialDays = getEnvInt("TRIAL_DAYS", 7)
	cfg.VIPDays = getEnvInt("VIP_DAYS", 30)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 10*time.Minute)
	cfg.IntentTTL = getEnvDuration("INTENT_TTL", 0)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitProvision = getEnvInt("RATE_LIMIT_PROVISION", 10)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
