package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mediagate/internal/intent"
	"github.com/hitoshi/mediagate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger        *slog.Logger
	AdminAPIToken string
	RateLimiter   *middleware.RateLimiter

	// アカウント管理
	ProvisionService ProvisionServiceInterface
	AccountLister    AccountLister

	// バックエンド中継
	MediaServer    MediaServerLister
	MediaRequester MediaRequester

	// 保留中コマンド
	IntentTracker *intent.Tracker

	// 運用エンドポイント
	MetricsHandler http.Handler
	HealthCheck    http.HandlerFunc
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	LoggingMiddleware → RecoveryMiddleware → AuthMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 運用ルート（/healthz、/metrics）は認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))

	accountHandler := NewAccountHandler(deps.ProvisionService, deps.AccountLister)
	backendHandler := NewBackendHandler(deps.MediaServer, deps.MediaRequester)
	intentHandler := NewIntentHandler(deps.IntentTracker)

	// --- 認証不要のルート ---

	r.Get("/healthz", deps.HealthCheck)
	r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.AdminAPIToken))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アカウント管理
		r.Route("/api/accounts", func(r chi.Router) {
			// POST /api/accounts - アカウント作成（プロビジョニング専用レート制限を追加）
			r.With(deps.RateLimiter.ProvisionMiddleware()).Post("/", accountHandler.Provision)

			r.Get("/", accountHandler.ListAccounts)
			r.Post("/link", accountHandler.Link)
			r.Post("/unlink", accountHandler.Unlink)
			r.Delete("/username/{username}", accountHandler.RevokeByUsername)

			r.Route("/{actorID}", func(r chi.Router) {
				r.Get("/", accountHandler.GetAccount)
				r.Delete("/", accountHandler.Revoke)
			})
		})

		// バックエンド中継
		r.Get("/api/mediaserver/users", backendHandler.ListMediaUsers)
		r.Post("/api/requests", backendHandler.CreateRequest)

		// 保留中コマンド
		r.Route("/api/intents/{actorID}", func(r chi.Router) {
			r.Put("/", intentHandler.SetIntent)
			r.Post("/consume", intentHandler.ConsumeIntent)
			r.Delete("/", intentHandler.ClearIntent)
		})
	})

	return r
}
