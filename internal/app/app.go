// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/mediagate/internal/config"
	"github.com/hitoshi/mediagate/internal/database"
	"github.com/hitoshi/mediagate/internal/handler"
	"github.com/hitoshi/mediagate/internal/intent"
	"github.com/hitoshi/mediagate/internal/jellyfin"
	"github.com/hitoshi/mediagate/internal/jellyseerr"
	"github.com/hitoshi/mediagate/internal/logger"
	"github.com/hitoshi/mediagate/internal/metrics"
	"github.com/hitoshi/mediagate/internal/middleware"
	"github.com/hitoshi/mediagate/internal/notify"
	"github.com/hitoshi/mediagate/internal/provision"
	"github.com/hitoshi/mediagate/internal/repository"
	"github.com/hitoshi/mediagate/internal/worker/expire"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildProvisionService はバックエンドクライアントとオーケストレーターを組み立てる。
// serveとworkerで共通のワイヤリング。withNotifierがfalseの場合は通知クライアントを接続しない。
func buildProvisionService(
	cfg *config.Config,
	accountRepo repository.LinkedAccountRepository,
	collector metrics.MetricsCollector,
	withNotifier bool,
) (*provision.Service, *jellyfin.Client, *jellyseerr.Client) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	mediaClient := jellyfin.NewClient(httpClient, slog.Default(), cfg.MediaServerURL, cfg.MediaServerAPIKey)
	requestClient := jellyseerr.NewClient(httpClient, slog.Default(), cfg.RequestServerURL, cfg.RequestServerAPIKey)

	var notifier provision.Notifier
	if withNotifier && cfg.NotifyGatewayURL != "" {
		notifier = notify.NewClient(httpClient, slog.Default(), cfg.NotifyGatewayURL, cfg.NotifyGatewayToken)
	}

	service := provision.NewService(
		mediaClient, requestClient, accountRepo, notifier, collector, slog.Default(),
		provision.Config{
			MediaServerURL:      cfg.MediaServerURL,
			RequestServerURL:    cfg.RequestServerURL,
			ImportRetryBackoff:  cfg.ImportRetryBackoff,
			RequestUserPageSize: cfg.RequestUserPageSize,
			TierDurations: map[string]int{
				"trial": cfg.TrialDays,
				"vip":   cfg.VIPDays,
			},
		},
	)

	return service, mediaClient, requestClient
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリとメトリクスの初期化
	accountRepo := repository.NewPostgresLinkedAccountRepo(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. バックエンドクライアントとオーケストレーターの初期化
	provisionService, mediaClient, requestClient := buildProvisionService(cfg, accountRepo, collector, true)

	// 4. レートリミッターと保留コマンドトラッカーの初期化
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitProvision))
	defer rateLimiter.Stop()

	tracker := intent.New(cfg.IntentTTL)
	defer tracker.Stop()

	// 5. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		AdminAPIToken: cfg.AdminAPIToken,
		RateLimiter:   rateLimiter,

		ProvisionService: provisionService,
		AccountLister:    accountRepo,

		MediaServer:    mediaClient,
		MediaRequester: requestClient,

		IntentTracker: tracker,

		MetricsHandler: metrics.Handler(registry),
		HealthCheck: func(w http.ResponseWriter, r *http.Request) {
			if err := database.Ping(r.Context(), db, 2*time.Second); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		},
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れスイーパーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 依存関係の初期化
	// ワーカーは資格情報を扱わないため通知クライアントは接続しない
	accountRepo := repository.NewPostgresLinkedAccountRepo(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	provisionService, _, _ := buildProvisionService(cfg, accountRepo, collector, false)

	// 3. スイーパーの初期化
	sweeper := expire.NewSweeper(accountRepo, provisionService, collector, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
	)

	// スイーパーをメインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.SweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
