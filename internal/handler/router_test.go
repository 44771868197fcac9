package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/mediagate/internal/intent"
	"github.com/hitoshi/mediagate/internal/middleware"
	"golang.org/x/time/rate"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		ProvisionRate:   rate.Limit(100),
		ProvisionBurst:  100,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		AdminAPIToken:    "test-token",
		RateLimiter:      rl,
		ProvisionService: &fakeProvisionService{},
		AccountLister:    &fakeAccountLister{},
		MediaServer:      &fakeMediaLister{},
		MediaRequester:   &fakeRequester{},
		IntentTracker:    intent.New(0),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		HealthCheck: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
}

// 運用エンドポイントが認証なしでアクセスできることを検証
func TestRouter_OperationalRoutesAreUnauthenticated(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s のステータスコードが不正: %d", path, rec.Code)
		}
	}
}

// APIルートが認証を要求することを検証
func TestRouter_APIRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/accounts"},
		{http.MethodPost, "/api/accounts"},
		{http.MethodDelete, "/api/accounts/actor-1"},
		{http.MethodGet, "/api/mediaserver/users"},
		{http.MethodPost, "/api/requests"},
		{http.MethodPut, "/api/intents/actor-1"},
	}

	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s は401を返すべき: %d", p.method, p.path, rec.Code)
		}
	}
}

// 認証済みリクエストがハンドラーに到達することを検証
func TestRouter_AuthenticatedRequestReachesHandler(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ステータスコードが不正: %d, body: %s", rec.Code, rec.Body.String())
	}
}

// アカウント作成エンドポイントが機能することを検証（ルーティング結線の確認）
func TestRouter_ProvisionEndToEnd(t *testing.T) {
	router := newTestRouter(t)

	body := `{"target_actor_id":"actor-1","desired_username":"alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("ステータスコードが不正: %d, body: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-IDヘッダーが設定されていない")
	}
}

// プロビジョニング専用レート制限が適用されることを検証
func TestRouter_ProvisionRateLimit(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		ProvisionRate:   rate.Limit(1),
		ProvisionBurst:  1,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	router := NewRouter(&RouterDeps{
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		AdminAPIToken:    "test-token",
		RateLimiter:      rl,
		ProvisionService: &fakeProvisionService{},
		AccountLister:    &fakeAccountLister{},
		MediaServer:      &fakeMediaLister{},
		MediaRequester:   &fakeRequester{},
		IntentTracker:    intent.New(0),
		MetricsHandler:   http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		HealthCheck:      func(w http.ResponseWriter, r *http.Request) {},
	})

	send := func() int {
		body := `{"target_actor_id":"actor-1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer test-token")
		req.Header.Set("X-Caller-ID", "bot-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusCreated {
		t.Fatalf("1回目は通過すべき: %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("2回目は429を返すべき: %d", code)
	}
}
