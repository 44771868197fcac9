package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mediagate/internal/intent"
	"github.com/hitoshi/mediagate/internal/model"
)

func newIntentRouter(tracker *intent.Tracker) http.Handler {
	r := chi.NewRouter()
	h := NewIntentHandler(tracker)
	r.Route("/api/intents/{actorID}", func(r chi.Router) {
		r.Put("/", h.SetIntent)
		r.Post("/consume", h.ConsumeIntent)
		r.Delete("/", h.ClearIntent)
	})
	return r
}

// 保留コマンドの設定と消費のフローを検証
func TestIntentHandler_SetAndConsume(t *testing.T) {
	tracker := intent.New(0)
	router := newIntentRouter(tracker)

	req := httptest.NewRequest(http.MethodPut, "/api/intents/actor-1", strings.NewReader(`{"kind":"create_trial"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("設定のステータスコードが不正: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/intents/actor-1/consume", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("消費のステータスコードが不正: %d", rec.Code)
	}

	var resp intentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.ActorID != "actor-1" || resp.Kind != string(model.IntentCreateTrial) {
		t.Errorf("消費内容が不正: %+v", resp)
	}

	// 2回目の消費は404（ちょうど1回だけ消費される）
	req = httptest.NewRequest(http.MethodPost, "/api/intents/actor-1/consume", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("2回目の消費は404を返すべき: %d", rec.Code)
	}
}

// 保留コマンドがない場合のエラーがアカウント未検出と区別されることを検証
func TestIntentHandler_ConsumeIntent_NotFoundCode(t *testing.T) {
	router := newIntentRouter(intent.New(0))

	req := httptest.NewRequest(http.MethodPost, "/api/intents/actor-1/consume", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("ステータスコードが不正: %d", rec.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if body.Code != model.ErrCodeIntentNotFound {
		t.Errorf("エラーコード = %s, want %s", body.Code, model.ErrCodeIntentNotFound)
	}
}

// 未知のコマンド種別が400になることを検証
func TestIntentHandler_SetIntent_UnknownKind(t *testing.T) {
	router := newIntentRouter(intent.New(0))

	req := httptest.NewRequest(http.MethodPut, "/api/intents/actor-1", strings.NewReader(`{"kind":"unknown_kind"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが不正: %d", rec.Code)
	}
}

// 保留コマンドの破棄を検証
func TestIntentHandler_ClearIntent(t *testing.T) {
	tracker := intent.New(0)
	tracker.Set("actor-1", model.IntentCreateVIP)
	router := newIntentRouter(tracker)

	req := httptest.NewRequest(http.MethodDelete, "/api/intents/actor-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("ステータスコードが不正: %d", rec.Code)
	}
	if tracker.Len() != 0 {
		t.Error("保留コマンドが破棄されていない")
	}
}
