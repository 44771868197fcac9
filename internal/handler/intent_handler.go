package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mediagate/internal/intent"
	"github.com/hitoshi/mediagate/internal/middleware"
	"github.com/hitoshi/mediagate/internal/model"
)

// IntentHandler は保留中コマンドのHTTPハンドラー。
// チャットフロントエンドが複数ステップのコマンドフローを進めるために使用する。
type IntentHandler struct {
	tracker *intent.Tracker
}

// NewIntentHandler はIntentHandlerを生成する。
func NewIntentHandler(tracker *intent.Tracker) *IntentHandler {
	return &IntentHandler{tracker: tracker}
}

// setIntentRequest は保留コマンド設定リクエストのボディ。
type setIntentRequest struct {
	Kind string `json:"kind"`
}

// intentResponse は保留コマンドのAPIレスポンス。
type intentResponse struct {
	ActorID   string    `json:"actor_id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// validIntentKinds は受け付ける保留コマンド種別。
var validIntentKinds = map[model.IntentKind]bool{
	model.IntentCreatePermanent:      true,
	model.IntentCreateTrial:          true,
	model.IntentCreateVIP:            true,
	model.IntentAwaitLinkCredentials: true,
}

// SetIntent はアクターの保留中コマンドを設定する（後勝ち）。
// PUT /api/intents/{actorID}
func (h *IntentHandler) SetIntent(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")

	var req setIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	kind := model.IntentKind(req.Kind)
	if !validIntentKinds[kind] {
		middleware.WriteError(w, model.NewInvalidRequestError("未知のコマンド種別です: "+req.Kind))
		return
	}

	h.tracker.Set(actorID, kind)
	w.WriteHeader(http.StatusNoContent)
}

// ConsumeIntent はアクターの保留中コマンドを取得し、同時にクリアする。
// 保留コマンドがない場合は404を返す。
// POST /api/intents/{actorID}/consume
func (h *IntentHandler) ConsumeIntent(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")

	pending := h.tracker.Consume(actorID)
	if pending == nil {
		middleware.WriteError(w, model.NewIntentNotFoundError(actorID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intentResponse{
		ActorID:   pending.ActorID,
		Kind:      string(pending.Kind),
		CreatedAt: pending.CreatedAt,
	})
}

// ClearIntent はアクターの保留中コマンドを無条件に破棄する。
// DELETE /api/intents/{actorID}
func (h *IntentHandler) ClearIntent(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")

	h.tracker.Clear(actorID)
	w.WriteHeader(http.StatusNoContent)
}
