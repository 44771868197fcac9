// Package handler は管理APIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mediagate/internal/middleware"
	"github.com/hitoshi/mediagate/internal/model"
	"github.com/hitoshi/mediagate/internal/provision"
)

// ProvisionServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type ProvisionServiceInterface interface {
	// Provision はアカウントを作成し、両バックエンドへ連携する。
	Provision(ctx context.Context, req model.ProvisioningRequest) (*provision.Result, error)
	// Revoke は指定アクターのアカウントを失効させる。
	Revoke(ctx context.Context, actorID string) error
	// RevokeByUsername はユーザー名を起点にアカウントを失効させる。
	RevokeByUsername(ctx context.Context, username string) error
	// Link は既存アカウントをアクターに紐付ける。
	Link(ctx context.Context, actorID, username, password string) (*model.LinkedAccount, error)
	// Unlink はレジストリの紐付けのみを削除する。
	Unlink(ctx context.Context, actorID string) error
}

// AccountLister はレジストリの読み取りインターフェース。
type AccountLister interface {
	FindByActorID(ctx context.Context, actorID string) (*model.LinkedAccount, error)
	ListAll(ctx context.Context) ([]*model.LinkedAccount, error)
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service ProvisionServiceInterface
	lister  AccountLister
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service ProvisionServiceInterface, lister AccountLister) *AccountHandler {
	return &AccountHandler{
		service: service,
		lister:  lister,
	}
}

// provisionRequest はアカウント作成リクエストのボディ。
type provisionRequest struct {
	TargetActorID   string `json:"target_actor_id"`
	DesiredUsername string `json:"desired_username"`
	DurationDays    int    `json:"duration_days"`
	Tier            string `json:"tier"`
}

// linkRequest はアカウント紐付けリクエストのボディ。
type linkRequest struct {
	ActorID  string `json:"actor_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// unlinkRequest は紐付け解除リクエストのボディ。
type unlinkRequest struct {
	ActorID string `json:"actor_id"`
}

// accountResponse は紐付けアカウントのAPIレスポンス。
type accountResponse struct {
	ActorID          string     `json:"actor_id"`
	MediaAccountID   string     `json:"media_account_id"`
	RequestAccountID string     `json:"request_account_id,omitempty"`
	Username         string     `json:"username"`
	Tier             string     `json:"tier,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// provisionResponse はアカウント作成のAPIレスポンス。
// パスワードはこのレスポンスでのみ返され、サーバー側には保持されない。
// deliveredがfalseの場合、呼び出し側が利用者への提示を行う。
type provisionResponse struct {
	Account   accountResponse `json:"account"`
	Password  string          `json:"password"`
	Delivered bool            `json:"delivered"`
}

// Provision はアカウント作成を処理する。
// POST /api/accounts
func (h *AccountHandler) Provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if req.TargetActorID == "" {
		middleware.WriteError(w, model.NewInvalidRequestError("target_actor_idは必須です"))
		return
	}
	if req.DurationDays < 0 {
		middleware.WriteError(w, model.NewInvalidRequestError("duration_daysは0以上を指定してください"))
		return
	}

	result, err := h.service.Provision(r.Context(), model.ProvisioningRequest{
		TargetActorID:   req.TargetActorID,
		DesiredUsername: req.DesiredUsername,
		DurationDays:    req.DurationDays,
		Tier:            req.Tier,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(provisionResponse{
		Account:   toAccountResponse(result.Account),
		Password:  result.Password,
		Delivered: result.Delivered,
	})
}

// ListAccounts は全紐付けアカウントの一覧を返す。
// GET /api/accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.lister.ListAll(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for _, account := range accounts {
		resp = append(resp, toAccountResponse(account))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]accountResponse{"accounts": resp})
}

// GetAccount は指定アクターの紐付けアカウントを返す。
// GET /api/accounts/{actorID}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")

	account, err := h.lister.FindByActorID(r.Context(), actorID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if account == nil {
		middleware.WriteError(w, model.NewAccountNotFoundError(actorID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAccountResponse(account))
}

// Revoke はアカウント失効を処理する。
// DELETE /api/accounts/{actorID}
func (h *AccountHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")

	if err := h.service.Revoke(r.Context(), actorID); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeByUsername はユーザー名起点のアカウント失効を処理する。
// DELETE /api/accounts/username/{username}
func (h *AccountHandler) RevokeByUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.service.RevokeByUsername(r.Context(), username); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Link は既存アカウントの紐付けを処理する。
// POST /api/accounts/link
func (h *AccountHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	account, err := h.service.Link(r.Context(), req.ActorID, req.Username, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAccountResponse(account))
}

// Unlink は紐付け解除を処理する。
// POST /api/accounts/unlink
func (h *AccountHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	var req unlinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if req.ActorID == "" {
		middleware.WriteError(w, model.NewInvalidRequestError("actor_idは必須です"))
		return
	}

	if err := h.service.Unlink(r.Context(), req.ActorID); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toAccountResponse はmodel.LinkedAccountからAPIレスポンスに変換する。
func toAccountResponse(account *model.LinkedAccount) accountResponse {
	return accountResponse{
		ActorID:          account.ActorID,
		MediaAccountID:   account.MediaAccountID,
		RequestAccountID: account.RequestAccountID,
		Username:         account.Username,
		Tier:             account.Tier,
		CreatedAt:        account.CreatedAt,
		ExpiresAt:        account.ExpiresAt,
	}
}
