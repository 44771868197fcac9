package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/mediagate/internal/jellyfin"
	"github.com/hitoshi/mediagate/internal/jellyseerr"
	"github.com/hitoshi/mediagate/internal/middleware"
	"github.com/hitoshi/mediagate/internal/model"
)

// MediaServerLister はメディアサーバーのアカウント一覧取得インターフェース。
type MediaServerLister interface {
	ListUsers(ctx context.Context) ([]jellyfin.User, error)
}

// MediaRequester はメディアリクエスト作成のインターフェース。
type MediaRequester interface {
	CreateRequest(ctx context.Context, req jellyseerr.MediaRequest) error
}

// BackendHandler はバックエンドサービスへの読み取り/中継のHTTPハンドラー。
type BackendHandler struct {
	media   MediaServerLister
	request MediaRequester
}

// NewBackendHandler はBackendHandlerを生成する。
func NewBackendHandler(media MediaServerLister, request MediaRequester) *BackendHandler {
	return &BackendHandler{
		media:   media,
		request: request,
	}
}

// mediaUserResponse はメディアサーバーアカウントのAPIレスポンス。
type mediaUserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// createRequestBody はメディアリクエスト作成リクエストのボディ。
type createRequestBody struct {
	MediaType string `json:"media_type"`
	MediaID   int    `json:"media_id"`
	UserID    int    `json:"user_id"`
	Seasons   []int  `json:"seasons"`
}

// ListMediaUsers はメディアサーバーの全アカウントを返す。
// GET /api/mediaserver/users
func (h *BackendHandler) ListMediaUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.media.ListUsers(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewTransportError("メディアサーバー", err.Error()))
		return
	}

	resp := make([]mediaUserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, mediaUserResponse{
			ID:       u.ID,
			Username: u.Name,
			IsAdmin:  u.Policy.IsAdministrator,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]mediaUserResponse{"users": resp})
}

// CreateRequest はメディアリクエスト作成を中継する。
// POST /api/requests
func (h *BackendHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if body.MediaType != "movie" && body.MediaType != "tv" {
		middleware.WriteError(w, model.NewInvalidRequestError("media_typeはmovieまたはtvを指定してください"))
		return
	}
	if body.MediaID <= 0 {
		middleware.WriteError(w, model.NewInvalidRequestError("media_idは正の整数を指定してください"))
		return
	}

	err := h.request.CreateRequest(r.Context(), jellyseerr.MediaRequest{
		MediaType: body.MediaType,
		MediaID:   body.MediaID,
		UserID:    body.UserID,
		Seasons:   body.Seasons,
	})
	if err != nil {
		middleware.WriteError(w, model.NewTransportError("リクエストサービス", err.Error()))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
