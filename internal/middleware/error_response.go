package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/mediagate/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteError はエラーをHTTPステータスにマッピングして統一フォーマットで書き込む。
// APIError以外のエラーは詳細を伏せて500として扱う。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		WriteInternalServerError(w)
		return
	}
	WriteErrorResponse(w, statusForCode(apiErr.Code), apiErr)
}

// statusForCode はエラーコードに対応するHTTPステータスを返す。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeAccountAlreadyExists:
		return http.StatusConflict
	case model.ErrCodeAccountNotFound, model.ErrCodeIntentNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidCredentials, model.ErrCodeNotImported:
		return http.StatusUnprocessableEntity
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeAccountCreateFailed, model.ErrCodeLinkageFailed, model.ErrCodeTransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
