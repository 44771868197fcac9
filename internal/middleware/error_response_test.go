package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/mediagate/internal/model"
)

// APIErrorが対応するHTTPステータスと統一フォーマットで返ることを検証
func TestWriteError_MapsAPIErrorToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"既存アカウント", model.NewAccountAlreadyExistsError("alice", "media-1"), http.StatusConflict, model.ErrCodeAccountAlreadyExists},
		{"アカウント未検出", model.NewAccountNotFoundError("actor-1"), http.StatusNotFound, model.ErrCodeAccountNotFound},
		{"資格情報不正", model.NewInvalidCredentialsError(), http.StatusUnprocessableEntity, model.ErrCodeInvalidCredentials},
		{"未登録", model.NewNotImportedError("alice"), http.StatusUnprocessableEntity, model.ErrCodeNotImported},
		{"入力不正", model.NewInvalidRequestError("理由"), http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"作成失敗", model.NewAccountCreateFailedError("理由"), http.StatusBadGateway, model.ErrCodeAccountCreateFailed},
		{"連携失敗", model.NewLinkageFailedError("理由"), http.StatusBadGateway, model.ErrCodeLinkageFailed},
		{"通信障害", model.NewTransportError("サービス", "理由"), http.StatusBadGateway, model.ErrCodeTransportError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("ステータスコードが不正: got %d, want %d", rec.Code, tt.wantStatus)
			}

			var body ErrorResponseBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("レスポンスのパースに失敗: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("エラーコードが不正: got %q, want %q", body.Code, tt.wantCode)
			}
			if body.Message == "" || body.Action == "" {
				t.Error("メッセージと対処方法は必須")
			}
		})
	}
}

// APIError以外のエラーが詳細を伏せた500になることを検証
func TestWriteError_GenericErrorIs500(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("db: connection refused to 10.0.0.1"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("ステータスコードが不正: %d", rec.Code)
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("エラーコードが不正: %q", body.Code)
	}
	// 内部エラーの詳細はレスポンスに含めない
	if rec.Body.String() == "" || body.Message != "内部エラーが発生しました。" {
		t.Errorf("内部エラーの詳細が漏れている可能性: %s", rec.Body.String())
	}
}
