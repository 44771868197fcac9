package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(http.DefaultClient, logger, "http://media.local:8096", "key")
	if c == nil {
		t.Fatal("NewClient は nil を返してはならない")
	}
}

// ListUsersがAPIトークンヘッダー付きでアカウント一覧を取得することを検証
func TestClient_ListUsers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("HTTPメソッド = %s, want GET", r.Method)
		}
		if r.URL.Path != "/Users" {
			t.Errorf("パス = %s, want /Users", r.URL.Path)
		}
		if r.Header.Get("X-Emby-Token") != "test-key" {
			t.Errorf("X-Emby-Token = %s, want test-key", r.Header.Get("X-Emby-Token"))
		}

		users := []User{
			{ID: "u1", Name: "alice"},
			{ID: "u2", Name: "Bob", Policy: Policy{IsAdministrator: true}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(users)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "test-key")

	users, err := c.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers がエラーを返した: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ユーザー数 = %d, want 2", len(users))
	}
	if users[0].ID != "u1" || users[1].Policy.IsAdministrator != true {
		t.Errorf("レスポンスのデコード結果が期待と異なる: %+v", users)
	}
}

// FindUserByNameが大文字小文字を区別せずに検索することを検証
func TestClient_FindUserByName_CaseInsensitive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]User{{ID: "u1", Name: "Alice"}})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "k")

	found, err := c.FindUserByName(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindUserByName がエラーを返した: %v", err)
	}
	if found == nil || found.ID != "u1" {
		t.Errorf("found = %+v, want user u1", found)
	}

	missing, err := c.FindUserByName(context.Background(), "carol")
	if err != nil {
		t.Fatalf("FindUserByName がエラーを返した: %v", err)
	}
	if missing != nil {
		t.Errorf("存在しない名前で %+v が返った, want nil", missing)
	}
}

// CreateUserが固定ポリシー付きのリクエストを送信し、作成されたIDを返すことを検証
func TestClient_CreateUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}

		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		if req.Name != "alice" {
			t.Errorf("Name = %s, want alice", req.Name)
		}
		if req.Password == "" {
			t.Error("Password が空であってはならない")
		}
		if req.Policy.IsAdministrator {
			t.Error("作成されるアカウントは管理者であってはならない")
		}
		if !req.Policy.EnableMediaPlayback {
			t.Error("メディア再生は有効でなければならない")
		}
		if req.Policy.EnableLiveTvAccess {
			t.Error("ライブTVは無効でなければならない")
		}

		json.NewEncoder(w).Encode(User{ID: "new-id", Name: req.Name})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "k")

	created, err := c.CreateUser(context.Background(), "alice", "secret-password", DefaultPolicy())
	if err != nil {
		t.Fatalf("CreateUser がエラーを返した: %v", err)
	}
	if created.ID != "new-id" {
		t.Errorf("ID = %s, want new-id", created.ID)
	}
}

// CreateUserがエラーステータスでエラーを返すことを検証
func TestClient_CreateUser_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "k")

	_, err := c.CreateUser(context.Background(), "alice", "pw", DefaultPolicy())
	if err == nil {
		t.Fatal("サーバーエラー時はエラーを返すべき")
	}
}

// DeleteUserが正しいパスにDELETEを送信することを検証
func TestClient_DeleteUser(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodDelete {
			t.Errorf("HTTPメソッド = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "k")

	if err := c.DeleteUser(context.Background(), "u1"); err != nil {
		t.Fatalf("DeleteUser がエラーを返した: %v", err)
	}
	if gotPath != "/Users/u1" {
		t.Errorf("パス = %s, want /Users/u1", gotPath)
	}
}

// Authenticateが成功時にサーバー側の正式なアカウントを返すことを検証。
// 入力名の大文字小文字はサーバーが正規化するため、返り値のNameが正となる。
func TestClient_Authenticate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/AuthenticateByName" {
			t.Errorf("パス = %s, want /Users/AuthenticateByName", r.URL.Path)
		}

		var req authenticateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		if req.Username != "alice" || req.Pw != "pw123" {
			t.Errorf("認証情報 = %+v, want alice/pw123", req)
		}

		json.NewEncoder(w).Encode(authenticateResponse{User: User{ID: "u1", Name: "Alice"}})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "k")

	user, err := c.Authenticate(context.Background(), "alice", "pw123")
	if err != nil {
		t.Fatalf("Authenticate がエラーを返した: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("アカウントID = %s, want u1", user.ID)
	}
	if user.Name != "Alice" {
		t.Errorf("正式なアカウント名 = %s, want Alice", user.Name)
	}
}

// 認証拒否（401）がErrInvalidCredentialsに分類されることを検証
func TestClient_Authenticate_InvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "k")

	_, err := c.Authenticate(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

// サーバーエラー（500）はErrInvalidCredentialsに分類されないことを検証
func TestClient_Authenticate_ServerErrorIsNotInvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "k")

	_, err := c.Authenticate(context.Background(), "alice", "pw")
	if err == nil {
		t.Fatal("サーバーエラー時はエラーを返すべき")
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Error("サーバーエラーをErrInvalidCredentialsに分類してはならない")
	}
}
