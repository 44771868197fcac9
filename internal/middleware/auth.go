// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// callerIDContextKey はリクエストコンテキストに呼び出し元IDを格納するためのキー。
var callerIDContextKey = contextKey("caller_id")

// NewAuthMiddleware は静的BearerトークンでAPIリクエストを認証するミドルウェアを返す。
// トークン比較は一定時間比較で行う。
// 呼び出し元ID（X-Caller-IDヘッダー、なければ接続元ホスト）をコンテキストに注入する。
func NewAuthMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), callerIDContextKey, callerID(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(auth, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}

// callerID はレート制限とログに使う呼び出し元の識別子を返す。
func callerID(r *http.Request) string {
	if id := r.Header.Get("X-Caller-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CallerIDFromContext はリクエストコンテキストから呼び出し元IDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func CallerIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(callerIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("caller ID not found in context")
	}
	return id, nil
}

// ContextWithCallerID はコンテキストに呼び出し元IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithCallerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerIDContextKey, id)
}
