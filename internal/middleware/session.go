// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/movemonth/internal/authz"
	"github.com/hitoshi/movemonth/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookie名。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済み主体を格納するためのキー。
var principalContextKey = contextKey("principal")

// PrincipalResolver はセッショントークンを認証済み主体に解決するインターフェース。
// authz.Gateが実装する。
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (authz.Principal, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 認証済み主体をリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401、永続化層の障害には503を統一エラーフォーマットで返す。
func NewSessionMiddleware(resolver PrincipalResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := resolvePrincipal(r, resolver)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeStoreUnavailable {
					slog.Error("failed to resolve session",
						slog.String("error", err.Error()),
					)
					WriteErrorResponse(w, http.StatusServiceUnavailable, apiErr)
					return
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// NewBrowserSessionMiddleware はブラウザ遷移用のセッションミドルウェアを返す。
// 認証に失敗した場合はJSONではなくloginURLへリダイレクトする。
func NewBrowserSessionMiddleware(resolver PrincipalResolver, loginURL string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := resolvePrincipal(r, resolver)
			if err != nil {
				http.Redirect(w, r, loginURL, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func resolvePrincipal(r *http.Request, resolver PrincipalResolver) (authz.Principal, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return authz.Principal{}, model.NewUnauthenticatedError()
	}
	return resolver.Resolve(r.Context(), cookie.Value)
}

// PrincipalFromContext はリクエストコンテキストから認証済み主体を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (authz.Principal, error) {
	p, ok := ctx.Value(principalContextKey).(authz.Principal)
	if !ok || p.UserID == "" {
		return authz.Principal{}, fmt.Errorf("principal not found in context")
	}
	return p, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	p, err := PrincipalFromContext(ctx)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

// ContextWithPrincipal はコンテキストに認証済み主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p authz.Principal) context.Context {
	recordPrincipal(ctx, p)
	return context.WithValue(ctx, principalContextKey, p)
}
