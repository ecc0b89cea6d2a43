// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskdeck/internal/auth"
	"github.com/hitoshi/taskdeck/internal/identity"
	"github.com/hitoshi/taskdeck/internal/model"
)

// NewAuthMiddleware はBearerトークンを検証し、外部IDをリクエストコンテキストへ
// 注入するミドルウェアを返す。トークンの欠落・改ざんは401で拒否する。
// ここを通過したリクエストだけが認証境界の内側に入る。
func NewAuthMiddleware(verifier auth.Verifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			externalID, err := verifier.Verify(token)
			if err != nil {
				slog.Warn("トークン検証に失敗しました",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			ctx := identity.ContextWithExternalID(r.Context(), externalID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
