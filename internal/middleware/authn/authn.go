package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	resp "client_portal/internal/lib/api/response"
	"client_portal/internal/lib/jwt"

	"github.com/go-chi/render"
)

type ctxKey struct{}

// New returns a middleware that requires a bearer session token. Absent,
// tampered or expired tokens yield 401; valid claims are placed into the
// request context for downstream handlers.
func New(log *slog.Logger, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Missing bearer token"))

				return
			}

			claims, err := jwt.ParseToken(token, secret)
			if err != nil {
				log.Warn("rejected session token", slog.String("reason", err.Error()))

				msg := "Invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "Token has expired"
				}

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(msg))

				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// * ClaimsFromContext достает claims, положенные middleware
func ClaimsFromContext(ctx context.Context) (jwt.Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(jwt.Claims)
	return claims, ok
}
