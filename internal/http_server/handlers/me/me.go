package me

import (
	"log/slog"
	"net/http"

	resp "client_portal/internal/lib/api/response"
	"client_portal/internal/middleware/authn"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// New echoes the session claims back to the authenticated caller.
func New(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		claims, ok := authn.ClaimsFromContext(r.Context())
		if !ok {
			log.Error("claims missing from context")

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			UserID:   claims.UserID,
			Email:    claims.Email,
			Role:     claims.Role,
		})
	}
}
