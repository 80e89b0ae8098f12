package resendOtp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"client_portal/internal/auth"
	resp "client_portal/internal/lib/api/response"
	sl "client_portal/internal/lib/logger"
	"client_portal/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required,oneof=signup_verification password_reset"`
}

type Response struct {
	resp.Response
}

// New re-issues the code for the given purpose, invalidating the previous one
// and restarting its window. Always 200 for well-formed requests, so the
// endpoint reveals nothing about account existence.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resendOtp.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := authService.ResendCode(ctx, req.Email, models.CodePurpose(req.Purpose)); err != nil {
			if errors.Is(err, auth.ErrDispatchFailure) {
				log.Error("failed to dispatch code", sl.Err(err))

				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, resp.Error("Failed to send code, please retry"))

				return
			}

			log.Error("failed to resend code", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("code resend handled")

		ResponseOK(w, r)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
	})
}
