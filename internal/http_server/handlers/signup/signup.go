package signup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"client_portal/internal/auth"
	resp "client_portal/internal/lib/api/response"
	sl "client_portal/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Pass     string `json:"password" validate:"required,password"`
	Role     string `json:"role" validate:"required,oneof=investor entrepreneur"`
}

type Response struct {
	resp.Response
	UserID int64 `json:"user_id"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.signup.New"

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

		userID, err := authService.SignUp(ctx, req.FullName, req.Email, req.Pass, req.Role)
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("User with this email already exists"))

				return
			}
			if errors.Is(err, auth.ErrDispatchFailure) {
				log.Error("failed to dispatch verification code", sl.Err(err))

				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, resp.Error("Failed to send verification code, please retry"))

				return
			}

			log.Error("failed to sign up user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("User signed up", slog.Int64("id", userID))

		render.Status(r, http.StatusCreated)
		ResponseOK(w, r, userID)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, userID int64) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
		UserID:   userID,
	})
}
