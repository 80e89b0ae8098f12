package httpserver

import (
	"log/slog"

	"client_portal/internal/auth"
	forgotPassword "client_portal/internal/http_server/handlers/forgot_password"
	"client_portal/internal/http_server/handlers/me"
	resendOtp "client_portal/internal/http_server/handlers/resend_otp"
	resetPassword "client_portal/internal/http_server/handlers/reset_password"
	"client_portal/internal/http_server/handlers/signin"
	"client_portal/internal/http_server/handlers/signup"
	verifyOtp "client_portal/internal/http_server/handlers/verify_otp"
	verifyReset "client_portal/internal/http_server/handlers/verify_reset"
	"client_portal/internal/middleware/authn"
	rateLimit "client_portal/internal/middleware/ratelimit"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

// NewRouter wires the REST surface. Rate limits follow the sensitivity of
// each endpoint; /me is the only bearer-protected route here, downstream
// services do their own checks with the same token.
func NewRouter(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	sessionSecret string,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.With(rateLimit.SignUp()).Post("/signup",
		signup.New(log, validate, authService),
	)
	r.With(rateLimit.VerifyOtp()).Post("/verify-otp",
		verifyOtp.New(log, validate, authService),
	)
	r.With(rateLimit.SignIn()).Post("/signin",
		signin.New(log, validate, authService),
	)
	r.With(rateLimit.ForgotPassword()).Post("/forgot-password",
		forgotPassword.New(log, validate, authService),
	)
	r.With(rateLimit.VerifyOtp()).Post("/verify-otp-for-reset",
		verifyReset.New(log, validate, authService),
	)
	r.With(rateLimit.ResetPassword()).Post("/reset-password",
		resetPassword.New(log, validate, authService),
	)
	r.With(rateLimit.ResendOtp()).Post("/resend-otp",
		resendOtp.New(log, validate, authService),
	)

	r.With(authn.New(log, sessionSecret)).Get("/me",
		me.New(log),
	)

	return r
}
