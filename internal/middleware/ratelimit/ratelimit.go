package rateLimit

import (
	"net/http"
	"time"

	httprate "github.com/go-chi/httprate"
)

func SignIn() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func SignUp() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func VerifyOtp() func(http.Handler) http.Handler {
	return limitByIP(10, 10*time.Minute)
}

func ForgotPassword() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func ResetPassword() func(http.Handler) http.Handler {
	return limitByIP(10, time.Hour)
}

func ResendOtp() func(http.Handler) http.Handler {
	return limitByIP(3, time.Hour)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window)
}
