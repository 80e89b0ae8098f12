package validation

import (
	"regexp"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Mirrors the sign-in form check rather than full RFC 5322.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func Email(s string) bool {
	return emailPattern.MatchString(s)
}

// StrongPassword requires at least 6 characters with at least one lower,
// one upper, one digit and one symbol. Go's regexp has no lookahead, so
// the classes are counted by hand.
func StrongPassword(s string) bool {
	if len(s) < 6 {
		return false
	}

	var lower, upper, digit, symbol bool

	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	return lower && upper && digit && symbol
}

// * PasswordRule регистрируется в validator под тегом "password"
func PasswordRule(fl validator.FieldLevel) bool {
	return StrongPassword(fl.Field().String())
}

func NewValidator() *validator.Validate {
	v := validator.New()

	// registration only fails for an empty tag
	_ = v.RegisterValidation("password", PasswordRule)

	return v
}
