package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"a@b.com", true},
		{"first.last@sub.domain.io", true},
		{"no-at-sign", false},
		{"user@nodot", false},
		{"spaces in@b.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, Email(tt.email))
		})
	}
}

func TestStrongPassword(t *testing.T) {
	tests := []struct {
		name string
		pass string
		want bool
	}{
		{"valid", "Secret1!", true},
		{"minimum length", "Aa1!xy", true},
		{"too short", "Aa1!x", false},
		{"no upper", "secret1!", false},
		{"no lower", "SECRET1!", false},
		{"no digit", "Secret!!", false},
		{"no symbol", "Secret12", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StrongPassword(tt.pass))
		})
	}
}

func TestNewValidator_PasswordTag(t *testing.T) {
	v := NewValidator()

	type body struct {
		Pass string `validate:"required,password"`
	}

	assert.NoError(t, v.Struct(body{Pass: "Secret1!"}))
	assert.Error(t, v.Struct(body{Pass: "weak"}))
}
