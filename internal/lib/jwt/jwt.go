package jwt

import (
	"errors"
	"fmt"
	"time"

	"client_portal/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type Claims struct {
	UserID int64
	Email  string
	Role   string
}

// NewToken issues a signed session token for the user. Tokens are stateless:
// there is no server-side revocation list, so sign-out is a client-side
// discard and a stolen token stays valid until exp.
func NewToken(user models.User, ttl time.Duration, secret string) (string, error) {
	const op = "jwt.NewToken"

	claims := jwt.MapClaims{
		"uid":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"jti":   uuid.NewString(),
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// * ParseToken проверяет подпись и срок действия токена сессии
func ParseToken(tokenStr, secret string) (Claims, error) {
	claims := jwt.MapClaims{}

	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	if !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}

	uid, ok := claims["uid"].(float64)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}

	email, ok := claims["email"].(string)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}

	role, ok := claims["role"].(string)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}

	return Claims{
		UserID: int64(uid),
		Email:  email,
		Role:   role,
	}, nil
}
