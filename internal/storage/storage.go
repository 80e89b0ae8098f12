package storage

import "errors"

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrNoPendingCode      = errors.New("no pending code")
	ErrCodeMismatch       = errors.New("code mismatch")
	ErrCodeExpired        = errors.New("code expired")
	ErrResetNotAuthorized = errors.New("password reset not authorized")
)
