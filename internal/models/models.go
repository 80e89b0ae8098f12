package models

import "time"

type User struct {
	ID                   int64
	FullName             string
	Email                string
	PassHash             []byte
	Role                 string
	IsVerified           bool
	ResetAuthorizedUntil *time.Time
}

const (
	RoleInvestor     = "investor"
	RoleEntrepreneur = "entrepreneur"
)

type CodePurpose string

const (
	PurposeSignup CodePurpose = "signup_verification"
	PurposeReset  CodePurpose = "password_reset"
)

type OTPCode struct {
	UserID    int64
	Purpose   CodePurpose
	Code      string
	ExpiresAt time.Time
	Consumed  bool
	CreatedAt time.Time
}

// * IsExpired проверяет, истек ли срок действия кода
func (c *OTPCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

type Message struct {
	Email   string `json:"to"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
	Subject string `json:"subject"`
}
