// Package api is a thin JSON client over the auth service REST surface,
// returning backend error messages verbatim so the flow controller can
// surface them to the user.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"client_portal/internal/models"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type envelope struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Token  string `json:"token,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Profile is what the protected /me endpoint reports about the session.
type Profile struct {
	UserID int64
	Email  string
	Role   string
}

func (c *Client) SignUp(ctx context.Context, fullName, email, pass, role string) error {
	body := map[string]string{
		"full_name": fullName,
		"email":     email,
		"password":  pass,
		"role":      role,
	}

	_, err := c.post(ctx, "/signup", body)
	return err
}

func (c *Client) SignIn(ctx context.Context, email, pass string) (string, error) {
	body := map[string]string{
		"email":    email,
		"password": pass,
	}

	env, err := c.post(ctx, "/signin", body)
	if err != nil {
		return "", err
	}

	return env.Token, nil
}

func (c *Client) VerifyOtp(ctx context.Context, email, code string) (string, error) {
	body := map[string]string{
		"email": email,
		"code":  code,
	}

	env, err := c.post(ctx, "/verify-otp", body)
	if err != nil {
		return "", err
	}

	return env.Token, nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.post(ctx, "/forgot-password", map[string]string{"email": email})
	return err
}

func (c *Client) VerifyReset(ctx context.Context, email, code string) error {
	body := map[string]string{
		"email": email,
		"code":  code,
	}

	_, err := c.post(ctx, "/verify-otp-for-reset", body)
	return err
}

func (c *Client) ResetPassword(ctx context.Context, email, newPass string) error {
	body := map[string]string{
		"email":        email,
		"new_password": newPass,
	}

	_, err := c.post(ctx, "/reset-password", body)
	return err
}

func (c *Client) ResendCode(ctx context.Context, email string, purpose models.CodePurpose) error {
	body := map[string]string{
		"email":   email,
		"purpose": string(purpose),
	}

	_, err := c.post(ctx, "/resend-otp", body)
	return err
}

// * Me проверяет токен сессии на защищенном endpoint
func (c *Client) Me(ctx context.Context, token string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return Profile{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if env.Status != "ok" {
		return Profile{}, errorFrom(env, res.StatusCode)
	}

	return Profile{
		UserID: env.UserID,
		Email:  env.Email,
		Role:   env.Role,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if env.Status != "ok" {
		return nil, errorFrom(env, res.StatusCode)
	}

	return &env, nil
}

func errorFrom(env envelope, statusCode int) error {
	if env.Error != "" {
		return errors.New(env.Error)
	}

	return fmt.Errorf("unexpected response status %d", statusCode)
}
