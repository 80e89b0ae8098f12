// Package flow drives the multi-step sign-in / sign-up / password-reset
// sequence on the client side as an explicit finite state machine. The
// controller is single-goroutine: the UI loop calls its methods and pumps
// Tick for the resend countdown.
package flow

import (
	"context"

	"client_portal/internal/lib/validation"
	"client_portal/internal/models"
)

type State int

const (
	StateCredentials State = iota
	StateRegister
	StateOTPPending
	StatePasswordReset
	StateSuccess
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateCredentials:
		return "credentials"
	case StateRegister:
		return "register"
	case StateOTPPending:
		return "otpPending"
	case StatePasswordReset:
		return "passwordReset"
	case StateSuccess:
		return "success"
	case StateAuthenticated:
		return "authenticated"
	}

	return "unknown"
}

type Event int

const (
	EventCredentialsAccepted Event = iota
	EventCredentialsRejected
	EventForgotPassword
	EventRegistered
	EventCodeAccepted
	EventCodeRejected
	EventResend
	EventPasswordAccepted
	EventPasswordRejected
)

// CountdownSeconds is how long the client displays before enabling resend.
// The server enforces its own, longer TTL independently.
const CountdownSeconds = 180

// Next is the pure transition function of the flow: rejections keep the
// current state, resend stays in otpPending, and an accepted code branches on the
// flow's purpose (signup verification authenticates, reset continues to the
// password step). Unknown state/event pairs stay put.
func Next(s State, e Event, purpose models.CodePurpose) State {
	switch s {
	case StateCredentials:
		switch e {
		case EventCredentialsAccepted:
			return StateAuthenticated
		case EventForgotPassword:
			return StateOTPPending
		}
	case StateRegister:
		if e == EventRegistered {
			return StateOTPPending
		}
	case StateOTPPending:
		if e == EventCodeAccepted {
			if purpose == models.PurposeReset {
				return StatePasswordReset
			}
			return StateAuthenticated
		}
	case StatePasswordReset:
		if e == EventPasswordAccepted {
			return StateSuccess
		}
	}

	return s
}

// API is the REST surface the controller drives.
type API interface {
	SignUp(ctx context.Context, fullName, email, pass, role string) error
	SignIn(ctx context.Context, email, pass string) (token string, err error)
	VerifyOtp(ctx context.Context, email, code string) (token string, err error)
	ForgotPassword(ctx context.Context, email string) error
	VerifyReset(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, newPass string) error
	ResendCode(ctx context.Context, email string, purpose models.CodePurpose) error
}

type Controller struct {
	api API

	state     State
	purpose   models.CodePurpose
	email     string
	remaining int
	token     string

	fieldErrs  map[string]string
	backendErr string
}

func NewController(api API) *Controller {
	return &Controller{
		api:       api,
		state:     StateCredentials,
		fieldErrs: map[string]string{},
	}
}

func NewRegisterController(api API) *Controller {
	c := NewController(api)
	c.state = StateRegister

	return c
}

func (c *Controller) State() State { return c.state }

func (c *Controller) Token() string { return c.token }

// Remaining reports the countdown in seconds.
func (c *Controller) Remaining() int { return c.remaining }

// CanResend is true only once the countdown reached zero; reaching zero does
// not transition anywhere by itself.
func (c *Controller) CanResend() bool {
	return c.state == StateOTPPending && c.remaining == 0
}

func (c *Controller) FieldErrors() map[string]string { return c.fieldErrs }

// BackendError is the verbatim message of the last failed backend call.
func (c *Controller) BackendError() string { return c.backendErr }

// Tick advances the countdown by one second. Outside the otpPending step it
// is a no-op, so a stray timer cannot corrupt another step.
func (c *Controller) Tick() {
	if c.state == StateOTPPending && c.remaining > 0 {
		c.remaining--
	}
}

// SubmitCredentials validates locally first; any field error blocks the
// request entirely and keeps the credentials step.
func (c *Controller) SubmitCredentials(ctx context.Context, email, pass string) error {
	if c.state != StateCredentials {
		return nil
	}

	c.fieldErrs = map[string]string{}
	c.backendErr = ""

	if !validation.Email(email) {
		c.fieldErrs["email"] = "Please enter a valid email."
	}
	if pass == "" {
		c.fieldErrs["password"] = "Password is required."
	}
	if len(c.fieldErrs) > 0 {
		return nil
	}

	token, err := c.api.SignIn(ctx, email, pass)
	if err != nil {
		c.backendErr = err.Error()
		c.state = Next(c.state, EventCredentialsRejected, c.purpose)

		return err
	}

	c.token = token
	c.state = Next(c.state, EventCredentialsAccepted, c.purpose)

	return nil
}

// SubmitRegistration validates the sign-up form and, on acceptance, enters
// the otpPending step waiting for the emailed verification code.
func (c *Controller) SubmitRegistration(ctx context.Context, fullName, email, pass, confirm, role string) error {
	if c.state != StateRegister {
		return nil
	}

	c.fieldErrs = map[string]string{}
	c.backendErr = ""

	if fullName == "" {
		c.fieldErrs["fullName"] = "Full name is required."
	}
	if !validation.Email(email) {
		c.fieldErrs["email"] = "Please enter a valid email."
	}
	if !validation.StrongPassword(pass) {
		c.fieldErrs["password"] = "Password must be at least 6 characters long and contain at least one lower and upper character, one number, and one symbol."
	}
	if confirm != pass {
		c.fieldErrs["confirmPassword"] = "Passwords do not match."
	}
	if role != models.RoleInvestor && role != models.RoleEntrepreneur {
		c.fieldErrs["role"] = "Please choose a role."
	}
	if len(c.fieldErrs) > 0 {
		return nil
	}

	if err := c.api.SignUp(ctx, fullName, email, pass, role); err != nil {
		c.backendErr = err.Error()

		return err
	}

	c.email = email
	c.purpose = models.PurposeSignup
	c.remaining = CountdownSeconds
	c.state = Next(c.state, EventRegistered, c.purpose)

	return nil
}

// ForgotPassword leaves the credentials step for otpPending and starts the
// countdown.
func (c *Controller) ForgotPassword(ctx context.Context, email string) error {
	if c.state != StateCredentials {
		return nil
	}

	c.fieldErrs = map[string]string{}
	c.backendErr = ""

	if !validation.Email(email) {
		c.fieldErrs["email"] = "Please enter a valid email."
		return nil
	}

	if err := c.api.ForgotPassword(ctx, email); err != nil {
		c.backendErr = err.Error()

		return err
	}

	c.email = email
	c.purpose = models.PurposeReset
	c.remaining = CountdownSeconds
	c.state = Next(c.state, EventForgotPassword, c.purpose)

	return nil
}

// SubmitCode verifies the entered code. A rejection surfaces the backend
// message and stays in otpPending without touching the countdown.
func (c *Controller) SubmitCode(ctx context.Context, code string) error {
	if c.state != StateOTPPending {
		return nil
	}

	c.fieldErrs = map[string]string{}
	c.backendErr = ""

	if !numeric(code) || len(code) != 4 {
		c.fieldErrs["code"] = "Please enter the 4-digit code."
		return nil
	}

	var err error
	if c.purpose == models.PurposeReset {
		err = c.api.VerifyReset(ctx, c.email, code)
	} else {
		var token string
		token, err = c.api.VerifyOtp(ctx, c.email, code)
		if err == nil {
			c.token = token
		}
	}

	if err != nil {
		c.backendErr = err.Error()
		c.state = Next(c.state, EventCodeRejected, c.purpose)

		return err
	}

	c.remaining = 0
	c.state = Next(c.state, EventCodeAccepted, c.purpose)

	return nil
}

// Resend is available only after the countdown reached zero. It requests a
// replacement code (the previous one becomes unusable server-side) and
// restarts the countdown.
func (c *Controller) Resend(ctx context.Context) error {
	if !c.CanResend() {
		return nil
	}

	c.backendErr = ""

	if err := c.api.ResendCode(ctx, c.email, c.purpose); err != nil {
		c.backendErr = err.Error()

		return err
	}

	c.remaining = CountdownSeconds
	c.state = Next(c.state, EventResend, c.purpose)

	return nil
}

// SubmitNewPassword finishes the reset flow.
func (c *Controller) SubmitNewPassword(ctx context.Context, pass, confirm string) error {
	if c.state != StatePasswordReset {
		return nil
	}

	c.fieldErrs = map[string]string{}
	c.backendErr = ""

	if !validation.StrongPassword(pass) {
		c.fieldErrs["password"] = "Password must be at least 6 characters long and contain at least one lower and upper character, one number, and one symbol."
	}
	if confirm != pass {
		c.fieldErrs["confirmPassword"] = "Passwords do not match."
	}
	if len(c.fieldErrs) > 0 {
		return nil
	}

	if err := c.api.ResetPassword(ctx, c.email, pass); err != nil {
		c.backendErr = err.Error()
		c.state = Next(c.state, EventPasswordRejected, c.purpose)

		return err
	}

	c.state = Next(c.state, EventPasswordAccepted, c.purpose)

	return nil
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return s != ""
}
