package flow

import (
	"context"
	"errors"
	"testing"

	"client_portal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAPI scripts backend outcomes per call.
type stubAPI struct {
	signInErr   error
	signUpErr   error
	verifyErr   error
	forgotErr   error
	resetErr    error
	resendErr   error
	resendCalls int
	lastPurpose models.CodePurpose
}

func (s *stubAPI) SignUp(context.Context, string, string, string, string) error { return s.signUpErr }

func (s *stubAPI) SignIn(context.Context, string, string) (string, error) {
	if s.signInErr != nil {
		return "", s.signInErr
	}
	return "session-token", nil
}

func (s *stubAPI) VerifyOtp(context.Context, string, string) (string, error) {
	if s.verifyErr != nil {
		return "", s.verifyErr
	}
	return "session-token", nil
}

func (s *stubAPI) ForgotPassword(context.Context, string) error { return s.forgotErr }

func (s *stubAPI) VerifyReset(context.Context, string, string) error { return s.verifyErr }

func (s *stubAPI) ResetPassword(context.Context, string, string) error { return s.resetErr }

func (s *stubAPI) ResendCode(_ context.Context, _ string, purpose models.CodePurpose) error {
	s.resendCalls++
	s.lastPurpose = purpose
	return s.resendErr
}

func TestNext_Table(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		purpose models.CodePurpose
		want    State
	}{
		{"credentials accepted", StateCredentials, EventCredentialsAccepted, "", StateAuthenticated},
		{"credentials rejected stays", StateCredentials, EventCredentialsRejected, "", StateCredentials},
		{"forgot password", StateCredentials, EventForgotPassword, models.PurposeReset, StateOTPPending},
		{"registered", StateRegister, EventRegistered, models.PurposeSignup, StateOTPPending},
		{"reset code accepted", StateOTPPending, EventCodeAccepted, models.PurposeReset, StatePasswordReset},
		{"signup code accepted", StateOTPPending, EventCodeAccepted, models.PurposeSignup, StateAuthenticated},
		{"code rejected stays", StateOTPPending, EventCodeRejected, models.PurposeReset, StateOTPPending},
		{"resend stays", StateOTPPending, EventResend, models.PurposeReset, StateOTPPending},
		{"password accepted", StatePasswordReset, EventPasswordAccepted, models.PurposeReset, StateSuccess},
		{"password rejected stays", StatePasswordReset, EventPasswordRejected, models.PurposeReset, StatePasswordReset},
		{"terminal success stays", StateSuccess, EventCodeAccepted, models.PurposeReset, StateSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.state, tt.event, tt.purpose))
		})
	}
}

func TestSubmitCredentials_LocalValidationBlocksRequest(t *testing.T) {
	api := &stubAPI{signInErr: errors.New("must not be called")}
	c := NewController(api)

	require.NoError(t, c.SubmitCredentials(context.Background(), "not-an-email", ""))

	assert.Equal(t, StateCredentials, c.State())
	assert.Equal(t, "Please enter a valid email.", c.FieldErrors()["email"])
	assert.Equal(t, "Password is required.", c.FieldErrors()["password"])
	assert.Empty(t, c.BackendError())
}

func TestSubmitCredentials_Success(t *testing.T) {
	c := NewController(&stubAPI{})

	require.NoError(t, c.SubmitCredentials(context.Background(), "a@b.com", "Secret1!"))

	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, "session-token", c.Token())
}

func TestSubmitCredentials_BackendErrorSurfaced(t *testing.T) {
	c := NewController(&stubAPI{signInErr: errors.New("Invalid email or password")})

	err := c.SubmitCredentials(context.Background(), "a@b.com", "Secret1!")
	require.Error(t, err)

	assert.Equal(t, StateCredentials, c.State())
	assert.Equal(t, "Invalid email or password", c.BackendError())
}

func TestForgotPassword_StartsCountdown(t *testing.T) {
	c := NewController(&stubAPI{})

	require.NoError(t, c.ForgotPassword(context.Background(), "a@b.com"))

	assert.Equal(t, StateOTPPending, c.State())
	assert.Equal(t, CountdownSeconds, c.Remaining())
	assert.False(t, c.CanResend())
}

func TestSubmitCode_RejectionKeepsTimer(t *testing.T) {
	api := &stubAPI{verifyErr: errors.New("Invalid verification code")}
	c := NewController(api)

	require.NoError(t, c.ForgotPassword(context.Background(), "a@b.com"))

	for i := 0; i < 30; i++ {
		c.Tick()
	}
	remaining := c.Remaining()
	require.Equal(t, CountdownSeconds-30, remaining)

	err := c.SubmitCode(context.Background(), "1234")
	require.Error(t, err)

	assert.Equal(t, StateOTPPending, c.State())
	assert.Equal(t, "Invalid verification code", c.BackendError())
	assert.Equal(t, remaining, c.Remaining(), "rejection must not reset the countdown")
}

func TestSubmitCode_ResetFlowAdvances(t *testing.T) {
	c := NewController(&stubAPI{})

	require.NoError(t, c.ForgotPassword(context.Background(), "a@b.com"))
	require.NoError(t, c.SubmitCode(context.Background(), "1234"))

	assert.Equal(t, StatePasswordReset, c.State())
}

func TestSubmitCode_SignupFlowAuthenticates(t *testing.T) {
	c := NewRegisterController(&stubAPI{})

	require.NoError(t, c.SubmitRegistration(context.Background(), "Ada L", "a@b.com", "Secret1!", "Secret1!", models.RoleInvestor))
	require.Equal(t, StateOTPPending, c.State())

	require.NoError(t, c.SubmitCode(context.Background(), "1234"))

	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, "session-token", c.Token())
}

func TestSubmitCode_LocalFormatCheck(t *testing.T) {
	api := &stubAPI{verifyErr: errors.New("must not be called")}
	c := NewController(api)

	require.NoError(t, c.ForgotPassword(context.Background(), "a@b.com"))
	require.NoError(t, c.SubmitCode(context.Background(), "12a4"))

	assert.Equal(t, StateOTPPending, c.State())
	assert.Equal(t, "Please enter the 4-digit code.", c.FieldErrors()["code"])
}

func TestResend_OnlyAfterCountdown(t *testing.T) {
	api := &stubAPI{}
	c := NewController(api)

	require.NoError(t, c.ForgotPassword(context.Background(), "a@b.com"))

	// countdown still running: resend is a no-op
	require.NoError(t, c.Resend(context.Background()))
	assert.Zero(t, api.resendCalls)

	for i := 0; i < CountdownSeconds; i++ {
		c.Tick()
	}
	require.True(t, c.CanResend())

	// timer reaching zero does not auto-transition
	assert.Equal(t, StateOTPPending, c.State())

	require.NoError(t, c.Resend(context.Background()))
	assert.Equal(t, 1, api.resendCalls)
	assert.Equal(t, models.PurposeReset, api.lastPurpose)
	assert.Equal(t, CountdownSeconds, c.Remaining(), "resend restarts the countdown")
}

func TestTick_NoUnderflowAndNoEffectOutsideOTP(t *testing.T) {
	c := NewController(&stubAPI{})

	c.Tick()
	assert.Zero(t, c.Remaining())

	require.NoError(t, c.ForgotPassword(context.Background(), "a@b.com"))
	for i := 0; i < CountdownSeconds+10; i++ {
		c.Tick()
	}
	assert.Zero(t, c.Remaining())
}

func TestSubmitRegistration_Validation(t *testing.T) {
	api := &stubAPI{signUpErr: errors.New("must not be called")}

	tests := []struct {
		name     string
		fullName string
		email    string
		pass     string
		confirm  string
		role     string
		field    string
	}{
		{"missing name", "", "a@b.com", "Secret1!", "Secret1!", models.RoleInvestor, "fullName"},
		{"bad email", "Ada L", "nope", "Secret1!", "Secret1!", models.RoleInvestor, "email"},
		{"weak password", "Ada L", "a@b.com", "weak", "weak", models.RoleInvestor, "password"},
		{"confirm mismatch", "Ada L", "a@b.com", "Secret1!", "Other1!x", models.RoleInvestor, "confirmPassword"},
		{"bad role", "Ada L", "a@b.com", "Secret1!", "Secret1!", "admin", "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewRegisterController(api)

			require.NoError(t, c.SubmitRegistration(context.Background(), tt.fullName, tt.email, tt.pass, tt.confirm, tt.role))

			assert.Equal(t, StateRegister, c.State())
			assert.Contains(t, c.FieldErrors(), tt.field)
		})
	}
}

func TestResetFlow_EndToEnd(t *testing.T) {
	c := NewController(&stubAPI{})

	require.NoError(t, c.ForgotPassword(context.Background(), "a@b.com"))
	require.NoError(t, c.SubmitCode(context.Background(), "1234"))

	// mismatching confirmation blocks the request
	require.NoError(t, c.SubmitNewPassword(context.Background(), "NewSecret1!", "Different1!"))
	assert.Equal(t, StatePasswordReset, c.State())
	assert.Equal(t, "Passwords do not match.", c.FieldErrors()["confirmPassword"])

	require.NoError(t, c.SubmitNewPassword(context.Background(), "NewSecret1!", "NewSecret1!"))
	assert.Equal(t, StateSuccess, c.State())
}
