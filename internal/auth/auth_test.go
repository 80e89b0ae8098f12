package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"client_portal/internal/models"
	"client_portal/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []models.Message
	fail     bool
}

func (p *fakePublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)

	return nil
}

func (p *fakePublisher) last(t *testing.T) models.Message {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	require.NotEmpty(t, p.messages)
	return p.messages[len(p.messages)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuth(t *testing.T, st *memory.Storage, pub *fakePublisher, codeTTL time.Duration) *Auth {
	t.Helper()

	return New(
		discardLogger(),
		st, st, st,
		memory.NewCache(),
		pub,
		4,
		codeTTL,
		10*time.Minute,
		time.Hour,
		"test-secret",
	)
}

func TestSignUp_IssuesOneCode(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	uid, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	code, ok := st.PendingCode(uid, models.PurposeSignup)
	require.True(t, ok)
	assert.False(t, code.Consumed)
	assert.Len(t, code.Code, 4)
	assert.Equal(t, code.Code, pub.last(t).Code)
}

func TestSignUp_Duplicate(t *testing.T) {
	st := memory.New()
	a := newTestAuth(t, st, &fakePublisher{}, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	_, err = a.SignUp(context.Background(), "Eve X", "a@b.com", "Other1!x", models.RoleEntrepreneur)
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestSignUp_DispatchFailure(t *testing.T) {
	st := memory.New()
	a := newTestAuth(t, st, &fakePublisher{fail: true}, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	assert.ErrorIs(t, err, ErrDispatchFailure)
}

func TestSignUp_SaltedHashes(t *testing.T) {
	st := memory.New()
	a := newTestAuth(t, st, &fakePublisher{}, 5*time.Minute)

	uid1, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)
	uid2, err := a.SignUp(context.Background(), "Eve X", "c@d.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	u1, err := st.UserByID(context.Background(), uid1)
	require.NoError(t, err)
	u2, err := st.UserByID(context.Background(), uid2)
	require.NoError(t, err)

	assert.NotEqual(t, u1.PassHash, u2.PassHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword(u1.PassHash, []byte("Secret1!")))
	assert.NoError(t, bcrypt.CompareHashAndPassword(u2.PassHash, []byte("Secret1!")))
}

func TestVerifySignUp_Flow(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	uid, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	code := pub.last(t).Code

	wrong := "0000"
	if wrong == code {
		wrong = "1111"
	}

	// wrong code: mismatch, stored code stays pending
	_, err = a.VerifySignUp(context.Background(), "a@b.com", wrong)
	assert.ErrorIs(t, err, ErrCodeMismatch)

	stored, ok := st.PendingCode(uid, models.PurposeSignup)
	require.True(t, ok)
	assert.False(t, stored.Consumed)

	token, err := a.VerifySignUp(context.Background(), "a@b.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	u, err := st.UserByID(context.Background(), uid)
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
}

func TestVerifySignUp_SecondUseFails(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	code := pub.last(t).Code

	_, err = a.VerifySignUp(context.Background(), "a@b.com", code)
	require.NoError(t, err)

	_, err = a.VerifySignUp(context.Background(), "a@b.com", code)
	assert.ErrorIs(t, err, ErrNoPendingCode)
}

func TestVerifySignUp_Expired(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, -time.Second)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	// value matches, but the window has already elapsed
	_, err = a.VerifySignUp(context.Background(), "a@b.com", pub.last(t).Code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifySignUp_UnknownEmail(t *testing.T) {
	a := newTestAuth(t, memory.New(), &fakePublisher{}, 5*time.Minute)

	_, err := a.VerifySignUp(context.Background(), "nobody@b.com", "1234")
	assert.ErrorIs(t, err, ErrNoPendingCode)
}

func TestVerifySignUp_AtMostOnce(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	code := pub.last(t).Code

	const attempts = 8

	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = a.VerifySignUp(context.Background(), "a@b.com", code)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrNoPendingCode)
		}
	}

	assert.Equal(t, 1, succeeded)
}

func TestResend_InvalidatesPreviousCode(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	oldCode := pub.last(t).Code

	require.NoError(t, a.ResendCode(context.Background(), "a@b.com", models.PurposeSignup))

	newCode := pub.last(t).Code

	if oldCode != newCode {
		// the replaced code must fail even though its window had not elapsed
		_, err = a.VerifySignUp(context.Background(), "a@b.com", oldCode)
		assert.ErrorIs(t, err, ErrCodeMismatch)
	}

	_, err = a.VerifySignUp(context.Background(), "a@b.com", newCode)
	assert.NoError(t, err)
}

func TestResend_UnknownEmailSilent(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAuth(t, memory.New(), pub, 5*time.Minute)

	require.NoError(t, a.ResendCode(context.Background(), "nobody@b.com", models.PurposeSignup))
	assert.Empty(t, pub.messages)
}

func TestResend_VerifiedAccountSilent(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)
	_, err = a.VerifySignUp(context.Background(), "a@b.com", pub.last(t).Code)
	require.NoError(t, err)

	sent := len(pub.messages)
	require.NoError(t, a.ResendCode(context.Background(), "a@b.com", models.PurposeSignup))
	assert.Len(t, pub.messages, sent)
}

func TestSignIn(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	// unverified accounts cannot sign in
	_, err = a.SignIn(context.Background(), "a@b.com", "Secret1!")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	_, err = a.VerifySignUp(context.Background(), "a@b.com", pub.last(t).Code)
	require.NoError(t, err)

	token, err := a.SignIn(context.Background(), "a@b.com", "Secret1!")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestSignIn_SymmetricFailures(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)
	_, err = a.VerifySignUp(context.Background(), "a@b.com", pub.last(t).Code)
	require.NoError(t, err)

	_, errWrongPass := a.SignIn(context.Background(), "a@b.com", "WrongPass1!")
	_, errUnknown := a.SignIn(context.Background(), "nobody@b.com", "Secret1!")

	assert.ErrorIs(t, errWrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errWrongPass.Error(), errUnknown.Error())
}

func TestForgotPassword_UnknownEmailSilent(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAuth(t, memory.New(), pub, 5*time.Minute)

	require.NoError(t, a.ForgotPassword(context.Background(), "nobody@b.com"))
	assert.Empty(t, pub.messages)
}

func TestResetFlow(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)
	_, err = a.VerifySignUp(context.Background(), "a@b.com", pub.last(t).Code)
	require.NoError(t, err)

	require.NoError(t, a.ForgotPassword(context.Background(), "a@b.com"))
	resetCode := pub.last(t).Code

	// reset without a verified code is rejected
	err = a.ResetPassword(context.Background(), "a@b.com", "NewSecret1!")
	assert.ErrorIs(t, err, ErrResetNotAuthorized)

	require.NoError(t, a.VerifyReset(context.Background(), "a@b.com", resetCode))
	require.NoError(t, a.ResetPassword(context.Background(), "a@b.com", "NewSecret1!"))

	// grant is single use
	err = a.ResetPassword(context.Background(), "a@b.com", "AnotherOne1!")
	assert.ErrorIs(t, err, ErrResetNotAuthorized)

	_, err = a.SignIn(context.Background(), "a@b.com", "Secret1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, err := a.SignIn(context.Background(), "a@b.com", "NewSecret1!")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestVerifyReset_Errors(t *testing.T) {
	st := memory.New()
	pub := &fakePublisher{}
	a := newTestAuth(t, st, pub, 5*time.Minute)

	_, err := a.SignUp(context.Background(), "Ada L", "a@b.com", "Secret1!", models.RoleInvestor)
	require.NoError(t, err)

	tests := []struct {
		name    string
		email   string
		code    string
		wantErr error
	}{
		{name: "unknown email", email: "nobody@b.com", code: "1234", wantErr: ErrNoPendingCode},
		{name: "no reset code issued", email: "a@b.com", code: "1234", wantErr: ErrNoPendingCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.VerifyReset(context.Background(), tt.email, tt.code)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
