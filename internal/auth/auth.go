package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"client_portal/internal/lib/jwt"
	sl "client_portal/internal/lib/logger"
	"client_portal/internal/lib/otp"
	"client_portal/internal/models"
	"client_portal/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrCodeMismatch       = errors.New("code mismatch")
	ErrCodeExpired        = errors.New("code expired")
	ErrNoPendingCode      = errors.New("no pending code")
	ErrResetNotAuthorized = errors.New("password reset not authorized")
	ErrDispatchFailure    = errors.New("failed to dispatch verification code")
)

// bcrypt hash of an arbitrary string, compared against on the unknown-email
// path so that SignIn takes the same time whether or not the account exists.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	codeStore   CodeStore
	codeCache   CodeCache
	publisher   Publisher
	codeLength  int
	codeTTL     time.Duration
	resetWindow time.Duration
	sessionTTL  time.Duration
	secret      string
}

type UserSaver interface {
	SaveUser(ctx context.Context, fullName, email string, passHash []byte, role string) (uid int64, err error)
	SetEmailVerified(ctx context.Context, uid int64) error
	UpdatePassword(ctx context.Context, uid int64, passHash []byte) error
	AuthorizeReset(ctx context.Context, uid int64, until time.Time) error
	ConsumeResetGrant(ctx context.Context, uid int64) error
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
}

type CodeStore interface {
	UpsertCode(ctx context.Context, code models.OTPCode) error
	ConsumeCode(ctx context.Context, userID int64, purpose models.CodePurpose, candidate string) error
}

// CodeCache is the fast-path guard in front of the authoritative code store.
// Cache failures degrade to the store's own atomicity, so they are logged,
// not returned.
type CodeCache interface {
	SetCodePending(ctx context.Context, userID int64, purpose models.CodePurpose, ttl time.Duration) error
	DeleteCodePending(ctx context.Context, userID int64, purpose models.CodePurpose) error
	MarkCodeUsed(ctx context.Context, userID int64, purpose models.CodePurpose, ttl time.Duration) (bool, error)
	ClearCodeUsed(ctx context.Context, userID int64, purpose models.CodePurpose) error
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	codeStore CodeStore,
	codeCache CodeCache,
	publisher Publisher,
	codeLength int,
	codeTTL, resetWindow, sessionTTL time.Duration,
	sessionSecret string,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		codeStore:   codeStore,
		codeCache:   codeCache,
		publisher:   publisher,
		codeLength:  codeLength,
		codeTTL:     codeTTL,
		resetWindow: resetWindow,
		sessionTTL:  sessionTTL,
		secret:      sessionSecret,
	}
}

// SignUp создает неверифицированного пользователя и отправляет код подтверждения.
func (a *Auth) SignUp(
	ctx context.Context,
	fullName, email, pass, role string,
) (int64, error) {
	const op = "auth.SignUp"

	log := a.log.With(slog.String("op", op))

	log.Info("Registering new user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	uid, err := a.usrSaver.SaveUser(ctx, fullName, email, passHash, role)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("User already exists")

			return 0, fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("Failed to save user", sl.Err(err))

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.issueCode(ctx, uid, email, models.PurposeSignup); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered, verification code sent", slog.Int64("uid", uid))

	return uid, nil
}

// VerifySignUp consumes the signup code, marks the account verified and
// returns a session token. A wrong candidate never consumes the stored code.
func (a *Auth) VerifySignUp(ctx context.Context, email, code string) (string, error) {
	const op = "auth.VerifySignUp"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return "", ErrNoPendingCode
		}

		log.Error("failed to get user", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := a.consume(ctx, log, user.ID, models.PurposeSignup, code); err != nil {
		return "", err
	}

	if err := a.usrSaver.SetEmailVerified(ctx, user.ID); err != nil {
		log.Error("failed to mark email verified", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	user.IsVerified = true

	token, err := jwt.NewToken(user, a.sessionTTL, a.secret)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.Int64("uid", user.ID))

	return token, nil
}

// * SignIn проверяет учетные данные и возвращает токен сессии
func (a *Auth) SignIn(ctx context.Context, email, pass string) (string, error) {
	const op = "auth.SignIn"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// burn the same bcrypt cost as the known-email path
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(pass))

			log.Warn("user not found")
			return "", ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(pass)); err != nil {
		log.Info("invalid credentials")
		return "", ErrInvalidCredentials
	}

	if !user.IsVerified {
		return "", ErrEmailNotVerified
	}

	token, err := jwt.NewToken(user, a.sessionTTL, a.secret)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user signed in successfully", slog.Int64("uid", user.ID))

	return token, nil
}

// ForgotPassword issues a reset code. An unknown email is deliberately
// indistinguishable from a known one in the result: the miss is only logged.
func (a *Auth) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("reset requested for unknown email")
			return nil
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.issueCode(ctx, user.ID, user.Email, models.PurposeReset); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("reset code sent", slog.Int64("uid", user.ID))

	return nil
}

// * VerifyReset проверяет reset-код и открывает окно смены пароля
func (a *Auth) VerifyReset(ctx context.Context, email, code string) error {
	const op = "auth.VerifyReset"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return ErrNoPendingCode
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.consume(ctx, log, user.ID, models.PurposeReset, code); err != nil {
		return err
	}

	if err := a.usrSaver.AuthorizeReset(ctx, user.ID, time.Now().Add(a.resetWindow)); err != nil {
		log.Error("failed to authorize reset", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("reset code verified", slog.Int64("uid", user.ID))

	return nil
}

// ResetPassword rehashes and persists the new password. It requires an
// unexpired reset grant, which is consumed atomically by the update.
func (a *Auth) ResetPassword(ctx context.Context, email, newPass string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return ErrResetNotAuthorized
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.ConsumeResetGrant(ctx, user.ID); err != nil {
		if errors.Is(err, storage.ErrResetNotAuthorized) {
			log.Warn("reset not authorized")
			return ErrResetNotAuthorized
		}

		log.Error("failed to consume reset grant", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.UpdatePassword(ctx, user.ID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset", slog.Int64("uid", user.ID))

	return nil
}

// ResendCode re-issues the code for the purpose, replacing the previous one
// and restarting its window. Unknown emails and already-verified accounts
// (for the signup purpose) get the same nil result as the happy path.
func (a *Auth) ResendCode(ctx context.Context, email string, purpose models.CodePurpose) error {
	const op = "auth.ResendCode"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("resend requested for unknown email")
			return nil
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if purpose == models.PurposeSignup && user.IsVerified {
		log.Info("resend requested for verified account", slog.Int64("uid", user.ID))
		return nil
	}

	if err := a.issueCode(ctx, user.ID, user.Email, purpose); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("code resent", slog.Int64("uid", user.ID))

	return nil
}

// issueCode generates a fresh code, stores it (invalidating any prior code of
// the same purpose) and publishes it for delivery. A publish failure comes
// back as ErrDispatchFailure: the user cannot proceed without the email, so
// the caller must not report the code as issued.
func (a *Auth) issueCode(ctx context.Context, userID int64, email string, purpose models.CodePurpose) error {
	const op = "auth.issueCode"

	log := a.log.With(slog.String("op", op))

	code, err := otp.New(a.codeLength)
	if err != nil {
		log.Error("failed to generate code", sl.Err(err))
		return err
	}

	err = a.codeStore.UpsertCode(ctx, models.OTPCode{
		UserID:    userID,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: time.Now().Add(a.codeTTL),
	})
	if err != nil {
		log.Error("failed to store code", sl.Err(err))
		return err
	}

	if err := a.codeCache.ClearCodeUsed(ctx, userID, purpose); err != nil {
		log.Warn("failed to clear used marker", sl.Err(err))
	}

	if err := a.codeCache.SetCodePending(ctx, userID, purpose, a.codeTTL); err != nil {
		log.Warn("failed to cache pending code", sl.Err(err))
	}

	msg := models.Message{
		Email:   email,
		Code:    code,
		Purpose: string(purpose),
		Subject: subjectFor(purpose),
	}

	if err := a.publisher.SendMessage(ctx, msg); err != nil {
		log.Error("failed to publish code message", sl.Err(err))
		return ErrDispatchFailure
	}

	return nil
}

// * consume атомарно гасит код; повторная проверка того же кода всегда
// завершается ErrNoPendingCode
func (a *Auth) consume(ctx context.Context, log *slog.Logger, userID int64, purpose models.CodePurpose, code string) error {
	err := a.codeStore.ConsumeCode(ctx, userID, purpose, code)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNoPendingCode):
			return ErrNoPendingCode
		case errors.Is(err, storage.ErrCodeExpired):
			return ErrCodeExpired
		case errors.Is(err, storage.ErrCodeMismatch):
			return ErrCodeMismatch
		}

		log.Error("failed to consume code", sl.Err(err))
		return err
	}

	if first, err := a.codeCache.MarkCodeUsed(ctx, userID, purpose, a.codeTTL); err != nil {
		log.Warn("failed to mark code used", sl.Err(err))
	} else if !first {
		log.Warn("code already marked used in cache", slog.Int64("uid", userID))
	}

	if err := a.codeCache.DeleteCodePending(ctx, userID, purpose); err != nil {
		log.Warn("failed to delete pending marker", sl.Err(err))
	}

	return nil
}

func subjectFor(purpose models.CodePurpose) string {
	if purpose == models.PurposeReset {
		return "Password reset code"
	}

	return "Email verification code"
}
