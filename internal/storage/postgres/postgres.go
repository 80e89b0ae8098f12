package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"client_portal/internal/config"
	"client_portal/internal/models"
	"client_portal/internal/storage"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, fullName, email string, passHash []byte, role string) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (full_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, fullName, email, string(passHash), role).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, full_name, email, password_hash, role, is_verified, reset_authorized_until
		FROM users
		WHERE email = $1;
	`

	row := r.pool.QueryRow(ctx, query, email)

	var u models.User
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PassHash,
		&u.Role,
		&u.IsVerified,
		&u.ResetAuthorizedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, err
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT id, full_name, email, password_hash, role, is_verified, reset_authorized_until
		FROM users
		WHERE id = $1;
	`

	row := r.pool.QueryRow(ctx, query, id)

	var u models.User
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PassHash,
		&u.Role,
		&u.IsVerified,
		&u.ResetAuthorizedUntil,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, err
}

func (r *PostgresRepo) SetEmailVerified(ctx context.Context, userID int64) error {
	query := `UPDATE users SET is_verified = TRUE WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, userID)

	return err
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, userID int64, passHash []byte) error {
	const op = "storage.postgres.UpdatePassword"

	query := `UPDATE users SET password_hash = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, string(passHash), userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// * UpsertCode сохраняет новый код, атомарно заменяя прежний код того же назначения.
// Прежний код становится недействительным, даже если его срок ещё не истек.
func (r *PostgresRepo) UpsertCode(ctx context.Context, code models.OTPCode) error {
	const op = "storage.postgres.UpsertCode"

	query := `
		INSERT INTO otp_codes (user_id, purpose, code, expires_at, consumed, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		ON CONFLICT (user_id, purpose)
		DO UPDATE SET code = EXCLUDED.code,
		              expires_at = EXCLUDED.expires_at,
		              consumed = FALSE,
		              created_at = NOW();
	`

	_, err := r.pool.Exec(ctx, query, code.UserID, string(code.Purpose), code.Code, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ConsumeCode validates the candidate against the stored code and, on match,
// marks it consumed. The final conditional UPDATE keyed on consumed = FALSE is
// what guarantees at-most-once consumption under concurrent verify calls: the
// loser of the race affects zero rows and gets ErrNoPendingCode.
// A mismatch or an expired code never consumes the stored one.
func (r *PostgresRepo) ConsumeCode(ctx context.Context, userID int64, purpose models.CodePurpose, candidate string) error {
	const op = "storage.postgres.ConsumeCode"

	query := `
		SELECT code, expires_at, consumed
		FROM otp_codes
		WHERE user_id = $1 AND purpose = $2;
	`

	var (
		stored    string
		expiresAt time.Time
		consumed  bool
	)

	err := r.pool.QueryRow(ctx, query, userID, string(purpose)).Scan(&stored, &expiresAt, &consumed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNoPendingCode
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if consumed {
		return storage.ErrNoPendingCode
	}

	if time.Now().After(expiresAt) {
		return storage.ErrCodeExpired
	}

	if stored != candidate {
		return storage.ErrCodeMismatch
	}

	update := `
		UPDATE otp_codes
		SET consumed = TRUE
		WHERE user_id = $1 AND purpose = $2 AND code = $3 AND consumed = FALSE;
	`

	tag, err := r.pool.Exec(ctx, update, userID, string(purpose), candidate)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrNoPendingCode
	}

	return nil
}

func (r *PostgresRepo) AuthorizeReset(ctx context.Context, userID int64, until time.Time) error {
	const op = "storage.postgres.AuthorizeReset"

	query := `UPDATE users SET reset_authorized_until = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, until, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * ConsumeResetGrant атомарно снимает разрешение на смену пароля
func (r *PostgresRepo) ConsumeResetGrant(ctx context.Context, userID int64) error {
	const op = "storage.postgres.ConsumeResetGrant"

	query := `
		UPDATE users
		SET reset_authorized_until = NULL
		WHERE id = $1 AND reset_authorized_until > NOW();
	`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrResetNotAuthorized
	}

	return nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

// * dsn формирует конфигурацию базы данных.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
