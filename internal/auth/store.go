package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	CreateUser(ctx context.Context, u User) (*User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) error

	InsertRefreshToken(ctx context.Context, t RefreshToken) error
	GetRefreshToken(ctx context.Context, hash string) (*RefreshToken, error)
	// RotateRefreshToken revokes oldHash and stores next atomically. It fails
	// with ErrInvalidRefreshToken when oldHash was already revoked.
	RotateRefreshToken(ctx context.Context, oldHash string, next RefreshToken, at time.Time) error
	RevokeRefreshToken(ctx context.Context, hash string, at time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID, at time.Time) error

	InsertPasswordReset(ctx context.Context, r PasswordReset) error
	// ConsumePasswordReset marks an unused, unexpired reset as used and
	// returns it.
	ConsumePasswordReset(ctx context.Context, hash string, at time.Time) (*PasswordReset, error)
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const userColumns = `id, email, full_name, role, password_hash, email_confirmed, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.PasswordHash, &u.EmailConfirmed, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *PgStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM profiles
		WHERE lower(email) = lower($1)
	`, email)
	return scanUser(row)
}

func (s *PgStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM profiles
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (s *PgStore) CreateUser(ctx context.Context, u User) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (id, email, full_name, role, password_hash, email_confirmed)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		u.ID, u.Email, u.FullName, u.Role, u.PasswordHash, u.EmailConfirmed,
	)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

func (s *PgStore) UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, userID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PgStore) InsertRefreshToken(ctx context.Context, t RefreshToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, t.Hash, t.UserID, t.ExpiresAt)
	return err
}

func (s *PgStore) GetRefreshToken(ctx context.Context, hash string) (*RefreshToken, error) {
	var t RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT token, user_id, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token = $1
	`, hash).Scan(&t.Hash, &t.UserID, &t.ExpiresAt, &t.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *PgStore) RotateRefreshToken(ctx context.Context, oldHash string, next RefreshToken, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token = $1 AND revoked_at IS NULL
	`, oldHash, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidRefreshToken
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, next.Hash, next.UserID, next.ExpiresAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PgStore) RevokeRefreshToken(ctx context.Context, hash string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token = $1 AND revoked_at IS NULL
	`, hash, at)
	return err
}

func (s *PgStore) RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, at)
	return err
}

func (s *PgStore) InsertPasswordReset(ctx context.Context, r PasswordReset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, r.Hash, r.UserID, r.ExpiresAt)
	return err
}

func (s *PgStore) ConsumePasswordReset(ctx context.Context, hash string, at time.Time) (*PasswordReset, error) {
	var r PasswordReset
	err := s.pool.QueryRow(ctx, `
		UPDATE password_resets
		SET used_at = $2
		WHERE token = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING token, user_id, expires_at, used_at
	`, hash, at).Scan(&r.Hash, &r.UserID, &r.ExpiresAt, &r.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidResetToken
		}
		return nil, err
	}
	return &r, nil
}
