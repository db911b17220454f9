package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/xclinic/dental-clinic/internal/config"
)

const minPasswordLen = 6

// Mailer delivers password reset tokens.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes reset tokens to the log instead of sending mail.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "log_mailer").Logger()}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.log.Info().Str("email", email).Str("reset_token", token).Msg("password reset requested")
	return nil
}

type Service struct {
	store      Store
	mailer     Mailer
	tokens     tokenIssuer
	refreshTTL time.Duration
	resetTTL   time.Duration
	bcryptCost int
	now        func() time.Time
	log        zerolog.Logger
}

func NewService(store Store, mailer Mailer, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		store:      store,
		mailer:     mailer,
		tokens:     tokenIssuer{key: []byte(cfg.JWTSecret), ttl: cfg.AccessTokenTTL},
		refreshTTL: cfg.RefreshTokenTTL,
		resetTTL:   cfg.ResetTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		log:        log.With().Str("component", "auth_service").Logger(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignInWithPassword checks the credentials and opens a session.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.EmailConfirmed {
		return nil, ErrEmailNotConfirmed
	}

	return s.openSession(ctx, *u, "")
}

// openSession issues an access token and a refresh token. With previous set,
// the old refresh token is rotated out in the same step.
func (s *Service) openSession(ctx context.Context, u User, previous string) (*Session, error) {
	now := s.now()

	access, exp, err := s.tokens.issue(u, now)
	if err != nil {
		return nil, err
	}

	refresh, hash, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	rt := RefreshToken{Hash: hash, UserID: u.ID, ExpiresAt: now.Add(s.refreshTTL)}

	if previous == "" {
		err = s.store.InsertRefreshToken(ctx, rt)
	} else {
		err = s.store.RotateRefreshToken(ctx, previous, rt, now)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			return nil, err
		}
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Session{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int(exp.Sub(now).Seconds()),
		ExpiresAt:    exp.Unix(),
		RefreshToken: refresh,
		User: SessionUser{
			ID:           u.ID,
			Email:        u.Email,
			UserMetadata: UserMetadata{Role: u.Role, FullName: u.FullName},
		},
	}, nil
}

// RefreshSession trades a refresh token for a new session. Each refresh token
// works once.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrRefreshTokenNotFound
	}
	hash := hashToken(refreshToken)

	rt, err := s.store.GetRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if rt.RevokedAt != nil || !s.now().Before(rt.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}

	u, err := s.store.GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	return s.openSession(ctx, *u, hash)
}

// SignOut revokes the refresh token. Unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	if err := s.store.RevokeRefreshToken(ctx, hashToken(refreshToken), s.now()); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// ResetPasswordForEmail mails a reset token. It reports success for unknown
// addresses so callers cannot probe for accounts.
func (s *Service) ResetPasswordForEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.log.Info().Str("email", email).Msg("password reset for unknown email")
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	token, hash, err := newOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.store.InsertPasswordReset(ctx, PasswordReset{Hash: hash, UserID: u.ID, ExpiresAt: s.now().Add(s.resetTTL)}); err != nil {
		return fmt.Errorf("store password reset: %w", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, u.Email, token); err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	return nil
}

// ConfirmPasswordReset sets a new password and signs the user out everywhere.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if len(strings.TrimSpace(newPassword)) < minPasswordLen {
		return ErrWeakPassword
	}

	reset, err := s.store.ConsumePasswordReset(ctx, hashToken(strings.TrimSpace(token)), s.now())
	if err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			return err
		}
		return fmt.Errorf("consume password reset: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(newPassword)), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, reset.UserID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.store.RevokeUserRefreshTokens(ctx, reset.UserID, s.now()); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// VerifyAccessToken validates signature and expiry.
func (s *Service) VerifyAccessToken(token string) (*Claims, error) {
	return s.tokens.verify(token, s.now())
}

// User loads the account behind verified claims.
func (s *Service) User(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// CreateUser registers a confirmed account. Each account is its own clinic.
func (s *Service) CreateUser(ctx context.Context, email, password, fullName, role string) (*User, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCredentials, email)
	}
	password = strings.TrimSpace(password)
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	if role == "" {
		role = RoleStaff
	}
	if role != RoleAdmin && role != RoleStaff {
		return nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, User{
		ID:             uuid.New(),
		Email:          email,
		FullName:       strings.TrimSpace(fullName),
		Role:           role,
		PasswordHash:   string(hash),
		EmailConfirmed: true,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}
