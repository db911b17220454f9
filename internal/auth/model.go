// Package auth signs clinic users in with email and password and issues the
// JWT sessions every other endpoint trusts.
package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

var (
	ErrInvalidCredentials   = errors.New("Invalid login credentials")
	ErrEmailNotConfirmed    = errors.New("Email not confirmed")
	ErrRefreshTokenNotFound = errors.New("refresh_token_not_found")
	ErrInvalidRefreshToken  = errors.New("Invalid Refresh Token")
	ErrInvalidToken         = errors.New("invalid access token")
	ErrInvalidResetToken    = errors.New("invalid or expired reset token")
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrWeakPassword         = errors.New("password should be at least 6 characters")
	ErrInvalidRole          = errors.New("role must be admin or staff")
)

type User struct {
	ID             uuid.UUID
	Email          string
	FullName       string
	Role           string
	PasswordHash   string
	EmailConfirmed bool
	CreatedAt      time.Time
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type UserMetadata struct {
	Role     string `json:"role"`
	FullName string `json:"full_name,omitempty"`
}

type SessionUser struct {
	ID           uuid.UUID    `json:"id"`
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
}

// Session is the token pair returned on sign-in and refresh.
type Session struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         SessionUser `json:"user"`
}

// IsAdmin reads the role carried in the session's user metadata.
func (s *Session) IsAdmin() bool {
	return s != nil && s.User.UserMetadata.Role == RoleAdmin
}

// RefreshToken is the stored form of an opaque refresh token; only its hash
// is kept.
type RefreshToken struct {
	Hash      string
	UserID    uuid.UUID
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type PasswordReset struct {
	Hash      string
	UserID    uuid.UUID
	ExpiresAt time.Time
	UsedAt    *time.Time
}
