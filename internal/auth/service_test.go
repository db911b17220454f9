package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xclinic/dental-clinic/internal/config"
)

type memStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]User
	refresh map[string]RefreshToken
	resets  map[string]PasswordReset
}

func newMemStore() *memStore {
	return &memStore{users: map[uuid.UUID]User{}, refresh: map[string]RefreshToken{}, resets: map[string]PasswordReset{}}
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *memStore) CreateUser(_ context.Context, u User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	return &u, nil
}

func (m *memStore) UpdatePassword(_ context.Context, userID uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	m.users[userID] = u
	return nil
}

func (m *memStore) InsertRefreshToken(_ context.Context, t RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[t.Hash] = t
	return nil
}

func (m *memStore) GetRefreshToken(_ context.Context, hash string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[hash]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	return &t, nil
}

func (m *memStore) RotateRefreshToken(_ context.Context, oldHash string, next RefreshToken, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.refresh[oldHash]
	if !ok || old.RevokedAt != nil {
		return ErrInvalidRefreshToken
	}
	old.RevokedAt = &at
	m.refresh[oldHash] = old
	m.refresh[next.Hash] = next
	return nil
}

func (m *memStore) RevokeRefreshToken(_ context.Context, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.refresh[hash]; ok && t.RevokedAt == nil {
		t.RevokedAt = &at
		m.refresh[hash] = t
	}
	return nil
}

func (m *memStore) RevokeUserRefreshTokens(_ context.Context, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, t := range m.refresh {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &at
			m.refresh[h] = t
		}
	}
	return nil
}

func (m *memStore) InsertPasswordReset(_ context.Context, r PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[r.Hash] = r
	return nil
}

func (m *memStore) ConsumePasswordReset(_ context.Context, hash string, at time.Time) (*PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[hash]
	if !ok || r.UsedAt != nil || !at.Before(r.ExpiresAt) {
		return nil, ErrInvalidResetToken
	}
	r.UsedAt = &at
	m.resets[hash] = r
	return &r, nil
}

type captureMailer struct {
	tokens map[string]string
}

func (c *captureMailer) SendPasswordReset(_ context.Context, email, token string) error {
	c.tokens[email] = token
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *memStore, *captureMailer, *clock) {
	t.Helper()
	store := newMemStore()
	mailer := &captureMailer{tokens: map[string]string{}}
	clk := &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}

	cfg := config.Config{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		ResetTokenTTL:   time.Hour,
	}
	svc := NewService(store, mailer, cfg, zerolog.Nop())
	svc.bcryptCost = bcrypt.MinCost
	svc.now = clk.now
	return svc, store, mailer, clk
}

func TestSignInWithPassword(t *testing.T) {
	svc, _, _, clk := newTestService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, " Dra.Lopez@Clinica.test ", "secreto1", "Dra. López", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "dra.lopez@clinica.test", u.Email)

	_, err = svc.SignInWithPassword(ctx, "dra.lopez@clinica.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignInWithPassword(ctx, "nobody@clinica.test", "secreto1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := svc.SignInWithPassword(ctx, "  DRA.LOPEZ@clinica.test", " secreto1 ")
	require.NoError(t, err)
	assert.Equal(t, "bearer", sess.TokenType)
	assert.Equal(t, 3600, sess.ExpiresIn)
	assert.Equal(t, clk.t.Add(time.Hour).Unix(), sess.ExpiresAt)
	assert.True(t, sess.IsAdmin())
	assert.NotEmpty(t, sess.RefreshToken)

	claims, err := svc.VerifyAccessToken(sess.AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	assert.Equal(t, RoleAdmin, claims.UserMetadata.Role)
}

func TestSignIn_EmailNotConfirmed(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("secreto1"), bcrypt.MinCost)
	require.NoError(t, err)
	store.users[uuid.New()] = User{Email: "new@clinica.test", PasswordHash: string(hash), Role: RoleStaff}

	_, err = svc.SignInWithPassword(context.Background(), "new@clinica.test", "secreto1")
	assert.ErrorIs(t, err, ErrEmailNotConfirmed)
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	svc, _, _, clk := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "a@clinica.test", "secreto1", "", "")
	require.NoError(t, err)

	sess, err := svc.SignInWithPassword(ctx, "a@clinica.test", "secreto1")
	require.NoError(t, err)
	assert.False(t, sess.IsAdmin())

	clk.t = clk.t.Add(2 * time.Hour)
	_, err = svc.VerifyAccessToken(sess.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.VerifyAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshSession_RotatesOnce(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "a@clinica.test", "secreto1", "", RoleStaff)
	require.NoError(t, err)
	sess, err := svc.SignInWithPassword(ctx, "a@clinica.test", "secreto1")
	require.NoError(t, err)

	next, err := svc.RefreshSession(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.RefreshToken, next.RefreshToken)

	_, err = svc.RefreshSession(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Equal(t, "Invalid Refresh Token", err.Error())

	_, err = svc.RefreshSession(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
	assert.Contains(t, err.Error(), "refresh_token_not_found")
}

func TestRefreshSession_Expired(t *testing.T) {
	svc, _, _, clk := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "a@clinica.test", "secreto1", "", RoleStaff)
	require.NoError(t, err)
	sess, err := svc.SignInWithPassword(ctx, "a@clinica.test", "secreto1")
	require.NoError(t, err)

	clk.t = clk.t.Add(25 * time.Hour)
	_, err = svc.RefreshSession(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestSignOut(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "a@clinica.test", "secreto1", "", RoleStaff)
	require.NoError(t, err)
	sess, err := svc.SignInWithPassword(ctx, "a@clinica.test", "secreto1")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, sess.RefreshToken))
	require.NoError(t, svc.SignOut(ctx, "unknown"))
	require.NoError(t, svc.SignOut(ctx, ""))

	_, err = svc.RefreshSession(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestPasswordReset(t *testing.T) {
	svc, _, mailer, clk := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "a@clinica.test", "secreto1", "", RoleStaff)
	require.NoError(t, err)
	sess, err := svc.SignInWithPassword(ctx, "a@clinica.test", "secreto1")
	require.NoError(t, err)

	require.NoError(t, svc.ResetPasswordForEmail(ctx, "ghost@clinica.test"))
	assert.Empty(t, mailer.tokens)

	require.NoError(t, svc.ResetPasswordForEmail(ctx, "A@clinica.test"))
	token := mailer.tokens["a@clinica.test"]
	require.NotEmpty(t, token)

	assert.ErrorIs(t, svc.ConfirmPasswordReset(ctx, token, "123"), ErrWeakPassword)
	require.NoError(t, svc.ConfirmPasswordReset(ctx, token, "nuevo-secreto"))
	assert.ErrorIs(t, svc.ConfirmPasswordReset(ctx, token, "otro-secreto"), ErrInvalidResetToken)

	_, err = svc.SignInWithPassword(ctx, "a@clinica.test", "secreto1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.SignInWithPassword(ctx, "a@clinica.test", "nuevo-secreto")
	require.NoError(t, err)

	_, err = svc.RefreshSession(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken, "old sessions are revoked")

	require.NoError(t, svc.ResetPasswordForEmail(ctx, "a@clinica.test"))
	clk.t = clk.t.Add(2 * time.Hour)
	assert.ErrorIs(t, svc.ConfirmPasswordReset(ctx, mailer.tokens["a@clinica.test"], "tercero-1"), ErrInvalidResetToken)
}

func TestCreateUser_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "a@clinica.test", "123", "", "")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.CreateUser(ctx, "a@clinica.test", "secreto1", "", "owner")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.CreateUser(ctx, "a@clinica.test", "secreto1", "", "")
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "A@clinica.test", "secreto1", "", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}
