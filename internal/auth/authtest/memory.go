// Package authtest holds an in-memory auth.Store for tests.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xclinic/dental-clinic/internal/auth"
)

// Memory is an auth.Store backed by maps.
type Memory struct {
	mu      sync.Mutex
	users   map[uuid.UUID]auth.User
	refresh map[string]auth.RefreshToken
	resets  map[string]auth.PasswordReset
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{users: map[uuid.UUID]auth.User{}, refresh: map[string]auth.RefreshToken{}, resets: map[string]auth.PasswordReset{}}
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (m *Memory) GetUserByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) CreateUser(_ context.Context, u auth.User) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, auth.ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	return &u, nil
}

func (m *Memory) UpdatePassword(_ context.Context, userID uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.PasswordHash = hash
	m.users[userID] = u
	return nil
}

func (m *Memory) InsertRefreshToken(_ context.Context, t auth.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[t.Hash] = t
	return nil
}

func (m *Memory) GetRefreshToken(_ context.Context, hash string) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[hash]
	if !ok {
		return nil, auth.ErrRefreshTokenNotFound
	}
	return &t, nil
}

func (m *Memory) RotateRefreshToken(_ context.Context, oldHash string, next auth.RefreshToken, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.refresh[oldHash]
	if !ok || old.RevokedAt != nil {
		return auth.ErrInvalidRefreshToken
	}
	old.RevokedAt = &at
	m.refresh[oldHash] = old
	m.refresh[next.Hash] = next
	return nil
}

func (m *Memory) RevokeRefreshToken(_ context.Context, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.refresh[hash]; ok && t.RevokedAt == nil {
		t.RevokedAt = &at
		m.refresh[hash] = t
	}
	return nil
}

func (m *Memory) RevokeUserRefreshTokens(_ context.Context, userID uuid.UUID, at time.Time) error {
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

func (m *Memory) InsertPasswordReset(_ context.Context, r auth.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[r.Hash] = r
	return nil
}

func (m *Memory) ConsumePasswordReset(_ context.Context, hash string, at time.Time) (*auth.PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[hash]
	if !ok || r.UsedAt != nil || !at.Before(r.ExpiresAt) {
		return nil, auth.ErrInvalidResetToken
	}
	r.UsedAt = &at
	m.resets[hash] = r
	return &r, nil
}

var _ auth.Store = (*Memory)(nil)
