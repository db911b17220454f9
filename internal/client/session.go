package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/auth"
)

type AuthEvent string

const (
	EventInitialSession   AuthEvent = "INITIAL_SESSION"
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// AuthAPI is the remote side of the session provider. *Client implements it.
type AuthAPI interface {
	SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, password string) error
}

// PushRegistrar registers the device for push notifications after sign-in.
type PushRegistrar interface {
	RegisterForPushNotifications(ctx context.Context, userID uuid.UUID) error
}

// SessionStore persists the session between runs.
type SessionStore interface {
	Load() (*auth.Session, error)
	Save(s *auth.Session) error
	Clear() error
}

// IsRefreshTokenError reports whether err means the stored refresh token is
// unusable and the session must be dropped.
func IsRefreshTokenError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, auth.ErrRefreshTokenNotFound.Error()) ||
		strings.Contains(msg, auth.ErrInvalidRefreshToken.Error())
}

// RefreshRetryDelay is how long AutoRefresh waits after a refresh that failed
// without invalidating the session.
const RefreshRetryDelay = 5 * time.Second

type tokenSink interface {
	SetAccessToken(token string)
}

// SessionProvider holds the current session and tells listeners about every
// auth state change.
type SessionProvider struct {
	api   AuthAPI
	store SessionStore
	push  PushRegistrar
	sink  tokenSink
	log   zerolog.Logger

	retryDelay time.Duration

	mu        sync.RWMutex
	session   *auth.Session
	loading   bool
	listeners map[uint64]func(AuthEvent, *auth.Session)
	nextID    uint64
	closed    bool
}

// NewSessionProvider starts in the loading state with no session. When api
// also accepts access tokens (as *Client does) it is kept in sync.
func NewSessionProvider(api AuthAPI, store SessionStore, log zerolog.Logger) *SessionProvider {
	p := &SessionProvider{
		api:        api,
		store:      store,
		log:        log.With().Str("component", "session_provider").Logger(),
		loading:    true,
		listeners:  make(map[uint64]func(AuthEvent, *auth.Session)),
		retryDelay: RefreshRetryDelay,
	}
	if sink, ok := api.(tokenSink); ok {
		p.sink = sink
	}
	return p
}

// WithRetryDelay overrides RefreshRetryDelay.
func (p *SessionProvider) WithRetryDelay(d time.Duration) *SessionProvider {
	p.retryDelay = d
	return p
}

func (p *SessionProvider) WithPushRegistrar(r PushRegistrar) *SessionProvider {
	p.push = r
	return p
}

func (p *SessionProvider) Session() *auth.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

func (p *SessionProvider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// IsAdmin is derived from the current session's role metadata.
func (p *SessionProvider) IsAdmin() bool {
	return p.Session().IsAdmin()
}

// OnAuthStateChange registers fn for every later event.
func (p *SessionProvider) OnAuthStateChange(fn func(AuthEvent, *auth.Session)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return func() {}
	}
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Close drops every listener. Events after Close only update state.
func (p *SessionProvider) Close() {
	p.mu.Lock()
	p.closed = true
	p.listeners = make(map[uint64]func(AuthEvent, *auth.Session))
	p.mu.Unlock()
}

// Init restores the persisted session and refreshes it. A dead refresh token
// signs out; any other failure leaves no session and is returned.
func (p *SessionProvider) Init(ctx context.Context) error {
	persisted, err := p.store.Load()
	if err != nil {
		p.log.Warn().Err(err).Msg("load persisted session")
		p.emit(ctx, EventInitialSession, nil)
		return fmt.Errorf("load session: %w", err)
	}
	if persisted == nil || persisted.RefreshToken == "" {
		p.emit(ctx, EventInitialSession, nil)
		return nil
	}

	sess, err := p.api.RefreshSession(ctx, persisted.RefreshToken)
	if err != nil {
		p.log.Info().Err(err).Msg("session error")
		if IsRefreshTokenError(err) {
			p.clearLocal()
			p.emit(ctx, EventSignedOut, nil)
			p.emit(ctx, EventInitialSession, nil)
			return nil
		}
		p.emit(ctx, EventInitialSession, nil)
		return err
	}

	p.persist(sess)
	p.emit(ctx, EventInitialSession, sess)
	return nil
}

// SignIn returns the remote error unchanged so callers can map it to a user
// message.
func (p *SessionProvider) SignIn(ctx context.Context, email, password string) error {
	p.setLoading(true)
	sess, err := p.api.SignInWithPassword(ctx, strings.TrimSpace(email), strings.TrimSpace(password))
	if err != nil {
		p.log.Error().Err(err).Msg("sign in")
		p.setLoading(false)
		return err
	}
	p.persist(sess)
	p.emit(ctx, EventSignedIn, sess)
	return nil
}

// SignOut revokes the refresh token remotely. Local state is cleared even
// when that fails.
func (p *SessionProvider) SignOut(ctx context.Context) {
	if sess := p.Session(); sess != nil {
		if err := p.api.SignOut(ctx, sess.RefreshToken); err != nil {
			p.log.Error().Err(err).Msg("sign out")
		}
	}
	p.clearLocal()
	p.emit(ctx, EventSignedOut, nil)
}

func (p *SessionProvider) ResetPassword(ctx context.Context, email string) error {
	return p.api.ResetPasswordForEmail(ctx, strings.TrimSpace(email))
}

// CompletePasswordRecovery sets the new password from a reset token.
func (p *SessionProvider) CompletePasswordRecovery(ctx context.Context, token, password string) error {
	if err := p.api.ConfirmPasswordReset(ctx, token, password); err != nil {
		return err
	}
	p.emit(ctx, EventPasswordRecovery, p.Session())
	return nil
}

// Refresh rotates the session tokens. A dead refresh token is reported as a
// TOKEN_REFRESHED event without a session, which signs out. Other failures
// keep the session and are returned.
func (p *SessionProvider) Refresh(ctx context.Context) error {
	current := p.Session()
	if current == nil {
		return nil
	}
	sess, err := p.api.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		p.log.Warn().Err(err).Msg("token refresh failed")
		if IsRefreshTokenError(err) {
			p.emit(ctx, EventTokenRefreshed, nil)
		}
		return err
	}
	p.persist(sess)
	p.emit(ctx, EventTokenRefreshed, sess)
	return nil
}

// AutoRefresh refreshes the session shortly before each expiry until ctx is
// done or the session ends. A failed refresh that keeps the session is tried
// again after RefreshRetryDelay.
func (p *SessionProvider) AutoRefresh(ctx context.Context, margin time.Duration) {
	var retry bool
	for {
		sess := p.Session()
		if sess == nil {
			return
		}
		wait := time.Until(time.Unix(sess.ExpiresAt, 0).Add(-margin))
		if retry {
			wait = p.retryDelay
		}
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		retry = p.Refresh(ctx) != nil
	}
}

func (p *SessionProvider) setLoading(v bool) {
	p.mu.Lock()
	p.loading = v
	p.mu.Unlock()
}

func (p *SessionProvider) persist(sess *auth.Session) {
	if err := p.store.Save(sess); err != nil {
		p.log.Warn().Err(err).Msg("persist session")
	}
}

func (p *SessionProvider) clearLocal() {
	if err := p.store.Clear(); err != nil {
		p.log.Warn().Err(err).Msg("clear persisted session")
	}
}

// emit applies the event to local state, runs the provider's own reactions
// and then notifies listeners.
func (p *SessionProvider) emit(ctx context.Context, event AuthEvent, sess *auth.Session) {
	p.log.Debug().Str("event", string(event)).Msg("auth state changed")

	p.mu.Lock()
	p.session = sess
	p.loading = false
	targets := make([]func(AuthEvent, *auth.Session), 0, len(p.listeners))
	for _, fn := range p.listeners {
		targets = append(targets, fn)
	}
	p.mu.Unlock()

	if p.sink != nil {
		token := ""
		if sess != nil {
			token = sess.AccessToken
		}
		p.sink.SetAccessToken(token)
	}

	for _, fn := range targets {
		fn(event, sess)
	}

	switch {
	case event == EventSignedIn && sess != nil && sess.User.ID != uuid.Nil && p.push != nil:
		if err := p.push.RegisterForPushNotifications(ctx, sess.User.ID); err != nil {
			p.log.Error().Err(err).Msg("register push notifications")
		}
	case event == EventTokenRefreshed && sess == nil:
		p.log.Info().Msg("token refresh failed, signing out")
		p.clearLocal()
		p.emit(ctx, EventSignedOut, nil)
	}
}

// FileSessionStore keeps the session as JSON in one file.
type FileSessionStore struct {
	path string
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// Load returns nil without error when nothing is stored.
func (s *FileSessionStore) Load() (*auth.Session, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sess auth.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return &sess, nil
}

func (s *FileSessionStore) Save(sess *auth.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

func (s *FileSessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemorySessionStore keeps the session for the life of the process.
type MemorySessionStore struct {
	mu   sync.Mutex
	sess *auth.Session
}

func (s *MemorySessionStore) Load() (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, nil
}

func (s *MemorySessionStore) Save(sess *auth.Session) error {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Clear() error {
	s.mu.Lock()
	s.sess = nil
	s.mu.Unlock()
	return nil
}

// DevicePushRegistrar sends the device's push token to the API.
type DevicePushRegistrar struct {
	Client *Client
	// Token obtains the device push token, e.g. from the platform SDK.
	Token func(ctx context.Context) (string, error)
}

func (r DevicePushRegistrar) RegisterForPushNotifications(ctx context.Context, _ uuid.UUID) error {
	token, err := r.Token(ctx)
	if err != nil {
		return fmt.Errorf("get device push token: %w", err)
	}
	return r.Client.RegisterPushToken(ctx, token)
}
