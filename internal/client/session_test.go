package client

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xclinic/dental-clinic/internal/auth"
)

type fakeAuthAPI struct {
	mu          sync.Mutex
	signInErr   error
	refreshErr  error
	signOutErr  error
	signOuts    int
	lastEmail   string
	lastPass    string
	resetEmails []string
	token       string
	next        *auth.Session
}

func (f *fakeAuthAPI) SignInWithPassword(_ context.Context, email, password string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEmail, f.lastPass = email, password
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.next, nil
}

func (f *fakeAuthAPI) RefreshSession(context.Context, string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.next, nil
}

func (f *fakeAuthAPI) SignOut(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return f.signOutErr
}

func (f *fakeAuthAPI) ResetPasswordForEmail(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetEmails = append(f.resetEmails, email)
	return nil
}

func (f *fakeAuthAPI) ConfirmPasswordReset(context.Context, string, string) error {
	return nil
}

func (f *fakeAuthAPI) SetAccessToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

type pushRecorder struct {
	users []uuid.UUID
	err   error
}

func (p *pushRecorder) RegisterForPushNotifications(_ context.Context, userID uuid.UUID) error {
	p.users = append(p.users, userID)
	return p.err
}

type eventLog struct {
	mu     sync.Mutex
	events []AuthEvent
}

func (l *eventLog) record(e AuthEvent, _ *auth.Session) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func testSession(role string) *auth.Session {
	return &auth.Session{
		AccessToken:  "access-" + role,
		RefreshToken: "refresh-" + role,
		User: auth.SessionUser{
			ID:           uuid.New(),
			Email:        "dra@clinica.test",
			UserMetadata: auth.UserMetadata{Role: role},
		},
	}
}

func TestSessionProvider_InitRestoresSession(t *testing.T) {
	ctx := context.Background()
	store := &MemorySessionStore{}
	require.NoError(t, store.Save(testSession(auth.RoleStaff)))

	api := &fakeAuthAPI{next: testSession(auth.RoleAdmin)}
	p := NewSessionProvider(api, store, zerolog.Nop())
	events := &eventLog{}
	p.OnAuthStateChange(events.record)

	assert.True(t, p.Loading())
	require.NoError(t, p.Init(ctx))

	assert.False(t, p.Loading())
	require.NotNil(t, p.Session())
	assert.True(t, p.IsAdmin())
	assert.Equal(t, "access-admin", api.token)
	assert.Equal(t, []AuthEvent{EventInitialSession}, events.events)

	saved, _ := store.Load()
	assert.Equal(t, "refresh-admin", saved.RefreshToken)
}

func TestSessionProvider_InitWithoutPersistedSession(t *testing.T) {
	p := NewSessionProvider(&fakeAuthAPI{}, &MemorySessionStore{}, zerolog.Nop())

	require.NoError(t, p.Init(context.Background()))
	assert.False(t, p.Loading())
	assert.Nil(t, p.Session())
	assert.False(t, p.IsAdmin())
}

func TestSessionProvider_InitDeadRefreshTokenSignsOut(t *testing.T) {
	for _, msg := range []string{"invalid_grant: refresh_token_not_found", "invalid_grant: Invalid Refresh Token"} {
		t.Run(msg, func(t *testing.T) {
			store := &MemorySessionStore{}
			require.NoError(t, store.Save(testSession(auth.RoleAdmin)))
			api := &fakeAuthAPI{refreshErr: &APIError{Status: 400, Code: "invalid_grant", Details: msg[len("invalid_grant: "):]}}

			p := NewSessionProvider(api, store, zerolog.Nop())
			events := &eventLog{}
			p.OnAuthStateChange(events.record)

			require.NoError(t, p.Init(context.Background()))
			assert.Nil(t, p.Session())
			assert.False(t, p.Loading())
			assert.Equal(t, []AuthEvent{EventSignedOut, EventInitialSession}, events.events)

			saved, _ := store.Load()
			assert.Nil(t, saved)
		})
	}
}

func TestSessionProvider_InitOtherErrorKeepsStore(t *testing.T) {
	store := &MemorySessionStore{}
	require.NoError(t, store.Save(testSession(auth.RoleAdmin)))
	boom := errors.New("network unreachable")

	p := NewSessionProvider(&fakeAuthAPI{refreshErr: boom}, store, zerolog.Nop())
	err := p.Init(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, p.Session())
	assert.False(t, p.Loading())
	saved, _ := store.Load()
	assert.NotNil(t, saved)
}

func TestSessionProvider_SignIn(t *testing.T) {
	ctx := context.Background()
	sess := testSession(auth.RoleStaff)
	api := &fakeAuthAPI{next: sess}
	push := &pushRecorder{err: errors.New("permission denied")}
	p := NewSessionProvider(api, &MemorySessionStore{}, zerolog.Nop()).WithPushRegistrar(push)
	events := &eventLog{}
	p.OnAuthStateChange(events.record)

	require.NoError(t, p.SignIn(ctx, "  dra@clinica.test ", " secreto1 "))

	assert.Equal(t, "dra@clinica.test", api.lastEmail)
	assert.Equal(t, "secreto1", api.lastPass)
	assert.Equal(t, sess, p.Session())
	assert.False(t, p.IsAdmin())
	assert.Equal(t, []uuid.UUID{sess.User.ID}, push.users, "push failure is swallowed")
	assert.Equal(t, []AuthEvent{EventSignedIn}, events.events)
}

func TestSessionProvider_SignInErrorIsReturnedUnchanged(t *testing.T) {
	remote := &APIError{Status: 400, Code: "invalid_grant", Details: auth.ErrInvalidCredentials.Error()}
	p := NewSessionProvider(&fakeAuthAPI{signInErr: remote}, &MemorySessionStore{}, zerolog.Nop())

	err := p.SignIn(context.Background(), "x@y.z", "nope")

	assert.Same(t, remote, err)
	assert.Nil(t, p.Session())
	assert.False(t, p.Loading())
}

func TestSessionProvider_SignOutClearsEvenWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	store := &MemorySessionStore{}
	api := &fakeAuthAPI{next: testSession(auth.RoleAdmin), signOutErr: errors.New("offline")}
	p := NewSessionProvider(api, store, zerolog.Nop())
	require.NoError(t, p.SignIn(ctx, "a@b.c", "secreto1"))

	events := &eventLog{}
	p.OnAuthStateChange(events.record)
	p.SignOut(ctx)

	assert.Equal(t, 1, api.signOuts)
	assert.Nil(t, p.Session())
	assert.Empty(t, api.token)
	saved, _ := store.Load()
	assert.Nil(t, saved)
	assert.Equal(t, []AuthEvent{EventSignedOut}, events.events)
}

func TestSessionProvider_DeadRefreshTokenSignsOut(t *testing.T) {
	ctx := context.Background()
	store := &MemorySessionStore{}
	api := &fakeAuthAPI{next: testSession(auth.RoleAdmin)}
	p := NewSessionProvider(api, store, zerolog.Nop())
	require.NoError(t, p.SignIn(ctx, "a@b.c", "secreto1"))

	events := &eventLog{}
	p.OnAuthStateChange(events.record)

	api.refreshErr = &APIError{Status: 400, Code: "invalid_grant", Details: auth.ErrRefreshTokenNotFound.Error()}
	require.Error(t, p.Refresh(ctx))

	assert.Nil(t, p.Session())
	saved, _ := store.Load()
	assert.Nil(t, saved)
	assert.Equal(t, []AuthEvent{EventTokenRefreshed, EventSignedOut}, events.events)
}

func TestSessionProvider_TransientRefreshErrorKeepsSession(t *testing.T) {
	ctx := context.Background()
	store := &MemorySessionStore{}
	sess := testSession(auth.RoleAdmin)
	api := &fakeAuthAPI{next: sess}
	p := NewSessionProvider(api, store, zerolog.Nop())
	require.NoError(t, p.SignIn(ctx, "a@b.c", "secreto1"))

	events := &eventLog{}
	p.OnAuthStateChange(events.record)

	boom := errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")
	api.refreshErr = boom
	err := p.Refresh(ctx)

	assert.ErrorIs(t, err, boom)
	assert.False(t, IsRefreshTokenError(err))
	assert.Equal(t, sess, p.Session())
	assert.Equal(t, "access-admin", api.token)
	saved, _ := store.Load()
	assert.Equal(t, sess, saved)
	assert.Empty(t, events.events)
}

func TestSessionProvider_AutoRefreshRetriesTransientError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expiring := testSession(auth.RoleStaff)
	expiring.ExpiresAt = time.Now().Add(-time.Second).Unix()
	api := &fakeAuthAPI{next: expiring}
	p := NewSessionProvider(api, &MemorySessionStore{}, zerolog.Nop()).WithRetryDelay(10 * time.Millisecond)
	require.NoError(t, p.SignIn(ctx, "a@b.c", "secreto1"))

	api.mu.Lock()
	api.refreshErr = errors.New("server down")
	api.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.AutoRefresh(ctx, time.Minute)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NotNil(t, p.Session())

	fresh := testSession(auth.RoleAdmin)
	fresh.ExpiresAt = time.Now().Add(time.Hour).Unix()
	api.mu.Lock()
	api.refreshErr = nil
	api.next = fresh
	api.mu.Unlock()

	require.Eventually(t, p.IsAdmin, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestSessionProvider_RefreshRotatesTokens(t *testing.T) {
	ctx := context.Background()
	api := &fakeAuthAPI{next: testSession(auth.RoleStaff)}
	p := NewSessionProvider(api, &MemorySessionStore{}, zerolog.Nop())
	require.NoError(t, p.SignIn(ctx, "a@b.c", "secreto1"))

	api.next = testSession(auth.RoleAdmin)
	require.NoError(t, p.Refresh(ctx))

	assert.True(t, p.IsAdmin())
	assert.Equal(t, "access-admin", api.token)
}

func TestSessionProvider_AutoRefreshBeforeExpiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expiring := testSession(auth.RoleStaff)
	expiring.ExpiresAt = time.Now().Add(-time.Second).Unix()
	api := &fakeAuthAPI{next: expiring}
	p := NewSessionProvider(api, &MemorySessionStore{}, zerolog.Nop())
	require.NoError(t, p.SignIn(ctx, "a@b.c", "secreto1"))

	fresh := testSession(auth.RoleAdmin)
	fresh.ExpiresAt = time.Now().Add(time.Hour).Unix()
	api.mu.Lock()
	api.next = fresh
	api.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.AutoRefresh(ctx, time.Minute)
		close(done)
	}()

	require.Eventually(t, p.IsAdmin, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestSessionProvider_UnsubscribeAndClose(t *testing.T) {
	ctx := context.Background()
	api := &fakeAuthAPI{next: testSession(auth.RoleAdmin)}
	p := NewSessionProvider(api, &MemorySessionStore{}, zerolog.Nop())

	first, second := &eventLog{}, &eventLog{}
	unsubscribe := p.OnAuthStateChange(first.record)
	p.OnAuthStateChange(second.record)

	unsubscribe()
	require.NoError(t, p.SignIn(ctx, "a@b.c", "secreto1"))
	assert.Empty(t, first.events)
	assert.Len(t, second.events, 1)

	p.Close()
	p.SignOut(ctx)
	assert.Len(t, second.events, 1)
	assert.Nil(t, p.Session())
}

func TestSessionProvider_ResetPasswordTrimsEmail(t *testing.T) {
	api := &fakeAuthAPI{}
	p := NewSessionProvider(api, &MemorySessionStore{}, zerolog.Nop())

	require.NoError(t, p.ResetPassword(context.Background(), " dra@clinica.test "))
	assert.Equal(t, []string{"dra@clinica.test"}, api.resetEmails)
}

func TestIsRefreshTokenError(t *testing.T) {
	assert.True(t, IsRefreshTokenError(auth.ErrRefreshTokenNotFound))
	assert.True(t, IsRefreshTokenError(&APIError{Code: "invalid_grant", Details: "Invalid Refresh Token"}))
	assert.False(t, IsRefreshTokenError(errors.New("timeout")))
	assert.False(t, IsRefreshTokenError(nil))
}

func TestFileSessionStore(t *testing.T) {
	store := NewFileSessionStore(filepath.Join(t.TempDir(), "nested", "session.json"))

	sess, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, sess)

	want := testSession(auth.RoleAdmin)
	require.NoError(t, store.Save(want))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	got, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}
