package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xclinic/dental-clinic/internal/api"
	"github.com/xclinic/dental-clinic/internal/auth"
	"github.com/xclinic/dental-clinic/internal/auth/authtest"
	"github.com/xclinic/dental-clinic/internal/client"
	"github.com/xclinic/dental-clinic/internal/clinic"
	"github.com/xclinic/dental-clinic/internal/clinic/clinictest"
	"github.com/xclinic/dental-clinic/internal/config"
	"github.com/xclinic/dental-clinic/internal/realtime"
)

const (
	testEmail    = "dra@clinica.test"
	otherEmail   = "dr@otra.test"
	testPassword = "secreto1"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type clinicServer struct {
	*httptest.Server
	hub *realtime.Hub
}

func newClinicServer(t *testing.T) *clinicServer {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	loc, err := time.LoadLocation("America/Managua")
	require.NoError(t, err)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)

	cfg := config.Config{
		Env:             "test",
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		ResetTokenTTL:   time.Hour,
		ClinicLocation:  loc,
		PhotoMode:       config.PhotoModeInline,
	}

	authSvc := auth.NewService(authtest.NewMemory(), auth.NewLogMailer(log), cfg, log)
	user, err := authSvc.CreateUser(ctx, testEmail, testPassword, "Dra. López", auth.RoleAdmin)
	require.NoError(t, err)

	other, err := authSvc.CreateUser(ctx, otherEmail, testPassword, "Dr. Ruiz", auth.RoleAdmin)
	require.NoError(t, err)

	repo := clinictest.NewMemory()
	repo.AddProfile(clinic.Profile{ID: user.ID, Email: user.Email, FullName: "Clínica Sonrisa", Role: auth.RoleAdmin})
	repo.AddProfile(clinic.Profile{ID: other.ID, Email: other.Email, FullName: "Clínica Norte", Role: auth.RoleAdmin})

	hub := realtime.NewHub(log)
	clinicSvc := clinic.NewService(repo, cfg, log).
		WithPublisher(hub).
		WithClock(func() time.Time { return now })

	ws := api.NewRealtimeHandler(hub, log)
	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Clinic:   clinicSvc,
		Auth:     authSvc,
		Realtime: ws,
		Postgres: stubPinger{},
		Log:      log,
		Env:      "test",
	}))
	t.Cleanup(func() {
		ws.Close()
		srv.Close()
	})
	return &clinicServer{Server: srv, hub: hub}
}

func signedIn(t *testing.T, srv *clinicServer) (*client.Client, *client.SessionProvider) {
	t.Helper()
	c := client.New(srv.URL, nil)
	p := client.NewSessionProvider(c, &client.MemorySessionStore{}, zerolog.Nop())
	t.Cleanup(p.Close)
	require.NoError(t, p.SignIn(context.Background(), testEmail, testPassword))
	return c, p
}

func TestClient_SessionLifecycle(t *testing.T) {
	srv := newClinicServer(t)
	ctx := context.Background()
	store := &client.MemorySessionStore{}
	c := client.New(srv.URL, nil)
	p := client.NewSessionProvider(c, store, zerolog.Nop())

	err := p.SignIn(ctx, testEmail, "wrong-password")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, auth.ErrInvalidCredentials.Error(), apiErr.Details)

	require.NoError(t, p.SignIn(ctx, testEmail, testPassword))
	assert.True(t, p.IsAdmin())
	assert.NotEmpty(t, c.AccessToken())

	// A fresh provider restores from the store.
	restarted := client.NewSessionProvider(client.New(srv.URL, nil), store, zerolog.Nop())
	require.NoError(t, restarted.Init(ctx))
	require.NotNil(t, restarted.Session())

	// The first provider's refresh token was rotated away.
	require.Error(t, p.Refresh(ctx))
	assert.Nil(t, p.Session())
	assert.Empty(t, c.AccessToken())

	restarted.SignOut(ctx)
	again := client.NewSessionProvider(client.New(srv.URL, nil), store, zerolog.Nop())
	require.NoError(t, again.Init(ctx))
	assert.Nil(t, again.Session())
}

func TestClient_DeadRefreshTokenSignsOutOnInit(t *testing.T) {
	srv := newClinicServer(t)
	ctx := context.Background()
	store := &client.MemorySessionStore{}
	require.NoError(t, store.Save(&auth.Session{RefreshToken: "never-issued"}))

	p := client.NewSessionProvider(client.New(srv.URL, nil), store, zerolog.Nop())
	var events []client.AuthEvent
	p.OnAuthStateChange(func(e client.AuthEvent, _ *auth.Session) { events = append(events, e) })

	require.NoError(t, p.Init(ctx))
	assert.Nil(t, p.Session())
	assert.Equal(t, []client.AuthEvent{client.EventSignedOut, client.EventInitialSession}, events)
}

func TestClient_ScreenQueries(t *testing.T) {
	srv := newClinicServer(t)
	ctx := context.Background()
	c, _ := signedIn(t, srv)

	phone := "8888-0000"
	ana, err := c.CreatePatient(ctx, api.PatientRequest{FullName: "Ana Pérez", Phone: &phone})
	require.NoError(t, err)

	found, err := c.Patients(ctx, "8888")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ana.ID, found[0].ID)

	_, err = c.Patient(ctx, uuid.New())
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	chart, err := c.Odontogram(ctx, ana.ID)
	require.NoError(t, err)
	assert.Len(t, chart.Teeth, 32)

	dash, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.Patients)
}

func TestClient_RealtimeRefreshesLoader(t *testing.T) {
	srv := newClinicServer(t)
	ctx := context.Background()
	log := zerolog.Nop()
	c, p := signedIn(t, srv)
	clinicID := p.Session().User.ID

	feed := client.NewRealtimeFeed(c.BaseURL(), c.AccessToken, log)
	t.Cleanup(func() { feed.Close() })

	b := realtime.NewBroadcaster(feed, log)
	require.NoError(t, b.Start(ctx, clinicID))
	defer b.Stop()
	assert.True(t, feed.Connected())
	for _, table := range realtime.WatchedTables {
		assert.Equal(t, 1, srv.hub.SubscriberCount(table, clinicID))
	}

	patients := client.NewLoader("patients", "", c.Patients, log).Watch(b, realtime.TablePatients)
	defer patients.Close()
	require.Empty(t, patients.Load(ctx).Data)

	_, err := c.CreatePatient(ctx, api.PatientRequest{FullName: "Bruno Díaz"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(patients.State().Data) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, b.RefreshTrigger())

	b.Stop()
	require.Eventually(t, func() bool {
		return srv.hub.SubscriberCount(realtime.TablePatients, clinicID) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestClient_BroadcasterFollowsSignInAndOut(t *testing.T) {
	srv := newClinicServer(t)
	ctx := context.Background()
	log := zerolog.Nop()

	c := client.New(srv.URL, nil)
	p := client.NewSessionProvider(c, &client.MemorySessionStore{}, log)
	defer p.Close()

	feed := client.NewRealtimeFeed(c.BaseURL(), c.AccessToken, log)
	t.Cleanup(func() { feed.Close() })
	b := realtime.NewBroadcaster(feed, log)
	defer b.Stop()
	client.BindBroadcaster(ctx, p, b, log)

	require.NoError(t, p.SignIn(ctx, testEmail, testPassword))
	first := p.Session().User.ID
	assert.Equal(t, first, b.ClinicID())
	assert.Equal(t, 1, srv.hub.SubscriberCount(realtime.TablePatients, first))

	p.SignOut(ctx)
	assert.Equal(t, uuid.Nil, b.ClinicID())
	require.Eventually(t, func() bool {
		return srv.hub.SubscriberCount(realtime.TablePatients, first) == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, p.SignIn(ctx, otherEmail, testPassword))
	second := p.Session().User.ID
	require.NotEqual(t, first, second)
	assert.Equal(t, second, b.ClinicID())
	for _, table := range realtime.WatchedTables {
		assert.Equal(t, 1, srv.hub.SubscriberCount(table, second))
		assert.Zero(t, srv.hub.SubscriberCount(table, first))
	}

	_, err := c.CreatePatient(ctx, api.PatientRequest{FullName: "Carla Ruiz"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.RefreshTrigger() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_RealtimeRejectsOtherClinic(t *testing.T) {
	srv := newClinicServer(t)
	c, _ := signedIn(t, srv)

	feed := client.NewRealtimeFeed(c.BaseURL(), c.AccessToken, zerolog.Nop())
	defer feed.Close()

	sub := realtime.Subscription{Table: realtime.TablePayments, ClinicID: uuid.New(), Event: realtime.EventAll}
	_, err := feed.Subscribe(context.Background(), sub, func(realtime.Change) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clinic does not match token")
}

func TestClient_RealtimeNeedsToken(t *testing.T) {
	srv := newClinicServer(t)
	feed := client.NewRealtimeFeed(srv.URL, func() string { return "" }, zerolog.Nop())

	err := feed.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.False(t, feed.Connected())
}
