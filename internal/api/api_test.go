package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xclinic/dental-clinic/internal/api"
	"github.com/xclinic/dental-clinic/internal/auth"
	"github.com/xclinic/dental-clinic/internal/auth/authtest"
	"github.com/xclinic/dental-clinic/internal/clinic"
	"github.com/xclinic/dental-clinic/internal/clinic/clinictest"
	"github.com/xclinic/dental-clinic/internal/config"
	"github.com/xclinic/dental-clinic/internal/realtime"
	redisclient "github.com/xclinic/dental-clinic/internal/redis"
	"github.com/xclinic/dental-clinic/internal/storage"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type pushTokens map[uuid.UUID]string

func (p pushTokens) RegisterPushToken(_ context.Context, userID uuid.UUID, token string) error {
	p[userID] = token
	return nil
}

type testServer struct {
	*httptest.Server
	repo     *clinictest.Memory
	hub      *realtime.Hub
	ws       *api.RealtimeHandler
	push     pushTokens
	clinicID uuid.UUID
	token    string
	refresh  string
}

func newTestServer(t *testing.T) *testServer {
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
		PhotoMode:       config.PhotoModeStorage,
	}

	authSvc := auth.NewService(authtest.NewMemory(), auth.NewLogMailer(log), cfg, log)
	user, err := authSvc.CreateUser(ctx, "dra@clinica.test", "secreto1", "Dra. López", auth.RoleAdmin)
	require.NoError(t, err)
	sess, err := authSvc.SignInWithPassword(ctx, "dra@clinica.test", "secreto1")
	require.NoError(t, err)

	repo := clinictest.NewMemory()
	repo.AddProfile(clinic.Profile{ID: user.ID, Email: user.Email, FullName: "Clínica Sonrisa", Role: auth.RoleAdmin})

	hub := realtime.NewHub(log)
	disk, err := storage.NewDisk(t.TempDir(), "", log)
	require.NoError(t, err)

	clinicSvc := clinic.NewService(repo, cfg, log).
		WithPublisher(hub).
		WithObjectStore(disk).
		WithLocker(redisclient.NewLocalLocker()).
		WithClock(func() time.Time { return now })

	ws := api.NewRealtimeHandler(hub, log)
	push := pushTokens{}
	router := api.NewRouter(api.RouterConfig{
		Clinic:   clinicSvc,
		Auth:     authSvc,
		Push:     push,
		Realtime: ws,
		Disk:     disk,
		Postgres: stubPinger{},
		Log:      log,
		Env:      "test",
		Version:  "v-test",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		ws.Close()
		srv.Close()
	})

	return &testServer{
		Server:   srv,
		repo:     repo,
		hub:      hub,
		ws:       ws,
		push:     push,
		clinicID: user.ID,
		token:    sess.AccessToken,
		refresh:  sess.RefreshToken,
	}
}

// do sends body as JSON unless it is already a byte slice.
func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *http.Response {
	t.Helper()

	var r io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
		contentType = "application/octet-stream"
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) createPatient(t *testing.T, name string) api.PatientResponse {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/patients", map[string]any{"full_name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.PatientResponse](t, resp)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	live := decode[api.LivenessResponse](t, resp)
	assert.Equal(t, "v-test", live.Version)

	resp = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	ready := decode[api.ReadinessResponse](t, resp)
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, map[string]string{"postgres": "ok"}, ready.Dependencies)
}

func TestHealth_ReadinessFailsWithoutPostgres(t *testing.T) {
	h := api.NewHealthHandler(stubPinger{err: errors.New("connection refused")}, nil, "test", "")
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":"down"`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/patients")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	s.token = "not-a-jwt"
	resp = s.do(t, http.MethodGet, "/patients", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", decode[api.ErrorResponse](t, resp).Error)
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/auth/v1/token?grant_type=password", api.TokenRequest{Email: "dra@clinica.test", Password: "wrong"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errResp := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "invalid_grant", errResp.Error)
	assert.Equal(t, "Invalid login credentials", errResp.Details)

	resp = s.do(t, http.MethodPost, "/auth/v1/token?grant_type=password", api.TokenRequest{Email: "DRA@clinica.test", Password: "secreto1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decode[auth.Session](t, resp)
	assert.NotEmpty(t, sess.AccessToken)
	assert.True(t, sess.IsAdmin())

	resp = s.do(t, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", api.TokenRequest{RefreshToken: "unknown"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[api.ErrorResponse](t, resp).Details, "refresh_token_not_found")

	resp = s.do(t, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", api.TokenRequest{RefreshToken: sess.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[auth.Session](t, resp)
	assert.NotEqual(t, sess.RefreshToken, rotated.RefreshToken)

	resp = s.do(t, http.MethodPost, "/auth/v1/token?grant_type=implicit", api.TokenRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/auth/v1/user", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := decode[api.UserResponse](t, resp)
	assert.Equal(t, s.clinicID, user.ID)
	assert.True(t, user.IsAdmin)

	resp = s.do(t, http.MethodPost, "/auth/v1/recover", api.RecoverRequest{Email: "nobody@clinica.test"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/auth/v1/logout", api.LogoutRequest{RefreshToken: rotated.RefreshToken})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPatientEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/patients", map[string]any{"full_name": " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "full_name", decode[api.ErrorResponse](t, resp).Field)

	resp = s.do(t, http.MethodPost, "/patients", map[string]any{
		"full_name":  "Ana Pérez",
		"birth_date": "1990-05-04",
		"gender":     "female",
		"phone":      "8888-1234",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ana := decode[api.PatientResponse](t, resp)
	assert.Equal(t, "1990-05-04", *ana.BirthDate)
	assert.Equal(t, s.clinicID, ana.ClinicID)
	s.createPatient(t, "Bruno Díaz")

	resp = s.do(t, http.MethodGet, "/patients?q=8888", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decode[[]api.PatientResponse](t, resp)
	require.Len(t, found, 1)
	assert.Equal(t, ana.ID, found[0].ID)

	resp = s.do(t, http.MethodGet, "/patients", nil)
	assert.Len(t, decode[[]api.PatientResponse](t, resp), 2)

	resp = s.do(t, http.MethodPatch, "/patients/"+ana.ID.String(), map[string]any{"full_name": "Ana María Pérez", "phone": "8888-1234"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ana María Pérez", decode[api.PatientResponse](t, resp).FullName)

	resp = s.do(t, http.MethodGet, "/patients/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/patients/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/patients", map[string]any{"full_name": "Carla", "birth_date": "04/05/1990"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPatientPhotoUpload(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, "Ana")
	png := []byte("\x89PNG\r\n\x1a\nfake-image")

	resp := s.do(t, http.MethodPost, "/patients/"+p.ID.String()+"/photo", png, "Content-Type", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/patients/"+p.ID.String()+"/photo", png, "Content-Type", "image/png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[api.PatientResponse](t, resp)
	require.NotNil(t, updated.PhotoURL)
	assert.Equal(t, storage.PublicPrefix+"patient-photos/patient_photos/"+p.ID.String()+".png", *updated.PhotoURL)

	served, err := http.Get(s.URL + *updated.PhotoURL)
	require.NoError(t, err)
	defer served.Body.Close()
	assert.Equal(t, http.StatusOK, served.StatusCode)
	body, err := io.ReadAll(served.Body)
	require.NoError(t, err)
	assert.Equal(t, png, body)

	missing, err := http.Get(s.URL + storage.PublicPrefix + "patient-photos/nope.png")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestAppointmentEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, "Ana")

	resp := s.do(t, http.MethodPost, "/appointments", map[string]any{
		"patient_id": p.ID,
		"date":       "2025-03-12T09:30",
		"reason":     "Limpieza",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[api.AppointmentResponse](t, resp)
	assert.Equal(t, "2025-03-12T09:30:00", appt.Date)
	assert.Equal(t, clinic.DefaultAppointmentDuration, appt.Duration)
	assert.Equal(t, "scheduled", appt.Status)

	resp = s.do(t, http.MethodGet, "/appointments?date=2025-03-12", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	day := decode[[]api.AppointmentResponse](t, resp)
	require.Len(t, day, 1)
	assert.Equal(t, "Ana", day[0].PatientName)

	resp = s.do(t, http.MethodGet, "/appointments?date=2025-03-13", nil)
	assert.Empty(t, decode[[]api.AppointmentResponse](t, resp))

	resp = s.do(t, http.MethodGet, "/appointments?patient_id="+p.ID.String(), nil)
	assert.Len(t, decode[[]api.AppointmentResponse](t, resp), 1)

	resp = s.do(t, http.MethodGet, "/appointments?upcoming=true", nil)
	assert.Len(t, decode[[]api.AppointmentResponse](t, resp), 1)

	resp = s.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", api.StatusRequest{Status: "canceled"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "canceled", decode[api.AppointmentResponse](t, resp).Status)

	resp = s.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", api.StatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", api.StatusRequest{Status: "lost"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPut, "/appointments/"+appt.ID.String(), map[string]any{
		"patient_id": p.ID,
		"date":       "2025-03-12T16:00:00Z",
		"duration":   45,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	moved := decode[api.AppointmentResponse](t, resp)
	assert.Equal(t, "2025-03-12T16:00:00", moved.Date)
	assert.Equal(t, 45, moved.Duration)

	resp = s.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ana", decode[api.AppointmentResponse](t, resp).PatientName)

	resp = s.do(t, http.MethodPost, "/appointments", map[string]any{"patient_id": p.ID, "date": "mañana"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPaymentEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, "Ana")

	resp := s.do(t, http.MethodPost, "/payments", map[string]any{
		"patient_id":     p.ID,
		"amount":         "10.005",
		"payment_method": "cash",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/payments", map[string]any{
		"patient_id":     p.ID,
		"amount":         150.50,
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pay := decode[api.PaymentResponse](t, resp)
	assert.True(t, decimal.RequireFromString("150.5").Equal(pay.Amount))
	assert.Equal(t, "NIO", pay.Currency)
	assert.Equal(t, "2025-03-10", pay.PaymentDate)

	resp = s.do(t, http.MethodGet, "/payments?from=2025-03-01&to=2025-03-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]api.PaymentResponse](t, resp)
	require.Len(t, listed, 1)
	assert.Equal(t, "Ana", listed[0].PatientName)

	resp = s.do(t, http.MethodGet, "/payments?from=2025-03-31&to=2025-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/payments/"+pay.ID.String()+"/receipt", []byte("plain text"))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	pdf := []byte("%PDF-1.4\n% receipt\n")
	resp = s.do(t, http.MethodPost, "/payments/"+pay.ID.String()+"/receipt", pdf, "Content-Type", "application/pdf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	withReceipt := decode[api.PaymentResponse](t, resp)
	require.NotNil(t, withReceipt.ReceiptURL)
	assert.True(t, strings.HasSuffix(*withReceipt.ReceiptURL, "/receipts/receipts/"+pay.ID.String()+".pdf"))

	served, err := http.Get(s.URL + *withReceipt.ReceiptURL)
	require.NoError(t, err)
	defer served.Body.Close()
	assert.Equal(t, "application/pdf", served.Header.Get("Content-Type"))
}

func TestDentalRecordEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, "Ana")
	other := s.createPatient(t, "Bruno")

	resp := s.do(t, http.MethodPost, "/appointments", map[string]any{"patient_id": other.ID, "date": "2025-03-20T10:00"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/dental-records", map[string]any{
		"patient_id":       p.ID,
		"teeth":            []int{17, 16, 16},
		"condition":        "caries",
		"next_appointment": "2025-03-20T10:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.DentalRecordsCreatedResponse](t, resp)
	require.Len(t, created.Records, 2)
	assert.True(t, created.FollowUpConflict)
	assert.Nil(t, created.FollowUp)
	assert.Equal(t, "#a52a2a", created.Records[0].ConditionColor)

	resp = s.do(t, http.MethodPost, "/dental-records", map[string]any{
		"patient_id":       p.ID,
		"teeth":            []int{16},
		"condition":        "extraction",
		"next_appointment": "2025-03-20T10:00",
		"force_follow_up":  true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	forced := decode[api.DentalRecordsCreatedResponse](t, resp)
	require.NotNil(t, forced.FollowUp)
	assert.Equal(t, "2025-03-20T10:00:00", forced.FollowUp.Date)
	assert.False(t, forced.FollowUpConflict)

	resp = s.do(t, http.MethodGet, "/dental-records?patient_id="+p.ID.String()+"&tooth=16", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]api.DentalRecordResponse](t, resp), 2)

	resp = s.do(t, http.MethodGet, "/dental-records", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/patients/"+p.ID.String()+"/odontogram", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chart := decode[api.OdontogramResponse](t, resp)
	require.Len(t, chart.Teeth, 32)
	statuses := map[int]string{}
	for _, tooth := range chart.Teeth {
		statuses[tooth.Number] = string(tooth.Status)
	}
	assert.Equal(t, "missing", statuses[16])
	assert.Equal(t, "caries", statuses[17])
	assert.Equal(t, "healthy", statuses[11])

	resp = s.do(t, http.MethodPost, "/dental-records", map[string]any{"patient_id": p.ID, "teeth": []int{19}, "condition": "caries"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	id := created.Records[0].ID.String()
	resp = s.do(t, http.MethodDelete, "/dental-records/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = s.do(t, http.MethodDelete, "/dental-records/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDashboardEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, "Ana")
	resp := s.do(t, http.MethodPost, "/payments", map[string]any{"patient_id": p.ID, "amount": "200", "payment_method": "transfer"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dash := decode[api.DashboardResponse](t, resp)
	assert.Equal(t, "Clínica Sonrisa", dash.ClinicName)
	assert.Equal(t, 1, dash.Patients)
	assert.True(t, decimal.NewFromInt(200).Equal(dash.MonthRevenue))

	resp = s.do(t, http.MethodGet, "/dashboard/monthly", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	series := decode[api.MonthlySeriesResponse](t, resp)
	assert.Equal(t, 3, series.Month)
	assert.Len(t, series.Days, 31)

	resp = s.do(t, http.MethodGet, "/dashboard/monthly?year=2025&month=13", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPushTokenEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/push-tokens", api.PushTokenRequest{Token: "ExponentPushToken[abc]"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "ExponentPushToken[abc]", s.push[s.clinicID])
}
