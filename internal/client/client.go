// Package client is the app-side toolkit: a typed HTTP client for the clinic
// API, the session provider, a websocket change feed and refetching loaders.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xclinic/dental-clinic/internal/api"
	"github.com/xclinic/dental-clinic/internal/auth"
	"github.com/xclinic/dental-clinic/internal/clinic"
)

// APIError is a non-2xx reply. Error keeps the server's details so callers
// can match on the auth messages.
type APIError struct {
	Status  int
	Code    string
	Details string
}

func (e *APIError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return e.Code + ": " + e.Details
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for baseURL. A nil httpClient gets a 15s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	return c.send(ctx, method, path, query, "application/json", body, out)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
			apiErr.Code = er.Error
			apiErr.Details = er.Details
		}
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Auth

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	var sess auth.Session
	q := url.Values{"grant_type": {"password"}}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, api.TokenRequest{Email: email, Password: password}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	var sess auth.Session
	q := url.Values{"grant_type": {"refresh_token"}}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, api.TokenRequest{RefreshToken: refreshToken}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *Client) SignOut(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, api.LogoutRequest{RefreshToken: refreshToken}, nil)
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", nil, api.RecoverRequest{Email: email}, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/recover/confirm", nil, api.RecoverConfirmRequest{Token: token, Password: password}, nil)
}

func (c *Client) RegisterPushToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPut, "/push-tokens", nil, api.PushTokenRequest{Token: token}, nil)
}

// Patients

// Patients lists the clinic's patients, filtered by name or phone when query
// is not empty.
func (c *Client) Patients(ctx context.Context, query string) ([]api.PatientResponse, error) {
	var out []api.PatientResponse
	var q url.Values
	if query != "" {
		q = url.Values{"q": {query}}
	}
	err := c.do(ctx, http.MethodGet, "/patients", q, nil, &out)
	return out, err
}

func (c *Client) Patient(ctx context.Context, id uuid.UUID) (*api.PatientResponse, error) {
	var out api.PatientResponse
	if err := c.do(ctx, http.MethodGet, "/patients/"+id.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePatient(ctx context.Context, req api.PatientRequest) (*api.PatientResponse, error) {
	var out api.PatientResponse
	if err := c.do(ctx, http.MethodPost, "/patients", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UploadPatientPhoto(ctx context.Context, id uuid.UUID, contentType string, data []byte) (*api.PatientResponse, error) {
	var out api.PatientResponse
	if err := c.send(ctx, http.MethodPost, "/patients/"+id.String()+"/photo", nil, contentType, bytes.NewReader(data), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Odontogram(ctx context.Context, patientID uuid.UUID) (*api.OdontogramResponse, error) {
	var out api.OdontogramResponse
	if err := c.do(ctx, http.MethodGet, "/patients/"+patientID.String()+"/odontogram", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Appointments

func (c *Client) AppointmentsForDay(ctx context.Context, day time.Time) ([]api.AppointmentResponse, error) {
	var out []api.AppointmentResponse
	err := c.do(ctx, http.MethodGet, "/appointments", url.Values{"date": {clinic.FormatDate(day)}}, nil, &out)
	return out, err
}

func (c *Client) AppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]api.AppointmentResponse, error) {
	var out []api.AppointmentResponse
	err := c.do(ctx, http.MethodGet, "/appointments", url.Values{"patient_id": {patientID.String()}}, nil, &out)
	return out, err
}

func (c *Client) UpcomingAppointments(ctx context.Context) ([]api.AppointmentResponse, error) {
	var out []api.AppointmentResponse
	err := c.do(ctx, http.MethodGet, "/appointments", url.Values{"upcoming": {"true"}}, nil, &out)
	return out, err
}

func (c *Client) CreateAppointment(ctx context.Context, req api.AppointmentRequest) (*api.AppointmentResponse, error) {
	var out api.AppointmentResponse
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status string) (*api.AppointmentResponse, error) {
	var out api.AppointmentResponse
	if err := c.do(ctx, http.MethodPatch, "/appointments/"+id.String()+"/status", nil, api.StatusRequest{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Payments

// Payments lists payments dated between from and to; zero values use the
// server defaults.
func (c *Client) Payments(ctx context.Context, from, to time.Time) ([]api.PaymentResponse, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", clinic.FormatDate(from))
	}
	if !to.IsZero() {
		q.Set("to", clinic.FormatDate(to))
	}
	var out []api.PaymentResponse
	err := c.do(ctx, http.MethodGet, "/payments", q, nil, &out)
	return out, err
}

func (c *Client) CreatePayment(ctx context.Context, req api.PaymentRequest) (*api.PaymentResponse, error) {
	var out api.PaymentResponse
	if err := c.do(ctx, http.MethodPost, "/payments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Dental records

func (c *Client) DentalRecords(ctx context.Context, patientID uuid.UUID) ([]api.DentalRecordResponse, error) {
	var out []api.DentalRecordResponse
	err := c.do(ctx, http.MethodGet, "/dental-records", url.Values{"patient_id": {patientID.String()}}, nil, &out)
	return out, err
}

func (c *Client) CreateDentalRecords(ctx context.Context, req api.DentalRecordRequest) (*api.DentalRecordsCreatedResponse, error) {
	var out api.DentalRecordsCreatedResponse
	if err := c.do(ctx, http.MethodPost, "/dental-records", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Dashboard

func (c *Client) Dashboard(ctx context.Context) (*api.DashboardResponse, error) {
	var out api.DashboardResponse
	if err := c.do(ctx, http.MethodGet, "/dashboard", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
