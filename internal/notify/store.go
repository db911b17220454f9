// Package notify registers device push tokens and delivers appointment
// reminders to them.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPushTokenNotFound = errors.New("push token not found")
	ErrReminderTooLate   = errors.New("appointment is too soon for a reminder")
	ErrInvalidPushToken  = errors.New("push token is required")
	ErrReminderSent      = errors.New("reminder already sent")
)

type Reminder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	ClinicID      uuid.UUID
	FireAt        time.Time
	Title         string
	Body          string
	SentAt        *time.Time
}

type Store interface {
	UpsertPushToken(ctx context.Context, userID uuid.UUID, token string) error
	GetPushToken(ctx context.Context, userID uuid.UUID) (string, error)

	// UpsertReminder keeps one pending reminder per appointment.
	UpsertReminder(ctx context.Context, r Reminder) error
	DueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	// PendingReminder returns the reminder while it is unsent, otherwise
	// ErrReminderSent.
	PendingReminder(ctx context.Context, id uuid.UUID) (Reminder, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) UpsertPushToken(ctx context.Context, userID uuid.UUID, token string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_push_tokens (user_id, expo_push_token, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET expo_push_token = EXCLUDED.expo_push_token, updated_at = now()
	`, userID, token)
	return err
}

func (s *PgStore) GetPushToken(ctx context.Context, userID uuid.UUID) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx, `
		SELECT expo_push_token
		FROM user_push_tokens
		WHERE user_id = $1
	`, userID).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrPushTokenNotFound
		}
		return "", err
	}
	return token, nil
}

func (s *PgStore) UpsertReminder(ctx context.Context, r Reminder) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointment_reminders (id, appointment_id, clinic_id, fire_at, title, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (appointment_id) DO UPDATE
		SET fire_at = EXCLUDED.fire_at, title = EXCLUDED.title, body = EXCLUDED.body, sent_at = NULL
	`, r.ID, r.AppointmentID, r.ClinicID, r.FireAt, r.Title, r.Body)
	return err
}

func (s *PgStore) DueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.appointment_id, r.clinic_id, r.fire_at, r.title, r.body, r.sent_at
		FROM appointment_reminders r
		JOIN appointments a ON a.id = r.appointment_id
		WHERE r.sent_at IS NULL AND r.fire_at <= $1 AND a.status = 'scheduled'
		ORDER BY r.fire_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.AppointmentID, &r.ClinicID, &r.FireAt, &r.Title, &r.Body, &r.SentAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgStore) PendingReminder(ctx context.Context, id uuid.UUID) (Reminder, error) {
	var r Reminder
	err := s.pool.QueryRow(ctx, `
		SELECT id, appointment_id, clinic_id, fire_at, title, body, sent_at
		FROM appointment_reminders
		WHERE id = $1 AND sent_at IS NULL
	`, id).Scan(&r.ID, &r.AppointmentID, &r.ClinicID, &r.FireAt, &r.Title, &r.Body, &r.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reminder{}, ErrReminderSent
	}
	return r, err
}

func (s *PgStore) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appointment_reminders
		SET sent_at = $2
		WHERE id = $1 AND sent_at IS NULL
	`, id, at)
	return err
}
