package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const ReminderTitle = "Recordatorio de cita"

type Reminders struct {
	store Store
	lead  time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

func NewReminders(store Store, lead time.Duration, log zerolog.Logger) *Reminders {
	return &Reminders{
		store: store,
		lead:  lead,
		now:   time.Now,
		log:   log.With().Str("component", "reminders").Logger(),
	}
}

// ScheduleAppointmentReminder queues a push one lead time before at. It
// returns ErrReminderTooLate when less than the lead time remains.
func (r *Reminders) ScheduleAppointmentReminder(ctx context.Context, clinicID, appointmentID uuid.UUID, at time.Time, patientName string) error {
	fireAt := at.Add(-r.lead)
	if fireAt.Before(r.now()) {
		return ErrReminderTooLate
	}

	rem := Reminder{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		ClinicID:      clinicID,
		FireAt:        fireAt.UTC(),
		Title:         ReminderTitle,
		Body:          ReminderBody(patientName, r.lead),
	}
	if err := r.store.UpsertReminder(ctx, rem); err != nil {
		return fmt.Errorf("store reminder: %w", err)
	}

	r.log.Debug().
		Str("appointment_id", appointmentID.String()).
		Time("fire_at", rem.FireAt).
		Msg("reminder scheduled")
	return nil
}

// ReminderBody is the Spanish notification text for a lead time.
func ReminderBody(patientName string, lead time.Duration) string {
	return fmt.Sprintf("Tienes una cita con %s en %s.", strings.TrimSpace(patientName), leadText(lead))
}

func leadText(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hora"
	case d > time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d horas", d/time.Hour)
	case d == time.Minute:
		return "1 minuto"
	default:
		return fmt.Sprintf("%d minutos", d/time.Minute)
	}
}

// RegisterPushToken saves the device token for userID, replacing any earlier
// one.
func (r *Reminders) RegisterPushToken(ctx context.Context, userID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidPushToken
	}
	if err := r.store.UpsertPushToken(ctx, userID, token); err != nil {
		return fmt.Errorf("save push token: %w", err)
	}
	return nil
}
