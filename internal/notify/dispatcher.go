package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/xclinic/dental-clinic/internal/redis"
)

const dispatchBatch = 100

// Dispatcher sends due reminders. Several workers may run at once: each
// reminder is re-read under its lock and skipped once another worker sent it.
type Dispatcher struct {
	store  Store
	sender Sender
	locker redisclient.Locker
	now    func() time.Time
	log    zerolog.Logger
}

func NewDispatcher(store Store, sender Sender, locker redisclient.Locker, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		sender: sender,
		locker: locker,
		now:    time.Now,
		log:    log.With().Str("component", "reminder_dispatcher").Logger(),
	}
}

// DispatchDue sends every reminder whose fire time has passed and returns how
// many were delivered.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	due, err := d.store.DueReminders(ctx, d.now(), dispatchBatch)
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for _, r := range due {
		err := d.locker.WithKeyLock(ctx, "reminder:"+r.ID.String(), func(ctx context.Context) error {
			pending, err := d.store.PendingReminder(ctx, r.ID)
			if err != nil {
				return err
			}
			return d.deliver(ctx, pending)
		})
		switch {
		case err == nil:
			sent++
			reminderDispatches.WithLabelValues("sent").Inc()
		case errors.Is(err, ErrReminderSent):
			reminderDispatches.WithLabelValues("already_sent").Inc()
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			reminderDispatches.WithLabelValues("locked").Inc()
		case errors.Is(err, ErrPushTokenNotFound):
			reminderDispatches.WithLabelValues("no_token").Inc()
		default:
			reminderDispatches.WithLabelValues("failed").Inc()
			d.log.Error().Err(err).Str("reminder_id", r.ID.String()).Msg("deliver reminder")
		}
	}
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, r Reminder) error {
	token, err := d.store.GetPushToken(ctx, r.ClinicID)
	if errors.Is(err, ErrPushTokenNotFound) {
		// Nothing to deliver to; mark it so it is not retried every tick.
		d.log.Warn().Str("clinic_id", r.ClinicID.String()).Msg("no push token, dropping reminder")
		if merr := d.store.MarkReminderSent(ctx, r.ID, d.now()); merr != nil {
			return fmt.Errorf("mark reminder: %w", merr)
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("load push token: %w", err)
	}

	msg := PushMessage{
		To:    token,
		Title: r.Title,
		Body:  r.Body,
		Sound: "default",
		Data:  map[string]any{"appointmentId": r.AppointmentID.String()},
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return err
	}
	return d.markSent(ctx, r.ID)
}

func (d *Dispatcher) markSent(ctx context.Context, id uuid.UUID) error {
	if err := d.store.MarkReminderSent(ctx, id, d.now()); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}
