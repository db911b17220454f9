package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/config"
	"github.com/xclinic/dental-clinic/internal/realtime"
	redisclient "github.com/xclinic/dental-clinic/internal/redis"
	"github.com/xclinic/dental-clinic/internal/storage"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTooLarge         = errors.New("upload exceeds size limit")
	ErrStoreUnavailable = errors.New("file storage not configured")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// ReminderScheduler queues the push reminder for a new appointment.
type ReminderScheduler interface {
	ScheduleAppointmentReminder(ctx context.Context, clinicID, appointmentID uuid.UUID, at time.Time, patientName string) error
}

type Service struct {
	repo      Repository
	cfg       config.Config
	loc       *time.Location
	log       zerolog.Logger
	publisher realtime.Publisher
	reminders ReminderScheduler
	store     storage.ObjectStore
	locker    redisclient.Locker
	now       func() time.Time
}

func NewService(repo Repository, cfg config.Config, log zerolog.Logger) *Service {
	loc := cfg.ClinicLocation
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo: repo,
		cfg:  cfg,
		loc:  loc,
		log:  log.With().Str("component", "clinic_service").Logger(),
		now:  time.Now,
	}
}

// WithPublisher makes every write announce a change. Needed when changes are
// not produced by database triggers.
func (s *Service) WithPublisher(p realtime.Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithReminders(r ReminderScheduler) *Service {
	s.reminders = r
	return s
}

func (s *Service) WithObjectStore(st storage.ObjectStore) *Service {
	s.store = st
	return s
}

// WithLocker serialises follow-up appointment creation per clinic and time.
func (s *Service) WithLocker(l redisclient.Locker) *Service {
	s.locker = l
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Location is the zone appointment wall-clock values live in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Today is the current calendar date at the clinic.
func (s *Service) Today() time.Time {
	return DateOf(s.now().In(s.loc))
}

func (s *Service) publish(ctx context.Context, table realtime.Table, event realtime.Event, clinicID, recordID uuid.UUID) {
	if s.publisher == nil {
		return
	}
	c := realtime.Change{
		Table:           table,
		Event:           event,
		ClinicID:        clinicID,
		RecordID:        recordID,
		CommitTimestamp: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, c); err != nil {
		s.log.Warn().Err(err).
			Str("table", string(table)).
			Str("record_id", recordID.String()).
			Msg("publish change failed")
	}
}

func (s *Service) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithKeyLock(ctx, key, fn)
}

func (s *Service) Profile(ctx context.Context, clinicID uuid.UUID) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}
