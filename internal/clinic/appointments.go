package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xclinic/dental-clinic/internal/notify"
	"github.com/xclinic/dental-clinic/internal/realtime"
)

const (
	DefaultAppointmentDuration = 30
	upcomingWindow             = 7 * 24 * time.Hour
	upcomingLimit              = 5
)

type AppointmentInput struct {
	PatientID uuid.UUID
	Date      time.Time
	Duration  int
	Status    AppointmentStatus
	Reason    *string
	Notes     *string
}

func (in *AppointmentInput) normalize(loc *time.Location) error {
	if in.PatientID == uuid.Nil {
		return invalid("patient_id", "is required")
	}
	if in.Date.IsZero() {
		return invalid("date", "is required")
	}
	if in.Duration == 0 {
		in.Duration = DefaultAppointmentDuration
	}
	if in.Duration < 0 {
		return invalid("duration", "must be positive")
	}
	if in.Status == "" {
		in.Status = StatusScheduled
	}
	if !in.Status.Valid() {
		return invalid("status", fmt.Sprintf("unknown value %q", in.Status))
	}
	in.Date = InClinicZone(in.Date, loc).Truncate(time.Minute)
	in.Reason = trimmed(in.Reason)
	in.Notes = trimmed(in.Notes)
	return nil
}

// ListAppointmentsForDay returns the appointments of day's local calendar
// date, earliest first.
func (s *Service) ListAppointmentsForDay(ctx context.Context, clinicID uuid.UUID, day time.Time) ([]AppointmentDetail, error) {
	from, to := DayBounds(InClinicZone(day, s.loc))
	appts, err := s.repo.ListAppointmentsBetween(ctx, clinicID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments for day: %w", err)
	}
	return appts, nil
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, clinicID, patientID uuid.UUID) ([]Appointment, error) {
	appts, err := s.repo.ListAppointmentsByPatient(ctx, clinicID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// UpcomingAppointments is the next week of appointments from now, capped at
// five.
func (s *Service) UpcomingAppointments(ctx context.Context, clinicID uuid.UUID) ([]AppointmentDetail, error) {
	now := s.now().In(s.loc)
	appts, err := s.repo.ListAppointmentsBetween(ctx, clinicID, now, now.Add(upcomingWindow))
	if err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}
	if len(appts) > upcomingLimit {
		appts = appts[:upcomingLimit]
	}
	return appts, nil
}

func (s *Service) GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := s.repo.GetAppointment(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// CreateAppointment stores the appointment and, when it is scheduled, queues
// its reminder. A reminder failure never fails the create.
func (s *Service) CreateAppointment(ctx context.Context, clinicID uuid.UUID, in AppointmentInput) (*Appointment, error) {
	if err := in.normalize(s.loc); err != nil {
		return nil, err
	}

	patient, err := s.repo.GetPatient(ctx, clinicID, in.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	created, err := s.repo.CreateAppointment(ctx, Appointment{
		ID:        uuid.New(),
		PatientID: in.PatientID,
		ClinicID:  clinicID,
		Date:      in.Date,
		Duration:  in.Duration,
		Status:    in.Status,
		Reason:    in.Reason,
		Notes:     in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.publish(ctx, realtime.TableAppointments, realtime.EventInsert, clinicID, created.ID)
	if created.Status == StatusScheduled {
		s.scheduleReminder(ctx, *created, patient.FullName)
	}
	return created, nil
}

func (s *Service) scheduleReminder(ctx context.Context, a Appointment, patientName string) {
	if s.reminders == nil {
		return
	}
	err := s.reminders.ScheduleAppointmentReminder(ctx, a.ClinicID, a.ID, a.Date, patientName)
	switch {
	case err == nil:
	case errors.Is(err, notify.ErrReminderTooLate):
		s.log.Info().Str("appointment_id", a.ID.String()).Msg("appointment too soon for a reminder")
	default:
		s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("schedule reminder failed")
	}
}

func (s *Service) UpdateAppointment(ctx context.Context, clinicID, id uuid.UUID, in AppointmentInput) (*Appointment, error) {
	if err := in.normalize(s.loc); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPatient(ctx, clinicID, in.PatientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	updated, err := s.repo.UpdateAppointment(ctx, Appointment{
		ID:        id,
		PatientID: in.PatientID,
		ClinicID:  clinicID,
		Date:      in.Date,
		Duration:  in.Duration,
		Status:    in.Status,
		Reason:    in.Reason,
		Notes:     in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	s.publish(ctx, realtime.TableAppointments, realtime.EventUpdate, clinicID, id)
	return updated, nil
}

// UpdateAppointmentStatus sets any known status. There are no transition
// rules: a canceled appointment may be completed.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, clinicID, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown value %q", status))
	}
	updated, err := s.repo.UpdateAppointmentStatus(ctx, clinicID, id, status)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	s.publish(ctx, realtime.TableAppointments, realtime.EventUpdate, clinicID, id)
	return updated, nil
}
