package clinic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/xclinic/dental-clinic/internal/odontogram"
	"github.com/xclinic/dental-clinic/internal/realtime"
	redisclient "github.com/xclinic/dental-clinic/internal/redis"
)

const (
	FollowUpDuration = 30
	FollowUpReason   = "Seguimiento dental"
)

type DentalRecordInput struct {
	PatientID       uuid.UUID
	Teeth           []int
	Condition       odontogram.Condition
	Notes           *string
	Images          []string
	TreatmentDate   time.Time
	NextAppointment *time.Time
	// ForceFollowUp books the follow-up even when the slot is already taken.
	ForceFollowUp bool
}

func (in *DentalRecordInput) normalize(loc *time.Location, today time.Time) error {
	if in.PatientID == uuid.Nil {
		return invalid("patient_id", "is required")
	}
	if len(in.Teeth) == 0 {
		return invalid("teeth", "select at least one tooth")
	}

	seen := make(map[int]struct{}, len(in.Teeth))
	teeth := make([]int, 0, len(in.Teeth))
	for _, n := range in.Teeth {
		if !odontogram.ValidTooth(n) {
			return invalid("teeth", fmt.Sprintf("%d is not an FDI tooth number", n))
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		teeth = append(teeth, n)
	}
	sort.Ints(teeth)
	in.Teeth = teeth

	if !in.Condition.Valid() {
		return invalid("condition", fmt.Sprintf("unknown value %q", in.Condition))
	}
	if in.TreatmentDate.IsZero() {
		in.TreatmentDate = today
	}
	in.TreatmentDate = DateOf(in.TreatmentDate)
	if in.NextAppointment != nil {
		next := InClinicZone(*in.NextAppointment, loc).Truncate(time.Minute)
		in.NextAppointment = &next
	}
	in.Notes = trimmed(in.Notes)
	return nil
}

// DentalRecordsResult is what a multi-tooth create produced. FollowUpConflict
// reports that the follow-up was not booked because the clinic already has an
// appointment at that time.
type DentalRecordsResult struct {
	Records          []DentalRecord
	FollowUp         *Appointment
	FollowUpConflict bool
}

func (s *Service) ListDentalRecords(ctx context.Context, clinicID, patientID uuid.UUID) ([]DentalRecord, error) {
	records, err := s.repo.ListDentalRecords(ctx, clinicID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list dental records: %w", err)
	}
	return records, nil
}

// ToothHistory is every record of one tooth, newest first.
func (s *Service) ToothHistory(ctx context.Context, clinicID, patientID uuid.UUID, tooth int) ([]DentalRecord, error) {
	if !odontogram.ValidTooth(tooth) {
		return nil, invalid("tooth", fmt.Sprintf("%d is not an FDI tooth number", tooth))
	}
	records, err := s.repo.ListToothRecords(ctx, clinicID, patientID, tooth)
	if err != nil {
		return nil, fmt.Errorf("list tooth records: %w", err)
	}
	return records, nil
}

func (s *Service) GetDentalRecord(ctx context.Context, clinicID, id uuid.UUID) (*DentalRecord, error) {
	r, err := s.repo.GetDentalRecord(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("get dental record: %w", err)
	}
	return r, nil
}

// CreateDentalRecords writes one record per selected tooth and books the
// follow-up appointment when a next appointment is given.
func (s *Service) CreateDentalRecords(ctx context.Context, clinicID uuid.UUID, in DentalRecordInput) (*DentalRecordsResult, error) {
	if err := in.normalize(s.loc, s.Today()); err != nil {
		return nil, err
	}

	patient, err := s.repo.GetPatient(ctx, clinicID, in.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	records := make([]DentalRecord, 0, len(in.Teeth))
	for _, tooth := range in.Teeth {
		records = append(records, DentalRecord{
			ID:              uuid.New(),
			PatientID:       in.PatientID,
			ClinicID:        clinicID,
			ToothNumber:     tooth,
			Condition:       in.Condition,
			Notes:           in.Notes,
			Images:          in.Images,
			TreatmentDate:   in.TreatmentDate,
			NextAppointment: in.NextAppointment,
		})
	}

	created, err := s.repo.CreateDentalRecords(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("create dental records: %w", err)
	}
	for _, r := range created {
		s.publish(ctx, realtime.TableDentalRecords, realtime.EventInsert, clinicID, r.ID)
	}

	res := &DentalRecordsResult{Records: created}
	if in.NextAppointment == nil {
		return res, nil
	}

	// Records are already saved; a failed follow-up is only logged.
	followUp, conflict, err := s.bookFollowUp(ctx, clinicID, *patient, *in.NextAppointment, in.ForceFollowUp)
	if err != nil {
		s.log.Error().Err(err).
			Str("patient_id", in.PatientID.String()).
			Time("at", *in.NextAppointment).
			Msg("create follow-up appointment failed")
		return res, nil
	}
	res.FollowUp = followUp
	res.FollowUpConflict = conflict
	return res, nil
}

func (s *Service) bookFollowUp(ctx context.Context, clinicID uuid.UUID, patient Patient, at time.Time, force bool) (*Appointment, bool, error) {
	var booked *Appointment
	var conflict bool

	key := fmt.Sprintf("followup:%s:%s", clinicID, FormatWallClock(at))
	err := s.withLock(ctx, key, func(ctx context.Context) error {
		existing, err := s.repo.FindAppointmentsAt(ctx, clinicID, at)
		if err != nil {
			return fmt.Errorf("check appointment conflict: %w", err)
		}
		if len(existing) > 0 && !force {
			conflict = true
			return nil
		}

		reason := FollowUpReason
		a, err := s.repo.CreateAppointment(ctx, Appointment{
			ID:        uuid.New(),
			PatientID: patient.ID,
			ClinicID:  clinicID,
			Date:      at,
			Duration:  FollowUpDuration,
			Status:    StatusScheduled,
			Reason:    &reason,
		})
		if err != nil {
			return fmt.Errorf("create follow-up: %w", err)
		}
		booked = a
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		// Another booking holds the same slot.
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	if booked != nil {
		s.publish(ctx, realtime.TableAppointments, realtime.EventInsert, clinicID, booked.ID)
		s.scheduleReminder(ctx, *booked, patient.FullName)
	}
	return booked, conflict, nil
}

// UpdateDentalRecord edits a single record; the input names exactly one tooth.
func (s *Service) UpdateDentalRecord(ctx context.Context, clinicID, id uuid.UUID, in DentalRecordInput) (*DentalRecord, error) {
	if len(in.Teeth) > 1 {
		return nil, invalid("teeth", "an existing record covers exactly one tooth")
	}
	if err := in.normalize(s.loc, s.Today()); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetDentalRecord(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("load dental record: %w", err)
	}
	if existing.PatientID != in.PatientID {
		return nil, invalid("patient_id", "cannot move a record to another patient")
	}

	existing.ToothNumber = in.Teeth[0]
	existing.Condition = in.Condition
	existing.Notes = in.Notes
	existing.Images = in.Images
	existing.TreatmentDate = in.TreatmentDate
	existing.NextAppointment = in.NextAppointment

	updated, err := s.repo.UpdateDentalRecord(ctx, *existing)
	if err != nil {
		return nil, fmt.Errorf("update dental record: %w", err)
	}
	s.publish(ctx, realtime.TableDentalRecords, realtime.EventUpdate, clinicID, id)
	return updated, nil
}

func (s *Service) DeleteDentalRecord(ctx context.Context, clinicID, id uuid.UUID) error {
	if err := s.repo.DeleteDentalRecord(ctx, clinicID, id); err != nil {
		return fmt.Errorf("delete dental record: %w", err)
	}
	s.publish(ctx, realtime.TableDentalRecords, realtime.EventDelete, clinicID, id)
	return nil
}

// Odontogram resolves the patient's records into one status per tooth.
func (s *Service) Odontogram(ctx context.Context, clinicID, patientID uuid.UUID) (odontogram.Chart, error) {
	if _, err := s.repo.GetPatient(ctx, clinicID, patientID); err != nil {
		return odontogram.Chart{}, fmt.Errorf("load patient: %w", err)
	}
	records, err := s.repo.ListDentalRecords(ctx, clinicID, patientID)
	if err != nil {
		return odontogram.Chart{}, fmt.Errorf("list dental records: %w", err)
	}

	entries := make([]odontogram.Entry, len(records))
	for i, r := range records {
		entries[i] = r.Entry()
	}
	return odontogram.Build(entries), nil
}
