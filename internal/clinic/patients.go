package clinic

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xclinic/dental-clinic/internal/config"
	"github.com/xclinic/dental-clinic/internal/realtime"
	"github.com/xclinic/dental-clinic/internal/storage"
)

const (
	PhotoBucket   = "patient-photos"
	MaxPhotoBytes = 5 << 20
)

var photoExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

type PatientInput struct {
	FullName  string
	BirthDate *time.Time
	Gender    *Gender
	Phone     *string
	Address   *string
	Email     *string
	Notes     *string
}

func (in PatientInput) validate() error {
	if strings.TrimSpace(in.FullName) == "" {
		return invalid("full_name", "is required")
	}
	if in.Gender != nil && !in.Gender.Valid() {
		return invalid("gender", fmt.Sprintf("unknown value %q", *in.Gender))
	}
	if in.Email != nil && *in.Email != "" && !strings.Contains(*in.Email, "@") {
		return invalid("email", "is not an email address")
	}
	return nil
}

func (in PatientInput) apply(p *Patient) {
	p.FullName = strings.TrimSpace(in.FullName)
	p.BirthDate = optionalDate(in.BirthDate)
	p.Gender = in.Gender
	p.Phone = trimmed(in.Phone)
	p.Address = trimmed(in.Address)
	p.Email = trimmed(in.Email)
	p.Notes = trimmed(in.Notes)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) ListPatients(ctx context.Context, clinicID uuid.UUID) ([]Patient, error) {
	patients, err := s.repo.ListPatients(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// SearchPatients matches name or phone. An empty query lists everyone.
func (s *Service) SearchPatients(ctx context.Context, clinicID uuid.UUID, query string) ([]Patient, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return s.ListPatients(ctx, clinicID)
	}
	patients, err := s.repo.SearchPatients(ctx, clinicID, q)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	return patients, nil
}

func (s *Service) GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatient(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (s *Service) CreatePatient(ctx context.Context, clinicID uuid.UUID, in PatientInput) (*Patient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := Patient{ID: uuid.New(), ClinicID: clinicID}
	in.apply(&p)

	created, err := s.repo.CreatePatient(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	s.publish(ctx, realtime.TablePatients, realtime.EventInsert, clinicID, created.ID)
	return created, nil
}

func (s *Service) UpdatePatient(ctx context.Context, clinicID, id uuid.UUID, in PatientInput) (*Patient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetPatient(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	in.apply(existing)

	updated, err := s.repo.UpdatePatient(ctx, *existing)
	if err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	s.publish(ctx, realtime.TablePatients, realtime.EventUpdate, clinicID, id)
	return updated, nil
}

// UploadPatientPhoto stores the image according to the photo mode and records
// its URL on the patient.
func (s *Service) UploadPatientPhoto(ctx context.Context, clinicID, id uuid.UUID, contentType string, data []byte) (*Patient, error) {
	ext, ok := photoExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMedia, contentType)
	}
	if len(data) == 0 {
		return nil, invalid("photo", "is empty")
	}
	if len(data) > MaxPhotoBytes {
		return nil, ErrTooLarge
	}

	if _, err := s.repo.GetPatient(ctx, clinicID, id); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var url string
	switch s.cfg.PhotoMode {
	case config.PhotoModeInline:
		url = storage.DataURL(contentType, data)
	default:
		if s.store == nil {
			return nil, ErrStoreUnavailable
		}
		path := fmt.Sprintf("patient_photos/%s.%s", id, ext)
		if err := s.store.Upload(ctx, PhotoBucket, path, contentType, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("upload photo: %w", err)
		}
		url = s.store.PublicURL(PhotoBucket, path)
	}

	updated, err := s.repo.SetPatientPhoto(ctx, clinicID, id, url)
	if err != nil {
		return nil, fmt.Errorf("save photo url: %w", err)
	}
	s.publish(ctx, realtime.TablePatients, realtime.EventUpdate, clinicID, id)
	return updated, nil
}
