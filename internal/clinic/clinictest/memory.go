// Package clinictest holds an in-memory clinic.Repository for tests.
package clinictest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xclinic/dental-clinic/internal/clinic"
)

// Memory is a clinic.Repository backed by maps. It applies the same clinic
// filtering and ordering as the Postgres repository.
type Memory struct {
	mu           sync.Mutex
	profiles     map[uuid.UUID]clinic.Profile
	patients     map[uuid.UUID]clinic.Patient
	appointments map[uuid.UUID]clinic.Appointment
	payments     map[uuid.UUID]clinic.Payment
	records      map[uuid.UUID]clinic.DentalRecord
	now          func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

func NewMemory() *Memory {
	return &Memory{
		profiles:     make(map[uuid.UUID]clinic.Profile),
		patients:     make(map[uuid.UUID]clinic.Patient),
		appointments: make(map[uuid.UUID]clinic.Appointment),
		payments:     make(map[uuid.UUID]clinic.Payment),
		records:      make(map[uuid.UUID]clinic.DentalRecord),
		now:          time.Now,
	}
}

var _ clinic.Repository = (*Memory)(nil)

// AddProfile registers a clinic account.
func (m *Memory) AddProfile(p clinic.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

// AddPatient stores p as-is, keeping its CreatedAt when set.
func (m *Memory) AddPatient(p clinic.Patient) clinic.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return p
}

func (m *Memory) AddAppointment(a clinic.Appointment) clinic.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.appointments[a.ID] = a
	return a
}

func (m *Memory) AddPayment(p clinic.Payment) clinic.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.payments[p.ID] = p
	return p
}

func (m *Memory) AddDentalRecord(r clinic.DentalRecord) clinic.DentalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.records[r.ID] = r
	return r
}

// Appointments returns every stored appointment of clinicID, earliest first.
func (m *Memory) Appointments(clinicID uuid.UUID) []clinic.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []clinic.Appointment
	for _, a := range m.appointments {
		if a.ClinicID == clinicID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (m *Memory) GetProfile(_ context.Context, id uuid.UUID) (*clinic.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, clinic.ErrProfileNotFound
	}
	return &p, nil
}

func (m *Memory) filterPatients(clinicID uuid.UUID, keep func(clinic.Patient) bool) []clinic.Patient {
	var out []clinic.Patient
	for _, p := range m.patients {
		if p.ClinicID == clinicID && keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

func (m *Memory) ListPatients(_ context.Context, clinicID uuid.UUID) ([]clinic.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.filterPatients(clinicID, func(clinic.Patient) bool { return true }), nil
}

func (m *Memory) SearchPatients(_ context.Context, clinicID uuid.UUID, query string) ([]clinic.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	q := strings.ToLower(query)
	return m.filterPatients(clinicID, func(p clinic.Patient) bool {
		if strings.Contains(strings.ToLower(p.FullName), q) {
			return true
		}
		return p.Phone != nil && strings.Contains(strings.ToLower(*p.Phone), q)
	}), nil
}

func (m *Memory) GetPatient(_ context.Context, clinicID, id uuid.UUID) (*clinic.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.patients[id]
	if !ok || p.ClinicID != clinicID {
		return nil, clinic.ErrPatientNotFound
	}
	return &p, nil
}

func (m *Memory) CreatePatient(_ context.Context, p clinic.Patient) (*clinic.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return &p, nil
}

func (m *Memory) UpdatePatient(_ context.Context, p clinic.Patient) (*clinic.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	old, ok := m.patients[p.ID]
	if !ok || old.ClinicID != p.ClinicID {
		return nil, clinic.ErrPatientNotFound
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = m.now()
	m.patients[p.ID] = p
	return &p, nil
}

func (m *Memory) SetPatientPhoto(_ context.Context, clinicID, id uuid.UUID, photoURL string) (*clinic.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.patients[id]
	if !ok || p.ClinicID != clinicID {
		return nil, clinic.ErrPatientNotFound
	}
	p.PhotoURL = &photoURL
	p.UpdatedAt = m.now()
	m.patients[id] = p
	return &p, nil
}

func (m *Memory) CountPatients(_ context.Context, clinicID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return len(m.filterPatients(clinicID, func(clinic.Patient) bool { return true })), nil
}

func (m *Memory) PatientCreationTimes(_ context.Context, clinicID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []time.Time
	for _, p := range m.patients {
		if p.ClinicID == clinicID && !p.CreatedAt.Before(from) && !p.CreatedAt.After(to) {
			out = append(out, p.CreatedAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}
