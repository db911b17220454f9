package clinictest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/xclinic/dental-clinic/internal/clinic"
)

// wall compares timestamps the way a timestamp-without-time-zone column does.
func wall(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000")
}

func (m *Memory) detail(a clinic.Appointment) clinic.AppointmentDetail {
	d := clinic.AppointmentDetail{Appointment: a}
	if p, ok := m.patients[a.PatientID]; ok {
		d.PatientName = p.FullName
		d.PatientPhone = p.Phone
	}
	return d
}

func (m *Memory) ListAppointmentsBetween(_ context.Context, clinicID uuid.UUID, from, to time.Time) ([]clinic.AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	lo, hi := wall(from), wall(to)
	var out []clinic.AppointmentDetail
	for _, a := range m.appointments {
		w := wall(a.Date)
		if a.ClinicID == clinicID && w >= lo && w <= hi {
			out = append(out, m.detail(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return wall(out[i].Date) < wall(out[j].Date) })
	return out, nil
}

func (m *Memory) ListAppointmentsByPatient(_ context.Context, clinicID, patientID uuid.UUID) ([]clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []clinic.Appointment
	for _, a := range m.appointments {
		if a.ClinicID == clinicID && a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return wall(out[i].Date) > wall(out[j].Date) })
	return out, nil
}

func (m *Memory) FindAppointmentsAt(_ context.Context, clinicID uuid.UUID, at time.Time) ([]clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	key := clinic.FormatWallClock(at)
	var out []clinic.Appointment
	for _, a := range m.appointments {
		if a.ClinicID == clinicID && clinic.FormatWallClock(a.Date) == key {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) CountAppointmentsFrom(_ context.Context, clinicID uuid.UUID, from time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	lo := wall(from)
	n := 0
	for _, a := range m.appointments {
		if a.ClinicID == clinicID && wall(a.Date) >= lo {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetAppointment(_ context.Context, clinicID, id uuid.UUID) (*clinic.AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	a, ok := m.appointments[id]
	if !ok || a.ClinicID != clinicID {
		return nil, clinic.ErrAppointmentNotFound
	}
	d := m.detail(a)
	return &d, nil
}

func (m *Memory) CreateAppointment(_ context.Context, a clinic.Appointment) (*clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	a.CreatedAt = m.now()
	a.UpdatedAt = a.CreatedAt
	m.appointments[a.ID] = a
	return &a, nil
}

func (m *Memory) UpdateAppointment(_ context.Context, a clinic.Appointment) (*clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	old, ok := m.appointments[a.ID]
	if !ok || old.ClinicID != a.ClinicID {
		return nil, clinic.ErrAppointmentNotFound
	}
	a.CreatedAt = old.CreatedAt
	a.UpdatedAt = m.now()
	m.appointments[a.ID] = a
	return &a, nil
}

func (m *Memory) UpdateAppointmentStatus(_ context.Context, clinicID, id uuid.UUID, status clinic.AppointmentStatus) (*clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	a, ok := m.appointments[id]
	if !ok || a.ClinicID != clinicID {
		return nil, clinic.ErrAppointmentNotFound
	}
	a.Status = status
	a.UpdatedAt = m.now()
	m.appointments[id] = a
	return &a, nil
}

func (m *Memory) paymentDetail(p clinic.Payment) clinic.PaymentDetail {
	d := clinic.PaymentDetail{Payment: p}
	if pt, ok := m.patients[p.PatientID]; ok {
		d.PatientName = pt.FullName
	}
	return d
}

func newestPaymentFirst(a, b clinic.Payment) bool {
	if !a.PaymentDate.Equal(b.PaymentDate) {
		return a.PaymentDate.After(b.PaymentDate)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (m *Memory) ListPaymentsBetween(_ context.Context, clinicID uuid.UUID, r clinic.DateRange) ([]clinic.PaymentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	lo, hi := clinic.FormatDate(r.From), clinic.FormatDate(r.To)
	var out []clinic.PaymentDetail
	for _, p := range m.payments {
		d := clinic.FormatDate(p.PaymentDate)
		if p.ClinicID == clinicID && d >= lo && d <= hi {
			out = append(out, m.paymentDetail(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return newestPaymentFirst(out[i].Payment, out[j].Payment) })
	return out, nil
}

func (m *Memory) ListPaymentsByPatient(_ context.Context, clinicID, patientID uuid.UUID) ([]clinic.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []clinic.Payment
	for _, p := range m.payments {
		if p.ClinicID == clinicID && p.PatientID == patientID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newestPaymentFirst(out[i], out[j]) })
	return out, nil
}

func (m *Memory) GetPayment(_ context.Context, clinicID, id uuid.UUID) (*clinic.PaymentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.payments[id]
	if !ok || p.ClinicID != clinicID {
		return nil, clinic.ErrPaymentNotFound
	}
	d := m.paymentDetail(p)
	return &d, nil
}

func (m *Memory) CreatePayment(_ context.Context, p clinic.Payment) (*clinic.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p.CreatedAt = m.now()
	m.payments[p.ID] = p
	return &p, nil
}

func (m *Memory) UpdatePayment(_ context.Context, p clinic.Payment) (*clinic.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	old, ok := m.payments[p.ID]
	if !ok || old.ClinicID != p.ClinicID {
		return nil, clinic.ErrPaymentNotFound
	}
	p.CreatedAt = old.CreatedAt
	p.ReceiptURL = old.ReceiptURL
	m.payments[p.ID] = p
	return &p, nil
}

func (m *Memory) SetPaymentReceipt(_ context.Context, clinicID, id uuid.UUID, receiptURL string) (*clinic.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.payments[id]
	if !ok || p.ClinicID != clinicID {
		return nil, clinic.ErrPaymentNotFound
	}
	p.ReceiptURL = &receiptURL
	m.payments[id] = p
	return &p, nil
}

func (m *Memory) listRecords(clinicID, patientID uuid.UUID, keep func(clinic.DentalRecord) bool) []clinic.DentalRecord {
	var out []clinic.DentalRecord
	for _, r := range m.records {
		if r.ClinicID == clinicID && r.PatientID == patientID && keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TreatmentDate.Equal(out[j].TreatmentDate) {
			return out[i].TreatmentDate.After(out[j].TreatmentDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Memory) ListDentalRecords(_ context.Context, clinicID, patientID uuid.UUID) ([]clinic.DentalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.listRecords(clinicID, patientID, func(clinic.DentalRecord) bool { return true }), nil
}

func (m *Memory) ListToothRecords(_ context.Context, clinicID, patientID uuid.UUID, tooth int) ([]clinic.DentalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.listRecords(clinicID, patientID, func(r clinic.DentalRecord) bool { return r.ToothNumber == tooth }), nil
}

func (m *Memory) GetDentalRecord(_ context.Context, clinicID, id uuid.UUID) (*clinic.DentalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.records[id]
	if !ok || r.ClinicID != clinicID {
		return nil, clinic.ErrDentalRecordNotFound
	}
	return &r, nil
}

func (m *Memory) CreateDentalRecords(_ context.Context, records []clinic.DentalRecord) ([]clinic.DentalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	now := m.now()
	out := make([]clinic.DentalRecord, len(records))
	for i, r := range records {
		r.CreatedAt = now
		m.records[r.ID] = r
		out[i] = r
	}
	return out, nil
}

func (m *Memory) UpdateDentalRecord(_ context.Context, r clinic.DentalRecord) (*clinic.DentalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	old, ok := m.records[r.ID]
	if !ok || old.ClinicID != r.ClinicID {
		return nil, clinic.ErrDentalRecordNotFound
	}
	r.CreatedAt = old.CreatedAt
	m.records[r.ID] = r
	return &r, nil
}

func (m *Memory) DeleteDentalRecord(_ context.Context, clinicID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	r, ok := m.records[id]
	if !ok || r.ClinicID != clinicID {
		return clinic.ErrDentalRecordNotFound
	}
	delete(m.records, id)
	return nil
}
