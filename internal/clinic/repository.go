package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrDentalRecordNotFound = errors.New("dental record not found")
)

// Repository is every query the clinic screens need. Each method that touches
// a clinic table takes the clinic id and filters on it.
type Repository interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)

	// Patients
	ListPatients(ctx context.Context, clinicID uuid.UUID) ([]Patient, error)
	SearchPatients(ctx context.Context, clinicID uuid.UUID, query string) ([]Patient, error)
	GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error)
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)
	UpdatePatient(ctx context.Context, p Patient) (*Patient, error)
	SetPatientPhoto(ctx context.Context, clinicID, id uuid.UUID, photoURL string) (*Patient, error)
	CountPatients(ctx context.Context, clinicID uuid.UUID) (int, error)
	PatientCreationTimes(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]time.Time, error)

	// Appointments. Bounds are clinic wall-clock values.
	ListAppointmentsBetween(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, clinicID, patientID uuid.UUID) ([]Appointment, error)
	FindAppointmentsAt(ctx context.Context, clinicID uuid.UUID, at time.Time) ([]Appointment, error)
	CountAppointmentsFrom(ctx context.Context, clinicID uuid.UUID, from time.Time) (int, error)
	GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error)
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, clinicID, id uuid.UUID, status AppointmentStatus) (*Appointment, error)

	// Payments. Bounds are calendar dates, inclusive.
	ListPaymentsBetween(ctx context.Context, clinicID uuid.UUID, r DateRange) ([]PaymentDetail, error)
	ListPaymentsByPatient(ctx context.Context, clinicID, patientID uuid.UUID) ([]Payment, error)
	GetPayment(ctx context.Context, clinicID, id uuid.UUID) (*PaymentDetail, error)
	CreatePayment(ctx context.Context, p Payment) (*Payment, error)
	UpdatePayment(ctx context.Context, p Payment) (*Payment, error)
	SetPaymentReceipt(ctx context.Context, clinicID, id uuid.UUID, receiptURL string) (*Payment, error)

	// Dental records
	ListDentalRecords(ctx context.Context, clinicID, patientID uuid.UUID) ([]DentalRecord, error)
	ListToothRecords(ctx context.Context, clinicID, patientID uuid.UUID, tooth int) ([]DentalRecord, error)
	GetDentalRecord(ctx context.Context, clinicID, id uuid.UUID) (*DentalRecord, error)
	CreateDentalRecords(ctx context.Context, records []DentalRecord) ([]DentalRecord, error)
	UpdateDentalRecord(ctx context.Context, r DentalRecord) (*DentalRecord, error)
	DeleteDentalRecord(ctx context.Context, clinicID, id uuid.UUID) error
}
