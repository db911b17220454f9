package clinic

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xclinic/dental-clinic/internal/odontogram"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCanceled  AppointmentStatus = "canceled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

type Currency string

const (
	CurrencyNIO Currency = "NIO"
	CurrencyUSD Currency = "USD"
)

func (c Currency) Valid() bool {
	return c == CurrencyNIO || c == CurrencyUSD
}

type PaymentMethod string

const (
	MethodCash       PaymentMethod = "cash"
	MethodCreditCard PaymentMethod = "credit_card"
	MethodDebitCard  PaymentMethod = "debit_card"
	MethodTransfer   PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCreditCard, MethodDebitCard, MethodTransfer:
		return true
	}
	return false
}

type Profile struct {
	ID       uuid.UUID
	Email    string
	FullName string
	Role     string
}

type Patient struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	FullName  string
	BirthDate *time.Time
	Gender    *Gender
	Phone     *string
	Address   *string
	Email     *string
	Notes     *string
	PhotoURL  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment.Date is a clinic wall-clock value; its location is the clinic
// zone and carries no stored offset.
type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	ClinicID  uuid.UUID
	Date      time.Time
	Duration  int
	Status    AppointmentStatus
	Reason    *string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentDetail is an appointment joined with the patient columns the
// list screens show.
type AppointmentDetail struct {
	Appointment
	PatientName  string
	PatientPhone *string
}

type Payment struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	ClinicID      uuid.UUID
	AppointmentID *uuid.UUID
	Amount        decimal.Decimal
	Currency      Currency
	Method        PaymentMethod
	PaymentDate   time.Time
	Notes         *string
	ReceiptURL    *string
	CreatedAt     time.Time
}

type PaymentDetail struct {
	Payment
	PatientName string
}

type DentalRecord struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ClinicID        uuid.UUID
	ToothNumber     int
	Condition       odontogram.Condition
	Notes           *string
	Images          []string
	TreatmentDate   time.Time
	NextAppointment *time.Time
	CreatedAt       time.Time
}

func (r DentalRecord) Entry() odontogram.Entry {
	e := odontogram.Entry{
		Tooth:         r.ToothNumber,
		Condition:     r.Condition,
		TreatmentDate: r.TreatmentDate,
	}
	if r.Notes != nil {
		e.Notes = *r.Notes
	}
	return e
}

// DateRange is inclusive on both ends.
type DateRange struct {
	From time.Time
	To   time.Time
}
