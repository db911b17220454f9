package clinic

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xclinic/dental-clinic/internal/realtime"
)

const (
	ReceiptBucket   = "receipts"
	MaxReceiptBytes = 10 << 20
)

type PaymentInput struct {
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	Amount        decimal.Decimal
	Currency      Currency
	Method        PaymentMethod
	PaymentDate   time.Time
	Notes         *string
}

func (in *PaymentInput) normalize(today time.Time) error {
	if in.PatientID == uuid.Nil {
		return invalid("patient_id", "is required")
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return invalid("amount", "has more than two decimals")
	}
	if in.Currency == "" {
		in.Currency = CurrencyNIO
	}
	if !in.Currency.Valid() {
		return invalid("currency", fmt.Sprintf("unknown value %q", in.Currency))
	}
	if !in.Method.Valid() {
		return invalid("payment_method", fmt.Sprintf("unknown value %q", in.Method))
	}
	if in.PaymentDate.IsZero() {
		in.PaymentDate = today
	}
	in.PaymentDate = DateOf(in.PaymentDate)
	if in.AppointmentID != nil && *in.AppointmentID == uuid.Nil {
		in.AppointmentID = nil
	}
	in.Notes = trimmed(in.Notes)
	return nil
}

func (s *Service) checkPaymentRefs(ctx context.Context, clinicID uuid.UUID, in PaymentInput) error {
	if _, err := s.repo.GetPatient(ctx, clinicID, in.PatientID); err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	if in.AppointmentID == nil {
		return nil
	}
	appt, err := s.repo.GetAppointment(ctx, clinicID, *in.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.PatientID != in.PatientID {
		return invalid("appointment_id", "belongs to another patient")
	}
	return nil
}

// ListPayments returns payments dated within r, newest first.
func (s *Service) ListPayments(ctx context.Context, clinicID uuid.UUID, r DateRange) ([]PaymentDetail, error) {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return nil, invalid("to", "is before from")
	}
	if r.To.IsZero() {
		r.To = s.Today()
	}
	if r.From.IsZero() {
		r.From = r.To.AddDate(0, -1, 0)
	}

	payments, err := s.repo.ListPaymentsBetween(ctx, clinicID, r)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

func (s *Service) ListPaymentsByPatient(ctx context.Context, clinicID, patientID uuid.UUID) ([]Payment, error) {
	payments, err := s.repo.ListPaymentsByPatient(ctx, clinicID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list payments by patient: %w", err)
	}
	return payments, nil
}

func (s *Service) GetPayment(ctx context.Context, clinicID, id uuid.UUID) (*PaymentDetail, error) {
	p, err := s.repo.GetPayment(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (s *Service) CreatePayment(ctx context.Context, clinicID uuid.UUID, in PaymentInput) (*Payment, error) {
	if err := in.normalize(s.Today()); err != nil {
		return nil, err
	}
	if err := s.checkPaymentRefs(ctx, clinicID, in); err != nil {
		return nil, err
	}

	created, err := s.repo.CreatePayment(ctx, Payment{
		ID:            uuid.New(),
		PatientID:     in.PatientID,
		ClinicID:      clinicID,
		AppointmentID: in.AppointmentID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Method:        in.Method,
		PaymentDate:   in.PaymentDate,
		Notes:         in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	s.publish(ctx, realtime.TablePayments, realtime.EventInsert, clinicID, created.ID)
	return created, nil
}

func (s *Service) UpdatePayment(ctx context.Context, clinicID, id uuid.UUID, in PaymentInput) (*Payment, error) {
	if err := in.normalize(s.Today()); err != nil {
		return nil, err
	}
	if err := s.checkPaymentRefs(ctx, clinicID, in); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePayment(ctx, Payment{
		ID:            id,
		PatientID:     in.PatientID,
		ClinicID:      clinicID,
		AppointmentID: in.AppointmentID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Method:        in.Method,
		PaymentDate:   in.PaymentDate,
		Notes:         in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	s.publish(ctx, realtime.TablePayments, realtime.EventUpdate, clinicID, id)
	return updated, nil
}

// AttachReceipt uploads a ready-made PDF receipt and links it to the payment.
func (s *Service) AttachReceipt(ctx context.Context, clinicID, id uuid.UUID, pdf []byte) (*Payment, error) {
	if len(pdf) == 0 {
		return nil, invalid("receipt", "is empty")
	}
	if len(pdf) > MaxReceiptBytes {
		return nil, ErrTooLarge
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: receipt is not a PDF", ErrUnsupportedMedia)
	}
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}

	if _, err := s.repo.GetPayment(ctx, clinicID, id); err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	path := fmt.Sprintf("receipts/%s.pdf", id)
	if err := s.store.Upload(ctx, ReceiptBucket, path, "application/pdf", bytes.NewReader(pdf)); err != nil {
		return nil, fmt.Errorf("upload receipt: %w", err)
	}

	updated, err := s.repo.SetPaymentReceipt(ctx, clinicID, id, s.store.PublicURL(ReceiptBucket, path))
	if err != nil {
		return nil, fmt.Errorf("save receipt url: %w", err)
	}
	s.publish(ctx, realtime.TablePayments, realtime.EventUpdate, clinicID, id)
	return updated, nil
}
