package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// amount travels as text both ways so no float conversion touches it.
const paymentColumns = `y.id, y.patient_id, y.clinic_id, y.appointment_id, y.amount::text, y.currency,
	y.payment_method, y.payment_date, y.notes, y.receipt_url, y.created_at`

func scanPaymentInto(row pgx.Row, extra ...any) (*Payment, error) {
	var p Payment
	var amount, currency, method string

	dest := append([]any{
		&p.ID,
		&p.PatientID,
		&p.ClinicID,
		&p.AppointmentID,
		&amount,
		&currency,
		&method,
		&p.PaymentDate,
		&p.Notes,
		&p.ReceiptURL,
		&p.CreatedAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q: %w", amount, err)
	}
	p.Amount = d
	p.Currency = Currency(currency)
	p.Method = PaymentMethod(method)
	return &p, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	return scanPaymentInto(row)
}

func scanPaymentDetail(row pgx.Row) (*PaymentDetail, error) {
	var d PaymentDetail
	p, err := scanPaymentInto(row, &d.PatientName)
	if err != nil {
		return nil, err
	}
	d.Payment = *p
	return &d, nil
}

func (r *PgRepository) ListPaymentsBetween(ctx context.Context, clinicID uuid.UUID, dr DateRange) ([]PaymentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`, p.full_name
		FROM payments y
		JOIN patients p ON p.id = y.patient_id
		WHERE y.clinic_id = $1
		  AND y.payment_date >= $2::date AND y.payment_date <= $3::date
		ORDER BY y.payment_date DESC, y.created_at DESC
	`, clinicID, FormatDate(dr.From), FormatDate(dr.To))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPaymentDetail)
}

func (r *PgRepository) ListPaymentsByPatient(ctx context.Context, clinicID, patientID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments y
		WHERE y.clinic_id = $1 AND y.patient_id = $2
		ORDER BY y.payment_date DESC, y.created_at DESC
	`, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

func (r *PgRepository) GetPayment(ctx context.Context, clinicID, id uuid.UUID) (*PaymentDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`, p.full_name
		FROM payments y
		JOIN patients p ON p.id = y.patient_id
		WHERE y.clinic_id = $1 AND y.id = $2
	`, clinicID, id)
	return scanPaymentDetail(row)
}

func (r *PgRepository) CreatePayment(ctx context.Context, p Payment) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		WITH y AS (
			INSERT INTO payments (id, patient_id, clinic_id, appointment_id, amount, currency,
			                      payment_method, payment_date, notes, receipt_url)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::date, $9, $10)
			RETURNING *
		)
		SELECT `+paymentColumns+` FROM y
	`, p.ID, p.PatientID, p.ClinicID, p.AppointmentID, p.Amount.String(), string(p.Currency),
		string(p.Method), FormatDate(p.PaymentDate), p.Notes, p.ReceiptURL)
	return scanPayment(row)
}

func (r *PgRepository) UpdatePayment(ctx context.Context, p Payment) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		WITH y AS (
			UPDATE payments
			SET patient_id = $3, appointment_id = $4, amount = $5::numeric, currency = $6,
			    payment_method = $7, payment_date = $8::date, notes = $9
			WHERE clinic_id = $1 AND id = $2
			RETURNING *
		)
		SELECT `+paymentColumns+` FROM y
	`, p.ClinicID, p.ID, p.PatientID, p.AppointmentID, p.Amount.String(), string(p.Currency),
		string(p.Method), FormatDate(p.PaymentDate), p.Notes)
	return scanPayment(row)
}

func (r *PgRepository) SetPaymentReceipt(ctx context.Context, clinicID, id uuid.UUID, receiptURL string) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		WITH y AS (
			UPDATE payments
			SET receipt_url = $3
			WHERE clinic_id = $1 AND id = $2
			RETURNING *
		)
		SELECT `+paymentColumns+` FROM y
	`, clinicID, id, receiptURL)
	return scanPayment(row)
}
