package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const appointmentColumns = `a.id, a.patient_id, a.clinic_id, to_char(a.date, ` + wallClockSQL + `),
	a.duration, a.status, a.reason, a.notes, a.created_at, a.updated_at`

func (r *PgRepository) scanAppointment(row pgx.Row, extra ...any) (*Appointment, error) {
	var a Appointment
	var date, status string

	dest := append([]any{
		&a.ID,
		&a.PatientID,
		&a.ClinicID,
		&date,
		&a.Duration,
		&status,
		&a.Reason,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	t, err := r.parseWallClock(date)
	if err != nil {
		return nil, err
	}
	a.Date = t
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func (r *PgRepository) scanAppointmentRow(row pgx.Row) (*Appointment, error) {
	return r.scanAppointment(row)
}

func (r *PgRepository) scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	a, err := r.scanAppointment(row, &d.PatientName, &d.PatientPhone)
	if err != nil {
		return nil, err
	}
	d.Appointment = *a
	return &d, nil
}

func (r *PgRepository) ListAppointmentsBetween(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`, p.full_name, p.phone
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.clinic_id = $1
		  AND a.date >= $2::timestamp AND a.date <= $3::timestamp
		ORDER BY a.date
	`, clinicID, from.Format(wallClockLayout), to.Format(wallClockLayout))
	if err != nil {
		return nil, err
	}
	return collect(rows, r.scanAppointmentDetail)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, clinicID, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1 AND a.patient_id = $2
		ORDER BY a.date DESC
	`, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	return collect(rows, r.scanAppointmentRow)
}

func (r *PgRepository) FindAppointmentsAt(ctx context.Context, clinicID uuid.UUID, at time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1 AND a.date = $2::timestamp
	`, clinicID, FormatWallClock(at))
	if err != nil {
		return nil, err
	}
	return collect(rows, r.scanAppointmentRow)
}

func (r *PgRepository) CountAppointmentsFrom(ctx context.Context, clinicID uuid.UUID, from time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE clinic_id = $1 AND date >= $2::timestamp
	`, clinicID, from.Format(wallClockLayout)).Scan(&n)
	return n, err
}

func (r *PgRepository) GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`, p.full_name, p.phone
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.clinic_id = $1 AND a.id = $2
	`, clinicID, id)
	return r.scanAppointmentDetail(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		WITH a AS (
			INSERT INTO appointments (id, patient_id, clinic_id, date, duration, status, reason, notes)
			VALUES ($1, $2, $3, $4::timestamp, $5, $6, $7, $8)
			RETURNING *
		)
		SELECT `+appointmentColumns+` FROM a
	`, a.ID, a.PatientID, a.ClinicID, FormatWallClock(a.Date), a.Duration, string(a.Status), a.Reason, a.Notes)
	return r.scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		WITH a AS (
			UPDATE appointments
			SET patient_id = $3, date = $4::timestamp, duration = $5, status = $6,
			    reason = $7, notes = $8, updated_at = now()
			WHERE clinic_id = $1 AND id = $2
			RETURNING *
		)
		SELECT `+appointmentColumns+` FROM a
	`, a.ClinicID, a.ID, a.PatientID, FormatWallClock(a.Date), a.Duration, string(a.Status), a.Reason, a.Notes)
	return r.scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, clinicID, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		WITH a AS (
			UPDATE appointments
			SET status = $3, updated_at = now()
			WHERE clinic_id = $1 AND id = $2
			RETURNING *
		)
		SELECT `+appointmentColumns+` FROM a
	`, clinicID, id, string(status))
	return r.scanAppointment(row)
}
