package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xclinic/dental-clinic/internal/odontogram"
)

const dentalRecordColumns = `d.id, d.patient_id, d.clinic_id, d.tooth_number, d.condition, d.notes, d.images,
	d.treatment_date, to_char(d.next_appointment, ` + wallClockSQL + `), d.created_at`

func (r *PgRepository) scanDentalRecord(row pgx.Row) (*DentalRecord, error) {
	var d DentalRecord
	var condition string
	var next *string

	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.ClinicID,
		&d.ToothNumber,
		&condition,
		&d.Notes,
		&d.Images,
		&d.TreatmentDate,
		&next,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDentalRecordNotFound
		}
		return nil, err
	}

	d.Condition = odontogram.Condition(condition)
	if next != nil {
		t, err := r.parseWallClock(*next)
		if err != nil {
			return nil, err
		}
		d.NextAppointment = &t
	}
	return &d, nil
}

func imagesArg(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}

func (r *PgRepository) ListDentalRecords(ctx context.Context, clinicID, patientID uuid.UUID) ([]DentalRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+dentalRecordColumns+`
		FROM dental_records d
		WHERE d.clinic_id = $1 AND d.patient_id = $2
		ORDER BY d.treatment_date DESC, d.created_at DESC
	`, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	return collect(rows, r.scanDentalRecord)
}

func (r *PgRepository) ListToothRecords(ctx context.Context, clinicID, patientID uuid.UUID, tooth int) ([]DentalRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+dentalRecordColumns+`
		FROM dental_records d
		WHERE d.clinic_id = $1 AND d.patient_id = $2 AND d.tooth_number = $3
		ORDER BY d.treatment_date DESC, d.created_at DESC
	`, clinicID, patientID, tooth)
	if err != nil {
		return nil, err
	}
	return collect(rows, r.scanDentalRecord)
}

func (r *PgRepository) GetDentalRecord(ctx context.Context, clinicID, id uuid.UUID) (*DentalRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+dentalRecordColumns+`
		FROM dental_records d
		WHERE d.clinic_id = $1 AND d.id = $2
	`, clinicID, id)
	return r.scanDentalRecord(row)
}

const insertDentalRecordSQL = `
	WITH d AS (
		INSERT INTO dental_records (id, patient_id, clinic_id, tooth_number, condition, notes, images,
		                            treatment_date, next_appointment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9::timestamp)
		RETURNING *
	)
	SELECT ` + dentalRecordColumns + ` FROM d`

// CreateDentalRecords inserts all records in one transaction.
func (r *PgRepository) CreateDentalRecords(ctx context.Context, records []DentalRecord) ([]DentalRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]DentalRecord, 0, len(records))
	for _, d := range records {
		row := tx.QueryRow(ctx, insertDentalRecordSQL,
			d.ID, d.PatientID, d.ClinicID, d.ToothNumber, string(d.Condition), d.Notes,
			imagesArg(d.Images), FormatDate(d.TreatmentDate), optionalWallClock(d.NextAppointment),
		)
		created, err := r.scanDentalRecord(row)
		if err != nil {
			return nil, fmt.Errorf("insert tooth %d: %w", d.ToothNumber, err)
		}
		out = append(out, *created)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (r *PgRepository) UpdateDentalRecord(ctx context.Context, d DentalRecord) (*DentalRecord, error) {
	row := r.pool.QueryRow(ctx, `
		WITH d AS (
			UPDATE dental_records
			SET tooth_number = $3, condition = $4, notes = $5, images = $6,
			    treatment_date = $7::date, next_appointment = $8::timestamp
			WHERE clinic_id = $1 AND id = $2
			RETURNING *
		)
		SELECT `+dentalRecordColumns+` FROM d
	`, d.ClinicID, d.ID, d.ToothNumber, string(d.Condition), d.Notes, imagesArg(d.Images),
		FormatDate(d.TreatmentDate), optionalWallClock(d.NextAppointment))
	return r.scanDentalRecord(row)
}

func (r *PgRepository) DeleteDentalRecord(ctx context.Context, clinicID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM dental_records
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDentalRecordNotFound
	}
	return nil
}
