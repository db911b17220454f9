package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const patientColumns = `id, clinic_id, full_name, birth_date, gender, phone, address, email, notes, photo_url, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var gender *string

	err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.FullName,
		&p.BirthDate,
		&gender,
		&p.Phone,
		&p.Address,
		&p.Email,
		&p.Notes,
		&p.PhotoURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	if gender != nil {
		g := Gender(*gender)
		p.Gender = &g
	}
	return &p, nil
}

func genderArg(g *Gender) *string {
	if g == nil {
		return nil
	}
	s := string(*g)
	return &s
}

func (r *PgRepository) ListPatients(ctx context.Context, clinicID uuid.UUID) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE clinic_id = $1
		ORDER BY full_name
	`, clinicID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPatient)
}

func (r *PgRepository) SearchPatients(ctx context.Context, clinicID uuid.UUID, query string) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE clinic_id = $1
		  AND (full_name ILIKE '%' || $2 || '%' OR phone ILIKE '%' || $2 || '%')
		ORDER BY full_name
	`, clinicID, query)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPatient)
}

func (r *PgRepository) GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, clinic_id, full_name, birth_date, gender, phone, address, email, notes, photo_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+patientColumns,
		p.ID, p.ClinicID, p.FullName, optionalDate(p.BirthDate), genderArg(p.Gender),
		p.Phone, p.Address, p.Email, p.Notes, p.PhotoURL,
	)
	return scanPatient(row)
}

func (r *PgRepository) UpdatePatient(ctx context.Context, p Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET full_name = $3, birth_date = $4, gender = $5, phone = $6, address = $7,
		    email = $8, notes = $9, photo_url = $10, updated_at = now()
		WHERE clinic_id = $1 AND id = $2
		RETURNING `+patientColumns,
		p.ClinicID, p.ID, p.FullName, optionalDate(p.BirthDate), genderArg(p.Gender),
		p.Phone, p.Address, p.Email, p.Notes, p.PhotoURL,
	)
	return scanPatient(row)
}

func (r *PgRepository) SetPatientPhoto(ctx context.Context, clinicID, id uuid.UUID, photoURL string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET photo_url = $3, updated_at = now()
		WHERE clinic_id = $1 AND id = $2
		RETURNING `+patientColumns,
		clinicID, id, photoURL,
	)
	return scanPatient(row)
}

func (r *PgRepository) CountPatients(ctx context.Context, clinicID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM patients WHERE clinic_id = $1`, clinicID).Scan(&n)
	return n, err
}

func (r *PgRepository) PatientCreationTimes(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT created_at
		FROM patients
		WHERE clinic_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at
	`, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}
