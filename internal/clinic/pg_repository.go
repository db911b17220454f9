package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// wallClockSQL renders a timestamp column the way FormatWallClock writes it,
// so the driver never applies a zone conversion.
const wallClockSQL = `'YYYY-MM-DD"T"HH24:MI:SS'`

type PgRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPgRepository reads appointment wall-clock values into loc.
func NewPgRepository(pool *pgxpool.Pool, loc *time.Location) *PgRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PgRepository{pool: pool, loc: loc}
}

func (r *PgRepository) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, full_name, role
		FROM profiles
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Email, &p.FullName, &p.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) parseWallClock(s string) (time.Time, error) {
	t, err := ParseWallClock(s, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored wall clock: %w", err)
	}
	return t, nil
}

func optionalWallClock(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatWallClock(*t)
	return &s
}

func optionalDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := DateOf(*t)
	return &d
}

// collect drains rows through scan, the pgx.Row form used by the single-row
// getters.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
