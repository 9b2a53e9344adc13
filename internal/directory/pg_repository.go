package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/hospital-scheduling/internal/db"
)

type PgRepository struct {
	db db.Conn
}

func NewPgRepository(conn db.Conn) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Address,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.IsActive,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

// Interface methods

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, address, created_at, updated_at
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, is_active, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListClinics(ctx context.Context, ids []uuid.UUID) ([]Clinic, error) {
	if len(ids) == 0 {
		return []Clinic{}, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name, address, created_at, updated_at
		FROM clinics
		WHERE id = ANY($1)
		ORDER BY name, id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	defer rows.Close()

	result := []Clinic{}
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListDoctors(ctx context.Context, ids []uuid.UUID, activeOnly bool) ([]Doctor, error) {
	if len(ids) == 0 {
		return []Doctor{}, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name, specialty, is_active, created_at, updated_at
		FROM doctors
		WHERE id = ANY($1)
		  AND (is_active OR NOT $2)
		ORDER BY name, id
	`, ids, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	result := []Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE doctors
		SET is_active = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, name, specialty, is_active, created_at, updated_at
	`, id, active)
	return scanDoctor(row)
}
