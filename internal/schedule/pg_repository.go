package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/hospital-scheduling/internal/db"
)

const scheduleColumns = `id, doctor_id, clinic_id, date, start_time, end_time, slot_duration,
	appointment_type, is_active, last_modified_by, created_at, updated_at`

type PgRepository struct {
	db db.Conn
}

func NewPgRepository(conn db.Conn) *PgRepository {
	return &PgRepository{db: conn}
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.ClinicID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.SlotDuration,
		&s.AppointmentType,
		&s.IsActive,
		&s.LastModifiedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	return &s, nil
}

// LockForUpdate loads a schedule and takes its row lock for the rest of the
// transaction q belongs to.
func LockForUpdate(ctx context.Context, q db.Querier, id uuid.UUID) (*Schedule, error) {
	row := q.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSchedule(row)
}

// QueryBookedSlots returns the pending and confirmed slots per schedule id.
func QueryBookedSlots(ctx context.Context, q db.Querier, scheduleIDs []uuid.UUID) (map[uuid.UUID][]Slot, error) {
	booked := make(map[uuid.UUID][]Slot, len(scheduleIDs))
	if len(scheduleIDs) == 0 {
		return booked, nil
	}

	rows, err := q.Query(ctx, `
		SELECT schedule_id, start_time, end_time
		FROM appointments
		WHERE schedule_id = ANY($1)
		  AND status IN ('pending', 'confirmed')
	`, scheduleIDs)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   uuid.UUID
			slot Slot
		)
		if err := rows.Scan(&id, &slot.Start, &slot.End); err != nil {
			return nil, err
		}
		booked[id] = append(booked[id], slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return booked, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE id = $1
	`, id)
	return scanSchedule(row)
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Schedule, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.IncludeInactive {
		where = append(where, "is_active")
	}
	if f.DoctorID != nil {
		where = append(where, "doctor_id = "+arg(*f.DoctorID))
	}
	if f.ClinicID != nil {
		where = append(where, "clinic_id = "+arg(*f.ClinicID))
	}
	if f.AppointmentType != "" {
		where = append(where, "appointment_type = "+arg(string(f.AppointmentType)))
	}
	if f.Date != nil {
		where = append(where, "date = "+arg(*f.Date))
	}
	if f.EndingAfter != nil {
		d := arg(f.EndingAfter.Date)
		t := arg(f.EndingAfter.Time)
		where = append(where, fmt.Sprintf("(date > %s OR (date = %s AND end_time > %s))", d, d, t))
	}

	q := "SELECT " + scheduleColumns + " FROM schedules"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date, start_time, id"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var result []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) BookedSlots(ctx context.Context, scheduleIDs []uuid.UUID) (map[uuid.UUID][]Slot, error) {
	return QueryBookedSlots(ctx, r.db, scheduleIDs)
}

func (r *PgRepository) CreateMany(ctx context.Context, doctorID uuid.UUID, schedules []Schedule, skipOverlaps bool) ([]Schedule, []Schedule, error) {
	var created, skipped []Schedule

	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		// Serializes schedule writes per doctor so the overlap check below
		// cannot race with another insert.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, doctorID.String()); err != nil {
			return fmt.Errorf("lock doctor schedules: %w", err)
		}

		for _, s := range schedules {
			var overlap bool
			err := tx.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM schedules
					WHERE doctor_id = $1
					  AND date = $2
					  AND is_active
					  AND start_time < $4
					  AND end_time > $3
				)
			`, doctorID, s.Date, s.StartTime, s.EndTime).Scan(&overlap)
			if err != nil {
				return fmt.Errorf("check schedule overlap: %w", err)
			}
			if overlap {
				if skipOverlaps {
					skipped = append(skipped, s)
					continue
				}
				return ErrScheduleOverlap
			}

			row := tx.QueryRow(ctx, `
				INSERT INTO schedules (id, doctor_id, clinic_id, date, start_time, end_time, slot_duration,
					appointment_type, is_active, last_modified_by, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9, now(), now())
				RETURNING `+scheduleColumns,
				uuid.New(), doctorID, s.ClinicID, s.Date, s.StartTime, s.EndTime, s.SlotDuration,
				string(s.AppointmentType), s.LastModifiedBy)
			inserted, err := scanSchedule(row)
			if err != nil {
				return fmt.Errorf("insert schedule: %w", err)
			}
			created = append(created, *inserted)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return created, skipped, nil
}

func (r *PgRepository) Deactivate(ctx context.Context, id, by uuid.UUID) (*Schedule, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE schedules
		SET is_active = false,
		    last_modified_by = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+scheduleColumns, id, by)
	return scanSchedule(row)
}

func (r *PgRepository) DeactivateForDoctor(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE schedules
		SET is_active = false,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND is_active
	`, doctorID)
	if err != nil {
		return 0, fmt.Errorf("deactivate doctor schedules: %w", err)
	}
	return tag.RowsAffected(), nil
}
