package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/hospital-scheduling/internal/db"
	"github.com/hackgods/hospital-scheduling/internal/schedule"
)

// activeSlotIndex is the partial unique index over blocking appointments.
const activeSlotIndex = "appointments_active_slot_key"

const appointmentColumns = `a.id, a.schedule_id, a.patient_id, a.doctor_id, a.clinic_id, a.date,
	a.appointment_type, a.start_time, a.end_time, a.status, a.cancellation_reason,
	a.rescheduled_to_id, a.created_at, a.updated_at`

type PgRepository struct {
	db db.Conn
}

func NewPgRepository(conn db.Conn) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

func scanAppointment(row pgx.Row, withChat bool) (*Appointment, error) {
	var a Appointment

	dest := []any{
		&a.ID,
		&a.ScheduleID,
		&a.PatientID,
		&a.DoctorID,
		&a.ClinicID,
		&a.Date,
		&a.AppointmentType,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.CancellationReason,
		&a.RescheduledToID,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
	if withChat {
		dest = append(dest, &a.ChatSessionID)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) LockSchedule(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	s, err := schedule.LockForUpdate(ctx, t.tx, id)
	if errors.Is(err, schedule.ErrScheduleNotFound) {
		return nil, ErrScheduleNotFound
	}
	return s, err
}

func (t pgTx) BookedSlots(ctx context.Context, scheduleID uuid.UUID) ([]schedule.Slot, error) {
	booked, err := schedule.QueryBookedSlots(ctx, t.tx, []uuid.UUID{scheduleID})
	if err != nil {
		return nil, err
	}
	return booked[scheduleID], nil
}

func (t pgTx) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row, false)
}

func (t pgTx) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments AS a (id, schedule_id, patient_id, doctor_id, clinic_id, date,
			appointment_type, start_time, end_time, status, cancellation_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', now(), now())
		RETURNING `+appointmentColumns,
		uuid.New(), a.ScheduleID, a.PatientID, a.DoctorID, a.ClinicID, a.Date,
		string(a.AppointmentType), a.StartTime, a.EndTime, string(a.Status))

	created, err := scanAppointment(row, false)
	if err != nil {
		if db.IsUniqueViolation(err, activeSlotIndex) {
			return nil, ErrSlotNotAvailable
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (t pgTx) UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, reason string, rescheduledTo *uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $2,
		    cancellation_reason = CASE WHEN $3::text = '' THEN a.cancellation_reason ELSE $3::text END,
		    rescheduled_to_id = COALESCE($4, a.rescheduled_to_id),
		    updated_at = now()
		WHERE a.id = $1
		RETURNING `+appointmentColumns,
		id, string(to), reason, rescheduledTo)
	return scanAppointment(row, false)
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`, cs.id
		FROM appointments a
		LEFT JOIN chat_sessions cs ON cs.appointment_id = a.id
		WHERE a.id = $1
	`, id)
	return scanAppointment(row, true)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.PatientID != nil {
		where = append(where, "a.patient_id = "+arg(*f.PatientID))
	}
	if f.DoctorID != nil {
		where = append(where, "a.doctor_id = "+arg(*f.DoctorID))
	}
	if f.Status != "" {
		where = append(where, "a.status = "+arg(string(f.Status)))
	}
	if f.AppointmentType != "" {
		where = append(where, "a.appointment_type = "+arg(string(f.AppointmentType)))
	}

	q := "SELECT " + appointmentColumns + ", cs.id FROM appointments a LEFT JOIN chat_sessions cs ON cs.appointment_id = a.id"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY a.date DESC, a.start_time DESC, a.created_at DESC"
	q += " LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows, true)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CompleteDue(ctx context.Context, now schedule.Moment) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    updated_at = now()
		WHERE id IN (
			SELECT id FROM appointments
			WHERE status IN ('pending', 'confirmed')
			  AND (date < $1 OR (date = $1 AND end_time <= $2))
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`, now.Date, now.Time)
	if err != nil {
		return nil, fmt.Errorf("complete due appointments: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
