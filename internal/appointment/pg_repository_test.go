package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-scheduling/internal/schedule"
)

var appointmentCols = []string{
	"id", "schedule_id", "patient_id", "doctor_id", "clinic_id", "date",
	"appointment_type", "start_time", "end_time", "status", "cancellation_reason",
	"rescheduled_to_id", "created_at", "updated_at",
}

func TestPgInsertUniqueViolationIsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: activeSlotIndex})
	mock.ExpectRollback()

	err = NewPgRepository(mock).WithinTx(context.Background(), func(tx Tx) error {
		_, err := tx.InsertAppointment(context.Background(), Appointment{
			ScheduleID: uuid.New(),
			StartTime:  schedule.MustParseTimeOfDay("10:00"),
			EndTime:    schedule.MustParseTimeOfDay("10:15"),
			Status:     StatusConfirmed,
		})
		return err
	})
	assert.ErrorIs(t, err, ErrSlotNotAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgLockAppointmentNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err = NewPgRepository(mock).WithinTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockAppointment(context.Background(), id)
		return err
	})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetAppointmentWithChatSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id, session := uuid.New(), uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows(append(appointmentCols, "chat_session_id")).AddRow(
		id, uuid.New(), uuid.New(), uuid.New(), uuid.New(), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		schedule.TypeOnline, schedule.MustParseTimeOfDay("10:00"), schedule.MustParseTimeOfDay("10:15"),
		StatusConfirmed, "", (*uuid.UUID)(nil), now, now, &session,
	)
	mock.ExpectQuery("LEFT JOIN chat_sessions").WithArgs(id).WillReturnRows(rows)

	appt, err := NewPgRepository(mock).GetAppointmentByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, appt.ID)
	require.NotNil(t, appt.ChatSessionID)
	assert.Equal(t, session, *appt.ChatSessionID)
	assert.Nil(t, appt.RescheduledToID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCompleteDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := schedule.MomentOf(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC))
	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery("SKIP LOCKED").WithArgs(now.Date, now.Time).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a).AddRow(b))

	ids, err := NewPgRepository(mock).CompleteDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
