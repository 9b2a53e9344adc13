//go:build integration

package appointment_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
	"github.com/hackgods/hospital-scheduling/internal/auth"
	"github.com/hackgods/hospital-scheduling/internal/chat"
	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/db/dbtest"
	"github.com/hackgods/hospital-scheduling/internal/schedule"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	p, cleanup, err := dbtest.Start(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup postgres: %v\n", err)
		os.Exit(1)
	}
	pool = p
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func tomorrow() time.Time {
	return clock.DateOf(time.Now().UTC()).AddDate(0, 0, 1)
}

func patient(id uuid.UUID) auth.Principal {
	return auth.Principal{ID: id, Role: auth.RolePatient, IsActive: true}
}

func TestConcurrentBookingOfOneSlot(t *testing.T) {
	ctx := context.Background()
	const racers = 20

	f, err := dbtest.Seed(ctx, pool, racers+1)
	require.NoError(t, err)
	scheduleID, err := f.InsertSchedule(ctx, pool, tomorrow(), "09:00", "10:00", 30, "physical")
	require.NoError(t, err)

	svc := appointment.NewService(appointment.NewPgRepository(pool), clock.New(time.UTC), nil, nil)
	slot := schedule.MustParseTimeOfDay("09:00")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*appointment.Appointment
		losers  []error
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		p := patient(f.Patients[i])
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			appt, err := svc.CreateAppointment(ctx, p, scheduleID, slot)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				losers = append(losers, err)
				return
			}
			winners = append(winners, appt)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	require.Len(t, losers, racers-1)
	for _, err := range losers {
		assert.ErrorIs(t, err, appointment.ErrSlotNotAvailable)
	}

	var blocking int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE schedule_id = $1 AND status IN ('pending', 'confirmed')
	`, scheduleID).Scan(&blocking)
	require.NoError(t, err)
	assert.Equal(t, 1, blocking)

	// Canceling frees the slot for someone else.
	won := winners[0]
	_, err = svc.CancelAppointment(ctx, patient(won.PatientID), won.ID, "changed plans")
	require.NoError(t, err)

	next, err := svc.CreateAppointment(ctx, patient(f.Patients[racers]), scheduleID, slot)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, next.Status)
}

func TestRescheduleMovesBooking(t *testing.T) {
	ctx := context.Background()

	f, err := dbtest.Seed(ctx, pool, 2)
	require.NoError(t, err)
	from, err := f.InsertSchedule(ctx, pool, tomorrow(), "13:00", "14:00", 20, "physical")
	require.NoError(t, err)
	to, err := f.InsertSchedule(ctx, pool, tomorrow().AddDate(0, 0, 1), "13:00", "14:00", 20, "physical")
	require.NoError(t, err)

	svc := appointment.NewService(appointment.NewPgRepository(pool), clock.New(time.UTC), nil, nil)
	p := patient(f.Patients[0])

	orig, err := svc.CreateAppointment(ctx, p, from, schedule.MustParseTimeOfDay("13:20"))
	require.NoError(t, err)

	res, err := svc.RescheduleAppointment(ctx, p, orig.ID, to, schedule.MustParseTimeOfDay("13:40"))
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusRescheduled, res.Original.Status)
	require.NotNil(t, res.Original.RescheduledToID)
	assert.Equal(t, res.New.ID, *res.Original.RescheduledToID)

	// The old slot is free again.
	_, err = svc.CreateAppointment(ctx, patient(f.Patients[1]), from, schedule.MustParseTimeOfDay("13:20"))
	require.NoError(t, err)
}

func TestChatSessionLifecycle(t *testing.T) {
	ctx := context.Background()

	f, err := dbtest.Seed(ctx, pool, 1)
	require.NoError(t, err)
	scheduleID, err := f.InsertSchedule(ctx, pool, tomorrow(), "10:00", "11:00", 30, "online")
	require.NoError(t, err)

	appts := appointment.NewService(appointment.NewPgRepository(pool), clock.New(time.UTC), nil, nil)
	p := patient(f.Patients[0])
	appt, err := appts.CreateAppointment(ctx, p, scheduleID, schedule.MustParseTimeOfDay("10:00"))
	require.NoError(t, err)

	repo := chat.NewPgRepository(pool)
	now := time.Now().UTC()

	created, err := repo.CreateSession(ctx, appt.ID, now)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreateSession(ctx, appt.ID, now)
	require.NoError(t, err)
	assert.False(t, created, "one session per appointment")

	got, err := appts.GetAppointment(ctx, p, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ChatSessionID)
	sessionID := *got.ChatSessionID

	sess, err := repo.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, f.Patients[0], sess.PatientID)
	assert.Equal(t, f.DoctorID, sess.DoctorID)
	assert.True(t, sess.IsOpen())

	first, err := repo.InsertMessage(ctx, sessionID, p.ID, "hello", now)
	require.NoError(t, err)
	second, err := repo.InsertMessage(ctx, sessionID, f.DoctorID, "hi there", now)
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	msgs, err := repo.ListMessages(ctx, sessionID, first.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi there", msgs[0].Body)

	closed, err := repo.CloseSession(ctx, sessionID, p.ID, now)
	require.NoError(t, err)
	assert.True(t, closed)
	closed, err = repo.CloseSession(ctx, sessionID, p.ID, now)
	require.NoError(t, err)
	assert.False(t, closed)

	_, err = repo.InsertMessage(ctx, sessionID, p.ID, "too late", now)
	assert.ErrorIs(t, err, chat.ErrSessionClosed)

	n, err := repo.DeleteSessions(ctx, []uuid.UUID{sessionID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&left))
	assert.Zero(t, left)
}
