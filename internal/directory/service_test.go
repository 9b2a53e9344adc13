package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
	"github.com/hackgods/hospital-scheduling/internal/auth"
)

var doctorCols = []string{"id", "name", "specialty", "is_active", "created_at", "updated_at"}

func newMockService(t *testing.T) (pgxmock.PgxPoolIface, *Service) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewService(NewPgRepository(mock), zaptest.NewLogger(t))
}

func TestDeactivateDoctorRunsHandlers(t *testing.T) {
	mock, svc := newMockService(t)
	staff := auth.Principal{ID: uuid.New(), Role: auth.RoleStaff, IsActive: true}
	doctorID := uuid.New()
	now := time.Now().UTC()
	specialty := "Cardiology"

	mock.ExpectQuery("UPDATE doctors").WithArgs(doctorID, false).
		WillReturnRows(pgxmock.NewRows(doctorCols).AddRow(doctorID, "Dr. Grey", &specialty, false, now, now))

	var calls []string
	svc.OnDoctorDeactivated(func(_ context.Context, id uuid.UUID) error {
		assert.Equal(t, doctorID, id)
		calls = append(calls, "schedules")
		return nil
	})
	svc.OnDoctorDeactivated(func(context.Context, uuid.UUID) error {
		calls = append(calls, "audit")
		return nil
	})

	d, err := svc.DeactivateDoctor(context.Background(), staff, doctorID)
	require.NoError(t, err)
	assert.False(t, d.IsActive)
	assert.Equal(t, []string{"schedules", "audit"}, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateDoctorRules(t *testing.T) {
	mock, svc := newMockService(t)
	called := false
	svc.OnDoctorDeactivated(func(context.Context, uuid.UUID) error {
		called = true
		return nil
	})

	patient := auth.Principal{ID: uuid.New(), Role: auth.RolePatient, IsActive: true}
	_, err := svc.DeactivateDoctor(context.Background(), patient, uuid.New())
	assert.ErrorIs(t, err, ErrStaffOnly)

	_, err = svc.DeactivateDoctor(context.Background(), auth.Principal{}, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	staff := auth.Principal{ID: uuid.New(), Role: auth.RoleStaff, IsActive: true}
	missing := uuid.New()
	mock.ExpectQuery("UPDATE doctors").WithArgs(missing, false).
		WillReturnRows(pgxmock.NewRows(doctorCols))
	_, err = svc.DeactivateDoctor(context.Background(), staff, missing)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateDoctorHandlerFailure(t *testing.T) {
	mock, svc := newMockService(t)
	staff := auth.Principal{ID: uuid.New(), Role: auth.RoleStaff, IsActive: true}
	doctorID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE doctors").WithArgs(doctorID, false).
		WillReturnRows(pgxmock.NewRows(doctorCols).AddRow(doctorID, "Dr. House", nil, false, now, now))

	boom := errors.New("schedules unavailable")
	svc.OnDoctorDeactivated(func(context.Context, uuid.UUID) error { return boom })

	_, err := svc.DeactivateDoctor(context.Background(), staff, doctorID)
	assert.ErrorIs(t, err, boom)
}

func TestDirectoryLookups(t *testing.T) {
	mock, svc := newMockService(t)
	ctx := context.Background()
	clinicID, doctorID, inactiveID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("FROM clinics").WithArgs(clinicID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "address", "created_at", "updated_at"}).
			AddRow(clinicID, "North Wing", "1 Main St", now, now))
	mock.ExpectQuery("FROM clinics").WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "address", "created_at", "updated_at"}))
	mock.ExpectQuery("FROM doctors").WithArgs(doctorID).
		WillReturnRows(pgxmock.NewRows(doctorCols).AddRow(doctorID, "Dr. Yang", nil, true, now, now))
	mock.ExpectQuery("FROM doctors").WithArgs(inactiveID).
		WillReturnRows(pgxmock.NewRows(doctorCols).AddRow(inactiveID, "Dr. Burke", nil, false, now, now))
	mock.ExpectQuery("FROM doctors").WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(doctorCols))

	ok, err := svc.ClinicExists(ctx, clinicID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ClinicExists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.DoctorActive(ctx, doctorID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.DoctorActive(ctx, inactiveID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.DoctorActive(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveDoctors(t *testing.T) {
	mock, svc := newMockService(t)
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	now := time.Now().UTC()

	mock.ExpectQuery("FROM doctors").WithArgs(ids, true).
		WillReturnRows(pgxmock.NewRows(doctorCols).AddRow(ids[1], "Dr. Bailey", nil, true, now, now))

	doctors, err := svc.ActiveDoctors(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, ids[1], doctors[0].ID)

	empty, err := svc.Clinics(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
