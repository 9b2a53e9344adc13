//go:build integration

// Package dbtest starts a throwaway Postgres with the schema applied, for
// tests built with the integration tag.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hackgods/hospital-scheduling/internal/db"
	"github.com/hackgods/hospital-scheduling/migrations"
)

// Start returns a migrated pool and a cleanup func. TEST_POSTGRES_DSN skips
// the container and uses an existing database instead.
func Start(ctx context.Context) (*pgxpool.Pool, func(), error) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	terminate := func() {}

	if dsn == "" {
		ctr, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("hospital"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("start postgres container: %w", err)
		}
		terminate = func() { _ = ctr.Terminate(context.Background()) }

		dsn, err = ctr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			terminate()
			return nil, nil, fmt.Errorf("connection string: %w", err)
		}
	}

	if err := migrate(dsn); err != nil {
		terminate()
		return nil, nil, err
	}

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 30})
	if err != nil {
		terminate()
		return nil, nil, err
	}

	return pool, func() {
		pool.Close()
		terminate()
	}, nil
}

func migrate(dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()
	return migrations.Up(sqlDB)
}

// Fixture holds ids of directory rows inserted for one test.
type Fixture struct {
	ClinicID uuid.UUID
	DoctorID uuid.UUID
	Patients []uuid.UUID
}

// Seed inserts one clinic, one active doctor and n patients.
func Seed(ctx context.Context, pool *pgxpool.Pool, patients int) (Fixture, error) {
	f := Fixture{ClinicID: uuid.New(), DoctorID: uuid.New()}

	if _, err := pool.Exec(ctx, `INSERT INTO clinics (id, name) VALUES ($1, 'Test Clinic')`, f.ClinicID); err != nil {
		return f, fmt.Errorf("insert clinic: %w", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO doctors (id, name, specialty) VALUES ($1, 'Dr. Test', 'General Practice')`, f.DoctorID); err != nil {
		return f, fmt.Errorf("insert doctor: %w", err)
	}
	for i := 0; i < patients; i++ {
		id := uuid.New()
		if _, err := pool.Exec(ctx, `INSERT INTO patients (id, name) VALUES ($1, $2)`, id, fmt.Sprintf("Patient %d", i)); err != nil {
			return f, fmt.Errorf("insert patient: %w", err)
		}
		f.Patients = append(f.Patients, id)
	}
	return f, nil
}

// InsertSchedule adds an active schedule for the fixture doctor and clinic.
func (f Fixture) InsertSchedule(ctx context.Context, pool *pgxpool.Pool, date time.Time, start, end string, slotMinutes int, kind string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO schedules (id, doctor_id, clinic_id, date, start_time, end_time, slot_duration, appointment_type)
		VALUES ($1, $2, $3, $4, $5::time, $6::time, $7, $8)
	`, id, f.DoctorID, f.ClinicID, date, start, end, slotMinutes, kind)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert schedule: %w", err)
	}
	return id, nil
}
