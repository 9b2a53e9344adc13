package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/auth"
	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/config"
	"github.com/hackgods/hospital-scheduling/internal/db"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

const (
	clinicCount  = 10
	doctorCount  = 60
	patientCount = 5000
	scheduleDays = 14
	tokenTTL     = 24 * time.Hour
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type shift struct {
	start, end string
}

var shifts = []shift{{"09:00", "12:00"}, {"13:00", "17:00"}, {"08:30", "11:30"}}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, "console", "seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancel()
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	_ = gofakeit.Seed(time.Now().UnixNano())

	clinics, err := seedClinics(ctx, pool, clinicCount)
	if err != nil {
		logger.Fatal("seed clinics", zap.Error(err))
	}
	logger.Info("clinics seeded", zap.Int("count", len(clinics)))

	doctors, err := seedDoctors(ctx, pool, doctorCount)
	if err != nil {
		logger.Fatal("seed doctors", zap.Error(err))
	}
	logger.Info("doctors seeded", zap.Int("count", len(doctors)))

	patients, err := seedPatients(ctx, pool, patientCount)
	if err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}
	logger.Info("patients seeded", zap.Int("count", len(patients)))

	today := clock.DateOf(clock.New(cfg.Location).Now())
	n, err := seedSchedules(ctx, pool, doctors, clinics, today)
	if err != nil {
		logger.Fatal("seed schedules", zap.Error(err))
	}
	logger.Info("schedules seeded", zap.Int("count", n), zap.Time("from", today))

	if err := printTokens(auth.NewAuthenticator(cfg.JWTSecret), doctors, patients); err != nil {
		logger.Fatal("issue tokens", zap.Error(err))
	}
	logger.Info("seed complete")
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	batch := &pgx.Batch{}
	for i := 0; i < count; i++ {
		id := uuid.New()
		ids = append(ids, id)
		batch.Queue(`
			INSERT INTO clinics (id, name, address, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Company()+" Clinic", gofakeit.Street()+", "+gofakeit.City())
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	batch := &pgx.Batch{}
	for i := 0; i < count; i++ {
		id := uuid.New()
		ids = append(ids, id)
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		batch.Queue(`
			INSERT INTO doctors (id, name, specialty, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, true, now(), now())
		`, id, "Dr. "+gofakeit.Name(), spec)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	rows := make([][]any, 0, count)
	now := time.Now()
	for i := 0; i < count; i++ {
		id := uuid.New()
		ids = append(ids, id)
		rows = append(rows, []any{id, gofakeit.Name(), gofakeit.Email(), now, now})
	}

	_, err := pool.CopyFrom(ctx,
		pgx.Identifier{"patients"},
		[]string{"id", "name", "email", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// seedSchedules gives every doctor one shift per weekday over the next
// scheduleDays days, at a random clinic.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, doctors, clinics []uuid.UUID, from time.Time) (int, error) {
	batch := &pgx.Batch{}
	for d := 0; d < scheduleDays; d++ {
		date := from.AddDate(0, 0, d)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, doctorID := range doctors {
			s := shifts[gofakeit.Number(0, len(shifts)-1)]
			kind := "physical"
			if gofakeit.Bool() {
				kind = "online"
			}
			batch.Queue(`
				INSERT INTO schedules (id, doctor_id, clinic_id, date, start_time, end_time,
				                       slot_duration, appointment_type, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5::time, $6::time, $7, $8, true, now(), now())
			`, uuid.New(), doctorID, clinics[gofakeit.Number(0, len(clinics)-1)], date,
				s.start, s.end, []int{15, 20, 30}[gofakeit.Number(0, 2)], kind)
		}
	}
	n := batch.Len()
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return n, nil
}

// printTokens writes a handful of bearer tokens for manual testing.
func printTokens(a *auth.Authenticator, doctors, patients []uuid.UUID) error {
	issue := func(label string, p auth.Principal) error {
		tok, err := a.Issue(p, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %s %s\n", label, p.ID, tok)
		return nil
	}

	if err := issue("staff", auth.Principal{ID: uuid.New(), Role: auth.RoleStaff, IsActive: true}); err != nil {
		return err
	}
	for _, id := range doctors[:min(3, len(doctors))] {
		if err := issue("doctor", auth.Principal{ID: id, Role: auth.RoleDoctor, IsActive: true}); err != nil {
			return err
		}
	}
	for _, id := range patients[:min(3, len(patients))] {
		if err := issue("patient", auth.Principal{ID: id, Role: auth.RolePatient, IsActive: true}); err != nil {
			return err
		}
	}
	return nil
}
