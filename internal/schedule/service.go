package schedule

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/auth"
	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

// maxBulkDays bounds a bulk request to roughly one year of dates.
const maxBulkDays = 366

type Service struct {
	repo      Repository
	directory Directory
	clock     clock.Clock
	logger    *zap.Logger
}

func NewService(repo Repository, directory Directory, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		clock:     clk,
		logger:    logging.OrNop(logger).Named("schedule"),
	}
}

type CreateInput struct {
	DoctorID        uuid.UUID
	ClinicID        uuid.UUID
	Date            time.Time
	StartTime       TimeOfDay
	EndTime         TimeOfDay
	SlotDuration    int
	AppointmentType AppointmentType
}

type BulkInput struct {
	DoctorID        uuid.UUID
	ClinicID        uuid.UUID
	StartDate       time.Time
	EndDate         time.Time
	Weekdays        string
	StartTime       TimeOfDay
	EndTime         TimeOfDay
	SlotDuration    int
	AppointmentType AppointmentType
}

type BulkResult struct {
	Created []Schedule `json:"created"`
	Skipped []Schedule `json:"skipped"`
}

// validate checks the invariants every new schedule must hold at now.
func (s Schedule) validate(now time.Time) error {
	if !s.AppointmentType.Valid() {
		return ErrInvalidAppointmentType.WithField("appointment_type", "must be physical or online")
	}
	if s.SlotDuration < 1 {
		return ErrInvalidSlotDuration.WithField("slot_duration", "must be at least 1")
	}
	if s.EndTime <= s.StartTime || s.StartTime < 0 || s.EndTime > day {
		return ErrInvalidTimeRange.WithField("end_time", "must be after start_time")
	}
	if !s.EndsAt(now.Location()).After(now) {
		return ErrScheduleInPast.WithField("date", "schedule has already ended")
	}
	return nil
}

func (s *Service) checkReferences(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	ok, err := s.directory.ClinicExists(ctx, clinicID)
	if err != nil {
		return fmt.Errorf("lookup clinic: %w", err)
	}
	if !ok {
		return ErrClinicNotFound.WithField("clinic_id", "unknown clinic")
	}

	ok, err = s.directory.DoctorActive(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("lookup doctor: %w", err)
	}
	if !ok {
		return ErrDoctorInactive.WithField("doctor_id", "doctor is not active")
	}
	return nil
}

// Create publishes a single schedule. Staff only.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*Schedule, error) {
	if !p.IsStaff() {
		return nil, ErrStaffOnly
	}

	modifiedBy := p.ID
	sched := Schedule{
		DoctorID:        in.DoctorID,
		ClinicID:        in.ClinicID,
		Date:            clock.DateOf(in.Date),
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		SlotDuration:    in.SlotDuration,
		AppointmentType: in.AppointmentType,
		IsActive:        true,
		LastModifiedBy:  &modifiedBy,
	}
	if err := sched.validate(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, in.DoctorID, in.ClinicID); err != nil {
		return nil, err
	}

	created, _, err := s.repo.CreateMany(ctx, in.DoctorID, []Schedule{sched}, false)
	if err != nil {
		return nil, err
	}
	if len(created) != 1 {
		return nil, fmt.Errorf("create schedule: expected 1 row, got %d", len(created))
	}

	s.logger.Info("schedule created",
		zap.String("schedule_id", created[0].ID.String()),
		zap.String("doctor_id", in.DoctorID.String()),
		zap.Time("date", created[0].Date),
	)
	return &created[0], nil
}

// BulkCreate publishes one schedule per matching weekday in the date range.
// Dates that overlap an existing schedule are skipped; any other invalid
// date aborts the whole batch.
func (s *Service) BulkCreate(ctx context.Context, p auth.Principal, in BulkInput) (*BulkResult, error) {
	if !p.IsStaff() {
		return nil, ErrStaffOnly
	}

	from, to := clock.DateOf(in.StartDate), clock.DateOf(in.EndDate)
	if to.Before(from) {
		return nil, ErrInvalidDateRange.WithField("end_date", "must not be before start_date")
	}
	if to.Sub(from) > maxBulkDays*24*time.Hour {
		return nil, ErrInvalidDateRange.WithField("end_date", "range must not exceed one year")
	}
	days, err := ParseWeekdays(in.Weekdays)
	if err != nil {
		return nil, ErrInvalidWeekdays.WithField("weekdays", err.Error())
	}

	now := s.clock.Now()
	modifiedBy := p.ID
	var batch []Schedule
	for _, date := range DatesOn(from, to, days) {
		sched := Schedule{
			DoctorID:        in.DoctorID,
			ClinicID:        in.ClinicID,
			Date:            date,
			StartTime:       in.StartTime,
			EndTime:         in.EndTime,
			SlotDuration:    in.SlotDuration,
			AppointmentType: in.AppointmentType,
			IsActive:        true,
			LastModifiedBy:  &modifiedBy,
		}
		if err := sched.validate(now); err != nil {
			return nil, err
		}
		batch = append(batch, sched)
	}
	if len(batch) == 0 {
		return &BulkResult{}, nil
	}
	if err := s.checkReferences(ctx, in.DoctorID, in.ClinicID); err != nil {
		return nil, err
	}

	created, skipped, err := s.repo.CreateMany(ctx, in.DoctorID, batch, true)
	if err != nil {
		return nil, err
	}

	s.logger.Info("bulk schedules created",
		zap.String("doctor_id", in.DoctorID.String()),
		zap.Int("created", len(created)),
		zap.Int("skipped", len(skipped)),
	)
	return &BulkResult{Created: created, Skipped: skipped}, nil
}

// Delete soft-deletes a schedule. Staff only.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if !p.IsStaff() {
		return ErrStaffOnly
	}
	if _, err := s.repo.Deactivate(ctx, id, p.ID); err != nil {
		return err
	}
	s.logger.Info("schedule deactivated", zap.String("schedule_id", id.String()))
	return nil
}

// Get hides inactive schedules from everyone but staff.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Schedule, error) {
	sched, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sched.IsActive && !p.IsStaff() {
		return nil, ErrScheduleNotFound
	}
	return sched, nil
}

// List returns schedules. Callers other than staff only see active schedules
// that have not yet ended.
func (s *Service) List(ctx context.Context, p auth.Principal, f ListFilter) ([]Schedule, error) {
	if !p.IsStaff() {
		f.IncludeInactive = false
		if f.EndingAfter == nil {
			m := MomentOf(s.clock.Now())
			f.EndingAfter = &m
		}
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, f)
}

// AvailableSlots returns the free slots of one active schedule.
func (s *Service) AvailableSlots(ctx context.Context, scheduleID uuid.UUID) ([]Slot, error) {
	sched, err := s.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !sched.IsActive {
		return nil, ErrScheduleNotFound
	}

	booked, err := s.repo.BookedSlots(ctx, []uuid.UUID{sched.ID})
	if err != nil {
		return nil, err
	}
	return AvailableSlots(*sched, booked[sched.ID]), nil
}

// upcoming lists active schedules matching f that have not ended yet.
func (s *Service) upcoming(ctx context.Context, f ListFilter) ([]Schedule, error) {
	m := MomentOf(s.clock.Now())
	f.EndingAfter = &m
	f.IncludeInactive = false
	f.Limit, f.Offset = 0, 0
	return s.repo.List(ctx, f)
}

// Availability pairs each upcoming schedule matching f with its free slots.
// Schedules that are fully booked are left out.
func (s *Service) Availability(ctx context.Context, f ListFilter) ([]Availability, error) {
	schedules, err := s.upcoming(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return []Availability{}, nil
	}

	ids := make([]uuid.UUID, len(schedules))
	for i, sched := range schedules {
		ids[i] = sched.ID
	}
	booked, err := s.repo.BookedSlots(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]Availability, 0, len(schedules))
	for _, sched := range schedules {
		free := AvailableSlots(sched, booked[sched.ID])
		if len(free) == 0 {
			continue
		}
		result = append(result, Availability{Schedule: sched, AvailableSlots: free})
	}
	return result, nil
}

// AvailableDates lists the distinct dates on which f still has free slots.
func (s *Service) AvailableDates(ctx context.Context, f ListFilter) ([]time.Time, error) {
	avail, err := s.Availability(ctx, f)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(avail))
	for _, a := range avail {
		if !slices.ContainsFunc(dates, a.Date.Equal) {
			dates = append(dates, a.Date)
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	return dates, nil
}

// AvailableClinicIDs lists clinics with at least one upcoming active schedule.
func (s *Service) AvailableClinicIDs(ctx context.Context, t AppointmentType) ([]uuid.UUID, error) {
	schedules, err := s.upcoming(ctx, ListFilter{AppointmentType: t})
	if err != nil {
		return nil, err
	}
	return distinct(schedules, func(s Schedule) uuid.UUID { return s.ClinicID }), nil
}

// AvailableDoctorIDs lists doctors with an upcoming active schedule at clinicID.
func (s *Service) AvailableDoctorIDs(ctx context.Context, clinicID uuid.UUID, t AppointmentType) ([]uuid.UUID, error) {
	schedules, err := s.upcoming(ctx, ListFilter{ClinicID: &clinicID, AppointmentType: t})
	if err != nil {
		return nil, err
	}
	return distinct(schedules, func(s Schedule) uuid.UUID { return s.DoctorID }), nil
}

// DeactivateForDoctor soft-deletes every active schedule of a doctor. It is
// registered as a directory deactivation handler.
func (s *Service) DeactivateForDoctor(ctx context.Context, doctorID uuid.UUID) error {
	n, err := s.repo.DeactivateForDoctor(ctx, doctorID)
	if err != nil {
		return err
	}
	s.logger.Info("doctor schedules deactivated",
		zap.String("doctor_id", doctorID.String()),
		zap.Int64("count", n),
	)
	return nil
}

func distinct(schedules []Schedule, key func(Schedule) uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(schedules))
	ids := make([]uuid.UUID, 0, len(schedules))
	for _, s := range schedules {
		k := key(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		ids = append(ids, k)
	}
	return ids
}
