package schedule

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
)

var (
	ErrScheduleNotFound       = apperr.NotFound("schedule_not_found", "schedule not found")
	ErrScheduleOverlap        = apperr.Conflict("schedule_overlap", "schedule overlaps an existing schedule for this doctor")
	ErrInvalidAppointmentType = apperr.Validation("invalid_appointment_type", "appointment type must be physical or online")
	ErrInvalidSlotDuration    = apperr.Validation("invalid_slot_duration", "slot duration must be at least one minute")
	ErrInvalidTimeRange       = apperr.Validation("invalid_time_range", "end time must be after start time")
	ErrScheduleInPast         = apperr.Validation("schedule_in_past", "cannot create a schedule in the past")
	ErrInvalidDateRange       = apperr.Validation("invalid_date_range", "end date must not be before start date")
	ErrInvalidWeekdays        = apperr.Validation("invalid_weekdays", "weekdays must use the letters M T W R F S U")
	ErrDoctorInactive         = apperr.Validation("doctor_inactive", "doctor does not exist or is not active")
	ErrClinicNotFound         = apperr.Validation("clinic_not_found", "clinic does not exist")
	ErrStaffOnly              = apperr.Forbidden("staff_only", "only staff can manage schedules")
)

// Repository contains the schedule queries used by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	List(ctx context.Context, f ListFilter) ([]Schedule, error)

	// BookedSlots returns the pending and confirmed slots of each schedule.
	BookedSlots(ctx context.Context, scheduleIDs []uuid.UUID) (map[uuid.UUID][]Slot, error)

	// CreateMany inserts schedules for one doctor under a per-doctor lock.
	// Overlapping entries are skipped when skipOverlaps is set, otherwise the
	// whole batch fails with ErrScheduleOverlap.
	CreateMany(ctx context.Context, doctorID uuid.UUID, schedules []Schedule, skipOverlaps bool) (created []Schedule, skipped []Schedule, err error)

	Deactivate(ctx context.Context, id, by uuid.UUID) (*Schedule, error)
	DeactivateForDoctor(ctx context.Context, doctorID uuid.UUID) (int64, error)
}

// Directory answers the doctor and clinic questions schedule validation needs.
type Directory interface {
	ClinicExists(ctx context.Context, id uuid.UUID) (bool, error)
	DoctorActive(ctx context.Context, id uuid.UUID) (bool, error)
}
