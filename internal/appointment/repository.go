package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
	"github.com/hackgods/hospital-scheduling/internal/schedule"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("appointment_not_found", "appointment not found")
	ErrScheduleNotFound    = apperr.Validation("schedule_not_found", "schedule does not exist")
	ErrScheduleInactive    = apperr.Validation("schedule_inactive", "schedule is not active")
	ErrScheduleInPast      = apperr.Validation("schedule_in_past", "cannot book an appointment for a past schedule")
	ErrInvalidTimeSlot     = apperr.Validation("invalid_time_slot", "start time does not match a slot of this schedule")
	ErrSlotNotAvailable    = apperr.Conflict("slot_not_available", "this time slot is not available")
	ErrAppointmentTerminal = apperr.Conflict("appointment_terminal", "appointment can no longer be canceled")
	ErrNotReschedulable    = apperr.Conflict("not_reschedulable", "only confirmed appointments can be rescheduled")
	ErrPatientOnly         = apperr.Forbidden("patient_only", "only patients can book appointments")
	ErrNotParticipant      = apperr.Forbidden("not_participant", "you are not a participant of this appointment")
	ErrNotPatientOwner     = apperr.Forbidden("not_patient_owner", "only the patient of this appointment can reschedule it")
)

// Tx is the transactional view used by booking, cancel and reschedule. Every
// Lock method takes a row lock held until the transaction ends.
type Tx interface {
	LockSchedule(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error)
	BookedSlots(ctx context.Context, scheduleID uuid.UUID) ([]schedule.Slot, error)
	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, reason string, rescheduledTo *uuid.UUID) (*Appointment, error)
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	// CompleteDue marks every blocking appointment that ended at or before
	// now as completed and returns the affected ids. Rows locked by a
	// concurrent transaction are skipped.
	CompleteDue(ctx context.Context, now schedule.Moment) ([]uuid.UUID, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
