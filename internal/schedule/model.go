package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/clock"
)

type AppointmentType string

const (
	TypePhysical AppointmentType = "physical"
	TypeOnline   AppointmentType = "online"
)

func (t AppointmentType) Valid() bool {
	return t == TypePhysical || t == TypeOnline
}

// Schedule is a doctor's published availability window for one clinic, date
// and appointment type. Slots are derived from it, never stored.
type Schedule struct {
	ID              uuid.UUID       `json:"id"`
	DoctorID        uuid.UUID       `json:"doctor_id"`
	ClinicID        uuid.UUID       `json:"clinic_id"`
	Date            time.Time       `json:"date"`
	StartTime       TimeOfDay       `json:"start_time"`
	EndTime         TimeOfDay       `json:"end_time"`
	SlotDuration    int             `json:"slot_duration"`
	AppointmentType AppointmentType `json:"appointment_type"`
	IsActive        bool            `json:"is_active"`
	LastModifiedBy  *uuid.UUID      `json:"last_modified_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (s Schedule) SlotLength() time.Duration {
	return time.Duration(s.SlotDuration) * time.Minute
}

func (s Schedule) StartsAt(loc *time.Location) time.Time {
	return clock.At(s.Date, s.StartTime.Duration(), loc)
}

func (s Schedule) EndsAt(loc *time.Location) time.Time {
	return clock.At(s.Date, s.EndTime.Duration(), loc)
}

// Overlaps reports whether both schedules belong to the same doctor and date
// and their half-open windows intersect.
func (s Schedule) Overlaps(o Schedule) bool {
	if s.DoctorID != o.DoctorID || !s.Date.Equal(o.Date) {
		return false
	}
	return s.StartTime < o.EndTime && s.EndTime > o.StartTime
}

// Moment is a (date, time of day) pair used for "not yet ended" filters.
type Moment struct {
	Date time.Time
	Time TimeOfDay
}

func MomentOf(t time.Time) Moment {
	return Moment{Date: clock.DateOf(t), Time: TimeOfDay(clock.SinceMidnight(t))}
}

type ListFilter struct {
	DoctorID        *uuid.UUID
	ClinicID        *uuid.UUID
	AppointmentType AppointmentType
	Date            *time.Time
	// EndingAfter keeps schedules whose end is later than the moment.
	EndingAfter     *Moment
	IncludeInactive bool
	Limit           int
	Offset          int
}

// Availability pairs a schedule with its currently free slots.
type Availability struct {
	Schedule
	AvailableSlots []Slot `json:"available_time_slots"`
}
