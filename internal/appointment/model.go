package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/schedule"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCanceled    AppointmentStatus = "canceled"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCanceled, StatusRescheduled:
		return true
	}
	return false
}

// Blocking statuses hold their slot.
func (s AppointmentStatus) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Appointment is a booking of one slot. Doctor, clinic, date, type and times
// are copied from the schedule at booking time.
type Appointment struct {
	ID                 uuid.UUID                `json:"id"`
	ScheduleID         uuid.UUID                `json:"schedule_id"`
	PatientID          uuid.UUID                `json:"patient_id"`
	DoctorID           uuid.UUID                `json:"doctor_id"`
	ClinicID           uuid.UUID                `json:"clinic_id"`
	Date               time.Time                `json:"date"`
	AppointmentType    schedule.AppointmentType `json:"appointment_type"`
	StartTime          schedule.TimeOfDay       `json:"start_time"`
	EndTime            schedule.TimeOfDay       `json:"end_time"`
	Status             AppointmentStatus        `json:"status"`
	CancellationReason string                   `json:"cancellation_reason,omitempty"`
	RescheduledToID    *uuid.UUID               `json:"rescheduled_to_id,omitempty"`
	ChatSessionID      *uuid.UUID               `json:"chat_session_id"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

func (a Appointment) Slot() schedule.Slot {
	return schedule.Slot{Start: a.StartTime, End: a.EndTime}
}

func (a Appointment) StartsAt(loc *time.Location) time.Time {
	return clock.At(a.Date, a.StartTime.Duration(), loc)
}

func (a Appointment) EndsAt(loc *time.Location) time.Time {
	return clock.At(a.Date, a.EndTime.Duration(), loc)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type ListFilter struct {
	PatientID       *uuid.UUID
	DoctorID        *uuid.UUID
	Status          AppointmentStatus
	AppointmentType schedule.AppointmentType
	Limit           int
	Offset          int
}

type RescheduleResult struct {
	Original *Appointment `json:"original"`
	New      *Appointment `json:"new"`
}
