package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/schedule"
)

// Session is the ephemeral chat room of one online appointment. It moves
// from unopened to open to closed and is then purged together with its
// messages; it never reopens.
type Session struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	OpenedAt      *time.Time `json:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at"`
	ClosedBy      *uuid.UUID `json:"closed_by"`
	CreatedAt     time.Time  `json:"created_at"`

	// Copied from the bound appointment.
	PatientID uuid.UUID          `json:"patient_id"`
	DoctorID  uuid.UUID          `json:"doctor_id"`
	Date      time.Time          `json:"date"`
	StartTime schedule.TimeOfDay `json:"start_time"`
	EndTime   schedule.TimeOfDay `json:"end_time"`
}

func (s Session) IsOpen() bool {
	return s.OpenedAt != nil && s.ClosedAt == nil
}

func (s Session) IsClosed() bool {
	return s.ClosedAt != nil
}

// ExpiresAt is start + factor*(end-start) in loc.
func (s Session) ExpiresAt(loc *time.Location, factor float64) time.Time {
	start := clock.At(s.Date, s.StartTime.Duration(), loc)
	length := (s.EndTime - s.StartTime).Duration()
	return start.Add(time.Duration(float64(length) * factor))
}

type Message struct {
	ID        int64     `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

// Candidate is an online appointment that has no session yet.
type Candidate struct {
	AppointmentID uuid.UUID
	Date          time.Time
	StartTime     schedule.TimeOfDay
}

func (c Candidate) StartsAt(loc *time.Location) time.Time {
	return clock.At(c.Date, c.StartTime.Duration(), loc)
}
