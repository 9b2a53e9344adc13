package api

import (
	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/schedule"
)

const dateLayout = "2006-01-02"

type CreateScheduleRequest struct {
	DoctorID        uuid.UUID                `json:"doctor_id"`
	ClinicID        uuid.UUID                `json:"clinic_id"`
	Date            string                   `json:"date"`
	StartTime       *schedule.TimeOfDay      `json:"start_time"`
	EndTime         *schedule.TimeOfDay      `json:"end_time"`
	SlotDuration    int                      `json:"slot_duration"`
	AppointmentType schedule.AppointmentType `json:"appointment_type"`
}

type BulkScheduleRequest struct {
	DoctorID        uuid.UUID                `json:"doctor_id"`
	ClinicID        uuid.UUID                `json:"clinic_id"`
	StartDate       string                   `json:"start_date"`
	EndDate         string                   `json:"end_date"`
	Weekdays        string                   `json:"weekdays"`
	StartTime       *schedule.TimeOfDay      `json:"start_time"`
	EndTime         *schedule.TimeOfDay      `json:"end_time"`
	SlotDuration    int                      `json:"slot_duration"`
	AppointmentType schedule.AppointmentType `json:"appointment_type"`
}

type CreateAppointmentRequest struct {
	ScheduleID uuid.UUID           `json:"schedule_id"`
	StartTime  *schedule.TimeOfDay `json:"start_time"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	NewScheduleID uuid.UUID           `json:"new_schedule_id"`
	NewStartTime  *schedule.TimeOfDay `json:"new_start_time"`
}

type AvailableDatesResponse struct {
	Dates []string `json:"dates"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
