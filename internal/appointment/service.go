package appointment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
	"github.com/hackgods/hospital-scheduling/internal/auth"
	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/metrics"
	"github.com/hackgods/hospital-scheduling/internal/schedule"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentCanceled    = "APPOINTMENT_CANCELED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
)

var tracer = otel.Tracer("hospital.internal.appointment")

type Service struct {
	repo    Repository
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewService(repo Repository, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		clock:   clk,
		metrics: m,
		logger:  logging.OrNop(logger).Named("appointment"),
	}
}

// CreateAppointment books the slot starting at start on scheduleID for the
// calling patient. The schedule row is locked for the whole check-and-insert,
// so of several concurrent requests for one slot exactly one succeeds.
func (s *Service) CreateAppointment(ctx context.Context, p auth.Principal, scheduleID uuid.UUID, start schedule.TimeOfDay) (appt *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.create")
	defer func() {
		s.finish(span, "create", err)
	}()
	span.SetAttributes(
		attribute.String("schedule.id", scheduleID.String()),
		attribute.String("slot.start", start.String()),
	)

	if !p.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	if p.Role != auth.RolePatient {
		return nil, ErrPatientOnly
	}

	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		sched, err := tx.LockSchedule(ctx, scheduleID)
		if err != nil {
			return err
		}
		appt, err = s.book(ctx, tx, p.ID, sched, start)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"schedule_id": scheduleID.String(),
		"patient_id":  p.ID.String(),
		"start_time":  appt.StartTime.String(),
	})
	s.logger.Info("appointment created",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("schedule_id", scheduleID.String()),
	)
	return appt, nil
}

// book validates the slot against a schedule already locked by tx and inserts
// the confirmed appointment. Checks run in a fixed order so the caller sees
// the first failing reason.
func (s *Service) book(ctx context.Context, tx Tx, patientID uuid.UUID, sched *schedule.Schedule, start schedule.TimeOfDay) (*Appointment, error) {
	now := s.clock.Now()
	if !sched.IsActive {
		return nil, ErrScheduleInactive.WithField("schedule_id", "schedule is not active")
	}
	if !sched.EndsAt(now.Location()).After(now) {
		return nil, ErrScheduleInPast.WithField("schedule_id", "schedule has already ended")
	}

	slot := schedule.SlotAt(*sched, start)
	if !schedule.Contains(schedule.ComputeSlots(*sched), slot) {
		return nil, ErrInvalidTimeSlot.WithField("start_time", "not a valid slot for this schedule")
	}

	booked, err := tx.BookedSlots(ctx, sched.ID)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	if schedule.Contains(booked, slot) {
		return nil, ErrSlotNotAvailable
	}

	return tx.InsertAppointment(ctx, Appointment{
		ScheduleID:      sched.ID,
		PatientID:       patientID,
		DoctorID:        sched.DoctorID,
		ClinicID:        sched.ClinicID,
		Date:            sched.Date,
		AppointmentType: sched.AppointmentType,
		StartTime:       slot.Start,
		EndTime:         slot.End,
		Status:          StatusConfirmed,
	})
}

// CancelAppointment cancels on behalf of either participant. Canceled,
// completed and rescheduled appointments are final.
func (s *Service) CancelAppointment(ctx context.Context, p auth.Principal, id uuid.UUID, reason string) (appt *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.cancel")
	defer func() {
		s.finish(span, "cancel", err)
	}()
	span.SetAttributes(attribute.String("appointment.id", id.String()))

	if !p.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}

	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		current, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if !auth.Capabilities(p, current.PatientID, current.DoctorID).Any(auth.Participant) {
			return ErrNotParticipant
		}
		switch current.Status {
		case StatusCanceled, StatusCompleted, StatusRescheduled:
			return ErrAppointmentTerminal
		}

		appt, err = tx.UpdateStatus(ctx, id, StatusCanceled, reason, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentCanceled, map[string]any{
		"canceled_by": p.ID.String(),
		"reason":      reason,
	})
	return appt, nil
}

// RescheduleAppointment moves a confirmed appointment to another slot. The
// new appointment is booked with the full create validation and the original
// is marked rescheduled in the same transaction; any failure leaves both
// untouched.
func (s *Service) RescheduleAppointment(ctx context.Context, p auth.Principal, id, newScheduleID uuid.UUID, newStart schedule.TimeOfDay) (res *RescheduleResult, err error) {
	ctx, span := tracer.Start(ctx, "appointment.reschedule")
	defer func() {
		s.finish(span, "reschedule", err)
	}()
	span.SetAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("schedule.id", newScheduleID.String()),
	)

	if !p.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}

	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		original, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		caps := auth.Capabilities(p, original.PatientID, original.DoctorID)
		if !caps.Any(auth.PatientOwner) {
			if caps.Any(auth.DoctorOwner) {
				return ErrNotPatientOwner
			}
			return ErrNotParticipant
		}
		if original.Status != StatusConfirmed {
			return ErrNotReschedulable
		}

		// Schedules are locked in ascending id order so two reschedules
		// crossing the same pair cannot deadlock.
		ids := []uuid.UUID{original.ScheduleID, newScheduleID}
		slices.SortFunc(ids, compareUUID)
		ids = slices.Compact(ids)

		var target *schedule.Schedule
		for _, sid := range ids {
			sched, err := tx.LockSchedule(ctx, sid)
			if err != nil {
				return err
			}
			if sid == newScheduleID {
				target = sched
			}
		}

		created, err := s.book(ctx, tx, original.PatientID, target, newStart)
		if err != nil {
			return err
		}
		updated, err := tx.UpdateStatus(ctx, original.ID, StatusRescheduled, "", &created.ID)
		if err != nil {
			return err
		}

		res = &RescheduleResult{Original: updated, New: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentRescheduled, map[string]any{
		"new_appointment_id": res.New.ID.String(),
		"new_schedule_id":    newScheduleID.String(),
		"new_start_time":     res.New.StartTime.String(),
	})
	s.logEvent(ctx, res.New.ID, EventAppointmentCreated, map[string]any{
		"schedule_id":      newScheduleID.String(),
		"patient_id":       res.New.PatientID.String(),
		"start_time":       res.New.StartTime.String(),
		"rescheduled_from": id.String(),
	})
	return res, nil
}

// GetAppointment returns an appointment to its participants and to staff.
// Anyone else gets not found.
func (s *Service) GetAppointment(ctx context.Context, p auth.Principal, id uuid.UUID) (*Appointment, error) {
	if !p.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.Capabilities(p, appt.PatientID, appt.DoctorID).Any(auth.Participant | auth.Staff) {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// ListAppointments scopes the listing by role: patients see their own,
// doctors their assigned ones, staff everything.
func (s *Service) ListAppointments(ctx context.Context, p auth.Principal, f ListFilter) ([]Appointment, error) {
	if !p.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}

	f.PatientID, f.DoctorID = nil, nil
	switch p.Role {
	case auth.RolePatient:
		f.PatientID = &p.ID
	case auth.RoleDoctor:
		f.DoctorID = &p.ID
	}

	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	appointments, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// CompleteDue is called by the reconciler. It marks every pending or
// confirmed appointment whose end has passed as completed.
func (s *Service) CompleteDue(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "appointment.complete_due")
	defer span.End()

	now := s.clock.Now()
	ids, err := s.repo.CompleteDue(ctx, schedule.MomentOf(now))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("complete due appointments: %w", err)
	}

	for _, id := range ids {
		s.logEvent(ctx, id, EventAppointmentCompleted, map[string]any{
			"reason": "worker",
		})
	}
	span.SetAttributes(attribute.Int("appointments.completed", len(ids)))
	return len(ids), nil
}

func (s *Service) finish(span trace.Span, op string, err error) {
	s.metrics.ObserveAppointment(op, err)
	if err != nil {
		span.RecordError(err)
		if apperr.KindOf(err) == "" {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	// The request may already be finished; the event is still worth keeping.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
