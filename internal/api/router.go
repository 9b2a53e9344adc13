package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
	"github.com/hackgods/hospital-scheduling/internal/auth"
	"github.com/hackgods/hospital-scheduling/internal/chat"
	"github.com/hackgods/hospital-scheduling/internal/directory"
	"github.com/hackgods/hospital-scheduling/internal/schedule"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

type ScheduleService interface {
	Create(ctx context.Context, p auth.Principal, in schedule.CreateInput) (*schedule.Schedule, error)
	BulkCreate(ctx context.Context, p auth.Principal, in schedule.BulkInput) (*schedule.BulkResult, error)
	Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*schedule.Schedule, error)
	List(ctx context.Context, p auth.Principal, f schedule.ListFilter) ([]schedule.Schedule, error)
	AvailableSlots(ctx context.Context, scheduleID uuid.UUID) ([]schedule.Slot, error)
	Availability(ctx context.Context, f schedule.ListFilter) ([]schedule.Availability, error)
	AvailableDates(ctx context.Context, f schedule.ListFilter) ([]time.Time, error)
	AvailableClinicIDs(ctx context.Context, t schedule.AppointmentType) ([]uuid.UUID, error)
	AvailableDoctorIDs(ctx context.Context, clinicID uuid.UUID, t schedule.AppointmentType) ([]uuid.UUID, error)
}

type AppointmentService interface {
	CreateAppointment(ctx context.Context, p auth.Principal, scheduleID uuid.UUID, start schedule.TimeOfDay) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, p auth.Principal, id uuid.UUID, reason string) (*appointment.Appointment, error)
	RescheduleAppointment(ctx context.Context, p auth.Principal, id, newScheduleID uuid.UUID, newStart schedule.TimeOfDay) (*appointment.RescheduleResult, error)
	GetAppointment(ctx context.Context, p auth.Principal, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, p auth.Principal, f appointment.ListFilter) ([]appointment.Appointment, error)
}

type ChatService interface {
	Backlog(ctx context.Context, p auth.Principal, sessionID uuid.UUID, after int64, limit int) ([]chat.Message, error)
	Close(ctx context.Context, p auth.Principal, sessionID uuid.UUID) (*chat.Session, error)
}

type DirectoryService interface {
	Clinics(ctx context.Context, ids []uuid.UUID) ([]directory.Clinic, error)
	ActiveDoctors(ctx context.Context, ids []uuid.UUID) ([]directory.Doctor, error)
	DeactivateDoctor(ctx context.Context, p auth.Principal, doctorID uuid.UUID) (*directory.Doctor, error)
}

type TokenParser interface {
	Parse(token string) (auth.Principal, error)
}

type RouterConfig struct {
	Schedules    ScheduleService
	Appointments AppointmentService
	Chats        ChatService
	Directory    DirectoryService
	Tokens       TokenParser
	ChatSocket   http.Handler
	Checks       []Check
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger
	Env          string
	Version      string
}

type handlers struct {
	schedules    ScheduleService
	appointments AppointmentService
	chats        ChatService
	directory    DirectoryService
	logger       *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := logging.OrNop(cfg.Logger).Named("http")
	h := &handlers{
		schedules:    cfg.Schedules,
		appointments: cfg.Appointments,
		chats:        cfg.Chats,
		directory:    cfg.Directory,
		logger:       logger,
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// The socket authenticates after the upgrade.
	if cfg.ChatSocket != nil {
		r.Method(http.MethodGet, "/ws/chat/{sessionID}", cfg.ChatSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Tokens))

		r.Route("/availability", func(r chi.Router) {
			r.Get("/clinics", h.availableClinics)
			r.Get("/doctors", h.availableDoctors)
			r.Get("/dates", h.availableDates)
			r.Get("/slots", h.availableSlots)
		})

		r.Get("/schedules", h.listSchedules)
		r.Get("/schedules/{id}", h.getSchedule)
		r.Get("/schedules/{id}/slots", h.scheduleSlots)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)

			r.Post("/schedules", h.createSchedule)
			r.Post("/schedules/bulk", h.bulkCreateSchedules)
			r.Delete("/schedules/{id}", h.deleteSchedule)
			r.Post("/doctors/{id}/deactivate", h.deactivateDoctor)

			r.Post("/appointments", h.createAppointment)
			r.Get("/appointments", h.listAppointments)
			r.Get("/appointments/{id}", h.getAppointment)
			r.Post("/appointments/{id}/cancel", h.cancelAppointment)
			r.Post("/appointments/{id}/reschedule", h.rescheduleAppointment)

			r.Get("/chats/{sessionID}/messages", h.chatBacklog)
			r.Post("/chats/{sessionID}/close", h.closeChat)
		})
	})

	return r
}
