package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/auth"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

// DeactivationHandler reacts to a doctor being deactivated.
type DeactivationHandler func(ctx context.Context, doctorID uuid.UUID) error

type Service struct {
	repo     Repository
	handlers []DeactivationHandler
	logger   *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logging.OrNop(logger).Named("directory"),
	}
}

// OnDoctorDeactivated registers h to run, in registration order, every time
// DeactivateDoctor succeeds.
func (s *Service) OnDoctorDeactivated(h DeactivationHandler) {
	s.handlers = append(s.handlers, h)
}

// DeactivateDoctor marks the doctor inactive and runs the registered
// handlers. Deactivating an inactive doctor runs them again, so a failed
// handler can be retried by repeating the call.
func (s *Service) DeactivateDoctor(ctx context.Context, p auth.Principal, doctorID uuid.UUID) (*Doctor, error) {
	if err := auth.Require(p, auth.Capabilities(p, uuid.Nil, uuid.Nil), auth.Staff, ErrStaffOnly); err != nil {
		return nil, err
	}

	doctor, err := s.repo.SetDoctorActive(ctx, doctorID, false)
	if err != nil {
		return nil, err
	}

	for _, h := range s.handlers {
		if err := h(ctx, doctorID); err != nil {
			return nil, fmt.Errorf("doctor deactivation handler: %w", err)
		}
	}

	s.logger.Info("doctor deactivated",
		zap.String("doctor_id", doctorID.String()),
		zap.String("by", p.ID.String()),
	)
	return doctor, nil
}

func (s *Service) ClinicExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.GetClinicByID(ctx, id)
	switch {
	case errors.Is(err, ErrClinicNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (s *Service) DoctorActive(ctx context.Context, id uuid.UUID) (bool, error) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	switch {
	case errors.Is(err, ErrDoctorNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return d.IsActive, nil
}

func (s *Service) Clinics(ctx context.Context, ids []uuid.UUID) ([]Clinic, error) {
	return s.repo.ListClinics(ctx, ids)
}

// ActiveDoctors drops inactive profiles, matching what patients may book.
func (s *Service) ActiveDoctors(ctx context.Context, ids []uuid.UUID) ([]Doctor, error) {
	return s.repo.ListDoctors(ctx, ids, true)
}
