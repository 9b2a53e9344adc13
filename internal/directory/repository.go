package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
)

var (
	ErrClinicNotFound = apperr.NotFound("clinic_not_found", "clinic not found")
	ErrDoctorNotFound = apperr.NotFound("doctor_not_found", "doctor not found")
	ErrStaffOnly      = apperr.Forbidden("staff_only", "only staff may deactivate doctors")
)

type Repository interface {
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// ListClinics and ListDoctors return the rows among ids, ordered by name.
	// Unknown ids are ignored.
	ListClinics(ctx context.Context, ids []uuid.UUID) ([]Clinic, error)
	ListDoctors(ctx context.Context, ids []uuid.UUID, activeOnly bool) ([]Doctor, error)

	SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) (*Doctor, error)
}
