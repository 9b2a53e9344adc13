// Package auth models the authenticated caller and the capability checks the
// services apply per operation.
package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleStaff:
		return true
	}
	return false
}

// Principal is the identity the core trusts on every call.
type Principal struct {
	ID       uuid.UUID
	Role     Role
	IsActive bool
}

func (p Principal) Authenticated() bool {
	return p.ID != uuid.Nil && p.IsActive
}

func (p Principal) IsStaff() bool {
	return p.Authenticated() && p.Role == RoleStaff
}

// Capability is a set of relationships between a principal and a resource.
type Capability uint8

const (
	PatientOwner Capability = 1 << iota
	DoctorOwner
	Staff
)

// Participant is the capability set held by either side of an appointment.
const Participant = PatientOwner | DoctorOwner

// Capabilities computes what p holds over a resource bound to patientID and doctorID.
func Capabilities(p Principal, patientID, doctorID uuid.UUID) Capability {
	if !p.Authenticated() {
		return 0
	}
	var c Capability
	if p.Role == RolePatient && p.ID == patientID {
		c |= PatientOwner
	}
	if p.Role == RoleDoctor && p.ID == doctorID {
		c |= DoctorOwner
	}
	if p.Role == RoleStaff {
		c |= Staff
	}
	return c
}

// Any reports whether c shares at least one capability with want.
func (c Capability) Any(want Capability) bool {
	return c&want != 0
}

// Require fails with apperr.ErrUnauthenticated for anonymous or inactive
// callers and with denied when have shares nothing with want.
func Require(p Principal, have, want Capability, denied error) error {
	if !p.Authenticated() {
		return apperr.ErrUnauthenticated
	}
	if !have.Any(want) {
		return denied
	}
	return nil
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
