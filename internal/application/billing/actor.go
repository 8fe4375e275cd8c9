package billing

import (
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Role identifies the kind of caller performing an operation
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStudent Role = "STUDENT"
)

// Actor is the authenticated caller of an application operation. Services
// receive it explicitly; nothing is read from ambient session state.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsAdmin returns true for administrator actors
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanActFor returns true if the actor may operate on the given student's data:
// administrators always, students only on themselves.
func (a Actor) CanActFor(studentID uuid.UUID) bool {
	if a.IsAdmin() {
		return true
	}
	return a.Role == RoleStudent && a.ID == studentID
}

func requireAdmin(a Actor) error {
	if !a.IsAdmin() {
		return shared.ErrForbidden
	}
	return nil
}
