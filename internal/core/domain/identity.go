package domain

import "github.com/google/uuid"

type Role string

const (
	RoleOwner    Role = "owner"
	RoleManager  Role = "manager"
	RoleReviewer Role = "reviewer"
	RoleViewer   Role = "viewer"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleOwner, RoleManager, RoleReviewer, RoleViewer:
		return Role(s), true
	}
	return "", false
}

// CanMutate reports whether the role may submit, cancel, retry, or activate.
// Reviewer and viewer are read-only.
func (r Role) CanMutate() bool {
	return r == RoleOwner || r == RoleManager
}

// Identity is the authenticated caller context established upstream by the
// auth layer and forwarded in request headers.
type Identity struct {
	TenantID uuid.UUID
	UserID   *uuid.UUID
	Role     Role
}
