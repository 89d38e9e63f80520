package domain

import (
	"errors"

	"github.com/google/uuid"
)

// Role represents an organization member's role.
type Role string

// Possible role values.
const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Principal validation errors.
var (
	ErrEmptyPrincipalUserID = errors.New("principal user ID cannot be empty")
	ErrEmptyPrincipalOrgID  = errors.New("principal org ID cannot be empty")
	ErrInvalidRole          = errors.New("invalid role")
)

// Principal identifies the acting user for a unit of work. It is threaded
// explicitly through every scoped retrieval and mutation call; there is no
// ambient identity state. The tenant scoping layer turns a Principal into
// session claims so row-level security policies decide visibility.
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	OrgID  uuid.UUID `json:"org_id"`
	Role   Role      `json:"role"`
}

// Validate checks if the Principal has valid data.
func (p Principal) Validate() error {
	if p.UserID == uuid.Nil {
		return ErrEmptyPrincipalUserID
	}
	if p.OrgID == uuid.Nil {
		return ErrEmptyPrincipalOrgID
	}
	if !isValidRole(p.Role) {
		return ErrInvalidRole
	}
	return nil
}

// CanWrite reports whether the principal's role permits mutating operations
// (enqueueing jobs, confirming extractions). Viewers are read-only.
func (p Principal) CanWrite() bool {
	return p.Role == RoleAdmin || p.Role == RoleMember
}

func isValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleMember, RoleViewer:
		return true
	default:
		return false
	}
}
