package models

import "github.com/google/uuid"

// Role is a collaborator's privilege level on a form, ordered by increasing
// privilege. RoleNone doubles as "absent" in reconciliation diffs.
type Role string

const (
	RoleNone   Role = "none"
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

var roleRank = map[Role]int{
	RoleNone:   0,
	RoleViewer: 1,
	RoleEditor: 2,
	RoleOwner:  3,
}

// Rank returns the privilege ordering for comparisons.
func (r Role) Rank() int { return roleRank[r] }

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// CanEdit reports whether the role may modify the form itself.
func (r Role) CanEdit() bool { return r == RoleOwner || r == RoleEditor }

// CanView reports whether the role grants any access at all.
func (r Role) CanView() bool { return r != RoleNone && r.Valid() }

// Collaborator is one (form, user) access grant. Exactly one Owner row exists
// per form; bulk-sync operations never delete or demote it.
type Collaborator struct {
	FormID uuid.UUID
	UserID uuid.UUID
	Role   Role
}
