package models

// Collaborator-edit policy. Whether an acting collaborator may move a target
// user's role from Before to After is decided by an explicit table rather
// than inline conditionals so the policy stays unit-testable on its own.
//
// Before == RoleNone means the target has no row yet; After == RoleNone means
// the row is removed.

type roleTransition struct {
	Acting Role
	Before Role
	After  Role
}

// allowedTransitions enumerates every permitted (acting, before, after)
// combination. Owners manage all non-owner rows; editors only viewer-level
// entries. Owner rows are immutable through this policy — only a link mirror
// sync may rewrite an owner's role.
var allowedTransitions = map[roleTransition]bool{
	// Owner actors: full control over non-owner rows.
	{RoleOwner, RoleNone, RoleViewer}:   true,
	{RoleOwner, RoleNone, RoleEditor}:   true,
	{RoleOwner, RoleViewer, RoleViewer}: true,
	{RoleOwner, RoleViewer, RoleEditor}: true,
	{RoleOwner, RoleViewer, RoleNone}:   true,
	{RoleOwner, RoleEditor, RoleEditor}: true,
	{RoleOwner, RoleEditor, RoleViewer}: true,
	{RoleOwner, RoleEditor, RoleNone}:   true,

	// Editor actors: may only grant, keep or revoke viewer-level entries.
	{RoleEditor, RoleNone, RoleViewer}:   true,
	{RoleEditor, RoleViewer, RoleViewer}: true,
	{RoleEditor, RoleViewer, RoleNone}:   true,
}

// CanApply reports whether acting may change a target row from before to
// after. Identity changes on rows the actor cannot touch are denied too, so
// callers skip them instead of re-writing the row.
func CanApply(acting, before, after Role) bool {
	return allowedTransitions[roleTransition{acting, before, after}]
}

// ClampRequestedRole downgrades disallowed role grants instead of failing the
// whole upsert: an Owner grant aimed at a user who is not already the owner
// becomes an Editor grant.
func ClampRequestedRole(requested, targetCurrent Role) Role {
	if requested == RoleOwner && targetCurrent != RoleOwner {
		return RoleEditor
	}
	return requested
}
