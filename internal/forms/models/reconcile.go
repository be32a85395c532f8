package models

import "github.com/google/uuid"

// CollaboratorEntry is an incoming (user, role) request from an upsert.
type CollaboratorEntry struct {
	UserID uuid.UUID `json:"userId"`
	Role   Role      `json:"role"`
}

// CollaboratorDiff is the plan produced by reconciliation: rows to upsert and
// user ids whose rows are removed. The diff is pure; the service applies it
// through the store inside one transaction.
type CollaboratorDiff struct {
	Puts    []Collaborator
	Deletes []uuid.UUID
}

// Empty reports whether the diff changes nothing.
func (d CollaboratorDiff) Empty() bool {
	return len(d.Puts) == 0 && len(d.Deletes) == 0
}

// ReconcileCollaborators diffs the form's current collaborator set against
// the desired entries, keyed by user id. Changes the acting role may not
// apply are skipped, requested roles are clamped, and the Owner row is never
// deleted or demoted.
func ReconcileCollaborators(formID uuid.UUID, current []Collaborator, desired []CollaboratorEntry, actorRole Role) CollaboratorDiff {
	currentByUser := make(map[uuid.UUID]Role, len(current))
	for _, c := range current {
		currentByUser[c.UserID] = c.Role
	}

	var diff CollaboratorDiff
	desiredUsers := make(map[uuid.UUID]bool, len(desired))
	for _, entry := range desired {
		if desiredUsers[entry.UserID] {
			continue // first entry per user wins
		}
		desiredUsers[entry.UserID] = true

		before, known := currentByUser[entry.UserID]
		if !known {
			before = RoleNone
		}
		after := ClampRequestedRole(entry.Role, before)
		if after == before || after == RoleNone {
			continue
		}
		if !CanApply(actorRole, before, after) {
			continue
		}
		diff.Puts = append(diff.Puts, Collaborator{FormID: formID, UserID: entry.UserID, Role: after})
	}

	for _, c := range current {
		if desiredUsers[c.UserID] || c.Role == RoleOwner {
			continue
		}
		if !CanApply(actorRole, c.Role, RoleNone) {
			continue
		}
		diff.Deletes = append(diff.Deletes, c.UserID)
	}
	return diff
}

// MirrorCollaborators makes the child's collaborator set match the parent's
// exactly, keyed by user id. Unlike upserts this sync has no acting-role
// policy: roles are copied verbatim, the child's Owner row is never deleted,
// but its role is overwritten when the parent carries an entry for that user.
func MirrorCollaborators(childID uuid.UUID, parent, child []Collaborator) CollaboratorDiff {
	parentByUser := make(map[uuid.UUID]Role, len(parent))
	for _, c := range parent {
		parentByUser[c.UserID] = c.Role
	}
	childByUser := make(map[uuid.UUID]Role, len(child))
	for _, c := range child {
		childByUser[c.UserID] = c.Role
	}

	var diff CollaboratorDiff
	for _, c := range parent {
		if childByUser[c.UserID] == c.Role {
			continue
		}
		diff.Puts = append(diff.Puts, Collaborator{FormID: childID, UserID: c.UserID, Role: c.Role})
	}
	for _, c := range child {
		if _, inParent := parentByUser[c.UserID]; inParent || c.Role == RoleOwner {
			continue
		}
		diff.Deletes = append(diff.Deletes, c.UserID)
	}
	return diff
}
