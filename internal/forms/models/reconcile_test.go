package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	formID  = uuid.New()
	ownerID = uuid.New()
	userA   = uuid.New()
	userB   = uuid.New()
)

func collab(userID uuid.UUID, role Role) Collaborator {
	return Collaborator{FormID: formID, UserID: userID, Role: role}
}

func TestReconcile_OwnerAddsAndRemoves(t *testing.T) {
	current := []Collaborator{
		collab(ownerID, RoleOwner),
		collab(userA, RoleViewer),
	}
	desired := []CollaboratorEntry{
		{UserID: userB, Role: RoleEditor}, // new
		// userA absent -> removed
	}

	diff := ReconcileCollaborators(formID, current, desired, RoleOwner)

	require.Len(t, diff.Puts, 1)
	assert.Equal(t, userB, diff.Puts[0].UserID)
	assert.Equal(t, RoleEditor, diff.Puts[0].Role)
	require.Len(t, diff.Deletes, 1)
	assert.Equal(t, userA, diff.Deletes[0])
}

func TestReconcile_AbsentRowTreatedAsNone(t *testing.T) {
	// A user with no existing row must diff as RoleNone, not the zero Role,
	// or the policy table never matches and the grant vanishes.
	current := []Collaborator{collab(ownerID, RoleOwner)}
	desired := []CollaboratorEntry{{UserID: userA, Role: RoleEditor}}

	diff := ReconcileCollaborators(formID, current, desired, RoleOwner)

	require.Len(t, diff.Puts, 1)
	assert.Equal(t, userA, diff.Puts[0].UserID)
	assert.Equal(t, RoleEditor, diff.Puts[0].Role)
}

func TestReconcile_OwnerRowSurvivesBulkSync(t *testing.T) {
	current := []Collaborator{collab(ownerID, RoleOwner)}

	// Empty desired set must not delete the owner.
	diff := ReconcileCollaborators(formID, current, nil, RoleOwner)
	assert.True(t, diff.Empty())

	// A demotion request against the owner is ignored.
	diff = ReconcileCollaborators(formID, current,
		[]CollaboratorEntry{{UserID: ownerID, Role: RoleViewer}}, RoleOwner)
	assert.True(t, diff.Empty())
}

func TestReconcile_OwnerGrantDowngradedToEditor(t *testing.T) {
	current := []Collaborator{collab(ownerID, RoleOwner)}
	desired := []CollaboratorEntry{{UserID: userA, Role: RoleOwner}}

	diff := ReconcileCollaborators(formID, current, desired, RoleOwner)

	require.Len(t, diff.Puts, 1)
	assert.Equal(t, RoleEditor, diff.Puts[0].Role)
}

func TestReconcile_EditorLimitedToViewerEntries(t *testing.T) {
	current := []Collaborator{
		collab(ownerID, RoleOwner),
		collab(userA, RoleViewer),
		collab(userB, RoleEditor),
	}
	desired := []CollaboratorEntry{
		// editor tries to promote a viewer - skipped
		{UserID: userA, Role: RoleEditor},
		// userB (editor) absent -> delete attempt skipped
	}

	diff := ReconcileCollaborators(formID, current, desired, RoleEditor)

	assert.Empty(t, diff.Puts)
	// userA was named, so only userB's deletion was even considered.
	assert.Empty(t, diff.Deletes)
}

func TestReconcile_EditorGrantsAndRevokesViewers(t *testing.T) {
	current := []Collaborator{
		collab(ownerID, RoleOwner),
		collab(userA, RoleViewer),
	}
	desired := []CollaboratorEntry{{UserID: userB, Role: RoleViewer}}

	diff := ReconcileCollaborators(formID, current, desired, RoleEditor)

	require.Len(t, diff.Puts, 1)
	assert.Equal(t, RoleViewer, diff.Puts[0].Role)
	require.Len(t, diff.Deletes, 1)
	assert.Equal(t, userA, diff.Deletes[0])
}

func TestReconcile_NoChangesYieldsEmptyDiff(t *testing.T) {
	current := []Collaborator{
		collab(ownerID, RoleOwner),
		collab(userA, RoleViewer),
	}
	desired := []CollaboratorEntry{{UserID: userA, Role: RoleViewer}}

	diff := ReconcileCollaborators(formID, current, desired, RoleOwner)
	assert.True(t, diff.Empty())
}

func TestReconcile_DuplicateDesiredEntriesFirstWins(t *testing.T) {
	current := []Collaborator{collab(ownerID, RoleOwner)}
	desired := []CollaboratorEntry{
		{UserID: userA, Role: RoleViewer},
		{UserID: userA, Role: RoleEditor},
	}

	diff := ReconcileCollaborators(formID, current, desired, RoleOwner)

	require.Len(t, diff.Puts, 1)
	assert.Equal(t, RoleViewer, diff.Puts[0].Role)
}

func TestMirror_ChildMatchesParentExactly(t *testing.T) {
	childID := uuid.New()
	parent := []Collaborator{
		collab(ownerID, RoleOwner),
		collab(userA, RoleEditor),
	}
	child := []Collaborator{
		{FormID: childID, UserID: ownerID, Role: RoleOwner},
		{FormID: childID, UserID: userB, Role: RoleViewer}, // not in parent
	}

	diff := MirrorCollaborators(childID, parent, child)

	require.Len(t, diff.Puts, 1)
	assert.Equal(t, userA, diff.Puts[0].UserID)
	assert.Equal(t, RoleEditor, diff.Puts[0].Role)
	assert.Equal(t, childID, diff.Puts[0].FormID)
	require.Len(t, diff.Deletes, 1)
	assert.Equal(t, userB, diff.Deletes[0])
}

func TestMirror_OwnerRowNeverDeleted(t *testing.T) {
	childID := uuid.New()
	childOwner := uuid.New()
	parent := []Collaborator{collab(ownerID, RoleOwner)}
	child := []Collaborator{{FormID: childID, UserID: childOwner, Role: RoleOwner}}

	diff := MirrorCollaborators(childID, parent, child)

	// Parent's owner entry is copied in, child's own owner row survives.
	require.Len(t, diff.Puts, 1)
	assert.Equal(t, ownerID, diff.Puts[0].UserID)
	assert.Empty(t, diff.Deletes)
}

func TestMirror_OwnerRoleOverwrittenWhenParentListsUser(t *testing.T) {
	childID := uuid.New()
	parent := []Collaborator{
		collab(ownerID, RoleOwner),
		collab(userA, RoleViewer),
	}
	// In the child, userA happens to hold the owner row.
	child := []Collaborator{{FormID: childID, UserID: userA, Role: RoleOwner}}

	diff := MirrorCollaborators(childID, parent, child)

	roles := map[uuid.UUID]Role{}
	for _, p := range diff.Puts {
		roles[p.UserID] = p.Role
	}
	assert.Equal(t, RoleOwner, roles[ownerID])
	assert.Equal(t, RoleViewer, roles[userA])
	assert.Empty(t, diff.Deletes)
}
