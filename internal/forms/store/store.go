package store

import (
	"context"

	"github.com/google/uuid"

	"formhub/internal/forms/models"
	"formhub/pkg/platform/sentinel"
)

var (
	// ErrNotFound keeps storage-level 404s consistent across memory and
	// postgres implementations.
	ErrNotFound = sentinel.ErrNotFound
	// ErrVersionConflict reports a lost optimistic-concurrency race on update.
	ErrVersionConflict = sentinel.ErrConflict
)

// ListFilter narrows and pages form listings.
type ListFilter struct {
	Search string
	Status *models.FormStatus
	Limit  int
	Offset int
}

// FormSummary is a listing row: the form plus per-caller role and the number
// of live responses.
type FormSummary struct {
	Form          models.Form
	Role          models.Role
	ResponseCount int
}

type FormStore interface {
	Create(ctx context.Context, form *models.Form) error
	// Update applies the form snapshot iff the stored row_version still
	// matches; on success the passed form carries the bumped version.
	Update(ctx context.Context, form *models.Form) error
	// FindByID never returns deleted forms.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Form, error)
	// ParentOf returns the live form whose link points at childID.
	ParentOf(ctx context.Context, childID uuid.UUID) (*models.Form, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]FormSummary, error)
	// ListLinkable returns open forms the user owns that have no link on
	// either side, excluding excludeID.
	ListLinkable(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID) ([]models.Form, error)
}

type CollaboratorStore interface {
	ListByForm(ctx context.Context, formID uuid.UUID) ([]models.Collaborator, error)
	// RoleOf returns RoleNone when the user has no row.
	RoleOf(ctx context.Context, formID, userID uuid.UUID) (models.Role, error)
	Put(ctx context.Context, collab models.Collaborator) error
	Delete(ctx context.Context, formID, userID uuid.UUID) error
}
