package store

import (
	"context"

	"github.com/google/uuid"

	"formhub/internal/responses/models"
	"formhub/pkg/platform/sentinel"
)

// ErrNotFound keeps storage-level 404s consistent across implementations.
var ErrNotFound = sentinel.ErrNotFound

// ListFilter narrows and pages response listings. Archived rows are excluded
// unless IncludeArchived is set.
type ListFilter struct {
	Status          *models.ResponseStatus
	Anonymous       *bool
	IncludeArchived bool
	Limit           int
	Offset          int
}

type ResponseStore interface {
	Create(ctx context.Context, response *models.Response) error
	Update(ctx context.Context, response *models.Response) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Response, error)
	// LatestByFormAndUser returns the most recent response a registered user
	// submitted to the form.
	LatestByFormAndUser(ctx context.Context, formID, userID uuid.UUID, includeArchived bool) (*models.Response, error)
	ListByForm(ctx context.Context, formID uuid.UUID, filter ListFilter) ([]models.Response, error)
	// CountLive counts non-archived responses.
	CountLive(ctx context.Context, formID uuid.UUID) (int, error)
}
