// Package store persists component groups.
package store

import (
	"context"

	"github.com/google/uuid"

	"formhub/internal/groups/models"
	"formhub/pkg/platform/sentinel"
)

var ErrNotFound = sentinel.ErrNotFound

// ListFilter narrows and pages an owner's group listing.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// GroupStore persists component groups.
type GroupStore interface {
	Create(ctx context.Context, group *models.ComponentGroup) error
	Update(ctx context.Context, group *models.ComponentGroup) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ComponentGroup, error)
	// ListByOwner returns the owner's groups, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]models.ComponentGroup, error)
}
