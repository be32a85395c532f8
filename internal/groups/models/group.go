// Package models defines reusable component groups: named schema fragments a
// builder drops into forms.
package models

import (
	"time"

	"github.com/google/uuid"

	formmodels "formhub/internal/forms/models"
)

// ComponentGroup is a reusable bundle of schema fields owned by one user.
type ComponentGroup struct {
	ID          uuid.UUID
	Title       string
	Description string
	Schema      []formmodels.SchemaField
	OwnedBy     uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}
