// Package audit captures lifecycle events emitted from domain logic. Events
// are transport-agnostic; stores and sinks decide persistence and routing.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubjectType classifies what an event is about.
type SubjectType string

const (
	SubjectForm     SubjectType = "form"
	SubjectResponse SubjectType = "response"
	SubjectGroup    SubjectType = "group"
)

// Action names for lifecycle events.
type Action string

const (
	EventFormCreated  Action = "form_created"
	EventFormUpdated  Action = "form_updated"
	EventFormDeleted  Action = "form_deleted"
	EventFormLinked   Action = "form_linked"
	EventFormUnlinked Action = "form_unlinked"

	EventResponseSubmitted Action = "response_submitted"
	EventResponseReviewed  Action = "response_reviewed"
	EventResponseArchived  Action = "response_archived"

	EventGroupCreated Action = "group_created"
	EventGroupUpdated Action = "group_updated"
	EventGroupDeleted Action = "group_deleted"
)

// Event is one audit record. ActorID is nil for anonymous actors.
type Event struct {
	ID          uuid.UUID
	Action      Action
	ActorID     *uuid.UUID
	SubjectType SubjectType
	SubjectID   uuid.UUID
	Detail      map[string]any
	RequestID   string
	OccurredAt  time.Time
}

// Store persists audit events. Implementations must be safe for concurrent
// use.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]Event, error)
}
