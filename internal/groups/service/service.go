// Package service implements component group management. Groups are private
// to their owner; there is no sharing model.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	formmodels "formhub/internal/forms/models"
	"formhub/internal/groups/models"
	"formhub/internal/groups/store"
	"formhub/internal/storage"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

type GroupStore interface {
	Create(ctx context.Context, group *models.ComponentGroup) error
	Update(ctx context.Context, group *models.ComponentGroup) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ComponentGroup, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter store.ListFilter) ([]models.ComponentGroup, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Clock abstracts time for testability.
type Clock func() time.Time

// Service manages component groups.
type Service struct {
	groups GroupStore
	unit   storage.UnitOfWork

	logger  *slog.Logger
	auditor AuditPublisher
	clock   Clock
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs a Service.
func New(groups GroupStore, unit storage.UnitOfWork, opts ...Option) *Service {
	s := &Service{
		groups: groups,
		logger: slog.Default(),
		clock:  time.Now,
		unit:   unit,
		tracer: otel.Tracer("formhub/groups"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// UpsertRequest carries a group's desired state. An absent ID creates.
type UpsertRequest struct {
	ID          *uuid.UUID               `json:"id,omitempty"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Schema      []formmodels.SchemaField `json:"schema"`
}

// GroupView is the group contract returned to its owner.
type GroupView struct {
	ID          uuid.UUID                `json:"id"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Schema      []formmodels.SchemaField `json:"schema"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   *time.Time               `json:"updatedAt,omitempty"`
}

// Upsert creates or rewrites a group. Only the owner may update.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest, userID uuid.UUID) (outcome.Result[*GroupView], error) {
	ctx, span := s.tracer.Start(ctx, "groups.Upsert")
	defer span.End()

	if userID == uuid.Nil {
		return outcome.Fail[*GroupView](outcome.Unauthorized, "authentication required"), nil
	}
	if req.Title == "" {
		return outcome.Fail[*GroupView](outcome.NotAcceptable, "title is required"), nil
	}

	var existing *models.ComponentGroup
	if req.ID != nil {
		group, err := s.groups.FindByID(ctx, *req.ID)
		switch {
		case err == nil:
			existing = group
		case errors.Is(err, store.ErrNotFound):
			// fall through to the create path under a fresh id
		default:
			return outcome.Result[*GroupView]{}, err
		}
	}

	if existing == nil {
		group := &models.ComponentGroup{
			ID:          uuid.New(),
			Title:       req.Title,
			Description: req.Description,
			Schema:      req.Schema,
			OwnedBy:     userID,
			CreatedAt:   s.clock(),
		}
		err := s.unit.RunInTx(ctx, func(txCtx context.Context) error {
			return s.groups.Create(txCtx, group)
		})
		if err != nil {
			return outcome.Result[*GroupView]{}, err
		}
		s.emitAudit(ctx, audit.EventGroupCreated, group.ID, userID)
		s.logger.Info("component group created", "group_id", group.ID, "user_id", userID)
		return outcome.Of(outcome.Available, groupView(group)), nil
	}

	span.SetAttributes(attribute.String("group.id", existing.ID.String()))
	if existing.OwnedBy != userID {
		return outcome.Fail[*GroupView](outcome.NotAuthorized, "only the owner may edit a component group"), nil
	}
	existing.Title = req.Title
	existing.Description = req.Description
	existing.Schema = req.Schema
	now := s.clock()
	existing.UpdatedAt = &now
	err := s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		return s.groups.Update(txCtx, existing)
	})
	if err != nil {
		return outcome.Result[*GroupView]{}, err
	}
	s.emitAudit(ctx, audit.EventGroupUpdated, existing.ID, userID)
	return outcome.Of(outcome.Available, groupView(existing)), nil
}

// GetByID returns one group to its owner.
func (s *Service) GetByID(ctx context.Context, groupID uuid.UUID, userID uuid.UUID) (outcome.Result[*GroupView], error) {
	if userID == uuid.Nil {
		return outcome.Fail[*GroupView](outcome.Unauthorized, "authentication required"), nil
	}
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome.Fail[*GroupView](outcome.NotFound, "component group not found"), nil
		}
		return outcome.Result[*GroupView]{}, err
	}
	if group.OwnedBy != userID {
		return outcome.Fail[*GroupView](outcome.NotAuthorized, "only the owner may view a component group"), nil
	}
	return outcome.Of(outcome.Available, groupView(group)), nil
}

// List returns the caller's groups, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter store.ListFilter) (outcome.Result[[]GroupView], error) {
	if userID == uuid.Nil {
		return outcome.Fail[[]GroupView](outcome.Unauthorized, "authentication required"), nil
	}
	groups, err := s.groups.ListByOwner(ctx, userID, filter)
	if err != nil {
		return outcome.Result[[]GroupView]{}, err
	}
	views := make([]GroupView, len(groups))
	for i := range groups {
		views[i] = *groupView(&groups[i])
	}
	return outcome.Of(outcome.Available, views), nil
}

// Delete removes a group permanently. Owner only.
func (s *Service) Delete(ctx context.Context, groupID uuid.UUID, userID uuid.UUID) (outcome.Result[struct{}], error) {
	ctx, span := s.tracer.Start(ctx, "groups.Delete",
		trace.WithAttributes(attribute.String("group.id", groupID.String())))
	defer span.End()

	if userID == uuid.Nil {
		return outcome.Fail[struct{}](outcome.Unauthorized, "authentication required"), nil
	}
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome.Fail[struct{}](outcome.NotFound, "component group not found"), nil
		}
		return outcome.Result[struct{}]{}, err
	}
	if group.OwnedBy != userID {
		return outcome.Fail[struct{}](outcome.NotAuthorized, "only the owner may delete a component group"), nil
	}

	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		return s.groups.Delete(txCtx, groupID)
	})
	if err != nil {
		return outcome.Result[struct{}]{}, err
	}
	s.emitAudit(ctx, audit.EventGroupDeleted, groupID, userID)
	s.logger.Info("component group deleted", "group_id", groupID, "user_id", userID)
	return outcome.Of(outcome.Available, struct{}{}), nil
}

func groupView(group *models.ComponentGroup) *GroupView {
	return &GroupView{
		ID:          group.ID,
		Title:       group.Title,
		Description: group.Description,
		Schema:      group.Schema,
		CreatedAt:   group.CreatedAt,
		UpdatedAt:   group.UpdatedAt,
	}
}

func (s *Service) emitAudit(ctx context.Context, action audit.Action, subjectID uuid.UUID, actorID uuid.UUID) {
	if s.auditor == nil {
		return
	}
	actor := actorID
	event := audit.Event{
		Action:      action,
		SubjectType: audit.SubjectGroup,
		SubjectID:   subjectID,
		ActorID:     &actor,
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", action, "error", err)
	}
}
