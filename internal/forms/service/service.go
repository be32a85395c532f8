// Package service implements the form lifecycle engine: upserts with
// collaborator reconciliation, parent/child linking with property
// propagation, and the viewer-facing display state machine.
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

	"formhub/internal/forms/metrics"
	"formhub/internal/forms/models"
	"formhub/internal/forms/store"
	identitymodels "formhub/internal/identity/models"
	responsemodels "formhub/internal/responses/models"
	"formhub/internal/storage"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

type FormStore interface {
	Create(ctx context.Context, form *models.Form) error
	Update(ctx context.Context, form *models.Form) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Form, error)
	ParentOf(ctx context.Context, childID uuid.UUID) (*models.Form, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter store.ListFilter) ([]store.FormSummary, error)
	ListLinkable(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID) ([]models.Form, error)
}

type CollaboratorStore interface {
	ListByForm(ctx context.Context, formID uuid.UUID) ([]models.Collaborator, error)
	RoleOf(ctx context.Context, formID, userID uuid.UUID) (models.Role, error)
	Put(ctx context.Context, collab models.Collaborator) error
	Delete(ctx context.Context, formID, userID uuid.UUID) error
}

type ResponseReader interface {
	LatestByFormAndUser(ctx context.Context, formID, userID uuid.UUID, includeArchived bool) (*responsemodels.Response, error)
	CountLive(ctx context.Context, formID uuid.UUID) (int, error)
}

type IdentityLookup interface {
	GetUsers(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]identitymodels.UserSummary
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Clock abstracts time for testability.
type Clock func() time.Time

// Service orchestrates form lifecycle operations.
type Service struct {
	forms     FormStore
	collabs   CollaboratorStore
	responses ResponseReader
	identity  IdentityLookup
	unit      storage.UnitOfWork

	logger  *slog.Logger
	metrics *metrics.Metrics
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
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
func New(forms FormStore, collabs CollaboratorStore, responses ResponseReader, identity IdentityLookup, unit storage.UnitOfWork, opts ...Option) *Service {
	s := &Service{
		forms:     forms,
		collabs:   collabs,
		responses: responses,
		identity:  identity,
		unit:      unit,
		logger:    slog.Default(),
		clock:     time.Now,
		tracer:    otel.Tracer("formhub/forms"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CollaboratorView is one collaborator row enriched with identity data.
type CollaboratorView struct {
	UserID uuid.UUID                  `json:"userId"`
	Role   models.Role                `json:"role"`
	User   identitymodels.UserSummary `json:"user"`
}

// FormAdminView is the full form contract returned to collaborators.
type FormAdminView struct {
	ID             uuid.UUID            `json:"id"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Schema         []models.SchemaField `json:"schema"`
	Status         models.FormStatus    `json:"status"`
	AllowAnonymous bool                 `json:"allowAnonymous"`
	AllowMultiple  bool                 `json:"allowMultiple"`
	LinkedFormID   *uuid.UUID           `json:"linkedFormId,omitempty"`
	IsChildForm    bool                 `json:"isChildForm"`
	CallerRole     models.Role          `json:"callerRole"`
	ResponseCount  int                  `json:"responseCount"`
	Collaborators  []CollaboratorView   `json:"collaborators"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      *time.Time           `json:"updatedAt,omitempty"`
}

// FormSummaryView is one row of a user's form listing.
type FormSummaryView struct {
	ID             uuid.UUID         `json:"id"`
	Title          string            `json:"title"`
	Status         models.FormStatus `json:"status"`
	AllowAnonymous bool              `json:"allowAnonymous"`
	AllowMultiple  bool              `json:"allowMultiple"`
	LinkedFormID   *uuid.UUID        `json:"linkedFormId,omitempty"`
	Role           models.Role       `json:"role"`
	ResponseCount  int               `json:"responseCount"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// LinkableFormView is a candidate child form for linking.
type LinkableFormView struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// GetByID returns the admin contract for a form. Only collaborators may see
// it.
func (s *Service) GetByID(ctx context.Context, formID uuid.UUID, userID uuid.UUID) (outcome.Result[*FormAdminView], error) {
	if userID == uuid.Nil {
		return outcome.Fail[*FormAdminView](outcome.Unauthorized, "authentication required"), nil
	}
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome.Fail[*FormAdminView](outcome.NotFound, "form not found"), nil
		}
		return outcome.Result[*FormAdminView]{}, err
	}
	role, err := s.collabs.RoleOf(ctx, formID, userID)
	if err != nil {
		return outcome.Result[*FormAdminView]{}, err
	}
	if !role.CanView() {
		return outcome.Fail[*FormAdminView](outcome.NotAuthorized, "not a collaborator on this form"), nil
	}

	view, err := s.adminView(ctx, form, role)
	if err != nil {
		return outcome.Result[*FormAdminView]{}, err
	}
	return outcome.Of(outcome.Available, view), nil
}

// ListByUser lists the forms a user collaborates on.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, filter store.ListFilter) (outcome.Result[[]FormSummaryView], error) {
	if userID == uuid.Nil {
		return outcome.Fail[[]FormSummaryView](outcome.Unauthorized, "authentication required"), nil
	}
	summaries, err := s.forms.ListByUser(ctx, userID, filter)
	if err != nil {
		return outcome.Result[[]FormSummaryView]{}, err
	}
	views := make([]FormSummaryView, 0, len(summaries))
	for _, summary := range summaries {
		views = append(views, FormSummaryView{
			ID:             summary.Form.ID,
			Title:          summary.Form.Title,
			Status:         summary.Form.Status,
			AllowAnonymous: summary.Form.AllowAnonymous,
			AllowMultiple:  summary.Form.AllowMultiple,
			LinkedFormID:   summary.Form.LinkedFormID,
			Role:           summary.Role,
			ResponseCount:  summary.ResponseCount,
			CreatedAt:      summary.Form.CreatedAt,
		})
	}
	return outcome.Of(outcome.Available, views), nil
}

// GetLinkableForms lists candidate children for a form: open forms the caller
// owns that are standalone on both sides of a link and do not collect
// anonymously.
func (s *Service) GetLinkableForms(ctx context.Context, formID uuid.UUID, userID uuid.UUID) (outcome.Result[[]LinkableFormView], error) {
	if userID == uuid.Nil {
		return outcome.Fail[[]LinkableFormView](outcome.Unauthorized, "authentication required"), nil
	}
	if _, err := s.forms.FindByID(ctx, formID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome.Fail[[]LinkableFormView](outcome.NotFound, "form not found"), nil
		}
		return outcome.Result[[]LinkableFormView]{}, err
	}
	role, err := s.collabs.RoleOf(ctx, formID, userID)
	if err != nil {
		return outcome.Result[[]LinkableFormView]{}, err
	}
	if !role.CanEdit() {
		return outcome.Fail[[]LinkableFormView](outcome.NotAuthorized, "editing this form requires owner or editor role"), nil
	}

	candidates, err := s.forms.ListLinkable(ctx, userID, formID)
	if err != nil {
		return outcome.Result[[]LinkableFormView]{}, err
	}
	views := make([]LinkableFormView, 0, len(candidates))
	for _, form := range candidates {
		views = append(views, LinkableFormView{ID: form.ID, Title: form.Title})
	}
	return outcome.Of(outcome.Available, views), nil
}

// Delete soft-deletes a form. Owner only. A parent pointing at the deleted
// form is unlinked in the same transaction so no live link dangles.
func (s *Service) Delete(ctx context.Context, formID uuid.UUID, userID uuid.UUID) (outcome.Result[struct{}], error) {
	ctx, span := s.tracer.Start(ctx, "forms.Delete",
		trace.WithAttributes(attribute.String("form.id", formID.String())))
	defer span.End()

	if userID == uuid.Nil {
		return outcome.Fail[struct{}](outcome.Unauthorized, "authentication required"), nil
	}
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome.Fail[struct{}](outcome.NotFound, "form not found"), nil
		}
		return outcome.Result[struct{}]{}, err
	}
	role, err := s.collabs.RoleOf(ctx, formID, userID)
	if err != nil {
		return outcome.Result[struct{}]{}, err
	}
	if role != models.RoleOwner {
		return outcome.Fail[struct{}](outcome.NotAuthorized, "only the owner may delete a form"), nil
	}

	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		form.Status = models.StatusDeleted
		now := s.clock()
		form.UpdatedAt = &now
		if err := s.forms.Update(txCtx, form); err != nil {
			return err
		}
		parent, err := s.forms.ParentOf(txCtx, formID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		parent.LinkedFormID = nil
		parent.UpdatedAt = &now
		return s.forms.Update(txCtx, parent)
	})
	if err != nil {
		return outcome.Result[struct{}]{}, err
	}

	s.emitAudit(ctx, audit.EventFormDeleted, audit.SubjectForm, formID, userID, nil)
	s.logger.Info("form deleted", "form_id", formID, "user_id", userID)
	return outcome.Of(outcome.Available, struct{}{}), nil
}

// adminView materializes the admin contract, resolving collaborator display
// data through the identity service.
func (s *Service) adminView(ctx context.Context, form *models.Form, callerRole models.Role) (*FormAdminView, error) {
	collabs, err := s.collabs.ListByForm(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	count, err := s.responses.CountLive(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	isChild := true
	if _, err := s.forms.ParentOf(ctx, form.ID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		isChild = false
	}

	ids := make([]uuid.UUID, len(collabs))
	for i, c := range collabs {
		ids[i] = c.UserID
	}
	users := s.identity.GetUsers(ctx, ids)

	views := make([]CollaboratorView, len(collabs))
	for i, c := range collabs {
		views[i] = CollaboratorView{UserID: c.UserID, Role: c.Role, User: users[c.UserID]}
	}
	return &FormAdminView{
		ID:             form.ID,
		Title:          form.Title,
		Description:    form.Description,
		Schema:         form.Schema,
		Status:         form.Status,
		AllowAnonymous: form.AllowAnonymous,
		AllowMultiple:  form.AllowMultiple,
		LinkedFormID:   form.LinkedFormID,
		IsChildForm:    isChild,
		CallerRole:     callerRole,
		ResponseCount:  count,
		Collaborators:  views,
		CreatedAt:      form.CreatedAt,
		UpdatedAt:      form.UpdatedAt,
	}, nil
}

func (s *Service) emitAudit(ctx context.Context, action audit.Action, subjectType audit.SubjectType, subjectID uuid.UUID, actorID uuid.UUID, detail map[string]any) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Detail:      detail,
	}
	if actorID != uuid.Nil {
		actor := actorID
		event.ActorID = &actor
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", action, "error", err)
	}
}
