// Package service implements the response lifecycle: gated submission with
// answer snapshotting, collaborator review, and archival.
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
	formstore "formhub/internal/forms/store"
	identitymodels "formhub/internal/identity/models"
	"formhub/internal/responses/metrics"
	"formhub/internal/responses/models"
	"formhub/internal/responses/store"
	"formhub/internal/storage"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

type ResponseStore interface {
	Create(ctx context.Context, response *models.Response) error
	Update(ctx context.Context, response *models.Response) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Response, error)
	LatestByFormAndUser(ctx context.Context, formID, userID uuid.UUID, includeArchived bool) (*models.Response, error)
	ListByForm(ctx context.Context, formID uuid.UUID, filter store.ListFilter) ([]models.Response, error)
	CountLive(ctx context.Context, formID uuid.UUID) (int, error)
}

type FormReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*formmodels.Form, error)
	ParentOf(ctx context.Context, childID uuid.UUID) (*formmodels.Form, error)
}

type CollaboratorReader interface {
	RoleOf(ctx context.Context, formID, userID uuid.UUID) (formmodels.Role, error)
}

type IdentityLookup interface {
	GetUsers(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]identitymodels.UserSummary
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Clock abstracts time for testability.
type Clock func() time.Time

// Service orchestrates response submission, review and archival.
type Service struct {
	responses ResponseStore
	forms     FormReader
	collabs   CollaboratorReader
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
func New(responses ResponseStore, forms FormReader, collabs CollaboratorReader, identity IdentityLookup, unit storage.UnitOfWork, opts ...Option) *Service {
	s := &Service{
		responses: responses,
		forms:     forms,
		collabs:   collabs,
		identity:  identity,
		unit:      unit,
		logger:    slog.Default(),
		clock:     time.Now,
		tracer:    otel.Tracer("formhub/responses"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ResponseView is one response enriched with identity data and its position
// in a form pipeline.
type ResponseView struct {
	ID                 uuid.UUID                   `json:"id"`
	FormID             uuid.UUID                   `json:"formId"`
	Respondent         *identitymodels.UserSummary `json:"respondent,omitempty"`
	Answers            []models.Answer             `json:"answers"`
	Status             models.ResponseStatus       `json:"status"`
	Reviewer           *identitymodels.UserSummary `json:"reviewer,omitempty"`
	ReviewNote         *string                     `json:"reviewNote,omitempty"`
	ReviewedAt         *time.Time                  `json:"reviewedAt,omitempty"`
	IsArchived         bool                        `json:"isArchived"`
	TimeSpentSec       *int                        `json:"timeSpentSec,omitempty"`
	SubmittedAt        time.Time                   `json:"submittedAt"`
	RelationshipStatus models.RelationshipStatus   `json:"relationshipStatus"`
	LinkedResponseID   *uuid.UUID                  `json:"linkedResponseId,omitempty"`
}

// FormResponsesView is a collaborator's listing of a form's responses.
type FormResponsesView struct {
	FormID              uuid.UUID      `json:"formId"`
	Responses           []ResponseView `json:"responses"`
	Total               int            `json:"total"`
	AverageTimeSpentSec *float64       `json:"averageTimeSpentSec,omitempty"`
}

// GetByID returns one response. Collaborators of the form see any response;
// a registered respondent sees their own.
func (s *Service) GetByID(ctx context.Context, responseID uuid.UUID, userID uuid.UUID) (outcome.Result[*ResponseView], error) {
	if userID == uuid.Nil {
		return outcome.Fail[*ResponseView](outcome.Unauthorized, "authentication required"), nil
	}
	response, err := s.responses.FindByID(ctx, responseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome.Fail[*ResponseView](outcome.NotFound, "response not found"), nil
		}
		return outcome.Result[*ResponseView]{}, err
	}
	role, err := s.collabs.RoleOf(ctx, response.FormID, userID)
	if err != nil {
		return outcome.Result[*ResponseView]{}, err
	}
	isRespondent := response.UserID != nil && *response.UserID == userID
	if !role.CanView() && !isRespondent {
		return outcome.Fail[*ResponseView](outcome.NotAuthorized, "not a collaborator on this form"), nil
	}

	view, err := s.responseView(ctx, response, true)
	if err != nil {
		return outcome.Result[*ResponseView]{}, err
	}
	return outcome.Of(outcome.Available, view), nil
}

// ListByForm lists a form's responses for a collaborator, newest first.
func (s *Service) ListByForm(ctx context.Context, formID uuid.UUID, userID uuid.UUID, filter store.ListFilter) (outcome.Result[*FormResponsesView], error) {
	ctx, span := s.tracer.Start(ctx, "responses.ListByForm",
		trace.WithAttributes(attribute.String("form.id", formID.String())))
	defer span.End()

	if userID == uuid.Nil {
		return outcome.Fail[*FormResponsesView](outcome.Unauthorized, "authentication required"), nil
	}
	if _, err := s.forms.FindByID(ctx, formID); err != nil {
		if errors.Is(err, formstore.ErrNotFound) {
			return outcome.Fail[*FormResponsesView](outcome.NotFound, "form not found"), nil
		}
		return outcome.Result[*FormResponsesView]{}, err
	}
	role, err := s.collabs.RoleOf(ctx, formID, userID)
	if err != nil {
		return outcome.Result[*FormResponsesView]{}, err
	}
	if !role.CanView() {
		return outcome.Fail[*FormResponsesView](outcome.NotAuthorized, "not a collaborator on this form"), nil
	}

	responses, err := s.responses.ListByForm(ctx, formID, filter)
	if err != nil {
		return outcome.Result[*FormResponsesView]{}, err
	}

	ids := make([]uuid.UUID, 0, len(responses)*2)
	for _, r := range responses {
		if r.UserID != nil {
			ids = append(ids, *r.UserID)
		}
		if r.ReviewedBy != nil {
			ids = append(ids, *r.ReviewedBy)
		}
	}
	users := s.identity.GetUsers(ctx, ids)

	views := make([]ResponseView, len(responses))
	var spentTotal, spentCount int
	for i := range responses {
		views[i] = plainView(&responses[i], users)
		if responses[i].TimeSpentSec != nil {
			spentTotal += *responses[i].TimeSpentSec
			spentCount++
		}
	}
	result := &FormResponsesView{FormID: formID, Responses: views, Total: len(views)}
	if spentCount > 0 {
		avg := float64(spentTotal) / float64(spentCount)
		result.AverageTimeSpentSec = &avg
	}
	return outcome.Of(outcome.Available, result), nil
}

// responseView materializes one response with identity enrichment and, when
// asked, its pipeline relationship and the same respondent's linked response.
func (s *Service) responseView(ctx context.Context, response *models.Response, withRelationship bool) (*ResponseView, error) {
	var ids []uuid.UUID
	if response.UserID != nil {
		ids = append(ids, *response.UserID)
	}
	if response.ReviewedBy != nil {
		ids = append(ids, *response.ReviewedBy)
	}
	users := s.identity.GetUsers(ctx, ids)
	view := plainView(response, users)

	if withRelationship {
		relationship, linkedID, err := s.resolveRelationship(ctx, response)
		if err != nil {
			return nil, err
		}
		view.RelationshipStatus = relationship
		view.LinkedResponseID = linkedID
	}
	return &view, nil
}

// resolveRelationship reports whether the response's form is a pipeline
// parent or child, and finds the same respondent's latest response on the
// other side of the link.
func (s *Service) resolveRelationship(ctx context.Context, response *models.Response) (models.RelationshipStatus, *uuid.UUID, error) {
	form, err := s.forms.FindByID(ctx, response.FormID)
	if err != nil {
		if errors.Is(err, formstore.ErrNotFound) {
			return models.RelationshipNone, nil, nil
		}
		return models.RelationshipNone, nil, err
	}

	var counterpartID uuid.UUID
	relationship := models.RelationshipNone
	if form.LinkedFormID != nil {
		relationship = models.RelationshipParent
		counterpartID = *form.LinkedFormID
	} else if parent, err := s.forms.ParentOf(ctx, response.FormID); err == nil {
		relationship = models.RelationshipChild
		counterpartID = parent.ID
	} else if !errors.Is(err, formstore.ErrNotFound) {
		return models.RelationshipNone, nil, err
	}

	if relationship == models.RelationshipNone || response.UserID == nil {
		return relationship, nil, nil
	}
	linked, err := s.responses.LatestByFormAndUser(ctx, counterpartID, *response.UserID, false)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return relationship, nil, nil
		}
		return relationship, nil, err
	}
	linkedID := linked.ID
	return relationship, &linkedID, nil
}

func plainView(response *models.Response, users map[uuid.UUID]identitymodels.UserSummary) ResponseView {
	view := ResponseView{
		ID:                 response.ID,
		FormID:             response.FormID,
		Answers:            response.Answers,
		Status:             response.Status,
		ReviewNote:         response.ReviewNote,
		ReviewedAt:         response.ReviewedAt,
		IsArchived:         response.IsArchived,
		TimeSpentSec:       response.TimeSpentSec,
		SubmittedAt:        response.SubmittedAt,
		RelationshipStatus: models.RelationshipNone,
	}
	if response.UserID != nil {
		if user, ok := users[*response.UserID]; ok {
			view.Respondent = &user
		}
	}
	if response.ReviewedBy != nil {
		if user, ok := users[*response.ReviewedBy]; ok {
			view.Reviewer = &user
		}
	}
	return view
}

func (s *Service) emitAudit(ctx context.Context, action audit.Action, subjectID uuid.UUID, actorID uuid.UUID, detail map[string]any) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Action:      action,
		SubjectType: audit.SubjectResponse,
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
