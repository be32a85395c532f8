package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	formstore "formhub/internal/forms/store"
	"formhub/internal/responses/models"
	"formhub/internal/responses/store"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

// SubmitRequest carries a form submission keyed by schema field id.
type SubmitRequest struct {
	Answers      map[string]string `json:"answers"`
	TimeSpentSec *int              `json:"timeSpentSec,omitempty"`
}

// Submit records a response to a form, snapshotting the answers against the
// form's current schema. userID is uuid.Nil for anonymous respondents.
func (s *Service) Submit(ctx context.Context, formID uuid.UUID, req SubmitRequest, userID uuid.UUID) (outcome.Result[*ResponseView], error) {
	ctx, span := s.tracer.Start(ctx, "responses.Submit",
		trace.WithAttributes(attribute.String("form.id", formID.String())))
	defer span.End()
	start := s.clock()
	defer func() { s.metrics.ObserveSubmit(start) }()

	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		if errors.Is(err, formstore.ErrNotFound) {
			return outcome.Fail[*ResponseView](outcome.NotFound, "form not found"), nil
		}
		return outcome.Result[*ResponseView]{}, err
	}
	if !form.IsOpen() {
		return outcome.Fail[*ResponseView](outcome.NotFound, "form is not accepting responses"), nil
	}
	if !form.AllowAnonymous && userID == uuid.Nil {
		return outcome.Fail[*ResponseView](outcome.Unauthorized, "this form requires signing in"), nil
	}

	if parent, err := s.forms.ParentOf(ctx, formID); err == nil {
		if userID == uuid.Nil {
			return outcome.Fail[*ResponseView](outcome.Unauthorized, "this form requires signing in"), nil
		}
		parentLatest, err := s.latestOf(ctx, parent.ID, userID)
		if err != nil {
			return outcome.Result[*ResponseView]{}, err
		}
		if parentLatest == nil || parentLatest.Status != models.StatusApproved {
			return outcome.Fail[*ResponseView](outcome.RequiresParentApproval,
				"an approved response to the parent form is required first"), nil
		}
	} else if !errors.Is(err, formstore.ErrNotFound) {
		return outcome.Result[*ResponseView]{}, err
	}

	if userID != uuid.Nil {
		latest, err := s.latestOf(ctx, formID, userID)
		if err != nil {
			return outcome.Result[*ResponseView]{}, err
		}
		if latest != nil {
			if latest.Status == models.StatusPending {
				return outcome.Fail[*ResponseView](outcome.NotAcceptable, "your previous response is still awaiting review"), nil
			}
			if !form.AllowMultiple && latest.Status != models.StatusDeclined {
				return outcome.Fail[*ResponseView](outcome.NotAcceptable, "you have already responded to this form"), nil
			}
			if !form.AllowMultiple && latest.Status == models.StatusDeclined {
				return outcome.Fail[*ResponseView](outcome.NotAcceptable, "your previous response was declined"), nil
			}
		}
	}

	response := &models.Response{
		ID:           uuid.New(),
		FormID:       formID,
		Answers:      models.SnapshotAnswers(form.Schema, req.Answers),
		Status:       models.InitialStatus(form),
		TimeSpentSec: req.TimeSpentSec,
		SubmittedAt:  s.clock(),
	}
	if userID != uuid.Nil {
		user := userID
		response.UserID = &user
	}

	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		return s.responses.Create(txCtx, response)
	})
	if err != nil {
		return outcome.Result[*ResponseView]{}, err
	}

	s.metrics.IncrementSubmitted(string(response.Status))
	s.emitAudit(ctx, audit.EventResponseSubmitted, response.ID, userID, map[string]any{"formId": formID.String()})
	s.logger.Info("response submitted", "response_id", response.ID, "form_id", formID, "status", response.Status)

	view, err := s.responseView(ctx, response, false)
	if err != nil {
		return outcome.Result[*ResponseView]{}, err
	}
	if response.Status == models.StatusPending {
		return outcome.OfMsg(outcome.PendingApproval, view, "your response is awaiting review"), nil
	}
	return outcome.Of(outcome.Available, view), nil
}

// latestOf returns the user's newest live response to a form, or nil.
func (s *Service) latestOf(ctx context.Context, formID, userID uuid.UUID) (*models.Response, error) {
	latest, err := s.responses.LatestByFormAndUser(ctx, formID, userID, false)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return latest, nil
}
