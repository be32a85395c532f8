package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"formhub/internal/forms/models"
	"formhub/internal/forms/store"
	responsemodels "formhub/internal/responses/models"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/sentinel"
)

// DisplayView is what a respondent sees when opening a form: the fillable
// schema plus the pipeline step indicator. ReviewNote and ReviewedAt are only
// set on terminal review outcomes.
type DisplayView struct {
	ID          uuid.UUID            `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Schema      []models.SchemaField `json:"schema,omitempty"`
	Step        int                  `json:"step"`
	ReviewNote  *string              `json:"reviewNote,omitempty"`
	ReviewedAt  *time.Time           `json:"reviewedAt,omitempty"`
}

// displayMaxHops bounds the resolution walk. Chains never exceed depth 2, so
// one hop from a parent to its child covers every reachable state.
const displayMaxHops = 2

// Display resolves what a viewer gets when opening a form: the fillable
// schema, a pending or terminal review state, or a step into the linked
// child. viewerID is uuid.Nil for anonymous visitors.
func (s *Service) Display(ctx context.Context, formID uuid.UUID, viewerID uuid.UUID) (outcome.Result[*DisplayView], error) {
	ctx, span := s.tracer.Start(ctx, "forms.Display",
		trace.WithAttributes(attribute.String("form.id", formID.String())))
	defer span.End()
	start := s.clock()

	result, err := s.resolveDisplay(ctx, formID, viewerID)
	if err != nil {
		return outcome.Result[*DisplayView]{}, err
	}
	s.metrics.ObserveDisplay(start, string(result.Status))
	span.SetAttributes(attribute.String("display.status", string(result.Status)))
	return result, nil
}

func (s *Service) resolveDisplay(ctx context.Context, formID uuid.UUID, viewerID uuid.UUID) (outcome.Result[*DisplayView], error) {
	currentID := formID
	for hop := 0; hop < displayMaxHops; hop++ {
		form, err := s.forms.FindByID(ctx, currentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return outcome.Fail[*DisplayView](outcome.NotFound, "form not found"), nil
			}
			return outcome.Result[*DisplayView]{}, err
		}
		if !form.IsOpen() {
			return outcome.Fail[*DisplayView](outcome.NotFound, "form is not accepting responses"), nil
		}
		if !form.AllowAnonymous && viewerID == uuid.Nil {
			return outcome.Fail[*DisplayView](outcome.Unauthorized, "this form requires signing in"), nil
		}

		hasParent := false
		if parent, err := s.forms.ParentOf(ctx, currentID); err == nil {
			hasParent = true
			parentLatest, err := s.latestOf(ctx, parent.ID, viewerID)
			if err != nil {
				return outcome.Result[*DisplayView]{}, err
			}
			if parentLatest == nil || parentLatest.Status != responsemodels.StatusApproved {
				step := models.PipelineStep(form.LinkedFormID != nil, true, false)
				return outcome.OfMsg(outcome.RequiresParentApproval,
					&DisplayView{ID: form.ID, Title: form.Title, Description: form.Description, Step: step},
					"an approved response to the parent form is required first"), nil
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return outcome.Result[*DisplayView]{}, err
		}

		latest, err := s.latestOf(ctx, currentID, viewerID)
		if err != nil {
			return outcome.Result[*DisplayView]{}, err
		}
		if latest == nil {
			return outcome.Of(outcome.Available, fillableView(form, hasParent, false)), nil
		}

		switch latest.Status {
		case responsemodels.StatusPending:
			step := models.PipelineStep(form.LinkedFormID != nil, hasParent, false)
			return outcome.OfMsg(outcome.PendingApproval,
				&DisplayView{ID: form.ID, Title: form.Title, Description: form.Description, Step: step},
				"your response is awaiting review"), nil
		case responsemodels.StatusApproved:
			if form.LinkedFormID != nil {
				currentID = *form.LinkedFormID
				continue
			}
			if !form.AllowMultiple {
				step := models.PipelineStep(false, hasParent, true)
				return outcome.Of(outcome.Approved, &DisplayView{
					ID: form.ID, Title: form.Title, Description: form.Description,
					Step: step, ReviewNote: latest.ReviewNote, ReviewedAt: latest.ReviewedAt,
				}), nil
			}
			return outcome.Of(outcome.Available, fillableView(form, hasParent, true)), nil
		case responsemodels.StatusDeclined:
			if !form.AllowMultiple {
				step := models.PipelineStep(form.LinkedFormID != nil, hasParent, false)
				return outcome.Of(outcome.Declined, &DisplayView{
					ID: form.ID, Title: form.Title, Description: form.Description,
					Step: step, ReviewNote: latest.ReviewNote, ReviewedAt: latest.ReviewedAt,
				}), nil
			}
			return outcome.Of(outcome.Available, fillableView(form, hasParent, false)), nil
		default: // NonRestrict
			if !form.AllowMultiple {
				step := models.PipelineStep(form.LinkedFormID != nil, hasParent, false)
				return outcome.OfMsg(outcome.Completed,
					&DisplayView{ID: form.ID, Title: form.Title, Description: form.Description, Step: step},
					"you have already responded to this form"), nil
			}
			return outcome.Of(outcome.Available, fillableView(form, hasParent, false)), nil
		}
	}
	return outcome.Fail[*DisplayView](outcome.NotAvailable, "form is not available"), nil
}

// latestOf returns the viewer's newest live response to a form, or nil when
// the viewer is anonymous or has none.
func (s *Service) latestOf(ctx context.Context, formID, viewerID uuid.UUID) (*responsemodels.Response, error) {
	if viewerID == uuid.Nil {
		return nil, nil
	}
	latest, err := s.responses.LatestByFormAndUser(ctx, formID, viewerID, false)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return latest, nil
}

func fillableView(form *models.Form, hasParent, latestApproved bool) *DisplayView {
	return &DisplayView{
		ID:          form.ID,
		Title:       form.Title,
		Description: form.Description,
		Schema:      form.Schema,
		Step:        models.PipelineStep(form.LinkedFormID != nil, hasParent, latestApproved),
	}
}
