package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"formhub/internal/responses/models"
	"formhub/internal/responses/store"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

// archivedBeforeReviewNote is stamped on pending responses that get declined
// as a side effect of archival.
const archivedBeforeReviewNote = "Archived before review"

// UpdateStatus records a review decision on a response. The reviewer must be
// a collaborator of the form; archived responses are immutable.
func (s *Service) UpdateStatus(ctx context.Context, responseID uuid.UUID, decision models.ResponseStatus, note *string, reviewerID uuid.UUID) (outcome.Result[*ResponseView], error) {
	ctx, span := s.tracer.Start(ctx, "responses.UpdateStatus",
		trace.WithAttributes(
			attribute.String("response.id", responseID.String()),
			attribute.String("response.decision", string(decision))))
	defer span.End()

	if reviewerID == uuid.Nil {
		return outcome.Fail[*ResponseView](outcome.Unauthorized, "authentication required"), nil
	}
	if !decision.ReviewDecision() {
		return outcome.Fail[*ResponseView](outcome.NotAcceptable, "decision must be approved or declined"), nil
	}
	response, err := s.responses.FindByID(ctx, responseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome.Fail[*ResponseView](outcome.NotFound, "response not found"), nil
		}
		return outcome.Result[*ResponseView]{}, err
	}
	role, err := s.collabs.RoleOf(ctx, response.FormID, reviewerID)
	if err != nil {
		return outcome.Result[*ResponseView]{}, err
	}
	if !role.CanView() {
		return outcome.Fail[*ResponseView](outcome.NotAuthorized, "not a collaborator on this form"), nil
	}
	if response.IsArchived {
		return outcome.Fail[*ResponseView](outcome.NotAcceptable, "archived responses cannot be reviewed"), nil
	}
	if response.Status == models.StatusNonRestrict {
		return outcome.Fail[*ResponseView](outcome.NotAcceptable, "this response is not subject to review"), nil
	}

	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		now := s.clock()
		reviewer := reviewerID
		response.Status = decision
		response.ReviewedBy = &reviewer
		response.ReviewNote = note
		response.ReviewedAt = &now
		return s.responses.Update(txCtx, response)
	})
	if err != nil {
		return outcome.Result[*ResponseView]{}, err
	}

	s.metrics.IncrementReviewed(string(decision))
	s.emitAudit(ctx, audit.EventResponseReviewed, responseID, reviewerID, map[string]any{"decision": string(decision)})
	s.logger.Info("response reviewed", "response_id", responseID, "decision", decision, "reviewer_id", reviewerID)

	view, err := s.responseView(ctx, response, false)
	if err != nil {
		return outcome.Result[*ResponseView]{}, err
	}
	if decision == models.StatusApproved {
		return outcome.Of(outcome.Approved, view), nil
	}
	return outcome.Of(outcome.Declined, view), nil
}

// Archive retires a response from listings and counts. A still-pending
// response is declined on the way out so it never surfaces as reviewable
// again.
func (s *Service) Archive(ctx context.Context, responseID uuid.UUID, userID uuid.UUID) (outcome.Result[*ResponseView], error) {
	ctx, span := s.tracer.Start(ctx, "responses.Archive",
		trace.WithAttributes(attribute.String("response.id", responseID.String())))
	defer span.End()

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
	if !role.CanView() {
		return outcome.Fail[*ResponseView](outcome.NotAuthorized, "not a collaborator on this form"), nil
	}
	if response.IsArchived {
		return outcome.Fail[*ResponseView](outcome.NotAcceptable, "response is already archived"), nil
	}

	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		now := s.clock()
		actor := userID
		if response.Status == models.StatusPending {
			note := archivedBeforeReviewNote
			response.Status = models.StatusDeclined
			response.ReviewedBy = &actor
			response.ReviewNote = &note
			response.ReviewedAt = &now
		}
		response.IsArchived = true
		response.ArchivedBy = &actor
		response.ArchivedAt = &now
		return s.responses.Update(txCtx, response)
	})
	if err != nil {
		return outcome.Result[*ResponseView]{}, err
	}

	s.metrics.IncrementArchived()
	s.emitAudit(ctx, audit.EventResponseArchived, responseID, userID, nil)
	s.logger.Info("response archived", "response_id", responseID, "user_id", userID)

	view, err := s.responseView(ctx, response, false)
	if err != nil {
		return outcome.Result[*ResponseView]{}, err
	}
	return outcome.Of(outcome.Available, view), nil
}
