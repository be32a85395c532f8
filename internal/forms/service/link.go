package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"formhub/internal/forms/models"
	"formhub/internal/forms/store"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

// Link validation failures, surfaced as NotAcceptable outcomes.
var (
	errLinkSelf           = errors.New("a form cannot link to itself")
	errLinkTargetGone     = errors.New("link target not found")
	errLinkTargetClosed   = errors.New("link target must be open")
	errLinkTargetAnon     = errors.New("anonymous forms cannot participate in a link")
	errLinkTargetTaken    = errors.New("link target already has a parent")
	errLinkTargetHasChild = errors.New("link target already has a child of its own")
	errLinkParentIsChild  = errors.New("a child form cannot link to another form")
	errLinkParentLinked   = errors.New("form already has a child, unlink it first")
	errLinkTargetNotOwned = errors.New("linking requires owner role on the target form")
)

// checkLinkTarget validates that childID can become parent's child: the actor
// must own the target, the chain stays at depth 2 and anonymity rules hold.
// Returns nil when the link is admissible.
func (s *Service) checkLinkTarget(ctx context.Context, parent *models.Form, childID uuid.UUID, userID uuid.UUID) error {
	if childID == parent.ID {
		return errLinkSelf
	}
	child, err := s.forms.FindByID(ctx, childID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errLinkTargetGone
		}
		return err
	}
	role, err := s.collabs.RoleOf(ctx, childID, userID)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return errLinkTargetNotOwned
	}
	if !child.IsOpen() {
		return errLinkTargetClosed
	}
	if child.AllowAnonymous {
		return errLinkTargetAnon
	}
	if child.LinkedFormID != nil {
		return errLinkTargetHasChild
	}
	if _, err := s.forms.ParentOf(ctx, childID); err == nil {
		return errLinkTargetTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Link attaches child to parent. Both forms require the Owner role; the child
// inherits the parent's status, collection flags and collaborator set in the
// same transaction.
func (s *Service) Link(ctx context.Context, parentID, childID uuid.UUID, userID uuid.UUID) (outcome.Result[struct{}], error) {
	ctx, span := s.tracer.Start(ctx, "forms.Link",
		trace.WithAttributes(
			attribute.String("form.parent_id", parentID.String()),
			attribute.String("form.child_id", childID.String())))
	defer span.End()

	if userID == uuid.Nil {
		return outcome.Fail[struct{}](outcome.Unauthorized, "authentication required"), nil
	}
	parent, err := s.forms.FindByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome.Fail[struct{}](outcome.NotFound, "form not found"), nil
		}
		return outcome.Result[struct{}]{}, err
	}
	for _, formID := range []uuid.UUID{parentID, childID} {
		role, err := s.collabs.RoleOf(ctx, formID, userID)
		if err != nil {
			return outcome.Result[struct{}]{}, err
		}
		if role != models.RoleOwner {
			return outcome.Fail[struct{}](outcome.NotAuthorized, "linking requires owner role on both forms"), nil
		}
	}
	if parent.AllowAnonymous {
		return outcome.Fail[struct{}](outcome.NotAcceptable, errLinkTargetAnon.Error()), nil
	}
	if parent.LinkedFormID != nil {
		return outcome.Fail[struct{}](outcome.NotAcceptable, errLinkParentLinked.Error()), nil
	}
	if _, err := s.forms.ParentOf(ctx, parentID); err == nil {
		return outcome.Fail[struct{}](outcome.NotAcceptable, errLinkParentIsChild.Error()), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return outcome.Result[struct{}]{}, err
	}

	var result outcome.Result[struct{}]
	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		if rejected := s.checkLinkTarget(txCtx, parent, childID, userID); rejected != nil {
			result = outcome.Fail[struct{}](outcome.NotAcceptable, rejected.Error())
			return errRollback
		}
		child := childID
		parent.LinkedFormID = &child
		now := s.clock()
		parent.UpdatedAt = &now
		if err := s.forms.Update(txCtx, parent); err != nil {
			return err
		}
		return s.syncChild(txCtx, parent)
	})
	if errors.Is(err, errRollback) {
		return result, nil
	}
	if err != nil {
		return outcome.Result[struct{}]{}, err
	}

	if s.metrics != nil {
		s.metrics.IncrementFormsLinked()
	}
	s.emitAudit(ctx, audit.EventFormLinked, audit.SubjectForm, parentID, userID, map[string]any{"childId": childID.String()})
	s.logger.Info("forms linked", "parent_id", parentID, "child_id", childID, "user_id", userID)
	return outcome.Of(outcome.Available, struct{}{}), nil
}

// Unlink detaches a parent's child. Owner only. The child keeps the
// properties it inherited but stops tracking the parent from then on.
func (s *Service) Unlink(ctx context.Context, parentID uuid.UUID, userID uuid.UUID) (outcome.Result[struct{}], error) {
	ctx, span := s.tracer.Start(ctx, "forms.Unlink",
		trace.WithAttributes(attribute.String("form.parent_id", parentID.String())))
	defer span.End()

	if userID == uuid.Nil {
		return outcome.Fail[struct{}](outcome.Unauthorized, "authentication required"), nil
	}
	parent, err := s.forms.FindByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome.Fail[struct{}](outcome.NotFound, "form not found"), nil
		}
		return outcome.Result[struct{}]{}, err
	}
	role, err := s.collabs.RoleOf(ctx, parentID, userID)
	if err != nil {
		return outcome.Result[struct{}]{}, err
	}
	if role != models.RoleOwner {
		return outcome.Fail[struct{}](outcome.NotAuthorized, "unlinking requires owner role"), nil
	}
	if parent.LinkedFormID == nil {
		return outcome.Fail[struct{}](outcome.NotAcceptable, "form has no child to unlink"), nil
	}
	childID := *parent.LinkedFormID

	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		parent.LinkedFormID = nil
		now := s.clock()
		parent.UpdatedAt = &now
		return s.forms.Update(txCtx, parent)
	})
	if err != nil {
		return outcome.Result[struct{}]{}, err
	}

	if s.metrics != nil {
		s.metrics.IncrementFormsUnlinked()
	}
	s.emitAudit(ctx, audit.EventFormUnlinked, audit.SubjectForm, parentID, userID, map[string]any{"childId": childID.String()})
	s.logger.Info("forms unlinked", "parent_id", parentID, "child_id", childID, "user_id", userID)
	return outcome.Of(outcome.Available, struct{}{}), nil
}
