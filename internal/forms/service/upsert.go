package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"formhub/internal/forms/models"
	"formhub/internal/forms/store"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

// UpsertRequest carries the full desired state of a form. A nil Collaborators
// slice leaves the collaborator set untouched; an empty non-nil slice removes
// everyone the caller is allowed to remove.
type UpsertRequest struct {
	ID             *uuid.UUID                 `json:"id,omitempty"`
	Title          string                     `json:"title"`
	Description    string                     `json:"description"`
	Schema         []models.SchemaField       `json:"schema"`
	Status         models.FormStatus          `json:"status"`
	AllowAnonymous bool                       `json:"allowAnonymous"`
	AllowMultiple  bool                       `json:"allowMultiple"`
	LinkedFormID   *uuid.UUID                 `json:"linkedFormId,omitempty"`
	Collaborators  []models.CollaboratorEntry `json:"collaborators,omitempty"`
}

// errRollback aborts the surrounding transaction after a business rejection
// has been captured. It never escapes RunInTx callers.
var errRollback = errors.New("rolled back")

// Upsert creates or rewrites a form. An absent or unknown id takes the create
// path under a fresh id. Child forms are property-locked: their flags, link
// and collaborators only change through the parent.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest, userID uuid.UUID) (outcome.Result[*FormAdminView], error) {
	ctx, span := s.tracer.Start(ctx, "forms.Upsert")
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveUpsert(s.clock())
	}

	if userID == uuid.Nil {
		return outcome.Fail[*FormAdminView](outcome.Unauthorized, "authentication required"), nil
	}
	if req.Status == "" {
		req.Status = models.StatusOpen
	}
	if !req.Status.Valid() || req.Status == models.StatusDeleted {
		return outcome.Fail[*FormAdminView](outcome.NotAcceptable, "invalid form status"), nil
	}
	if err := models.ValidateUpsert(req.AllowAnonymous, req.AllowMultiple, req.Schema, req.LinkedFormID); err != nil {
		return outcome.Fail[*FormAdminView](outcome.NotAcceptable, err.Error()), nil
	}

	var existing *models.Form
	if req.ID != nil {
		form, err := s.forms.FindByID(ctx, *req.ID)
		switch {
		case err == nil:
			existing = form
		case errors.Is(err, store.ErrNotFound):
			// fall through to the create path under a fresh id
		default:
			return outcome.Result[*FormAdminView]{}, err
		}
	}
	if existing == nil {
		return s.create(ctx, req, userID)
	}
	span.SetAttributes(attribute.String("form.id", existing.ID.String()))
	return s.update(ctx, req, existing, userID)
}

func (s *Service) create(ctx context.Context, req UpsertRequest, userID uuid.UUID) (outcome.Result[*FormAdminView], error) {
	form := &models.Form{
		ID:             uuid.New(),
		Title:          req.Title,
		Description:    req.Description,
		Schema:         req.Schema,
		Status:         req.Status,
		AllowAnonymous: req.AllowAnonymous,
		AllowMultiple:  req.AllowMultiple,
		RowVersion:     1,
		CreatedAt:      s.clock(),
	}

	var result outcome.Result[*FormAdminView]
	err := s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		if req.LinkedFormID != nil {
			if rejected := s.checkLinkTarget(txCtx, form, *req.LinkedFormID, userID); rejected != nil {
				result = outcome.Fail[*FormAdminView](outcome.NotAcceptable, rejected.Error())
				return errRollback
			}
			child := *req.LinkedFormID
			form.LinkedFormID = &child
		}
		if err := s.forms.Create(txCtx, form); err != nil {
			return err
		}
		owner := models.Collaborator{FormID: form.ID, UserID: userID, Role: models.RoleOwner}
		if err := s.collabs.Put(txCtx, owner); err != nil {
			return err
		}
		diff := models.ReconcileCollaborators(form.ID, []models.Collaborator{owner}, req.Collaborators, models.RoleOwner)
		if err := s.applyDiff(txCtx, form.ID, diff); err != nil {
			return err
		}
		if form.LinkedFormID != nil {
			if err := s.syncChild(txCtx, form); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errRollback) {
		return result, nil
	}
	if err != nil {
		return outcome.Result[*FormAdminView]{}, err
	}

	if s.metrics != nil {
		s.metrics.IncrementFormsCreated()
		if form.LinkedFormID != nil {
			s.metrics.IncrementFormsLinked()
		}
	}
	s.emitAudit(ctx, audit.EventFormCreated, audit.SubjectForm, form.ID, userID, map[string]any{"title": form.Title})
	if form.LinkedFormID != nil {
		s.emitAudit(ctx, audit.EventFormLinked, audit.SubjectForm, form.ID, userID, map[string]any{"childId": form.LinkedFormID.String()})
	}
	s.logger.Info("form created", "form_id", form.ID, "user_id", userID)

	view, err := s.adminView(ctx, form, models.RoleOwner)
	if err != nil {
		return outcome.Result[*FormAdminView]{}, err
	}
	return outcome.Of(outcome.Available, view), nil
}

func (s *Service) update(ctx context.Context, req UpsertRequest, form *models.Form, userID uuid.UUID) (outcome.Result[*FormAdminView], error) {
	role, err := s.collabs.RoleOf(ctx, form.ID, userID)
	if err != nil {
		return outcome.Result[*FormAdminView]{}, err
	}
	if !role.CanEdit() {
		return outcome.Fail[*FormAdminView](outcome.NotAuthorized, "editing this form requires owner or editor role"), nil
	}

	parent, err := s.forms.ParentOf(ctx, form.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return outcome.Result[*FormAdminView]{}, err
	}
	if parent != nil {
		if rejected := childLockViolation(req, form); rejected != "" {
			return outcome.Fail[*FormAdminView](outcome.NotAcceptable, rejected), nil
		}
	}

	wasLinked := form.LinkedFormID
	linkChanged := !uuidPtrEqual(wasLinked, req.LinkedFormID)

	var result outcome.Result[*FormAdminView]
	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		if linkChanged && req.LinkedFormID != nil {
			if rejected := s.checkLinkTarget(txCtx, form, *req.LinkedFormID, userID); rejected != nil {
				result = outcome.Fail[*FormAdminView](outcome.NotAcceptable, rejected.Error())
				return errRollback
			}
		}

		form.Title = req.Title
		form.Description = req.Description
		form.Schema = req.Schema
		form.Status = req.Status
		form.AllowAnonymous = req.AllowAnonymous
		form.AllowMultiple = req.AllowMultiple
		if linkChanged {
			form.LinkedFormID = nil
			if req.LinkedFormID != nil {
				child := *req.LinkedFormID
				form.LinkedFormID = &child
			}
		}
		now := s.clock()
		form.UpdatedAt = &now
		if err := s.forms.Update(txCtx, form); err != nil {
			return err
		}

		if req.Collaborators != nil {
			current, err := s.collabs.ListByForm(txCtx, form.ID)
			if err != nil {
				return err
			}
			diff := models.ReconcileCollaborators(form.ID, current, req.Collaborators, role)
			if err := s.applyDiff(txCtx, form.ID, diff); err != nil {
				return err
			}
		}

		if form.LinkedFormID != nil {
			return s.syncChild(txCtx, form)
		}
		return nil
	})
	if errors.Is(err, errRollback) {
		return result, nil
	}
	if errors.Is(err, store.ErrVersionConflict) {
		return outcome.Fail[*FormAdminView](outcome.NotAcceptable, "form was modified concurrently, retry"), nil
	}
	if err != nil {
		return outcome.Result[*FormAdminView]{}, err
	}

	if s.metrics != nil && linkChanged {
		if form.LinkedFormID != nil {
			s.metrics.IncrementFormsLinked()
		} else {
			s.metrics.IncrementFormsUnlinked()
		}
	}
	s.emitAudit(ctx, audit.EventFormUpdated, audit.SubjectForm, form.ID, userID, nil)
	if linkChanged {
		if form.LinkedFormID != nil {
			s.emitAudit(ctx, audit.EventFormLinked, audit.SubjectForm, form.ID, userID, map[string]any{"childId": form.LinkedFormID.String()})
		} else if wasLinked != nil {
			s.emitAudit(ctx, audit.EventFormUnlinked, audit.SubjectForm, form.ID, userID, map[string]any{"childId": wasLinked.String()})
		}
	}
	s.logger.Info("form updated", "form_id", form.ID, "user_id", userID)

	view, err := s.adminView(ctx, form, role)
	if err != nil {
		return outcome.Result[*FormAdminView]{}, err
	}
	return outcome.Of(outcome.Available, view), nil
}

// childLockViolation reports which locked aspect of a child form the request
// tries to change, or "" when the request stays within the editable surface
// (title, description, schema).
func childLockViolation(req UpsertRequest, form *models.Form) string {
	switch {
	case req.Status != form.Status:
		return "a linked child form's status is managed by its parent"
	case req.AllowAnonymous != form.AllowAnonymous || req.AllowMultiple != form.AllowMultiple:
		return "a linked child form's collection settings are managed by its parent"
	case !uuidPtrEqual(req.LinkedFormID, form.LinkedFormID):
		return "a linked child form cannot itself link to another form"
	case req.Collaborators != nil:
		return "a linked child form's collaborators are managed by its parent"
	}
	return ""
}

// syncChild pushes the parent's status, collection flags and collaborator set
// onto its child so the pair stays consistent.
func (s *Service) syncChild(ctx context.Context, parent *models.Form) error {
	child, err := s.forms.FindByID(ctx, *parent.LinkedFormID)
	if err != nil {
		return err
	}
	if child.Status != parent.Status || child.AllowAnonymous != parent.AllowAnonymous || child.AllowMultiple != parent.AllowMultiple {
		child.Status = parent.Status
		child.AllowAnonymous = parent.AllowAnonymous
		child.AllowMultiple = parent.AllowMultiple
		now := s.clock()
		child.UpdatedAt = &now
		if err := s.forms.Update(ctx, child); err != nil {
			return err
		}
	}

	parentCollabs, err := s.collabs.ListByForm(ctx, parent.ID)
	if err != nil {
		return err
	}
	childCollabs, err := s.collabs.ListByForm(ctx, child.ID)
	if err != nil {
		return err
	}
	return s.applyDiff(ctx, child.ID, models.MirrorCollaborators(child.ID, parentCollabs, childCollabs))
}

func (s *Service) applyDiff(ctx context.Context, formID uuid.UUID, diff models.CollaboratorDiff) error {
	for _, put := range diff.Puts {
		if err := s.collabs.Put(ctx, put); err != nil {
			return err
		}
	}
	for _, userID := range diff.Deletes {
		if err := s.collabs.Delete(ctx, formID, userID); err != nil {
			return err
		}
	}
	return nil
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
