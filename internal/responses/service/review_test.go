package service_test

import (
	"github.com/google/uuid"

	formmodels "formhub/internal/forms/models"
	"formhub/internal/responses/models"
	"formhub/internal/responses/service"
	"formhub/internal/responses/store"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

func (s *ResponseServiceSuite) TestUpdateStatus() {
	respondent := uuid.New()

	s.Run("approves with a note", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)
		note := "all documents verified"

		res, err := s.svc.UpdateStatus(s.ctx, submitted.ID, models.StatusApproved, &note, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Approved, res.Status)
		s.Equal(models.StatusApproved, res.Data.Status)
		s.Require().NotNil(res.Data.ReviewNote)
		s.Equal(note, *res.Data.ReviewNote)
		s.Require().NotNil(res.Data.Reviewer)
		s.Equal(s.owner, res.Data.Reviewer.ID)
		s.Equal(s.now, *res.Data.ReviewedAt)
		s.Contains(s.auditActions(submitted.ID), audit.EventResponseReviewed)
	})

	s.Run("declines", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)

		res, err := s.svc.UpdateStatus(s.ctx, submitted.ID, models.StatusDeclined, nil, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.Declined, res.Status)
	})

	s.Run("rejects non-decision statuses", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)

		res, err := s.svc.UpdateStatus(s.ctx, submitted.ID, models.StatusPending, nil, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("non-collaborators cannot review", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)

		res, err := s.svc.UpdateStatus(s.ctx, submitted.ID, models.StatusApproved, nil, uuid.New())
		s.Require().NoError(err)
		s.Equal(outcome.NotAuthorized, res.Status)
	})

	s.Run("unreviewed collection responses are not reviewable", func() {
		form := s.createForm(func(f *formmodels.Form) {
			f.AllowAnonymous = true
			f.AllowMultiple = true
		})
		submitted := s.submit(form.ID, respondent)

		res, err := s.svc.UpdateStatus(s.ctx, submitted.ID, models.StatusApproved, nil, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("archived responses are immutable", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)
		archived, err := s.svc.Archive(s.ctx, submitted.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, archived.Status)

		res, err := s.svc.UpdateStatus(s.ctx, submitted.ID, models.StatusApproved, nil, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})
}

func (s *ResponseServiceSuite) TestArchive() {
	respondent := uuid.New()

	s.Run("pending responses are declined on the way out", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)

		res, err := s.svc.Archive(s.ctx, submitted.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.True(res.Data.IsArchived)
		s.Equal(models.StatusDeclined, res.Data.Status)
		s.Require().NotNil(res.Data.ReviewNote)
		s.Equal("Archived before review", *res.Data.ReviewNote)
		s.Contains(s.auditActions(submitted.ID), audit.EventResponseArchived)
	})

	s.Run("reviewed responses keep their outcome", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)
		approved, err := s.svc.UpdateStatus(s.ctx, submitted.ID, models.StatusApproved, nil, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Approved, approved.Status)

		res, err := s.svc.Archive(s.ctx, submitted.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal(models.StatusApproved, res.Data.Status)
	})

	s.Run("cannot archive twice", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)
		first, err := s.svc.Archive(s.ctx, submitted.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, first.Status)

		res, err := s.svc.Archive(s.ctx, submitted.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("any collaborator may archive", func() {
		viewer := uuid.New()
		form := s.createForm(nil)
		s.Require().NoError(s.forms.Put(s.ctx, formmodels.Collaborator{
			FormID: form.ID, UserID: viewer, Role: formmodels.RoleViewer,
		}))
		submitted := s.submit(form.ID, respondent)

		res, err := s.svc.Archive(s.ctx, submitted.ID, viewer)
		s.Require().NoError(err)
		s.Equal(outcome.Available, res.Status)
		s.True(res.Data.IsArchived)
	})

	s.Run("non-collaborators cannot archive", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)

		res, err := s.svc.Archive(s.ctx, submitted.ID, uuid.New())
		s.Require().NoError(err)
		s.Equal(outcome.NotAuthorized, res.Status)
	})
}

func (s *ResponseServiceSuite) TestGetByID() {
	respondent := uuid.New()

	s.Run("respondent sees their own response", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)

		res, err := s.svc.GetByID(s.ctx, submitted.ID, respondent)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal(models.RelationshipNone, res.Data.RelationshipStatus)
	})

	s.Run("strangers are rejected", func() {
		form := s.createForm(nil)
		submitted := s.submit(form.ID, respondent)

		res, err := s.svc.GetByID(s.ctx, submitted.ID, uuid.New())
		s.Require().NoError(err)
		s.Equal(outcome.NotAuthorized, res.Status)
	})

	s.Run("links parent and child responses of the same respondent", func() {
		parent := s.createForm(nil)
		child := s.createForm(nil)
		parent.LinkedFormID = &child.ID
		s.Require().NoError(s.forms.Update(s.ctx, parent))

		parentResponse := s.submit(parent.ID, respondent)
		approved, err := s.svc.UpdateStatus(s.ctx, parentResponse.ID, models.StatusApproved, nil, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Approved, approved.Status)
		childResponse := s.submit(child.ID, respondent)

		res, err := s.svc.GetByID(s.ctx, parentResponse.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal(models.RelationshipParent, res.Data.RelationshipStatus)
		s.Require().NotNil(res.Data.LinkedResponseID)
		s.Equal(childResponse.ID, *res.Data.LinkedResponseID)

		res, err = s.svc.GetByID(s.ctx, childResponse.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal(models.RelationshipChild, res.Data.RelationshipStatus)
		s.Require().NotNil(res.Data.LinkedResponseID)
		s.Equal(parentResponse.ID, *res.Data.LinkedResponseID)
	})
}

func (s *ResponseServiceSuite) TestListByForm() {
	respondent := uuid.New()
	form := s.createForm(func(f *formmodels.Form) { f.AllowMultiple = true })

	spentFast, spentSlow := 30, 90
	fast, err := s.svc.Submit(s.ctx, form.ID, service.SubmitRequest{TimeSpentSec: &spentFast}, respondent)
	s.Require().NoError(err)
	s.Require().Equal(outcome.PendingApproval, fast.Status)
	decided, err := s.svc.UpdateStatus(s.ctx, fast.Data.ID, models.StatusDeclined, nil, s.owner)
	s.Require().NoError(err)
	s.Require().Equal(outcome.Declined, decided.Status)

	slow, err := s.svc.Submit(s.ctx, form.ID, service.SubmitRequest{TimeSpentSec: &spentSlow}, respondent)
	s.Require().NoError(err)
	s.Require().Equal(outcome.PendingApproval, slow.Status)

	s.Run("collaborator lists responses with averages", func() {
		res, err := s.svc.ListByForm(s.ctx, form.ID, s.owner, store.ListFilter{})
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal(2, res.Data.Total)
		s.Require().NotNil(res.Data.AverageTimeSpentSec)
		s.InDelta(60.0, *res.Data.AverageTimeSpentSec, 0.01)
		for _, view := range res.Data.Responses {
			s.Require().NotNil(view.Respondent)
			s.NotEmpty(view.Respondent.DisplayName)
		}
	})

	s.Run("archived responses drop out of the listing", func() {
		archived, err := s.svc.Archive(s.ctx, slow.Data.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, archived.Status)

		res, err := s.svc.ListByForm(s.ctx, form.ID, s.owner, store.ListFilter{})
		s.Require().NoError(err)
		s.Equal(1, res.Data.Total)

		all, err := s.svc.ListByForm(s.ctx, form.ID, s.owner, store.ListFilter{IncludeArchived: true})
		s.Require().NoError(err)
		s.Equal(2, all.Data.Total)
	})

	s.Run("non-collaborators are rejected", func() {
		res, err := s.svc.ListByForm(s.ctx, form.ID, uuid.New(), store.ListFilter{})
		s.Require().NoError(err)
		s.Equal(outcome.NotAuthorized, res.Status)
	})
}
