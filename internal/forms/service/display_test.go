package service_test

import (
	"time"

	"github.com/google/uuid"

	"formhub/internal/forms/models"
	"formhub/internal/forms/service"
	responsemodels "formhub/internal/responses/models"
	"formhub/pkg/outcome"
)

func (s *ServiceSuite) TestDisplayStandalone() {
	respondent := uuid.New()

	s.Run("unknown form", func() {
		res, err := s.svc.Display(s.ctx, uuid.New(), respondent)
		s.Require().NoError(err)
		s.Equal(outcome.NotFound, res.Status)
	})

	s.Run("closed form is not available", func() {
		closed := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.Status = models.StatusClosed
		})
		res, err := s.svc.Display(s.ctx, closed.ID, respondent)
		s.Require().NoError(err)
		s.Equal(outcome.NotFound, res.Status)
	})

	s.Run("identified form rejects anonymous visitors", func() {
		form := s.createForm(s.owner, nil)
		res, err := s.svc.Display(s.ctx, form.ID, uuid.Nil)
		s.Require().NoError(err)
		s.Equal(outcome.Unauthorized, res.Status)
	})

	s.Run("anonymous form welcomes anonymous visitors", func() {
		form := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.AllowAnonymous = true
			req.AllowMultiple = true
		})
		res, err := s.svc.Display(s.ctx, form.ID, uuid.Nil)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.NotEmpty(res.Data.Schema)
		s.Equal(0, res.Data.Step)
	})

	s.Run("first visit gets the fillable schema", func() {
		form := s.createForm(s.owner, nil)
		res, err := s.svc.Display(s.ctx, form.ID, respondent)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal(form.ID, res.Data.ID)
		s.NotEmpty(res.Data.Schema)
	})

	s.Run("pending response blocks resubmission", func() {
		form := s.createForm(s.owner, nil)
		s.addResponse(form.ID, &respondent, responsemodels.StatusPending, s.now)

		res, err := s.svc.Display(s.ctx, form.ID, respondent)
		s.Require().NoError(err)
		s.Equal(outcome.PendingApproval, res.Status)
		s.Empty(res.Data.Schema)
	})

	s.Run("approved single-shot form is terminal", func() {
		form := s.createForm(s.owner, nil)
		note := "looks good"
		reviewedAt := s.now.Add(time.Hour)
		response := s.addResponse(form.ID, &respondent, responsemodels.StatusApproved, s.now)
		response.ReviewNote = &note
		response.ReviewedAt = &reviewedAt
		s.Require().NoError(s.responses.Update(s.ctx, response))

		res, err := s.svc.Display(s.ctx, form.ID, respondent)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Approved, res.Status)
		s.Require().NotNil(res.Data.ReviewNote)
		s.Equal(note, *res.Data.ReviewNote)
		s.Equal(reviewedAt, *res.Data.ReviewedAt)
	})

	s.Run("declined single-shot form is terminal", func() {
		form := s.createForm(s.owner, nil)
		s.addResponse(form.ID, &respondent, responsemodels.StatusDeclined, s.now)

		res, err := s.svc.Display(s.ctx, form.ID, respondent)
		s.Require().NoError(err)
		s.Equal(outcome.Declined, res.Status)
	})

	s.Run("declined on a multi-response form reopens", func() {
		form := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.AllowMultiple = true
		})
		s.addResponse(form.ID, &respondent, responsemodels.StatusDeclined, s.now)

		res, err := s.svc.Display(s.ctx, form.ID, respondent)
		s.Require().NoError(err)
		s.Equal(outcome.Available, res.Status)
	})

	s.Run("unreviewed single-shot submission completes the form", func() {
		form := s.createForm(s.owner, nil)
		s.addResponse(form.ID, &respondent, responsemodels.StatusNonRestrict, s.now)

		res, err := s.svc.Display(s.ctx, form.ID, respondent)
		s.Require().NoError(err)
		s.Equal(outcome.Completed, res.Status)
	})

	s.Run("archived responses do not count", func() {
		form := s.createForm(s.owner, nil)
		response := s.addResponse(form.ID, &respondent, responsemodels.StatusApproved, s.now)
		response.IsArchived = true
		s.Require().NoError(s.responses.Update(s.ctx, response))

		res, err := s.svc.Display(s.ctx, form.ID, respondent)
		s.Require().NoError(err)
		s.Equal(outcome.Available, res.Status)
	})
}

func (s *ServiceSuite) TestDisplayPipeline() {
	respondent := uuid.New()
	parent := s.createForm(s.owner, func(req *service.UpsertRequest) { req.Title = "Stage One" })
	child := s.createForm(s.owner, func(req *service.UpsertRequest) { req.Title = "Stage Two" })
	link, err := s.svc.Link(s.ctx, parent.ID, child.ID, s.owner)
	s.Require().NoError(err)
	s.Require().Equal(outcome.Available, link.Status)

	s.Run("parent shows stage one before any submission", func() {
		res, err := s.svc.Display(s.ctx, parent.ID, respondent)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal(1, res.Data.Step)
	})

	s.Run("child is locked without an approved parent response", func() {
		res, err := s.svc.Display(s.ctx, child.ID, respondent)
		s.Require().NoError(err)
		s.Equal(outcome.RequiresParentApproval, res.Status)
		s.Equal(2, res.Data.Step)
	})

	s.Run("child stays locked while the parent response is pending", func() {
		pending := s.addResponse(parent.ID, &respondent, responsemodels.StatusPending, s.now)

		res, err := s.svc.Display(s.ctx, child.ID, respondent)
		s.Require().NoError(err)
		s.Equal(outcome.RequiresParentApproval, res.Status)

		pending.Status = responsemodels.StatusApproved
		s.Require().NoError(s.responses.Update(s.ctx, pending))
	})

	s.Run("approved parent response unlocks the child", func() {
		res, err := s.svc.Display(s.ctx, child.ID, respondent)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal(child.ID, res.Data.ID)
		s.Equal(2, res.Data.Step)
	})

	s.Run("opening the parent steps into the child", func() {
		res, err := s.svc.Display(s.ctx, parent.ID, respondent)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal(child.ID, res.Data.ID)
	})

	s.Run("pipeline completes after the child is approved", func() {
		s.addResponse(child.ID, &respondent, responsemodels.StatusApproved, s.now.Add(time.Minute))

		res, err := s.svc.Display(s.ctx, parent.ID, respondent)
		s.Require().NoError(err)
		s.Equal(outcome.Approved, res.Status)
		s.Equal(3, res.Data.Step)
	})
}
