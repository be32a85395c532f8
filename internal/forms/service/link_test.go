package service_test

import (
	"github.com/google/uuid"

	"formhub/internal/forms/models"
	"formhub/internal/forms/service"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

func (s *ServiceSuite) TestLink() {
	s.Run("owner links two standalone forms", func() {
		parent := s.createForm(s.owner, nil)
		child := s.createForm(s.owner, nil)

		res, err := s.svc.Link(s.ctx, parent.ID, child.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)

		got, err := s.svc.GetByID(s.ctx, parent.ID, s.owner)
		s.Require().NoError(err)
		s.Require().NotNil(got.Data.LinkedFormID)
		s.Equal(child.ID, *got.Data.LinkedFormID)
		s.Contains(s.auditActions(parent.ID), audit.EventFormLinked)
	})

	s.Run("self link is rejected", func() {
		form := s.createForm(s.owner, nil)
		res, err := s.svc.Link(s.ctx, form.ID, form.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("child with a parent cannot be claimed again", func() {
		parent := s.createForm(s.owner, nil)
		child := s.createForm(s.owner, nil)
		other := s.createForm(s.owner, nil)
		first, err := s.svc.Link(s.ctx, parent.ID, child.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, first.Status)

		res, err := s.svc.Link(s.ctx, other.ID, child.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("parent with a child cannot link another", func() {
		parent := s.createForm(s.owner, nil)
		child := s.createForm(s.owner, nil)
		spare := s.createForm(s.owner, nil)
		first, err := s.svc.Link(s.ctx, parent.ID, child.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, first.Status)

		res, err := s.svc.Link(s.ctx, parent.ID, spare.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("chains never exceed depth two", func() {
		top := s.createForm(s.owner, nil)
		mid := s.createForm(s.owner, nil)
		bottom := s.createForm(s.owner, nil)
		first, err := s.svc.Link(s.ctx, top.ID, mid.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, first.Status)

		s.Run("linking below an existing child", func() {
			res, err := s.svc.Link(s.ctx, mid.ID, bottom.ID, s.owner)
			s.Require().NoError(err)
			s.Equal(outcome.NotAcceptable, res.Status)
		})

		s.Run("linking above an existing parent", func() {
			res, err := s.svc.Link(s.ctx, bottom.ID, top.ID, s.owner)
			s.Require().NoError(err)
			s.Equal(outcome.NotAcceptable, res.Status)
		})
	})

	s.Run("anonymous forms cannot participate", func() {
		anon := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.AllowAnonymous = true
			req.AllowMultiple = true
		})
		plain := s.createForm(s.owner, nil)

		res, err := s.svc.Link(s.ctx, anon.ID, plain.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)

		res, err = s.svc.Link(s.ctx, plain.ID, anon.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("requires owner role on both forms", func() {
		parent := s.createForm(s.owner, nil)
		child := s.createForm(uuid.New(), nil)
		res, err := s.svc.Link(s.ctx, parent.ID, child.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAuthorized, res.Status)
	})

	s.Run("closed child is rejected", func() {
		parent := s.createForm(s.owner, nil)
		closed := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.Status = models.StatusClosed
		})
		res, err := s.svc.Link(s.ctx, parent.ID, closed.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("child inherits the parent collaborator set", func() {
		editor := uuid.New()
		parent := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.Collaborators = []models.CollaboratorEntry{{UserID: editor, Role: models.RoleEditor}}
		})
		child := s.createForm(s.owner, nil)

		res, err := s.svc.Link(s.ctx, parent.ID, child.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)

		got, err := s.svc.GetByID(s.ctx, child.ID, editor)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, got.Status)
		s.Equal(models.RoleEditor, got.Data.CallerRole)
	})
}

func (s *ServiceSuite) TestUnlink() {
	s.Run("owner unlinks", func() {
		parent := s.createForm(s.owner, nil)
		child := s.createForm(s.owner, nil)
		link, err := s.svc.Link(s.ctx, parent.ID, child.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, link.Status)

		res, err := s.svc.Unlink(s.ctx, parent.ID, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)

		got, err := s.svc.GetByID(s.ctx, parent.ID, s.owner)
		s.Require().NoError(err)
		s.Nil(got.Data.LinkedFormID)
		s.Contains(s.auditActions(parent.ID), audit.EventFormUnlinked)

		freed, err := s.svc.GetByID(s.ctx, child.ID, s.owner)
		s.Require().NoError(err)
		s.False(freed.Data.IsChildForm)
	})

	s.Run("nothing to unlink", func() {
		form := s.createForm(s.owner, nil)
		res, err := s.svc.Unlink(s.ctx, form.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})
}
