package service_test

import (
	"github.com/google/uuid"

	"formhub/internal/forms/models"
	"formhub/internal/forms/service"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/audit"
)

func (s *ServiceSuite) TestUpsertCreate() {
	s.Run("creates with the caller as owner", func() {
		created := s.createForm(s.owner, nil)
		s.Require().Len(created.Collaborators, 1)
		s.Equal(s.owner, created.Collaborators[0].UserID)
		s.Equal(models.RoleOwner, created.Collaborators[0].Role)
		s.Equal(models.RoleOwner, created.CallerRole)
		s.Contains(s.auditActions(created.ID), audit.EventFormCreated)
	})

	s.Run("unknown id falls back to the create path", func() {
		phantom := uuid.New()
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			ID: &phantom, Title: "Resurrected", Status: models.StatusOpen,
		}, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.NotEqual(phantom, res.Data.ID)
	})

	s.Run("requested owner grants are clamped to editor", func() {
		other := uuid.New()
		created := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.Collaborators = []models.CollaboratorEntry{{UserID: other, Role: models.RoleOwner}}
		})
		roles := map[uuid.UUID]models.Role{}
		for _, c := range created.Collaborators {
			roles[c.UserID] = c.Role
		}
		s.Equal(models.RoleOwner, roles[s.owner])
		s.Equal(models.RoleEditor, roles[other])
	})

	s.Run("anonymous without multiple is rejected", func() {
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			Title: "Bad", Status: models.StatusOpen, AllowAnonymous: true,
		}, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("anonymous with file field is rejected", func() {
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			Title: "Bad", Status: models.StatusOpen,
			AllowAnonymous: true, AllowMultiple: true,
			Schema: []models.SchemaField{{ID: "f1", Type: models.FieldTypeFile}},
		}, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("cannot create directly in deleted status", func() {
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			Title: "Bad", Status: models.StatusDeleted,
		}, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("unauthenticated caller is rejected", func() {
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{Title: "Nope"}, uuid.Nil)
		s.Require().NoError(err)
		s.Equal(outcome.Unauthorized, res.Status)
	})
}

func (s *ServiceSuite) TestUpsertUpdate() {
	s.Run("editor updates fields", func() {
		editor := uuid.New()
		created := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.Collaborators = []models.CollaboratorEntry{{UserID: editor, Role: models.RoleEditor}}
		})

		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			ID: &created.ID, Title: "Renamed", Description: "now with context",
			Schema: created.Schema, Status: models.StatusClosed,
		}, editor)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal("Renamed", res.Data.Title)
		s.Equal(models.StatusClosed, res.Data.Status)
		s.NotNil(res.Data.UpdatedAt)
		s.Contains(s.auditActions(created.ID), audit.EventFormUpdated)
	})

	s.Run("viewer cannot update", func() {
		viewer := uuid.New()
		created := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.Collaborators = []models.CollaboratorEntry{{UserID: viewer, Role: models.RoleViewer}}
		})
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			ID: &created.ID, Title: "Hijack", Status: created.Status,
		}, viewer)
		s.Require().NoError(err)
		s.Equal(outcome.NotAuthorized, res.Status)
	})

	s.Run("nil collaborators leaves the set untouched", func() {
		editor := uuid.New()
		created := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.Collaborators = []models.CollaboratorEntry{{UserID: editor, Role: models.RoleEditor}}
		})
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			ID: &created.ID, Title: created.Title, Schema: created.Schema, Status: created.Status,
		}, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Len(res.Data.Collaborators, 2)
	})

	s.Run("empty collaborators removes everyone but the owner", func() {
		editor := uuid.New()
		created := s.createForm(s.owner, func(req *service.UpsertRequest) {
			req.Collaborators = []models.CollaboratorEntry{{UserID: editor, Role: models.RoleEditor}}
		})
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			ID: &created.ID, Title: created.Title, Schema: created.Schema, Status: created.Status,
			Collaborators: []models.CollaboratorEntry{},
		}, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Require().Len(res.Data.Collaborators, 1)
		s.Equal(s.owner, res.Data.Collaborators[0].UserID)
	})
}

func (s *ServiceSuite) TestUpsertLinkRequiresChildOwnership() {
	victim := uuid.New()
	target := s.createForm(victim, nil)

	s.Run("create path rejects a target the caller does not own", func() {
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			Title: "Trap", Status: models.StatusOpen, LinkedFormID: &target.ID,
		}, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("update path rejects a target the caller does not own", func() {
		own := s.createForm(s.owner, nil)
		res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
			ID: &own.ID, Title: own.Title, Schema: own.Schema, Status: own.Status,
			LinkedFormID: &target.ID,
		}, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("target form keeps its collaborator set", func() {
		res, err := s.svc.GetByID(s.ctx, target.ID, victim)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.False(res.Data.IsChildForm)
		s.Require().Len(res.Data.Collaborators, 1)
		s.Equal(victim, res.Data.Collaborators[0].UserID)
		s.Equal(models.RoleOwner, res.Data.Collaborators[0].Role)

		res, err = s.svc.GetByID(s.ctx, target.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAuthorized, res.Status)
	})
}

func (s *ServiceSuite) TestUpsertChildLock() {
	parent := s.createForm(s.owner, nil)
	child := s.createForm(s.owner, nil)
	link, err := s.svc.Link(s.ctx, parent.ID, child.ID, s.owner)
	s.Require().NoError(err)
	s.Require().Equal(outcome.Available, link.Status)

	base := service.UpsertRequest{
		ID: &child.ID, Title: child.Title, Schema: child.Schema, Status: models.StatusOpen,
	}

	s.Run("title and schema stay editable", func() {
		req := base
		req.Title = "Stage Two"
		res, err := s.svc.Upsert(s.ctx, req, s.owner)
		s.Require().NoError(err)
		s.Require().Equal(outcome.Available, res.Status)
		s.Equal("Stage Two", res.Data.Title)
	})

	s.Run("status change is rejected", func() {
		req := base
		req.Status = models.StatusClosed
		res, err := s.svc.Upsert(s.ctx, req, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("collection flag change is rejected", func() {
		req := base
		req.AllowMultiple = true
		res, err := s.svc.Upsert(s.ctx, req, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("linking a child onward is rejected", func() {
		grandchild := s.createForm(s.owner, nil)
		req := base
		req.LinkedFormID = &grandchild.ID
		res, err := s.svc.Upsert(s.ctx, req, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})

	s.Run("collaborator edits are rejected", func() {
		req := base
		req.Collaborators = []models.CollaboratorEntry{{UserID: uuid.New(), Role: models.RoleViewer}}
		res, err := s.svc.Upsert(s.ctx, req, s.owner)
		s.Require().NoError(err)
		s.Equal(outcome.NotAcceptable, res.Status)
	})
}

func (s *ServiceSuite) TestUpsertPropagatesToChild() {
	editor := uuid.New()
	parent := s.createForm(s.owner, nil)
	child := s.createForm(s.owner, nil)
	link, err := s.svc.Link(s.ctx, parent.ID, child.ID, s.owner)
	s.Require().NoError(err)
	s.Require().Equal(outcome.Available, link.Status)

	res, err := s.svc.Upsert(s.ctx, service.UpsertRequest{
		ID: &parent.ID, Title: parent.Title, Schema: parent.Schema,
		Status: models.StatusClosed, AllowMultiple: true,
		LinkedFormID:  &child.ID,
		Collaborators: []models.CollaboratorEntry{{UserID: editor, Role: models.RoleEditor}},
	}, s.owner)
	s.Require().NoError(err)
	s.Require().Equal(outcome.Available, res.Status)

	got, err := s.svc.GetByID(s.ctx, child.ID, s.owner)
	s.Require().NoError(err)
	s.Require().Equal(outcome.Available, got.Status)
	s.Equal(models.StatusClosed, got.Data.Status)
	s.True(got.Data.AllowMultiple)
	s.True(got.Data.IsChildForm)

	roles := map[uuid.UUID]models.Role{}
	for _, c := range got.Data.Collaborators {
		roles[c.UserID] = c.Role
	}
	s.Equal(models.RoleEditor, roles[editor])
	s.Equal(models.RoleOwner, roles[s.owner])
}
