//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"formhub/internal/forms/models"
	"formhub/internal/forms/store"
	"formhub/pkg/platform/sentinel"
	"formhub/pkg/testutil/containers"
)

type PostgresFormsSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	forms    *store.PostgresForms
	collabs  *store.PostgresCollaborators
}

func TestPostgresFormsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresFormsSuite))
}

func (s *PostgresFormsSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.forms = store.NewPostgresForms(s.postgres.DB)
	s.collabs = store.NewPostgresCollaborators(s.postgres.DB)
}

func (s *PostgresFormsSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "form_responses", "form_collaborators", "forms")
	s.Require().NoError(err)
}

func newTestForm(title string) *models.Form {
	return &models.Form{
		ID:        uuid.New(),
		Title:     title,
		Schema:    []models.SchemaField{{ID: "f1", Type: "text", Props: map[string]any{"question": "Name?"}}},
		Status:    models.StatusOpen,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func (s *PostgresFormsSuite) TestRoundTrip() {
	ctx := context.Background()
	form := newTestForm("Round trip " + uuid.NewString())
	s.Require().NoError(s.forms.Create(ctx, form))

	found, err := s.forms.FindByID(ctx, form.ID)
	s.Require().NoError(err)
	s.Equal(form.Title, found.Title)
	s.Equal(int64(1), found.RowVersion)
	s.Require().Len(found.Schema, 1)
	s.Equal("Name?", found.Schema[0].Question())
}

func (s *PostgresFormsSuite) TestConcurrentUpdateSingleWinner() {
	ctx := context.Background()
	form := newTestForm("Race " + uuid.NewString())
	s.Require().NoError(s.forms.Create(ctx, form))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			snapshot := *form
			snapshot.Title = "Winner"
			err := s.forms.Update(ctx, &snapshot)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one update should win the version race")
	s.Equal(int32(goroutines-1), conflictCount.Load())

	found, err := s.forms.FindByID(ctx, form.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), found.RowVersion)
}

func (s *PostgresFormsSuite) TestLinkedFormUniqueness() {
	ctx := context.Background()
	child := newTestForm("Child " + uuid.NewString())
	s.Require().NoError(s.forms.Create(ctx, child))

	first := newTestForm("First parent")
	first.LinkedFormID = &child.ID
	s.Require().NoError(s.forms.Create(ctx, first))

	second := newTestForm("Second parent")
	second.LinkedFormID = &child.ID
	err := s.forms.Create(ctx, second)
	s.Require().Error(err, "two live parents must not point at one child")

	parent, err := s.forms.ParentOf(ctx, child.ID)
	s.Require().NoError(err)
	s.Equal(first.ID, parent.ID)
}

func (s *PostgresFormsSuite) TestSingleOwnerConstraint() {
	ctx := context.Background()
	form := newTestForm("Owned " + uuid.NewString())
	s.Require().NoError(s.forms.Create(ctx, form))

	owner := uuid.New()
	s.Require().NoError(s.collabs.Put(ctx, models.Collaborator{FormID: form.ID, UserID: owner, Role: models.RoleOwner}))

	err := s.collabs.Put(ctx, models.Collaborator{FormID: form.ID, UserID: uuid.New(), Role: models.RoleOwner})
	s.Require().Error(err, "a second owner row must violate the partial unique index")

	role, err := s.collabs.RoleOf(ctx, form.ID, owner)
	s.Require().NoError(err)
	s.Equal(models.RoleOwner, role)
}

func (s *PostgresFormsSuite) TestListByUserCountsLiveResponses() {
	ctx := context.Background()
	form := newTestForm("Counted " + uuid.NewString())
	s.Require().NoError(s.forms.Create(ctx, form))

	owner := uuid.New()
	s.Require().NoError(s.collabs.Put(ctx, models.Collaborator{FormID: form.ID, UserID: owner, Role: models.RoleOwner}))

	insert := `
		INSERT INTO form_responses (id, form_id, status, is_archived, submitted_at)
		VALUES ($1, $2, 'pending', $3, now())
	`
	_, err := s.postgres.DB.ExecContext(ctx, insert, uuid.New(), form.ID, false)
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(ctx, insert, uuid.New(), form.ID, true)
	s.Require().NoError(err)

	summaries, err := s.forms.ListByUser(ctx, owner, store.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Equal(1, summaries[0].ResponseCount, "archived responses stay out of the count")
}

func (s *PostgresFormsSuite) TestNotFound() {
	ctx := context.Background()

	_, err := s.forms.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.forms.ParentOf(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)

	ghost := newTestForm("Ghost")
	ghost.RowVersion = 1
	err = s.forms.Update(ctx, ghost)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
