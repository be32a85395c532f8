package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"formhub/internal/forms/models"
)

// ResponseCounter reports live (non-archived) response counts for listings.
type ResponseCounter interface {
	CountLive(ctx context.Context, formID uuid.UUID) (int, error)
}

// Memory keeps forms and collaborator rows in maps. It implements both
// FormStore and CollaboratorStore; listings join the two under one lock the
// way the postgres implementation joins tables.
type Memory struct {
	mu      sync.RWMutex
	forms   map[uuid.UUID]models.Form
	collabs map[uuid.UUID]map[uuid.UUID]models.Role
	counter ResponseCounter
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithResponseCounter wires live response counts into listings.
func WithResponseCounter(counter ResponseCounter) MemoryOption {
	return func(m *Memory) {
		m.counter = counter
	}
}

// NewMemory constructs an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		forms:   make(map[uuid.UUID]models.Form),
		collabs: make(map[uuid.UUID]map[uuid.UUID]models.Role),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Memory) Create(_ context.Context, form *models.Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if form.RowVersion == 0 {
		form.RowVersion = 1
	}
	m.forms[form.ID] = cloneForm(*form)
	return nil
}

func (m *Memory) Update(_ context.Context, form *models.Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.forms[form.ID]
	if !ok {
		return ErrNotFound
	}
	if current.RowVersion != form.RowVersion {
		return ErrVersionConflict
	}
	form.RowVersion++
	m.forms[form.ID] = cloneForm(*form)
	return nil
}

func (m *Memory) FindByID(_ context.Context, id uuid.UUID) (*models.Form, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	form, ok := m.forms[id]
	if !ok || form.Status == models.StatusDeleted {
		return nil, ErrNotFound
	}
	out := cloneForm(form)
	return &out, nil
}

func (m *Memory) ParentOf(_ context.Context, childID uuid.UUID) (*models.Form, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, form := range m.forms {
		if form.Status == models.StatusDeleted {
			continue
		}
		if form.LinkedFormID != nil && *form.LinkedFormID == childID {
			out := cloneForm(form)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]FormSummary, error) {
	m.mu.RLock()
	summaries := make([]FormSummary, 0)
	for formID, roles := range m.collabs {
		role, ok := roles[userID]
		if !ok || !role.CanView() {
			continue
		}
		form, exists := m.forms[formID]
		if !exists || form.Status == models.StatusDeleted {
			continue
		}
		if filter.Status != nil && form.Status != *filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(form.Title), strings.ToLower(filter.Search)) {
			continue
		}
		summaries = append(summaries, FormSummary{Form: cloneForm(form), Role: role})
	}
	m.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Form.CreatedAt.Equal(summaries[j].Form.CreatedAt) {
			return summaries[i].Form.ID.String() < summaries[j].Form.ID.String()
		}
		return summaries[i].Form.CreatedAt.After(summaries[j].Form.CreatedAt)
	})
	summaries = page(summaries, filter.Limit, filter.Offset)

	if m.counter != nil {
		for i := range summaries {
			count, err := m.counter.CountLive(ctx, summaries[i].Form.ID)
			if err != nil {
				return nil, err
			}
			summaries[i].ResponseCount = count
		}
	}
	return summaries, nil
}

func (m *Memory) ListLinkable(_ context.Context, userID uuid.UUID, excludeID uuid.UUID) ([]models.Form, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	linked := make(map[uuid.UUID]bool)
	for _, form := range m.forms {
		if form.Status != models.StatusDeleted && form.LinkedFormID != nil {
			linked[*form.LinkedFormID] = true
		}
	}

	out := make([]models.Form, 0)
	for formID, form := range m.forms {
		if formID == excludeID || form.Status != models.StatusOpen || form.AllowAnonymous {
			continue
		}
		if form.LinkedFormID != nil || linked[formID] {
			continue
		}
		if m.collabs[formID][userID] != models.RoleOwner {
			continue
		}
		out = append(out, cloneForm(form))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ListByForm(_ context.Context, formID uuid.UUID) ([]models.Collaborator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roles := m.collabs[formID]
	out := make([]models.Collaborator, 0, len(roles))
	for userID, role := range roles {
		out = append(out, models.Collaborator{FormID: formID, UserID: userID, Role: role})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

func (m *Memory) RoleOf(_ context.Context, formID, userID uuid.UUID) (models.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	role, ok := m.collabs[formID][userID]
	if !ok {
		return models.RoleNone, nil
	}
	return role, nil
}

func (m *Memory) Put(_ context.Context, collab models.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles, ok := m.collabs[collab.FormID]
	if !ok {
		roles = make(map[uuid.UUID]models.Role)
		m.collabs[collab.FormID] = roles
	}
	roles[collab.UserID] = collab.Role
	return nil
}

func (m *Memory) Delete(_ context.Context, formID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collabs[formID], userID)
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneForm(form models.Form) models.Form {
	out := form
	if form.Schema != nil {
		out.Schema = make([]models.SchemaField, len(form.Schema))
		for i, field := range form.Schema {
			out.Schema[i] = field
			if field.Props != nil {
				props := make(map[string]any, len(field.Props))
				for k, v := range field.Props {
					props[k] = v
				}
				out.Schema[i].Props = props
			}
		}
	}
	if form.LinkedFormID != nil {
		linked := *form.LinkedFormID
		out.LinkedFormID = &linked
	}
	if form.UpdatedAt != nil {
		updated := *form.UpdatedAt
		out.UpdatedAt = &updated
	}
	return out
}
