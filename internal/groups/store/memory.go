package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	formmodels "formhub/internal/forms/models"
	"formhub/internal/groups/models"
)

// Memory keeps component groups in a map.
type Memory struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]models.ComponentGroup
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{groups: make(map[uuid.UUID]models.ComponentGroup)}
}

func (m *Memory) Create(_ context.Context, group *models.ComponentGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.ID] = cloneGroup(*group)
	return nil
}

func (m *Memory) Update(_ context.Context, group *models.ComponentGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[group.ID]; !ok {
		return ErrNotFound
	}
	m.groups[group.ID] = cloneGroup(*group)
	return nil
}

func (m *Memory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return ErrNotFound
	}
	delete(m.groups, id)
	return nil
}

func (m *Memory) FindByID(_ context.Context, id uuid.UUID) (*models.ComponentGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	group, ok := m.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	g := cloneGroup(group)
	return &g, nil
}

func (m *Memory) ListByOwner(_ context.Context, ownerID uuid.UUID, filter ListFilter) ([]models.ComponentGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ComponentGroup
	for _, group := range m.groups {
		if group.OwnedBy != ownerID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(group.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, cloneGroup(group))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func cloneGroup(group models.ComponentGroup) models.ComponentGroup {
	if group.Schema != nil {
		schema := make([]formmodels.SchemaField, len(group.Schema))
		copy(schema, group.Schema)
		group.Schema = schema
	}
	if group.UpdatedAt != nil {
		at := *group.UpdatedAt
		group.UpdatedAt = &at
	}
	return group
}
