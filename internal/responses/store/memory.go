package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"formhub/internal/responses/models"
)

// Memory keeps responses in a map, guarded by a RWMutex.
type Memory struct {
	mu        sync.RWMutex
	responses map[uuid.UUID]models.Response
}

// NewMemory constructs an empty in-memory response store.
func NewMemory() *Memory {
	return &Memory{responses: make(map[uuid.UUID]models.Response)}
}

func (m *Memory) Create(_ context.Context, response *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[response.ID] = cloneResponse(*response)
	return nil
}

func (m *Memory) Update(_ context.Context, response *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.responses[response.ID]; !ok {
		return ErrNotFound
	}
	m.responses[response.ID] = cloneResponse(*response)
	return nil
}

func (m *Memory) FindByID(_ context.Context, id uuid.UUID) (*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	response, ok := m.responses[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneResponse(response)
	return &out, nil
}

func (m *Memory) LatestByFormAndUser(_ context.Context, formID, userID uuid.UUID, includeArchived bool) (*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.Response
	for _, response := range m.responses {
		if response.FormID != formID || response.UserID == nil || *response.UserID != userID {
			continue
		}
		if response.IsArchived && !includeArchived {
			continue
		}
		if latest == nil || response.SubmittedAt.After(latest.SubmittedAt) {
			r := cloneResponse(response)
			latest = &r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *Memory) ListByForm(_ context.Context, formID uuid.UUID, filter ListFilter) ([]models.Response, error) {
	m.mu.RLock()
	out := make([]models.Response, 0)
	for _, response := range m.responses {
		if response.FormID != formID {
			continue
		}
		if response.IsArchived && !filter.IncludeArchived {
			continue
		}
		if filter.Status != nil && response.Status != *filter.Status {
			continue
		}
		if filter.Anonymous != nil && (response.UserID == nil) != *filter.Anonymous {
			continue
		}
		out = append(out, cloneResponse(response))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if filter.Offset >= len(out) {
		return []models.Response{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) CountLive(_ context.Context, formID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, response := range m.responses {
		if response.FormID == formID && !response.IsArchived {
			count++
		}
	}
	return count, nil
}

func cloneResponse(response models.Response) models.Response {
	out := response
	if response.Answers != nil {
		out.Answers = make([]models.Answer, len(response.Answers))
		copy(out.Answers, response.Answers)
	}
	out.UserID = cloneUUIDPtr(response.UserID)
	out.ReviewedBy = cloneUUIDPtr(response.ReviewedBy)
	out.ArchivedBy = cloneUUIDPtr(response.ArchivedBy)
	if response.ReviewNote != nil {
		note := *response.ReviewNote
		out.ReviewNote = &note
	}
	if response.ReviewedAt != nil {
		at := *response.ReviewedAt
		out.ReviewedAt = &at
	}
	if response.ArchivedAt != nil {
		at := *response.ArchivedAt
		out.ArchivedAt = &at
	}
	if response.TimeSpentSec != nil {
		sec := *response.TimeSpentSec
		out.TimeSpentSec = &sec
	}
	return out
}

func cloneUUIDPtr(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	out := *id
	return &out
}
