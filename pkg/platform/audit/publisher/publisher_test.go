package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "formhub/pkg/platform/audit"
	"formhub/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	formID := uuid.New()
	event := audit.Event{
		Action:      audit.EventFormCreated,
		SubjectType: audit.SubjectForm,
		SubjectID:   formID,
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), formID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventFormCreated, events[0].Action)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.False(t, events[0].OccurredAt.IsZero())
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	responseID := uuid.New()
	event := audit.Event{
		Action:      audit.EventResponseSubmitted,
		SubjectType: audit.SubjectResponse,
		SubjectID:   responseID,
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	// Wait for async processing
	time.Sleep(100 * time.Millisecond)

	events, err := pub.List(context.Background(), responseID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventResponseSubmitted, events[0].Action)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	formID := uuid.New()

	for range 10 {
		event := audit.Event{
			Action:      audit.EventFormUpdated,
			SubjectType: audit.SubjectForm,
			SubjectID:   formID,
		}
		err := pub.Emit(context.Background(), event)
		require.NoError(t, err)
	}

	// Close should drain all events
	pub.Close()

	events, err := store.ListBySubject(context.Background(), formID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	formID := uuid.New()

	// Flood a tiny buffer; emission must never block or error.
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event := audit.Event{
				Action:      audit.EventFormUpdated,
				SubjectType: audit.SubjectForm,
				SubjectID:   formID,
			}
			assert.NoError(t, pub.Emit(context.Background(), event))
		}()
	}
	wg.Wait()

	pub.Close()

	events, err := store.ListBySubject(context.Background(), formID)
	require.NoError(t, err)
	assert.NotEmpty(t, events, "at least one event should survive")
	assert.LessOrEqual(t, len(events), 10)
}

func TestPublisher_CloseTwice(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(4))
	pub.Close()
	pub.Close()
}
