package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "formhub/pkg/platform/audit"
	txcontext "formhub/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern:
// events commit atomically with the business writes that produced them and a
// relay worker publishes them to Kafka afterwards.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store writing to the outbox table.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	detail := event.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	encoded, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	query := `
		INSERT INTO audit_outbox (event_id, action, actor_id, subject_type, subject_id, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID, string(event.Action), event.ActorID,
		string(event.SubjectType), event.SubjectID, encoded, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]audit.Event, error) {
	query := `
		SELECT event_id, action, actor_id, subject_type, subject_id, detail, occurred_at
		FROM audit_outbox
		WHERE subject_id = $1
		ORDER BY id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// OutboxRow is one unpublished outbox entry plus its row id for marking.
type OutboxRow struct {
	RowID int64
	Event audit.Event
}

// FetchUnpublished returns up to limit events awaiting publication, oldest
// first.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]OutboxRow, error) {
	query := `
		SELECT id, event_id, action, actor_id, subject_type, subject_id, detail, occurred_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	defer rows.Close()

	out := make([]OutboxRow, 0, limit)
	for rows.Next() {
		var (
			row     OutboxRow
			action  string
			subject string
			actor   uuid.NullUUID
			detail  []byte
		)
		err := rows.Scan(&row.RowID, &row.Event.ID, &action, &actor, &subject,
			&row.Event.SubjectID, &detail, &row.Event.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		row.Event.Action = audit.Action(action)
		row.Event.SubjectType = audit.SubjectType(subject)
		if actor.Valid {
			id := actor.UUID
			row.Event.ActorID = &id
		}
		if err := json.Unmarshal(detail, &row.Event.Detail); err != nil {
			return nil, fmt.Errorf("decode audit detail: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	return out, nil
}

// MarkPublished stamps the given outbox rows as published.
func (s *Store) MarkPublished(ctx context.Context, rowIDs []int64, publishedAt time.Time) error {
	if len(rowIDs) == 0 {
		return nil
	}
	query := `UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2)`
	_, err := s.db.ExecContext(ctx, query, publishedAt, pq.Array(rowIDs))
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	events := make([]audit.Event, 0)
	for rows.Next() {
		var (
			event   audit.Event
			action  string
			subject string
			actor   uuid.NullUUID
			detail  []byte
		)
		err := rows.Scan(&event.ID, &action, &actor, &subject, &event.SubjectID,
			&detail, &event.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.Action(action)
		event.SubjectType = audit.SubjectType(subject)
		if actor.Valid {
			id := actor.UUID
			event.ActorID = &id
		}
		if err := json.Unmarshal(detail, &event.Detail); err != nil {
			return nil, fmt.Errorf("decode audit detail: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}
	return events, nil
}
