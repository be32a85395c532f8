package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"formhub/internal/responses/models"
	"formhub/internal/storage"
)

// Postgres persists responses in PostgreSQL, transaction-aware through the
// context.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed response store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const responseColumns = `id, form_id, user_id, answers, status, reviewed_by, review_note, reviewed_at, is_archived, archived_by, archived_at, time_spent_sec, submitted_at`

func (s *Postgres) Create(ctx context.Context, response *models.Response) error {
	answers, err := marshalAnswers(response.Answers)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO form_responses (` + responseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = storage.ExecerFor(ctx, s.db).ExecContext(ctx, query,
		response.ID, response.FormID, response.UserID, answers, string(response.Status),
		response.ReviewedBy, response.ReviewNote, response.ReviewedAt,
		response.IsArchived, response.ArchivedBy, response.ArchivedAt,
		response.TimeSpentSec, response.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("create response: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, response *models.Response) error {
	answers, err := marshalAnswers(response.Answers)
	if err != nil {
		return err
	}
	query := `
		UPDATE form_responses SET
			answers = $2,
			status = $3,
			reviewed_by = $4,
			review_note = $5,
			reviewed_at = $6,
			is_archived = $7,
			archived_by = $8,
			archived_at = $9,
			time_spent_sec = $10
		WHERE id = $1
	`
	result, err := storage.ExecerFor(ctx, s.db).ExecContext(ctx, query,
		response.ID, answers, string(response.Status),
		response.ReviewedBy, response.ReviewNote, response.ReviewedAt,
		response.IsArchived, response.ArchivedBy, response.ArchivedAt,
		response.TimeSpentSec,
	)
	if err != nil {
		return fmt.Errorf("update response: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update response: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM form_responses WHERE id = $1`
	row := storage.ExecerFor(ctx, s.db).QueryRowContext(ctx, query, id)
	response, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find response: %w", err)
	}
	return response, nil
}

func (s *Postgres) LatestByFormAndUser(ctx context.Context, formID, userID uuid.UUID, includeArchived bool) (*models.Response, error) {
	query := `
		SELECT ` + responseColumns + `
		FROM form_responses
		WHERE form_id = $1 AND user_id = $2 AND ($3 OR NOT is_archived)
		ORDER BY submitted_at DESC, id
		LIMIT 1
	`
	row := storage.ExecerFor(ctx, s.db).QueryRowContext(ctx, query, formID, userID, includeArchived)
	response, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find latest response: %w", err)
	}
	return response, nil
}

func (s *Postgres) ListByForm(ctx context.Context, formID uuid.UUID, filter ListFilter) ([]models.Response, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + responseColumns + ` FROM form_responses WHERE form_id = $1`)
	args := []any{formID}
	if !filter.IncludeArchived {
		sb.WriteString(" AND NOT is_archived")
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if filter.Anonymous != nil {
		if *filter.Anonymous {
			sb.WriteString(" AND user_id IS NULL")
		} else {
			sb.WriteString(" AND user_id IS NOT NULL")
		}
	}
	sb.WriteString(" ORDER BY submitted_at DESC, id")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := storage.ExecerFor(ctx, s.db).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	responses := make([]models.Response, 0)
	for rows.Next() {
		response, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		responses = append(responses, *response)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return responses, nil
}

func (s *Postgres) CountLive(ctx context.Context, formID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM form_responses WHERE form_id = $1 AND NOT is_archived`
	var count int
	if err := storage.ExecerFor(ctx, s.db).QueryRowContext(ctx, query, formID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (*models.Response, error) {
	var (
		response   models.Response
		answers    []byte
		status     string
		userID     uuid.NullUUID
		reviewedBy uuid.NullUUID
		archivedBy uuid.NullUUID
		reviewNote sql.NullString
		reviewedAt sql.NullTime
		archivedAt sql.NullTime
		timeSpent  sql.NullInt32
	)
	err := row.Scan(&response.ID, &response.FormID, &userID, &answers, &status,
		&reviewedBy, &reviewNote, &reviewedAt, &response.IsArchived,
		&archivedBy, &archivedAt, &timeSpent, &response.SubmittedAt)
	if err != nil {
		return nil, err
	}
	response.Status = models.ResponseStatus(status)
	if userID.Valid {
		id := userID.UUID
		response.UserID = &id
	}
	if reviewedBy.Valid {
		id := reviewedBy.UUID
		response.ReviewedBy = &id
	}
	if archivedBy.Valid {
		id := archivedBy.UUID
		response.ArchivedBy = &id
	}
	if reviewNote.Valid {
		response.ReviewNote = &reviewNote.String
	}
	if reviewedAt.Valid {
		response.ReviewedAt = &reviewedAt.Time
	}
	if archivedAt.Valid {
		response.ArchivedAt = &archivedAt.Time
	}
	if timeSpent.Valid {
		sec := int(timeSpent.Int32)
		response.TimeSpentSec = &sec
	}
	if err := json.Unmarshal(answers, &response.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return &response, nil
}

func marshalAnswers(answers []models.Answer) ([]byte, error) {
	if answers == nil {
		answers = []models.Answer{}
	}
	encoded, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return encoded, nil
}
