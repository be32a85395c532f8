package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"formhub/internal/forms/models"
	"formhub/internal/storage"
)

// PostgresForms persists forms in PostgreSQL. All reads and writes resolve
// the transaction from the context so unit-of-work callers stay atomic.
type PostgresForms struct {
	db *sql.DB
}

// NewPostgresForms constructs a PostgreSQL-backed form store.
func NewPostgresForms(db *sql.DB) *PostgresForms {
	return &PostgresForms{db: db}
}

const formColumns = `id, title, description, schema, status, allow_anonymous, allow_multiple, linked_form_id, row_version, created_at, updated_at`

func (s *PostgresForms) Create(ctx context.Context, form *models.Form) error {
	schema, err := marshalSchema(form.Schema)
	if err != nil {
		return err
	}
	if form.RowVersion == 0 {
		form.RowVersion = 1
	}
	query := `
		INSERT INTO forms (` + formColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = storage.ExecerFor(ctx, s.db).ExecContext(ctx, query,
		form.ID, form.Title, form.Description, schema, string(form.Status),
		form.AllowAnonymous, form.AllowMultiple, form.LinkedFormID,
		form.RowVersion, form.CreatedAt, form.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create form: %w", err)
	}
	return nil
}

func (s *PostgresForms) Update(ctx context.Context, form *models.Form) error {
	schema, err := marshalSchema(form.Schema)
	if err != nil {
		return err
	}
	query := `
		UPDATE forms SET
			title = $2,
			description = $3,
			schema = $4,
			status = $5,
			allow_anonymous = $6,
			allow_multiple = $7,
			linked_form_id = $8,
			row_version = row_version + 1,
			updated_at = $9
		WHERE id = $1 AND row_version = $10
	`
	result, err := storage.ExecerFor(ctx, s.db).ExecContext(ctx, query,
		form.ID, form.Title, form.Description, schema, string(form.Status),
		form.AllowAnonymous, form.AllowMultiple, form.LinkedFormID,
		form.UpdatedAt, form.RowVersion,
	)
	if err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a lost version race.
		var exists bool
		checkErr := storage.ExecerFor(ctx, s.db).
			QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM forms WHERE id = $1)`, form.ID).
			Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("update form: %w", checkErr)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	form.RowVersion++
	return nil
}

func (s *PostgresForms) FindByID(ctx context.Context, id uuid.UUID) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE id = $1 AND status <> 'deleted'`
	row := storage.ExecerFor(ctx, s.db).QueryRowContext(ctx, query, id)
	form, err := scanForm(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find form: %w", err)
	}
	return form, nil
}

func (s *PostgresForms) ParentOf(ctx context.Context, childID uuid.UUID) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE linked_form_id = $1 AND status <> 'deleted'`
	row := storage.ExecerFor(ctx, s.db).QueryRowContext(ctx, query, childID)
	form, err := scanForm(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find parent form: %w", err)
	}
	return form, nil
}

func (s *PostgresForms) ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]FormSummary, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT f.id, f.title, f.description, f.schema, f.status, f.allow_anonymous,
		       f.allow_multiple, f.linked_form_id, f.row_version, f.created_at, f.updated_at,
		       c.role,
		       (SELECT COUNT(*) FROM form_responses r WHERE r.form_id = f.id AND NOT r.is_archived)
		FROM forms f
		JOIN form_collaborators c ON c.form_id = f.id
		WHERE c.user_id = $1 AND c.role <> 'none' AND f.status <> 'deleted'
	`)
	args := []any{userID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		fmt.Fprintf(&sb, " AND f.title ILIKE $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		fmt.Fprintf(&sb, " AND f.status = $%d", len(args))
	}
	sb.WriteString(" ORDER BY f.created_at DESC, f.id")
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
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	summaries := make([]FormSummary, 0)
	for rows.Next() {
		var (
			form    models.Form
			schema  []byte
			status  string
			role    string
			count   int
			linked  uuid.NullUUID
			updated sql.NullTime
		)
		err := rows.Scan(&form.ID, &form.Title, &form.Description, &schema, &status,
			&form.AllowAnonymous, &form.AllowMultiple, &linked,
			&form.RowVersion, &form.CreatedAt, &updated, &role, &count)
		if err != nil {
			return nil, fmt.Errorf("scan form summary: %w", err)
		}
		form.Status = models.FormStatus(status)
		if linked.Valid {
			id := linked.UUID
			form.LinkedFormID = &id
		}
		if updated.Valid {
			form.UpdatedAt = &updated.Time
		}
		if err := json.Unmarshal(schema, &form.Schema); err != nil {
			return nil, fmt.Errorf("decode form schema: %w", err)
		}
		summaries = append(summaries, FormSummary{
			Form:          form,
			Role:          models.Role(role),
			ResponseCount: count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return summaries, nil
}

func (s *PostgresForms) ListLinkable(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID) ([]models.Form, error) {
	query := `
		SELECT ` + formColumns + `
		FROM forms f
		WHERE f.status = 'open'
		  AND f.id <> $2
		  AND NOT f.allow_anonymous
		  AND f.linked_form_id IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM forms p
			WHERE p.linked_form_id = f.id AND p.status <> 'deleted'
		  )
		  AND EXISTS (
			SELECT 1 FROM form_collaborators c
			WHERE c.form_id = f.id AND c.user_id = $1 AND c.role = 'owner'
		  )
		ORDER BY f.created_at DESC, f.id
	`
	rows, err := storage.ExecerFor(ctx, s.db).QueryContext(ctx, query, userID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list linkable forms: %w", err)
	}
	defer rows.Close()

	forms := make([]models.Form, 0)
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan linkable form: %w", err)
		}
		forms = append(forms, *form)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list linkable forms: %w", err)
	}
	return forms, nil
}

// PostgresCollaborators persists collaborator rows in PostgreSQL.
type PostgresCollaborators struct {
	db *sql.DB
}

// NewPostgresCollaborators constructs a PostgreSQL-backed collaborator store.
func NewPostgresCollaborators(db *sql.DB) *PostgresCollaborators {
	return &PostgresCollaborators{db: db}
}

func (s *PostgresCollaborators) ListByForm(ctx context.Context, formID uuid.UUID) ([]models.Collaborator, error) {
	query := `SELECT form_id, user_id, role FROM form_collaborators WHERE form_id = $1 ORDER BY user_id`
	rows, err := storage.ExecerFor(ctx, s.db).QueryContext(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	collabs := make([]models.Collaborator, 0)
	for rows.Next() {
		var (
			collab models.Collaborator
			role   string
		)
		if err := rows.Scan(&collab.FormID, &collab.UserID, &role); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		collab.Role = models.Role(role)
		collabs = append(collabs, collab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	return collabs, nil
}

func (s *PostgresCollaborators) RoleOf(ctx context.Context, formID, userID uuid.UUID) (models.Role, error) {
	query := `SELECT role FROM form_collaborators WHERE form_id = $1 AND user_id = $2`
	var role string
	err := storage.ExecerFor(ctx, s.db).QueryRowContext(ctx, query, formID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RoleNone, nil
		}
		return models.RoleNone, fmt.Errorf("find collaborator role: %w", err)
	}
	return models.Role(role), nil
}

func (s *PostgresCollaborators) Put(ctx context.Context, collab models.Collaborator) error {
	query := `
		INSERT INTO form_collaborators (form_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (form_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`
	_, err := storage.ExecerFor(ctx, s.db).ExecContext(ctx, query, collab.FormID, collab.UserID, string(collab.Role))
	if err != nil {
		return fmt.Errorf("put collaborator: %w", err)
	}
	return nil
}

func (s *PostgresCollaborators) Delete(ctx context.Context, formID, userID uuid.UUID) error {
	query := `DELETE FROM form_collaborators WHERE form_id = $1 AND user_id = $2`
	_, err := storage.ExecerFor(ctx, s.db).ExecContext(ctx, query, formID, userID)
	if err != nil {
		return fmt.Errorf("delete collaborator: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForm(row rowScanner) (*models.Form, error) {
	var (
		form    models.Form
		schema  []byte
		status  string
		linked  uuid.NullUUID
		updated sql.NullTime
	)
	err := row.Scan(&form.ID, &form.Title, &form.Description, &schema, &status,
		&form.AllowAnonymous, &form.AllowMultiple, &linked,
		&form.RowVersion, &form.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	form.Status = models.FormStatus(status)
	if linked.Valid {
		id := linked.UUID
		form.LinkedFormID = &id
	}
	if updated.Valid {
		form.UpdatedAt = &updated.Time
	}
	if err := json.Unmarshal(schema, &form.Schema); err != nil {
		return nil, fmt.Errorf("decode form schema: %w", err)
	}
	return &form, nil
}

func marshalSchema(schema []models.SchemaField) ([]byte, error) {
	if schema == nil {
		schema = []models.SchemaField{}
	}
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode form schema: %w", err)
	}
	return encoded, nil
}
