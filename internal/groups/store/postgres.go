package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	formmodels "formhub/internal/forms/models"
	"formhub/internal/groups/models"
	"formhub/internal/storage"
)

const groupColumns = "id, title, description, schema, owned_by, created_at, updated_at"

// Postgres persists component groups in the component_groups table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres group store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, group *models.ComponentGroup) error {
	schema, err := marshalSchema(group.Schema)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO component_groups (id, title, description, schema, owned_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = storage.ExecerFor(ctx, s.db).ExecContext(ctx, query,
		group.ID, group.Title, group.Description, schema, group.OwnedBy, group.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert component group: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, group *models.ComponentGroup) error {
	schema, err := marshalSchema(group.Schema)
	if err != nil {
		return err
	}
	query := `
		UPDATE component_groups
		SET title = $2, description = $3, schema = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := storage.ExecerFor(ctx, s.db).ExecContext(ctx, query,
		group.ID, group.Title, group.Description, schema, group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update component group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update component group: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := storage.ExecerFor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM component_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete component group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete component group: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.ComponentGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM component_groups WHERE id = $1`
	row := storage.ExecerFor(ctx, s.db).QueryRowContext(ctx, query, id)
	group, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find component group: %w", err)
	}
	return group, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]models.ComponentGroup, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + groupColumns + ` FROM component_groups WHERE owned_by = $1`)
	args := []any{ownerID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		fmt.Fprintf(&sb, " AND title ILIKE $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at DESC, id")
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
		return nil, fmt.Errorf("list component groups: %w", err)
	}
	defer rows.Close()

	var out []models.ComponentGroup
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("list component groups: %w", err)
		}
		out = append(out, *group)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.ComponentGroup, error) {
	var group models.ComponentGroup
	var schema []byte
	var updatedAt sql.NullTime
	err := row.Scan(&group.ID, &group.Title, &group.Description, &schema,
		&group.OwnedBy, &group.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &group.Schema); err != nil {
			return nil, fmt.Errorf("decode schema: %w", err)
		}
	}
	if updatedAt.Valid {
		at := updatedAt.Time
		group.UpdatedAt = &at
	}
	return &group, nil
}

func marshalSchema(schema []formmodels.SchemaField) ([]byte, error) {
	if schema == nil {
		schema = []formmodels.SchemaField{}
	}
	out, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return out, nil
}
