package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// FormStatus is the publication state of a form. Deleted is a soft delete:
// the row survives but every read path filters it out.
type FormStatus string

const (
	StatusOpen    FormStatus = "open"
	StatusClosed  FormStatus = "closed"
	StatusDeleted FormStatus = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s FormStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusDeleted:
		return true
	}
	return false
}

// SchemaField is one typed field descriptor in a form's schema. Props is an
// opaque JSON-value map; the engine only ever reads the "question" property
// when snapshotting answers.
type SchemaField struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Props map[string]any `json:"props,omitempty"`
}

// FieldTypeFile marks upload fields, which are incompatible with anonymous
// collection.
const FieldTypeFile = "file"

// Question returns the field's question text, or "" when the prop is absent.
func (f SchemaField) Question() string {
	if v, ok := f.Props["question"]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Form is the aggregate root. A form may point at most one child via
// LinkedFormID and be pointed at by at most one parent; chains never exceed
// depth 2.
type Form struct {
	ID             uuid.UUID
	Title          string
	Description    string
	Schema         []SchemaField
	Status         FormStatus
	AllowAnonymous bool
	AllowMultiple  bool
	LinkedFormID   *uuid.UUID
	RowVersion     int64
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// IsOpen reports whether the form currently accepts responses.
func (f *Form) IsOpen() bool { return f.Status == StatusOpen }

// HasFileField reports whether any schema field is an upload field.
func (f *Form) HasFileField() bool {
	return hasFileField(f.Schema)
}

func hasFileField(schema []SchemaField) bool {
	for _, field := range schema {
		if field.Type == FieldTypeFile {
			return true
		}
	}
	return false
}

// Upsert validation failures. The service maps each to a NotAcceptable
// outcome with the error text as the message.
var (
	ErrAnonymousRequiresMultiple = errors.New("anonymous forms must allow multiple responses")
	ErrFileFieldNeedsIdentity    = errors.New("anonymous forms cannot contain file fields")
	ErrAnonymousCannotLink       = errors.New("anonymous forms cannot participate in a link")
)

// ValidateUpsert enforces the flag and schema invariants that hold for every
// stored form at all times.
func ValidateUpsert(allowAnonymous, allowMultiple bool, schema []SchemaField, linkedFormID *uuid.UUID) error {
	if allowAnonymous && !allowMultiple {
		return ErrAnonymousRequiresMultiple
	}
	if allowAnonymous && hasFileField(schema) {
		return ErrFileFieldNeedsIdentity
	}
	if allowAnonymous && linkedFormID != nil {
		return ErrAnonymousCannotLink
	}
	return nil
}
