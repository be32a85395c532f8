package models

import (
	"time"

	"github.com/google/uuid"

	formmodels "formhub/internal/forms/models"
)

// ResponseStatus is the review state of a submitted response.
//
// NonRestrict marks responses to forms without a review gate (pure anonymous
// collection); they are never reviewed. Archival is modeled with the
// IsArchived flag rather than a status value, so a response keeps its review
// outcome after retirement.
type ResponseStatus string

const (
	StatusPending     ResponseStatus = "pending"
	StatusApproved    ResponseStatus = "approved"
	StatusDeclined    ResponseStatus = "declined"
	StatusNonRestrict ResponseStatus = "non_restrict"
)

// Valid reports whether s is a known status.
func (s ResponseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDeclined, StatusNonRestrict:
		return true
	}
	return false
}

// ReviewDecision reports whether s is a status a reviewer may assign.
func (s ResponseStatus) ReviewDecision() bool {
	return s == StatusApproved || s == StatusDeclined
}

// Answer snapshots one schema field at submission time: the question text is
// copied so later schema edits cannot reinterpret recorded answers.
type Answer struct {
	FieldID  string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Response is one submission to a form. UserID is nil for anonymous
// respondents.
type Response struct {
	ID           uuid.UUID
	FormID       uuid.UUID
	UserID       *uuid.UUID
	Answers      []Answer
	Status       ResponseStatus
	ReviewedBy   *uuid.UUID
	ReviewNote   *string
	ReviewedAt   *time.Time
	IsArchived   bool
	ArchivedBy   *uuid.UUID
	ArchivedAt   *time.Time
	TimeSpentSec *int
	SubmittedAt  time.Time
}

// InitialStatus returns the status a fresh submission receives: forms without
// a review gate collect NonRestrict responses, everything else starts Pending.
func InitialStatus(form *formmodels.Form) ResponseStatus {
	if form.AllowAnonymous {
		return StatusNonRestrict
	}
	return StatusPending
}

// SnapshotAnswers builds the stored answer list from the form's schema and
// the submitted values, defaulting missing answers to empty strings. Answers
// for unknown field ids are dropped.
func SnapshotAnswers(schema []formmodels.SchemaField, submitted map[string]string) []Answer {
	answers := make([]Answer, 0, len(schema))
	for _, field := range schema {
		answers = append(answers, Answer{
			FieldID:  field.ID,
			Question: field.Question(),
			Answer:   submitted[field.ID],
		})
	}
	return answers
}

// RelationshipStatus describes how a response's form relates to another form
// in a pipeline.
type RelationshipStatus string

const (
	RelationshipNone   RelationshipStatus = "none"
	RelationshipParent RelationshipStatus = "parent"
	RelationshipChild  RelationshipStatus = "child"
)
