// Package storage provides persistence for forms, submissions, and
// session snapshots.
package storage

import "time"

// Form is a stored voice form definition.
type Form struct {
	// ID of the form
	ID string `json:"id"`

	// Name of the form
	Name string `json:"name"`

	// Slug is an optional short identifier for public URLs
	Slug string `json:"slug,omitempty"`

	// YAML is the flow definition
	YAML string `json:"yaml_config"`

	// WebhookURL receives submissions for this form, if set
	WebhookURL string `json:"webhook_url,omitempty"`

	// Active indicates whether the form accepts sessions
	Active bool `json:"is_active"`

	// CreatedAt is when the form was created (unix seconds)
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is when the form was last updated (unix seconds)
	UpdatedAt int64 `json:"updated_at"`
}

// Submission is one completed answer set for a form.
type Submission struct {
	// ID of the submission
	ID string `json:"id"`

	// FormID is the form this submission belongs to
	FormID string `json:"form_id"`

	// Answers maps step map-keys to captured values
	Answers map[string]string `json:"answers"`

	// SubmittedAt is when the submission arrived (unix seconds)
	SubmittedAt int64 `json:"submitted_at"`
}

// SessionRecord is a snapshot of an in-progress or finished session.
type SessionRecord struct {
	// ID of the session
	ID string `json:"id"`

	// FormID is the form being filled
	FormID string `json:"form_id"`

	// StepID is the step the session is currently at
	StepID string `json:"step_id"`

	// Answers captured so far
	Answers map[string]string `json:"answers"`

	// State is "running", "completed", or "aborted"
	State string `json:"state"`

	// CreatedAt is when the session started (unix seconds)
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is when the session last advanced (unix seconds)
	UpdatedAt int64 `json:"updated_at"`
}

// Provider defines the interface for persistence backends
type Provider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// FormStore returns a store for form definitions
	FormStore() FormStore

	// SubmissionStore returns a store for submissions
	SubmissionStore() SubmissionStore

	// SessionStore returns a store for session snapshots
	SessionStore() SessionStore
}

// FormStore manages form definition persistence
type FormStore interface {
	// SaveForm persists a form definition
	SaveForm(form Form) error

	// GetForm retrieves a form by ID
	GetForm(id string) (Form, error)

	// GetFormBySlug retrieves a form by slug
	GetFormBySlug(slug string) (Form, error)

	// ListForms returns all forms
	ListForms() ([]Form, error)

	// DeleteForm removes a form definition
	DeleteForm(id string) error
}

// SubmissionStore manages submission persistence
type SubmissionStore interface {
	// SaveSubmission persists a submission
	SaveSubmission(sub Submission) error

	// GetSubmission retrieves a submission by ID
	GetSubmission(id string) (Submission, error)

	// ListSubmissions returns all submissions for a form
	ListSubmissions(formID string) ([]Submission, error)
}

// SessionStore manages session snapshot persistence
type SessionStore interface {
	// SaveSession persists a session snapshot
	SaveSession(rec SessionRecord) error

	// GetSession retrieves a session snapshot
	GetSession(id string) (SessionRecord, error)

	// DeleteSession removes a session snapshot
	DeleteSession(id string) error

	// DeleteExpired removes sessions not updated within maxAge and
	// returns how many were removed
	DeleteExpired(maxAge time.Duration) (int, error)
}
