// Package engine drives one voice form conversation: it walks the step
// graph, runs the per-kind ask/validate/confirm protocol over a turn
// adapter, and collects answers into the session.
package engine

import (
	"github.com/google/uuid"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateRunning means the session is at some step of the graph
	StateRunning State = iota

	// StateCompleted means a completion step was reached
	StateCompleted

	// StateAborted means a fatal condition ended the session early
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Abort reasons reported on Session.AbortReason.
const (
	AbortUnknownStepType    = "unknown_step_type"
	AbortMissingStep        = "missing_step"
	AbortCaptureUnavailable = "capture_unavailable"
	AbortMaxAttempts        = "max_attempts"
	AbortCanceled           = "canceled"
)

// Session is the mutable state of one conversation. One session per
// respondent; sessions share nothing but the read-only document.
type Session struct {
	// ID is an opaque session token
	ID string

	// FormID is the form being filled
	FormID string

	// CurrentStepID is the step the session is at
	CurrentStepID string

	// Answers holds captured values keyed by each step's map attribute
	Answers map[string]string

	// Visited lists step ids in the order they were entered
	Visited []string

	// State is the lifecycle state
	State State

	// AbortReason is set when State is StateAborted
	AbortReason string
}

// NewSession creates a running session positioned at the given step.
func NewSession(formID, startStepID string) *Session {
	return &Session{
		ID:            uuid.New().String(),
		FormID:        formID,
		CurrentStepID: startStepID,
		Answers:       make(map[string]string),
		State:         StateRunning,
	}
}

func (s *Session) abort(reason string) {
	s.State = StateAborted
	s.AbortReason = reason
}
