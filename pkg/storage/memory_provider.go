package storage

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Errors returned by storage backends
var (
	ErrFormNotFound       = errors.New("form not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrSessionNotFound    = errors.New("session not found")
)

// MemoryProvider implements the Provider interface using in-memory storage
type MemoryProvider struct {
	formStore       *MemoryFormStore
	submissionStore *MemorySubmissionStore
	sessionStore    *MemorySessionStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		formStore:       NewMemoryFormStore(),
		submissionStore: NewMemorySubmissionStore(),
		sessionStore:    NewMemorySessionStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error {
	// Nothing to initialize for in-memory storage
	return nil
}

// Close cleans up resources
func (p *MemoryProvider) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// FormStore returns a store for form definitions
func (p *MemoryProvider) FormStore() FormStore {
	return p.formStore
}

// SubmissionStore returns a store for submissions
func (p *MemoryProvider) SubmissionStore() SubmissionStore {
	return p.submissionStore
}

// SessionStore returns a store for session snapshots
func (p *MemoryProvider) SessionStore() SessionStore {
	return p.sessionStore
}

// MemoryFormStore implements the FormStore interface using in-memory storage
type MemoryFormStore struct {
	forms map[string]Form
	mu    sync.RWMutex
}

// NewMemoryFormStore creates a new in-memory form store
func NewMemoryFormStore() *MemoryFormStore {
	return &MemoryFormStore{
		forms: make(map[string]Form),
	}
}

// SaveForm persists a form definition
func (s *MemoryFormStore) SaveForm(form Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.forms[form.ID]; ok {
		form.CreatedAt = existing.CreatedAt
	} else if form.CreatedAt == 0 {
		form.CreatedAt = time.Now().Unix()
	}
	form.UpdatedAt = time.Now().Unix()

	s.forms[form.ID] = form
	return nil
}

// GetForm retrieves a form by ID
func (s *MemoryFormStore) GetForm(id string) (Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	form, ok := s.forms[id]
	if !ok {
		return Form{}, ErrFormNotFound
	}
	return form, nil
}

// GetFormBySlug retrieves a form by slug
func (s *MemoryFormStore) GetFormBySlug(slug string) (Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, form := range s.forms {
		if form.Slug != "" && form.Slug == slug {
			return form, nil
		}
	}
	return Form{}, ErrFormNotFound
}

// ListForms returns all forms, newest first
func (s *MemoryFormStore) ListForms() ([]Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	forms := make([]Form, 0, len(s.forms))
	for _, form := range s.forms {
		forms = append(forms, form)
	}
	sort.Slice(forms, func(i, j int) bool {
		return forms[i].CreatedAt > forms[j].CreatedAt
	})
	return forms, nil
}

// DeleteForm removes a form definition
func (s *MemoryFormStore) DeleteForm(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.forms[id]; !ok {
		return ErrFormNotFound
	}
	delete(s.forms, id)
	return nil
}

// MemorySubmissionStore implements the SubmissionStore interface using
// in-memory storage
type MemorySubmissionStore struct {
	submissions map[string]Submission
	byForm      map[string][]string
	mu          sync.RWMutex
}

// NewMemorySubmissionStore creates a new in-memory submission store
func NewMemorySubmissionStore() *MemorySubmissionStore {
	return &MemorySubmissionStore{
		submissions: make(map[string]Submission),
		byForm:      make(map[string][]string),
	}
}

// SaveSubmission persists a submission
func (s *MemorySubmissionStore) SaveSubmission(sub Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.SubmittedAt == 0 {
		sub.SubmittedAt = time.Now().Unix()
	}

	if _, ok := s.submissions[sub.ID]; !ok {
		s.byForm[sub.FormID] = append(s.byForm[sub.FormID], sub.ID)
	}
	s.submissions[sub.ID] = sub
	return nil
}

// GetSubmission retrieves a submission by ID
func (s *MemorySubmissionStore) GetSubmission(id string) (Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return Submission{}, ErrSubmissionNotFound
	}
	return sub, nil
}

// ListSubmissions returns all submissions for a form, in arrival order
func (s *MemorySubmissionStore) ListSubmissions(formID string) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byForm[formID]
	subs := make([]Submission, 0, len(ids))
	for _, id := range ids {
		if sub, ok := s.submissions[id]; ok {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// MemorySessionStore implements the SessionStore interface using
// in-memory storage
type MemorySessionStore struct {
	sessions map[string]SessionRecord
	mu       sync.RWMutex
}

// NewMemorySessionStore creates a new in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]SessionRecord),
	}
}

// SaveSession persists a session snapshot
func (s *MemorySessionStore) SaveSession(rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	rec.UpdatedAt = time.Now().Unix()

	s.sessions[rec.ID] = rec
	return nil
}

// GetSession retrieves a session snapshot
func (s *MemorySessionStore) GetSession(id string) (SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return SessionRecord{}, ErrSessionNotFound
	}
	return rec, nil
}

// DeleteSession removes a session snapshot
func (s *MemorySessionStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// DeleteExpired removes sessions not updated within maxAge
func (s *MemorySessionStore) DeleteExpired(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).Unix()
	removed := 0
	for id, rec := range s.sessions {
		if rec.UpdatedAt < cutoff {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
