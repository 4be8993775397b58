package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgreSQLProvider implements the Provider interface using PostgreSQL
type PostgreSQLProvider struct {
	db              *sql.DB
	formStore       *PostgreSQLFormStore
	submissionStore *PostgreSQLSubmissionStore
	sessionStore    *PostgreSQLSessionStore
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	provider := &PostgreSQLProvider{db: db}
	provider.formStore = &PostgreSQLFormStore{db: db}
	provider.submissionStore = &PostgreSQLSubmissionStore{db: db}
	provider.sessionStore = &PostgreSQLSessionStore{db: db}

	return provider, nil
}

// Initialize sets up the storage backend
func (p *PostgreSQLProvider) Initialize() error {
	if err := p.formStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize form store: %w", err)
	}
	if err := p.submissionStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize submission store: %w", err)
	}
	if err := p.sessionStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}

// FormStore returns a store for form definitions
func (p *PostgreSQLProvider) FormStore() FormStore {
	return p.formStore
}

// SubmissionStore returns a store for submissions
func (p *PostgreSQLProvider) SubmissionStore() SubmissionStore {
	return p.submissionStore
}

// SessionStore returns a store for session snapshots
func (p *PostgreSQLProvider) SessionStore() SessionStore {
	return p.sessionStore
}

// PostgreSQLFormStore implements the FormStore interface using PostgreSQL
type PostgreSQLFormStore struct {
	db *sql.DB
}

// Initialize creates the forms table if it does not exist
func (s *PostgreSQLFormStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS voiceform_forms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT,
			yaml_config TEXT NOT NULL,
			webhook_url TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create forms table: %w", err)
	}
	return nil
}

// SaveForm persists a form definition
func (s *PostgreSQLFormStore) SaveForm(form Form) error {
	now := time.Now().Unix()
	if form.CreatedAt == 0 {
		form.CreatedAt = now
	}

	_, err := s.db.Exec(`
		INSERT INTO voiceform_forms (id, name, slug, yaml_config, webhook_url, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			yaml_config = EXCLUDED.yaml_config,
			webhook_url = EXCLUDED.webhook_url,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`, form.ID, form.Name, form.Slug, form.YAML, form.WebhookURL, form.Active, form.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to save form: %w", err)
	}
	return nil
}

// GetForm retrieves a form by ID
func (s *PostgreSQLFormStore) GetForm(id string) (Form, error) {
	return s.scanForm(s.db.QueryRow(`
		SELECT id, name, slug, yaml_config, webhook_url, is_active, created_at, updated_at
		FROM voiceform_forms WHERE id = $1
	`, id))
}

// GetFormBySlug retrieves a form by slug
func (s *PostgreSQLFormStore) GetFormBySlug(slug string) (Form, error) {
	return s.scanForm(s.db.QueryRow(`
		SELECT id, name, slug, yaml_config, webhook_url, is_active, created_at, updated_at
		FROM voiceform_forms WHERE slug = $1
	`, slug))
}

func (s *PostgreSQLFormStore) scanForm(row *sql.Row) (Form, error) {
	var form Form
	var slug, webhookURL sql.NullString
	err := row.Scan(&form.ID, &form.Name, &slug, &form.YAML, &webhookURL, &form.Active, &form.CreatedAt, &form.UpdatedAt)
	if err == sql.ErrNoRows {
		return Form{}, ErrFormNotFound
	}
	if err != nil {
		return Form{}, fmt.Errorf("failed to get form: %w", err)
	}
	form.Slug = slug.String
	form.WebhookURL = webhookURL.String
	return form, nil
}

// ListForms returns all forms, newest first
func (s *PostgreSQLFormStore) ListForms() ([]Form, error) {
	rows, err := s.db.Query(`
		SELECT id, name, slug, yaml_config, webhook_url, is_active, created_at, updated_at
		FROM voiceform_forms ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	defer rows.Close()

	var forms []Form
	for rows.Next() {
		var form Form
		var slug, webhookURL sql.NullString
		if err := rows.Scan(&form.ID, &form.Name, &slug, &form.YAML, &webhookURL, &form.Active, &form.CreatedAt, &form.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		form.Slug = slug.String
		form.WebhookURL = webhookURL.String
		forms = append(forms, form)
	}
	return forms, rows.Err()
}

// DeleteForm removes a form definition
func (s *PostgreSQLFormStore) DeleteForm(id string) error {
	result, err := s.db.Exec(`DELETE FROM voiceform_forms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete form: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete form: %w", err)
	}
	if affected == 0 {
		return ErrFormNotFound
	}
	return nil
}

// PostgreSQLSubmissionStore implements the SubmissionStore interface
// using PostgreSQL
type PostgreSQLSubmissionStore struct {
	db *sql.DB
}

// Initialize creates the submissions table if it does not exist
func (s *PostgreSQLSubmissionStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS voiceform_submissions (
			id TEXT PRIMARY KEY,
			form_id TEXT NOT NULL,
			answers JSONB NOT NULL,
			submitted_at BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create submissions table: %w", err)
	}
	return nil
}

// SaveSubmission persists a submission
func (s *PostgreSQLSubmissionStore) SaveSubmission(sub Submission) error {
	if sub.SubmittedAt == 0 {
		sub.SubmittedAt = time.Now().Unix()
	}

	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO voiceform_submissions (id, form_id, answers, submitted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, sub.ID, sub.FormID, answers, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by ID
func (s *PostgreSQLSubmissionStore) GetSubmission(id string) (Submission, error) {
	var sub Submission
	var answers []byte
	err := s.db.QueryRow(`
		SELECT id, form_id, answers, submitted_at
		FROM voiceform_submissions WHERE id = $1
	`, id).Scan(&sub.ID, &sub.FormID, &answers, &sub.SubmittedAt)
	if err == sql.ErrNoRows {
		return Submission{}, ErrSubmissionNotFound
	}
	if err != nil {
		return Submission{}, fmt.Errorf("failed to get submission: %w", err)
	}
	if err := json.Unmarshal(answers, &sub.Answers); err != nil {
		return Submission{}, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	return sub, nil
}

// ListSubmissions returns all submissions for a form, oldest first
func (s *PostgreSQLSubmissionStore) ListSubmissions(formID string) ([]Submission, error) {
	rows, err := s.db.Query(`
		SELECT id, form_id, answers, submitted_at
		FROM voiceform_submissions WHERE form_id = $1 ORDER BY submitted_at ASC
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var sub Submission
		var answers []byte
		if err := rows.Scan(&sub.ID, &sub.FormID, &answers, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		if err := json.Unmarshal(answers, &sub.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// PostgreSQLSessionStore implements the SessionStore interface using
// PostgreSQL
type PostgreSQLSessionStore struct {
	db *sql.DB
}

// Initialize creates the sessions table if it does not exist
func (s *PostgreSQLSessionStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS voiceform_sessions (
			id TEXT PRIMARY KEY,
			form_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			answers JSONB NOT NULL,
			state TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

// SaveSession persists a session snapshot
func (s *PostgreSQLSessionStore) SaveSession(rec SessionRecord) error {
	now := time.Now().Unix()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}

	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO voiceform_sessions (id, form_id, step_id, answers, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			step_id = EXCLUDED.step_id,
			answers = EXCLUDED.answers,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, rec.ID, rec.FormID, rec.StepID, answers, rec.State, rec.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session snapshot
func (s *PostgreSQLSessionStore) GetSession(id string) (SessionRecord, error) {
	var rec SessionRecord
	var answers []byte
	err := s.db.QueryRow(`
		SELECT id, form_id, step_id, answers, state, created_at, updated_at
		FROM voiceform_sessions WHERE id = $1
	`, id).Scan(&rec.ID, &rec.FormID, &rec.StepID, &answers, &rec.State, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("failed to get session: %w", err)
	}
	if err := json.Unmarshal(answers, &rec.Answers); err != nil {
		return SessionRecord{}, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	return rec, nil
}

// DeleteSession removes a session snapshot
func (s *PostgreSQLSessionStore) DeleteSession(id string) error {
	result, err := s.db.Exec(`DELETE FROM voiceform_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpired removes sessions not updated within maxAge
func (s *PostgreSQLSessionStore) DeleteExpired(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	result, err := s.db.Exec(`DELETE FROM voiceform_sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(affected), nil
}
