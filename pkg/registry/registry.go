// Package registry manages stored form definitions and hands validated
// flow documents to the engine.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formversation/voiceform/pkg/flow"
	"github.com/formversation/voiceform/pkg/storage"
)

// Errors returned by the form registry
var (
	ErrFormNotFound = errors.New("form not found")
	ErrFormInactive = errors.New("form is not active")
	ErrInvalidYAML  = errors.New("invalid YAML form definition")
)

// FormInfo describes a stored form without its definition body.
type FormInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug,omitempty"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	Active     bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FormRegistry is the engine's document store boundary.
type FormRegistry interface {
	// Create validates and stores a new form, returning its id
	Create(name, slug, yamlContent, webhookURL string) (string, error)

	// Get retrieves a stored form by id
	Get(id string) (storage.Form, error)

	// Document parses the stored definition of an active form into an
	// immutable flow document
	Document(id string) (*flow.Document, error)

	// List returns all stored forms
	List() ([]FormInfo, error)

	// Update replaces a stored form's definition and settings
	Update(id, name, slug, yamlContent, webhookURL string) error

	// Delete removes a stored form
	Delete(id string) error
}

// FormRegistryService implements the FormRegistry interface
type FormRegistryService struct {
	formStore storage.FormStore
	loader    flow.Loader
}

// NewFormRegistry creates a new form registry service
func NewFormRegistry(formStore storage.FormStore, loader flow.Loader) FormRegistry {
	return &FormRegistryService{
		formStore: formStore,
		loader:    loader,
	}
}

// Create validates and stores a new form definition
func (r *FormRegistryService) Create(name, slug, yamlContent, webhookURL string) (string, error) {
	if err := r.loader.Validate(yamlContent); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	formID := fmt.Sprintf("%s-%d", slugify(name), time.Now().UnixNano())

	form := storage.Form{
		ID:         formID,
		Name:       name,
		Slug:       slug,
		YAML:       yamlContent,
		WebhookURL: webhookURL,
		Active:     true,
	}

	if err := r.formStore.SaveForm(form); err != nil {
		return "", fmt.Errorf("failed to save form: %w", err)
	}

	return formID, nil
}

// Get retrieves a stored form by id
func (r *FormRegistryService) Get(id string) (storage.Form, error) {
	form, err := r.formStore.GetForm(id)
	if errors.Is(err, storage.ErrFormNotFound) {
		// Fall back to slug lookup so public URLs keep working.
		if bySlug, slugErr := r.formStore.GetFormBySlug(id); slugErr == nil {
			return bySlug, nil
		}
		return storage.Form{}, ErrFormNotFound
	}
	if err != nil {
		return storage.Form{}, fmt.Errorf("failed to get form: %w", err)
	}
	return form, nil
}

// Document parses the stored definition of an active form
func (r *FormRegistryService) Document(id string) (*flow.Document, error) {
	form, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !form.Active {
		return nil, ErrFormInactive
	}

	doc, err := r.loader.Parse(form.YAML)
	if err != nil {
		return nil, fmt.Errorf("stored form %s: %w", form.ID, err)
	}
	return doc, nil
}

// List returns all stored forms
func (r *FormRegistryService) List() ([]FormInfo, error) {
	forms, err := r.formStore.ListForms()
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}

	infos := make([]FormInfo, len(forms))
	for i, form := range forms {
		infos[i] = FormInfo{
			ID:         form.ID,
			Name:       form.Name,
			Slug:       form.Slug,
			WebhookURL: form.WebhookURL,
			Active:     form.Active,
			CreatedAt:  time.Unix(form.CreatedAt, 0),
			UpdatedAt:  time.Unix(form.UpdatedAt, 0),
		}
	}
	return infos, nil
}

// Update replaces a stored form's definition and settings
func (r *FormRegistryService) Update(id, name, slug, yamlContent, webhookURL string) error {
	form, err := r.formStore.GetForm(id)
	if errors.Is(err, storage.ErrFormNotFound) {
		return ErrFormNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get form: %w", err)
	}

	if err := r.loader.Validate(yamlContent); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	form.Name = name
	form.Slug = slug
	form.YAML = yamlContent
	form.WebhookURL = webhookURL

	if err := r.formStore.SaveForm(form); err != nil {
		return fmt.Errorf("failed to update form: %w", err)
	}
	return nil
}

// Delete removes a stored form
func (r *FormRegistryService) Delete(id string) error {
	err := r.formStore.DeleteForm(id)
	if errors.Is(err, storage.ErrFormNotFound) {
		return ErrFormNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete form: %w", err)
	}
	return nil
}

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "form"
	}
	return out
}
