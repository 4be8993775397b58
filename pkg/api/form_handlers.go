package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/formversation/voiceform/pkg/registry"
)

type formRequest struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	YAML       string `json:"yaml_config"`
	WebhookURL string `json:"webhook_url"`
}

// handleListForms handles listing stored forms
func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	forms, err := s.formRegistry.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list forms")
		return
	}
	writeJSON(w, http.StatusOK, forms)
}

// handleCreateForm handles form creation
func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.YAML == "" {
		writeError(w, http.StatusBadRequest, "name and yaml_config are required")
		return
	}

	formID, err := s.formRegistry.Create(req.Name, req.Slug, req.YAML, req.WebhookURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": formID})
}

// handleGetForm handles retrieving a form, by id or slug
func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	form, err := s.formRegistry.Get(mux.Vars(r)["id"])
	if errors.Is(err, registry.ErrFormNotFound) {
		writeError(w, http.StatusNotFound, "Form not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get form")
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// handleUpdateForm handles replacing a form definition
func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.formRegistry.Update(mux.Vars(r)["id"], req.Name, req.Slug, req.YAML, req.WebhookURL)
	if errors.Is(err, registry.ErrFormNotFound) {
		writeError(w, http.StatusNotFound, "Form not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleDeleteForm handles removing a form
func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	err := s.formRegistry.Delete(mux.Vars(r)["id"])
	if errors.Is(err, registry.ErrFormNotFound) {
		writeError(w, http.StatusNotFound, "Form not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete form")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListSubmissions handles listing a form's submissions
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	form, err := s.formRegistry.Get(mux.Vars(r)["id"])
	if errors.Is(err, registry.ErrFormNotFound) {
		writeError(w, http.StatusNotFound, "Form not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get form")
		return
	}

	subs, err := s.submissions.ListSubmissions(form.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list submissions")
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// handleDirectSubmit accepts a completed answer set without a voice
// session, for clients that collected answers themselves.
func (s *Server) handleDirectSubmit(w http.ResponseWriter, r *http.Request) {
	form, err := s.formRegistry.Get(mux.Vars(r)["id"])
	if errors.Is(err, registry.ErrFormNotFound) {
		writeError(w, http.StatusNotFound, "Form not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get form")
		return
	}
	if !form.Active {
		writeError(w, http.StatusConflict, "Form is not active")
		return
	}

	var req struct {
		Answers map[string]string `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "answers are required")
		return
	}

	// Same delivery chain as a finished voice session: store, plus the
	// form's webhook and notification mail when configured.
	id, err := s.collectorFor(form).Submit(r.Context(), form.ID, req.Answers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to deliver submission")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}
