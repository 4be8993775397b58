package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/formversation/voiceform/pkg/registry"
)

// handleInitSession starts a stepping session for a form and returns
// the opening prompts.
func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FormID string `json:"form_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FormID == "" {
		writeError(w, http.StatusBadRequest, "form_id is required")
		return
	}

	res, err := s.sessions.Init(req.FormID)
	switch {
	case errors.Is(err, registry.ErrFormNotFound):
		writeError(w, http.StatusNotFound, "Form not found")
		return
	case errors.Is(err, registry.ErrFormInactive):
		writeError(w, http.StatusConflict, "Form is not active")
		return
	case errors.Is(err, registry.ErrInvalidYAML):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// handleAnswerSession feeds one utterance into a session
func (s *Server) handleAnswerSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Utterance string `json:"utterance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.sessions.Answer(mux.Vars(r)["id"], req.Utterance)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, ErrSessionFinished):
		writeError(w, http.StatusConflict, "Session already finished")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to advance session")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleGetSession returns the stored snapshot of a session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.Lookup(mux.Vars(r)["id"])
	if errors.Is(err, ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
