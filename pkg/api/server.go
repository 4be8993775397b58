// Package api exposes the HTTP surface: form management, session
// stepping, and the websocket turn relay for browser voice clients.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/formversation/voiceform/pkg/collector"
	"github.com/formversation/voiceform/pkg/config"
	"github.com/formversation/voiceform/pkg/logging"
	"github.com/formversation/voiceform/pkg/middleware"
	"github.com/formversation/voiceform/pkg/registry"
	"github.com/formversation/voiceform/pkg/storage"
)

// Server represents the HTTP API server
type Server struct {
	config       *config.Config
	router       *mux.Router
	server       *http.Server
	formRegistry registry.FormRegistry
	submissions  storage.SubmissionStore
	sessions     *SessionManager
	log          logging.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, formRegistry registry.FormRegistry, submissions storage.SubmissionStore, sessionStore storage.SessionStore, log logging.Logger) *Server {
	s := &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		formRegistry: formRegistry,
		submissions:  submissions,
		log:          log,
	}
	s.sessions = NewSessionManager(cfg, formRegistry, s.collectorFor, sessionStore, log)

	s.setupRoutes()
	return s
}

// Sessions exposes the session manager so the scheduler can prune idle
// runners alongside expired store snapshots.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting HTTP server", logging.F("addr", addr))

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	// If the server was shut down gracefully, this error is expected
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.sessions.Shutdown()
	return s.server.Shutdown(ctx)
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	// Form routes
	forms := api.PathPrefix("/forms").Subrouter()
	forms.HandleFunc("", s.handleListForms).Methods(http.MethodGet, http.MethodOptions)
	forms.HandleFunc("", s.handleCreateForm).Methods(http.MethodPost, http.MethodOptions)
	forms.HandleFunc("/{id}", s.handleGetForm).Methods(http.MethodGet, http.MethodOptions)
	forms.HandleFunc("/{id}", s.handleUpdateForm).Methods(http.MethodPut, http.MethodOptions)
	forms.HandleFunc("/{id}", s.handleDeleteForm).Methods(http.MethodDelete, http.MethodOptions)
	forms.HandleFunc("/{id}/submissions", s.handleListSubmissions).Methods(http.MethodGet, http.MethodOptions)
	forms.HandleFunc("/{id}/submissions", s.handleDirectSubmit).Methods(http.MethodPost, http.MethodOptions)

	// Session routes (text stepping over plain HTTP)
	sessions := api.PathPrefix("/sessions").Subrouter()
	sessions.HandleFunc("", s.handleInitSession).Methods(http.MethodPost, http.MethodOptions)
	sessions.HandleFunc("/{id}", s.handleGetSession).Methods(http.MethodGet, http.MethodOptions)
	sessions.HandleFunc("/{id}/answer", s.handleAnswerSession).Methods(http.MethodPost, http.MethodOptions)

	// Websocket turn relay for browser voice clients
	s.router.HandleFunc("/ws/sessions", s.handleSessionSocket)

	s.router.Use(middleware.RequestLogger(s.log))
	s.router.Use(middleware.CORS)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// collectorFor builds the delivery chain for one form: submissions are
// always persisted, and additionally forwarded to the form's webhook
// (falling back to the global one) and mailed when SMTP is configured.
func (s *Server) collectorFor(form storage.Form) collector.Collector {
	collectors := []collector.Collector{
		collector.NewStoreCollector(s.submissions),
	}

	webhookURL := form.WebhookURL
	if webhookURL == "" {
		webhookURL = s.config.Collector.WebhookURL
	}
	if webhookURL != "" {
		collectors = append(collectors, collector.NewWebhookCollector(webhookURL))
	}

	if smtp := s.config.Collector.SMTP; smtp.Host != "" {
		collectors = append(collectors, collector.NewEmailCollector(
			smtp.Host, smtp.Port, smtp.Username, smtp.Password, smtp.From, smtp.To))
	}

	if len(collectors) == 1 {
		return collectors[0]
	}
	return collector.NewMultiCollector(s.log, collectors...)
}
