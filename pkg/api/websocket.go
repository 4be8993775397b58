package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/formversation/voiceform/pkg/engine"
	"github.com/formversation/voiceform/pkg/logging"
	"github.com/formversation/voiceform/pkg/turn"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The voice client is served from arbitrary origins; forms are
		// public by design.
		return true
	},
}

// handleSessionSocket upgrades the connection and runs one full voice
// conversation over it. The browser peer performs the actual
// text-to-speech and recognition; this end drives the flow.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	formID := r.URL.Query().Get("form_id")
	if formID == "" {
		writeError(w, http.StatusBadRequest, "form_id query parameter is required")
		return
	}

	form, err := s.formRegistry.Get(formID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Form not found")
		return
	}
	doc, err := s.formRegistry.Document(form.ID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logging.F("error", err.Error()))
		return
	}

	io := turn.NewWebSocketIO(conn, s.log)
	defer io.Close()

	driver := engine.NewDriver(doc, io, s.collectorFor(form), s.log, engine.Options{
		ListenTimeout: time.Duration(s.config.Speech.ListenTimeoutMs) * time.Millisecond,
		MaxAttempts:   s.config.Speech.MaxAttempts,
	})
	sess := engine.NewSession(form.ID, doc.StartStepID())

	s.log.Info("voice session started",
		logging.F("session_id", sess.ID),
		logging.F("form_id", form.ID))

	if err := driver.Run(r.Context(), sess); err != nil {
		s.log.Info("voice session ended early",
			logging.F("session_id", sess.ID),
			logging.F("reason", sess.AbortReason))
		return
	}
}
