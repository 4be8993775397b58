package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/formversation/voiceform/pkg/collector"
	"github.com/formversation/voiceform/pkg/config"
	"github.com/formversation/voiceform/pkg/engine"
	"github.com/formversation/voiceform/pkg/logging"
	"github.com/formversation/voiceform/pkg/registry"
	"github.com/formversation/voiceform/pkg/storage"
)

// Session manager errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFinished = errors.New("session already finished")
)

// TurnResult is what one stepping call returns to the client: the
// prompts spoken since the last utterance and where the session stands.
type TurnResult struct {
	SessionID   string            `json:"session_id"`
	Prompts     []string          `json:"prompts"`
	StepID      string            `json:"step_id,omitempty"`
	State       string            `json:"state"`
	AbortReason string            `json:"abort_reason,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
}

// stepIO bridges the engine's speak/listen loop to request/response
// stepping. Prompts buffer until the engine blocks waiting for input;
// at that point the buffered prompts belong to the client's next
// response. The client paces the conversation, so the listen timeout
// does not apply here.
type stepIO struct {
	mu      sync.Mutex
	prompts []string

	utterances chan string
	waiting    chan struct{}
}

func newStepIO() *stepIO {
	return &stepIO{
		utterances: make(chan string),
		waiting:    make(chan struct{}, 1),
	}
}

func (s *stepIO) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, text)
	s.mu.Unlock()
	return nil
}

func (s *stepIO) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	select {
	case s.waiting <- struct{}{}:
	default:
	}

	select {
	case heard := <-s.utterances:
		return heard, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// drain returns and clears the buffered prompts.
func (s *stepIO) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.prompts
	s.prompts = nil
	if out == nil {
		out = []string{}
	}
	return out
}

// sessionRunner owns one stepping conversation: the engine goroutine,
// its turn bridge, and the cancel handle for idle pruning.
type sessionRunner struct {
	sess     *engine.Session
	io       *stepIO
	cancel   context.CancelFunc
	finished chan struct{}

	// mu serializes Answer calls for this session
	mu sync.Mutex

	// lastActive is unix nanos of the last turn, read lock-free by the
	// idle pruner
	lastActive atomic.Int64
	createdAt  int64
}

// SessionManager tracks live stepping sessions and snapshots them into
// the session store after every turn.
type SessionManager struct {
	cfg          *config.Config
	formRegistry registry.FormRegistry
	collectorFor func(storage.Form) collector.Collector
	store        storage.SessionStore
	log          logging.Logger

	mu      sync.Mutex
	runners map[string]*sessionRunner
}

// NewSessionManager creates a session manager
func NewSessionManager(cfg *config.Config, formRegistry registry.FormRegistry, collectorFor func(storage.Form) collector.Collector, store storage.SessionStore, log logging.Logger) *SessionManager {
	return &SessionManager{
		cfg:          cfg,
		formRegistry: formRegistry,
		collectorFor: collectorFor,
		store:        store,
		log:          log,
		runners:      make(map[string]*sessionRunner),
	}
}

// Init starts a conversation for the given form and runs it up to the
// first question. The returned result carries the opening prompts.
func (m *SessionManager) Init(formID string) (TurnResult, error) {
	form, err := m.formRegistry.Get(formID)
	if err != nil {
		return TurnResult{}, err
	}
	doc, err := m.formRegistry.Document(form.ID)
	if err != nil {
		return TurnResult{}, err
	}

	io := newStepIO()
	driver := engine.NewDriver(doc, io, m.collectorFor(form), m.log, engine.Options{
		MaxAttempts: m.cfg.Speech.MaxAttempts,
	})
	sess := engine.NewSession(form.ID, doc.StartStepID())

	ctx, cancel := context.WithCancel(context.Background())
	r := &sessionRunner{
		sess:      sess,
		io:        io,
		cancel:    cancel,
		finished:  make(chan struct{}),
		createdAt: time.Now().Unix(),
	}
	r.lastActive.Store(time.Now().UnixNano())

	go func() {
		defer close(r.finished)
		if err := driver.Run(ctx, sess); err != nil {
			m.log.Debug("session run ended with error",
				logging.F("session_id", sess.ID),
				logging.F("error", err.Error()))
		}
	}()

	m.mu.Lock()
	m.runners[sess.ID] = r
	m.mu.Unlock()

	res := m.awaitTurn(r)
	m.snapshot(r)
	return res, nil
}

// Answer feeds one utterance into a running session and returns the
// prompts spoken in response.
func (m *SessionManager) Answer(sessionID, utterance string) (TurnResult, error) {
	m.mu.Lock()
	r, ok := m.runners[sessionID]
	m.mu.Unlock()
	if !ok {
		return TurnResult{}, ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.finished:
		return TurnResult{}, ErrSessionFinished
	case r.io.utterances <- utterance:
	}

	r.lastActive.Store(time.Now().UnixNano())
	res := m.awaitTurn(r)
	m.snapshot(r)
	return res, nil
}

// Lookup returns the stored snapshot for a session.
func (m *SessionManager) Lookup(sessionID string) (storage.SessionRecord, error) {
	rec, err := m.store.GetSession(sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return storage.SessionRecord{}, ErrSessionNotFound
	}
	return rec, err
}

// PruneIdle cancels runners that have not advanced within maxAge and
// returns how many were removed.
func (m *SessionManager) PruneIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge).UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, r := range m.runners {
		if r.lastActive.Load() < cutoff {
			r.cancel()
			delete(m.runners, id)
			removed++
		}
	}
	return removed
}

// Shutdown cancels every live runner.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.runners {
		r.cancel()
		delete(m.runners, id)
	}
}

// awaitTurn blocks until the engine is waiting for the next utterance
// or the conversation ended, then assembles the result. The caller
// holds the runner's lock or is the only reference holder.
func (m *SessionManager) awaitTurn(r *sessionRunner) TurnResult {
	select {
	case <-r.io.waiting:
	case <-r.finished:
	}

	sess := r.sess
	res := TurnResult{
		SessionID:   sess.ID,
		Prompts:     r.io.drain(),
		State:       sess.State.String(),
		AbortReason: sess.AbortReason,
	}

	if sess.State == engine.StateRunning {
		res.StepID = sess.CurrentStepID
	} else {
		answers := make(map[string]string, len(sess.Answers))
		for k, v := range sess.Answers {
			answers[k] = v
		}
		res.Answers = answers
		m.remove(sess.ID)
	}
	return res
}

func (m *SessionManager) remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runners[sessionID]; ok {
		r.cancel()
		delete(m.runners, sessionID)
	}
}

// snapshot persists the session's current position so it survives a
// restart of the caller and feeds the expiry sweeper.
func (m *SessionManager) snapshot(r *sessionRunner) {
	sess := r.sess
	answers := make(map[string]string, len(sess.Answers))
	for k, v := range sess.Answers {
		answers[k] = v
	}

	rec := storage.SessionRecord{
		ID:        sess.ID,
		FormID:    sess.FormID,
		StepID:    sess.CurrentStepID,
		Answers:   answers,
		State:     sess.State.String(),
		CreatedAt: r.createdAt,
		UpdatedAt: time.Now().Unix(),
	}
	if err := m.store.SaveSession(rec); err != nil {
		m.log.Warn("failed to snapshot session",
			logging.F("session_id", sess.ID),
			logging.F("error", err.Error()))
	}
}
