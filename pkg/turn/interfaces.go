// Package turn abstracts one conversational turn: speaking a prompt and
// capturing a single utterance. Implementations own the underlying
// speech capability (console, scripted playback, or a browser peer over
// a websocket) and must release the capture channel on every exit path.
package turn

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultListenTimeout is how long a Listen waits for an utterance when
// the caller does not specify otherwise.
const DefaultListenTimeout = 12 * time.Second

// Errors returned by turn adapters.
var (
	// ErrCaptureUnavailable means there is no speech capability at all.
	// It is fatal for the whole flow, not a single turn.
	ErrCaptureUnavailable = errors.New("speech capture unavailable")

	// ErrListenTimeout means no utterance arrived in time. Recoverable;
	// callers re-ask the same step.
	ErrListenTimeout = errors.New("listen timed out")

	// ErrListenBusy means a Listen was issued while another was in
	// flight. Adapters allow at most one outstanding Listen.
	ErrListenBusy = errors.New("listen already in progress")
)

// CaptureError wraps a failure of one capture attempt. Recoverable:
// the step is re-asked, the flow does not abort.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("utterance capture failed: %v", e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// IO exposes the two primitives every step handler is built from.
type IO interface {
	// Speak renders a prompt. A new Speak cancels any in-flight one
	// (barge-in). Playback failures are not fatal; implementations log
	// and return nil so the conversation keeps moving.
	Speak(ctx context.Context, text string) error

	// Listen captures one recognized utterance. It returns
	// ErrListenTimeout after the given timeout, a *CaptureError for a
	// failed single capture, or ErrCaptureUnavailable when there is no
	// speech capability at all. A timeout of zero means
	// DefaultListenTimeout.
	Listen(ctx context.Context, timeout time.Duration) (string, error)
}
