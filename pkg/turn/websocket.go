package turn

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/formversation/voiceform/pkg/logging"
)

// Frame types exchanged with the browser peer. The browser performs the
// actual text-to-speech and speech recognition; the server only relays
// prompts out and utterances back.
const (
	frameSpeak        = "speak"
	frameListen       = "listen"
	frameCancelListen = "cancel_listen"

	frameSpeakDone          = "speak_done"
	frameUtterance          = "utterance"
	frameCaptureError       = "capture_error"
	frameCaptureUnavailable = "capture_unavailable"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type      string `json:"type"`
	Seq       int    `json:"seq,omitempty"`
	Text      string `json:"text,omitempty"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WebSocketIO implements IO over a websocket connection to a browser
// client that owns the real speech capability.
type WebSocketIO struct {
	conn *websocket.Conn
	log  logging.Logger

	writeMu sync.Mutex

	mu          sync.Mutex
	seq         int
	listening   bool
	unavailable bool
	speakCancel context.CancelFunc

	speakDone  chan int
	utterances chan Frame
	captureErr chan string
	noCapture  chan struct{}
	done       chan struct{}

	closeOnce sync.Once
}

// NewWebSocketIO wraps an upgraded websocket connection as a turn
// adapter and starts its read pump. The caller keeps ownership of the
// connection and must Close the adapter when the session ends.
func NewWebSocketIO(conn *websocket.Conn, log logging.Logger) *WebSocketIO {
	w := &WebSocketIO{
		conn:       conn,
		log:        log,
		speakDone:  make(chan int, 4),
		utterances: make(chan Frame, 1),
		captureErr: make(chan string, 1),
		noCapture:  make(chan struct{}),
		done:       make(chan struct{}),
	}
	go w.readPump()
	return w
}

// Close tears the adapter down. Pending Speak and Listen calls return.
func (w *WebSocketIO) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	return w.conn.Close()
}

// Speak relays the prompt and waits for the peer to finish playback.
// A newer Speak cancels the wait (barge-in); playback problems on the
// peer are logged, never fatal.
func (w *WebSocketIO) Speak(ctx context.Context, text string) error {
	w.mu.Lock()
	if w.speakCancel != nil {
		w.speakCancel()
	}
	speakCtx, cancel := context.WithCancel(ctx)
	w.speakCancel = cancel
	w.seq++
	seq := w.seq
	w.mu.Unlock()
	defer cancel()

	if err := w.write(Frame{Type: frameSpeak, Seq: seq, Text: text}); err != nil {
		w.log.Warn("speak frame not delivered", logging.F("error", err.Error()))
		return nil
	}

	for {
		select {
		case doneSeq := <-w.speakDone:
			if doneSeq >= seq {
				return nil
			}
			// Stale ack from a barged-in prompt; keep waiting.
		case <-speakCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Barge-in: a newer prompt took over.
			return nil
		case <-w.done:
			w.log.Warn("peer went away during speak")
			return nil
		}
	}
}

// Listen asks the peer to capture one utterance.
func (w *WebSocketIO) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultListenTimeout
	}

	w.mu.Lock()
	if w.unavailable {
		w.mu.Unlock()
		return "", ErrCaptureUnavailable
	}
	if w.listening {
		w.mu.Unlock()
		return "", ErrListenBusy
	}
	w.listening = true
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.listening = false
		w.mu.Unlock()
	}()

	if err := w.write(Frame{Type: frameListen, Seq: seq, TimeoutMs: timeout.Milliseconds()}); err != nil {
		return "", &CaptureError{Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case f := <-w.utterances:
			if f.Seq != 0 && f.Seq < seq {
				// Late result for a listen that already timed out.
				continue
			}
			return strings.TrimSpace(f.Text), nil
		case msg := <-w.captureErr:
			return "", &CaptureError{Err: &peerError{message: msg}}
		case <-w.noCapture:
			return "", ErrCaptureUnavailable
		case <-timer.C:
			// Best effort; the peer stops its recognizer on this frame.
			_ = w.write(Frame{Type: frameCancelListen, Seq: seq})
			return "", ErrListenTimeout
		case <-ctx.Done():
			_ = w.write(Frame{Type: frameCancelListen, Seq: seq})
			return "", ctx.Err()
		case <-w.done:
			return "", ErrCaptureUnavailable
		}
	}
}

func (w *WebSocketIO) write(f Frame) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(f)
}

func (w *WebSocketIO) readPump() {
	for {
		var f Frame
		if err := w.conn.ReadJSON(&f); err != nil {
			w.closeOnce.Do(func() {
				close(w.done)
			})
			return
		}

		switch f.Type {
		case frameSpeakDone:
			select {
			case w.speakDone <- f.Seq:
			default:
			}
		case frameUtterance:
			select {
			case w.utterances <- f:
			default:
			}
		case frameCaptureError:
			select {
			case w.captureErr <- f.Message:
			default:
			}
		case frameCaptureUnavailable:
			w.mu.Lock()
			if !w.unavailable {
				w.unavailable = true
				close(w.noCapture)
			}
			w.mu.Unlock()
		default:
			w.log.Debug("ignoring unknown frame", logging.F("type", f.Type))
		}
	}
}

type peerError struct {
	message string
}

func (e *peerError) Error() string {
	return e.message
}
