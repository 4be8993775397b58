package turn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formversation/voiceform/pkg/logging"
)

type listenResult struct {
	text string
	err  error
}

// newWebSocketPair upgrades a loopback connection and returns the
// server-side adapter plus the client conn playing the browser peer.
func newWebSocketPair(t *testing.T) (*WebSocketIO, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(ts.Close)

	peer, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	adapter := NewWebSocketIO(<-conns, logging.Nop())
	t.Cleanup(func() {
		adapter.Close()
		peer.Close()
	})
	return adapter, peer
}

func TestWebSocketSpeakWaitsForPlaybackAck(t *testing.T) {
	adapter, peer := newWebSocketPair(t)

	done := make(chan error, 1)
	go func() { done <- adapter.Speak(context.Background(), "Welcome!") }()

	var f Frame
	require.NoError(t, peer.ReadJSON(&f))
	assert.Equal(t, "speak", f.Type)
	assert.Equal(t, "Welcome!", f.Text)

	select {
	case <-done:
		t.Fatal("Speak returned before the peer finished playback")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, peer.WriteJSON(Frame{Type: "speak_done", Seq: f.Seq}))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not return after the playback ack")
	}
}

func TestWebSocketSpeakBargeIn(t *testing.T) {
	adapter, peer := newWebSocketPair(t)

	first := make(chan error, 1)
	go func() { first <- adapter.Speak(context.Background(), "one") }()

	var f1 Frame
	require.NoError(t, peer.ReadJSON(&f1))

	second := make(chan error, 1)
	go func() { second <- adapter.Speak(context.Background(), "two") }()

	var f2 Frame
	require.NoError(t, peer.ReadJSON(&f2))

	// The newer prompt preempts the first; no ack needed.
	select {
	case err := <-first:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("barged-in Speak did not return")
	}

	require.NoError(t, peer.WriteJSON(Frame{Type: "speak_done", Seq: f2.Seq}))

	select {
	case err := <-second:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second Speak did not return after its ack")
	}
}

func TestWebSocketListenReceivesUtterance(t *testing.T) {
	adapter, peer := newWebSocketPair(t)

	results := make(chan listenResult, 1)
	go func() {
		text, err := adapter.Listen(context.Background(), 5*time.Second)
		results <- listenResult{text, err}
	}()

	var f Frame
	require.NoError(t, peer.ReadJSON(&f))
	assert.Equal(t, "listen", f.Type)
	assert.Equal(t, int64(5000), f.TimeoutMs)

	require.NoError(t, peer.WriteJSON(Frame{Type: "utterance", Seq: f.Seq, Text: "  Jane Doe  "}))

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, "Jane Doe", res.text)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return")
	}
}

func TestWebSocketListenTimeoutSendsCancel(t *testing.T) {
	adapter, peer := newWebSocketPair(t)

	_, err := adapter.Listen(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrListenTimeout)

	var listenFrame Frame
	require.NoError(t, peer.ReadJSON(&listenFrame))
	assert.Equal(t, "listen", listenFrame.Type)

	var cancelFrame Frame
	require.NoError(t, peer.ReadJSON(&cancelFrame))
	assert.Equal(t, "cancel_listen", cancelFrame.Type)
	assert.Equal(t, listenFrame.Seq, cancelFrame.Seq)
}

func TestWebSocketListenDiscardsStaleUtterance(t *testing.T) {
	adapter, peer := newWebSocketPair(t)

	_, err := adapter.Listen(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrListenTimeout)

	var listenFrame, cancelFrame Frame
	require.NoError(t, peer.ReadJSON(&listenFrame))
	require.NoError(t, peer.ReadJSON(&cancelFrame))

	// The recognizer finishes late anyway; its result must not leak
	// into the next listen.
	require.NoError(t, peer.WriteJSON(Frame{Type: "utterance", Seq: listenFrame.Seq, Text: "too late"}))

	results := make(chan listenResult, 1)
	go func() {
		text, err := adapter.Listen(context.Background(), 5*time.Second)
		results <- listenResult{text, err}
	}()

	var f2 Frame
	require.NoError(t, peer.ReadJSON(&f2))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, peer.WriteJSON(Frame{Type: "utterance", Seq: f2.Seq, Text: "on time"}))

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, "on time", res.text)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return")
	}
}

func TestWebSocketListenBusy(t *testing.T) {
	adapter, peer := newWebSocketPair(t)

	go func() {
		_, _ = adapter.Listen(context.Background(), 5*time.Second)
	}()

	var f Frame
	require.NoError(t, peer.ReadJSON(&f))

	_, err := adapter.Listen(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrListenBusy)
}

func TestWebSocketCaptureUnavailableIsFatal(t *testing.T) {
	adapter, peer := newWebSocketPair(t)

	require.NoError(t, peer.WriteJSON(Frame{Type: "capture_unavailable"}))

	_, err := adapter.Listen(context.Background(), 5*time.Second)
	assert.ErrorIs(t, err, ErrCaptureUnavailable)

	// The loss is permanent for this connection.
	_, err = adapter.Listen(context.Background(), 5*time.Second)
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
}

func TestWebSocketCaptureErrorIsRecoverable(t *testing.T) {
	adapter, peer := newWebSocketPair(t)

	results := make(chan listenResult, 1)
	go func() {
		text, err := adapter.Listen(context.Background(), 5*time.Second)
		results <- listenResult{text, err}
	}()

	var f Frame
	require.NoError(t, peer.ReadJSON(&f))
	require.NoError(t, peer.WriteJSON(Frame{Type: "capture_error", Message: "microphone permission revoked"}))

	select {
	case res := <-results:
		var capErr *CaptureError
		require.ErrorAs(t, res.err, &capErr)
		assert.Contains(t, capErr.Error(), "microphone permission revoked")
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return")
	}
}
