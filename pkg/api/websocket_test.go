package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formversation/voiceform/pkg/storage"
	"github.com/formversation/voiceform/pkg/turn"
)

func dialSessionSocket(t *testing.T, ts *httptest.Server, formID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions?form_id=" + formID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "websocket upgrade through the full router")
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketVoiceSession(t *testing.T) {
	_, ts := newTestServer(t)
	formID := createTestForm(t, ts)

	conn := dialSessionSocket(t, ts, formID)

	answers := []string{"Jane Doe", "jane at example dot com"}
	var spoken []string

	// Play the browser peer: ack every prompt, answer every listen.
	for {
		var f turn.Frame
		if err := conn.ReadJSON(&f); err != nil {
			break // the server closes the socket when the flow ends
		}
		switch f.Type {
		case "speak":
			spoken = append(spoken, f.Text)
			require.NoError(t, conn.WriteJSON(turn.Frame{Type: "speak_done", Seq: f.Seq}))
		case "listen":
			require.NotEmpty(t, answers, "asked for more answers than the script has")
			require.NoError(t, conn.WriteJSON(turn.Frame{Type: "utterance", Seq: f.Seq, Text: answers[0]}))
			answers = answers[1:]
		}
	}

	assert.Equal(t, []string{
		"Hi there!",
		"What's your name?",
		"What's your email?",
		"All done, thanks!",
	}, spoken)

	resp, err := http.Get(ts.URL + "/api/v1/forms/" + formID + "/submissions")
	require.NoError(t, err)
	var subs []storage.Submission
	decodeJSON(t, resp, &subs)
	require.Len(t, subs, 1)
	assert.Equal(t, "Jane Doe", subs[0].Answers["name"])
	assert.Equal(t, "jane@example.com", subs[0].Answers["email"])
}

func TestWebSocketVoiceSessionCaptureUnavailable(t *testing.T) {
	_, ts := newTestServer(t)
	formID := createTestForm(t, ts)

	conn := dialSessionSocket(t, ts, formID)

	var spoken []string
	for {
		var f turn.Frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		switch f.Type {
		case "speak":
			spoken = append(spoken, f.Text)
			require.NoError(t, conn.WriteJSON(turn.Frame{Type: "speak_done", Seq: f.Seq}))
		case "listen":
			require.NoError(t, conn.WriteJSON(turn.Frame{Type: "capture_unavailable"}))
		}
	}

	require.NotEmpty(t, spoken)
	assert.Equal(t, "Sorry, something went wrong. Please try again later.", spoken[len(spoken)-1])

	resp, err := http.Get(ts.URL + "/api/v1/forms/" + formID + "/submissions")
	require.NoError(t, err)
	var subs []storage.Submission
	decodeJSON(t, resp, &subs)
	assert.Empty(t, subs)
}

func TestWebSocketRequiresKnownForm(t *testing.T) {
	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions?form_id=ghost"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
