package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formversation/voiceform/pkg/flow"
	"github.com/formversation/voiceform/pkg/logging"
	"github.com/formversation/voiceform/pkg/turn"
)

const onboardingYAML = `
version: 1
flow:
  id: onboarding
  name: Onboarding
  start: welcome
  steps:
    welcome:
      type: message
      speak: "Hi! Let's get you set up."
      next: name
    name:
      type: text
      speak: "What's your name?"
      map: name
      next: email
    email:
      type: email
      speak: "What's your email?"
      reask: "That didn't sound right. Try again."
      confirm:
        enabled: true
        prompt: "I heard {email}. Is that correct?"
      map: email
      next: topic
    topic:
      type: single_select
      speak: "Sales or support?"
      options:
        - id: sales
          label: Sales
          synonyms: [buy, purchase]
        - id: support
          label: Support
          synonyms: [help]
      map: topic
      next: terms
    terms:
      type: checkbox
      speak: "Do you agree to the terms?"
      map: terms
      next: done
    done:
      type: completion
      speak: "Thanks, you're all set!"
`

func mustDoc(t *testing.T, yaml string) *flow.Document {
	t.Helper()
	doc, err := flow.NewLoader().Parse(yaml)
	require.NoError(t, err)
	return doc
}

type submitCall struct {
	formID  string
	answers map[string]string
}

type fakeCollector struct {
	mu    sync.Mutex
	calls []submitCall
	err   error
}

func (c *fakeCollector) Submit(ctx context.Context, formID string, answers map[string]string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make(map[string]string, len(answers))
	for k, v := range answers {
		copied[k] = v
	}
	c.calls = append(c.calls, submitCall{formID: formID, answers: copied})
	if c.err != nil {
		return "", c.err
	}
	return "sub-1", nil
}

func runFlow(t *testing.T, yaml string, io turn.IO, coll *fakeCollector, opts Options) (*Session, error) {
	t.Helper()
	doc := mustDoc(t, yaml)
	driver := NewDriver(doc, io, coll, logging.Nop(), opts)
	sess := driver.NewDriverSession()
	err := driver.Run(context.Background(), sess)
	return sess, err
}

func TestRunCompletesFullConversation(t *testing.T) {
	io := turn.NewScriptedIO(
		"Jane Doe",
		"jane at example dot com",
		"yes",
		"I need some help",
		"yes",
	)
	coll := &fakeCollector{}

	sess, err := runFlow(t, onboardingYAML, io, coll, Options{})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, sess.State)
	assert.Equal(t, map[string]string{
		"name":  "Jane Doe",
		"email": "jane@example.com",
		"topic": "support",
		"terms": "agree",
	}, sess.Answers)
	assert.Equal(t, []string{"welcome", "name", "email", "topic", "terms", "done"}, sess.Visited)

	require.Len(t, coll.calls, 1)
	assert.Equal(t, "onboarding", coll.calls[0].formID)
	assert.Equal(t, sess.Answers, coll.calls[0].answers)

	spoken := io.Spoken()
	assert.Contains(t, spoken, "Hi! Let's get you set up.")
	assert.Contains(t, spoken, "I heard jane@example.com. Is that correct?")
	assert.Equal(t, "Thanks, you're all set!", spoken[len(spoken)-1])
	assert.Equal(t, 0, io.Remaining())
}

func TestTextListenTimeoutReasks(t *testing.T) {
	io := turn.NewScriptedIO()
	io.QueueError(turn.ErrListenTimeout)
	io.QueueUtterance("Jane")
	io.QueueUtterance("jane@example.com")
	io.QueueUtterance("yes")
	io.QueueUtterance("sales")
	io.QueueUtterance("yes")

	sess, err := runFlow(t, onboardingYAML, io, &fakeCollector{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, sess.State)
	assert.Equal(t, "Jane", sess.Answers["name"])

	// The question was asked again after the silence.
	spoken := io.Spoken()
	count := 0
	for _, s := range spoken {
		if s == "What's your name?" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestCaptureErrorIsRecoverable(t *testing.T) {
	io := turn.NewScriptedIO()
	io.QueueError(&turn.CaptureError{Err: errors.New("recognizer hiccup")})
	io.QueueUtterance("Jane")
	io.QueueUtterance("jane@example.com")
	io.QueueUtterance("yes")
	io.QueueUtterance("sales")
	io.QueueUtterance("yes")

	sess, err := runFlow(t, onboardingYAML, io, &fakeCollector{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, sess.State)
}

func TestEmailInvalidThenValid(t *testing.T) {
	io := turn.NewScriptedIO(
		"Jane",
		"banana",
		"jane at example dot com",
		"yes",
		"sales",
		"yes",
	)

	sess, err := runFlow(t, onboardingYAML, io, &fakeCollector{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", sess.Answers["email"])
	assert.Contains(t, io.Spoken(), "That didn't sound right. Try again.")
}

func TestConfirmDeniedRestartsQuestion(t *testing.T) {
	io := turn.NewScriptedIO(
		"Jane",
		"bob at example dot com",
		"no",
		"jane at example dot com",
		"yes",
		"sales",
		"yes",
	)

	sess, err := runFlow(t, onboardingYAML, io, &fakeCollector{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", sess.Answers["email"])

	spoken := io.Spoken()
	assert.Contains(t, spoken, "I heard bob@example.com. Is that correct?")
	assert.Contains(t, spoken, "I heard jane@example.com. Is that correct?")
}

func TestConfirmUnclearRepromptsYesNoOnly(t *testing.T) {
	io := turn.NewScriptedIO(
		"Jane",
		"jane at example dot com",
		"potato",
		"yes",
		"sales",
		"yes",
	)

	sess, err := runFlow(t, onboardingYAML, io, &fakeCollector{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", sess.Answers["email"])

	// The question itself was asked once; only the yes/no prompt repeated.
	spoken := io.Spoken()
	emailAsks := 0
	for _, s := range spoken {
		if s == "What's your email?" {
			emailAsks++
		}
	}
	assert.Equal(t, 1, emailAsks)
	assert.Contains(t, spoken, "Please say yes or no.")
}

func TestSingleSelectNoMatchReasks(t *testing.T) {
	io := turn.NewScriptedIO(
		"Jane",
		"jane@example.com",
		"yes",
		"the weather is nice",
		"I want to purchase",
		"yes",
	)

	sess, err := runFlow(t, onboardingYAML, io, &fakeCollector{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "sales", sess.Answers["topic"])
}

func TestCheckboxDeniedRecordsEmptyValue(t *testing.T) {
	io := turn.NewScriptedIO(
		"Jane",
		"jane@example.com",
		"yes",
		"support",
		"no",
	)

	sess, err := runFlow(t, onboardingYAML, io, &fakeCollector{}, Options{})
	require.NoError(t, err)

	val, present := sess.Answers["terms"]
	assert.True(t, present)
	assert.Equal(t, "", val)
}

func TestTextRegexValidation(t *testing.T) {
	yaml := `
flow:
  id: zip
  start: code
  steps:
    code:
      type: text
      speak: "What's your zip code?"
      validate:
        regex: '^\d{5}$'
        message: "A zip code is five digits."
      map: zip
      next: done
    done:
      type: completion
      speak: "Done."
`
	io := turn.NewScriptedIO("abc", "90210")

	sess, err := runFlow(t, yaml, io, &fakeCollector{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "90210", sess.Answers["zip"])
	assert.Contains(t, io.Spoken(), "A zip code is five digits.")
}

func TestMaxAttemptsAborts(t *testing.T) {
	yaml := `
flow:
  id: zip
  start: code
  steps:
    code:
      type: text
      speak: "What's your zip code?"
      validate:
        regex: '^\d{5}$'
      map: zip
      next: done
    done:
      type: completion
`
	io := turn.NewScriptedIO("abc", "def", "ghi")

	sess, err := runFlow(t, yaml, io, &fakeCollector{}, Options{MaxAttempts: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, StateAborted, sess.State)
	assert.Equal(t, AbortMaxAttempts, sess.AbortReason)
}

func TestCaptureUnavailableAborts(t *testing.T) {
	io := turn.NewScriptedIO()
	io.QueueError(turn.ErrCaptureUnavailable)

	coll := &fakeCollector{}
	sess, err := runFlow(t, onboardingYAML, io, coll, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, turn.ErrCaptureUnavailable)
	assert.Equal(t, StateAborted, sess.State)
	assert.Equal(t, AbortCaptureUnavailable, sess.AbortReason)

	// Nothing was submitted and the respondent got a final notice.
	assert.Empty(t, coll.calls)
	spoken := io.Spoken()
	assert.Equal(t, "Sorry, something went wrong. Please try again later.", spoken[len(spoken)-1])
}

func TestUnknownStepTypeAborts(t *testing.T) {
	yaml := `
flow:
  id: f
  start: a
  steps:
    a:
      type: hologram
      next: b
    b:
      type: completion
`
	io := turn.NewScriptedIO()
	coll := &fakeCollector{}

	sess, err := runFlow(t, yaml, io, coll, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStepType)
	assert.Equal(t, StateAborted, sess.State)
	assert.Equal(t, AbortUnknownStepType, sess.AbortReason)
	assert.Empty(t, coll.calls)
}

func TestSubmissionFailureStillCompletes(t *testing.T) {
	io := turn.NewScriptedIO(
		"Jane",
		"jane@example.com",
		"yes",
		"sales",
		"yes",
	)
	coll := &fakeCollector{err: errors.New("webhook down")}

	sess, err := runFlow(t, onboardingYAML, io, coll, Options{})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, sess.State)
	require.Len(t, coll.calls, 1)
}

func TestNilCollectorCompletes(t *testing.T) {
	yaml := `
flow:
  id: f
  start: a
  steps:
    a:
      type: completion
      speak: "Bye."
`
	io := turn.NewScriptedIO()
	doc := mustDoc(t, yaml)
	driver := NewDriver(doc, io, nil, logging.Nop(), Options{})
	sess := driver.NewDriverSession()

	require.NoError(t, driver.Run(context.Background(), sess))
	assert.Equal(t, StateCompleted, sess.State)
}

func TestCanceledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := mustDoc(t, onboardingYAML)
	driver := NewDriver(doc, turn.NewScriptedIO(), nil, logging.Nop(), Options{})
	sess := driver.NewDriverSession()

	err := driver.Run(ctx, sess)
	require.Error(t, err)
	assert.Equal(t, StateAborted, sess.State)
	assert.Equal(t, AbortCanceled, sess.AbortReason)
}

func TestCompletionFallbackPrompt(t *testing.T) {
	yaml := `
flow:
  id: f
  start: a
  steps:
    a:
      type: completion
`
	io := turn.NewScriptedIO()
	sess, err := runFlow(t, yaml, io, &fakeCollector{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, sess.State)
	spoken := io.Spoken()
	require.Len(t, spoken, 1)
	assert.Equal(t, "Thank you! You are all set.", spoken[0])
}
