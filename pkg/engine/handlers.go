package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/formversation/voiceform/pkg/flow"
	"github.com/formversation/voiceform/pkg/logging"
	"github.com/formversation/voiceform/pkg/speech"
	"github.com/formversation/voiceform/pkg/turn"
)

// Engine errors.
var (
	// ErrUnknownStepType is returned when a document names a step type
	// the engine has no handler for
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrMissingStep is returned when a next reference points at a step
	// that is not in the document
	ErrMissingStep = errors.New("step not found in document")

	// ErrAttemptsExhausted is returned when a question used up its
	// retry budget without producing an accepted value
	ErrAttemptsExhausted = errors.New("retry attempts exhausted")
)

// Spoken fallbacks used when a step does not configure its own wording.
const (
	promptDefaultText       = "Please speak your answer."
	promptDefaultEmail      = "What is your email?"
	promptDefaultSelect     = "Please choose an option."
	promptDefaultCheckbox   = "Do you agree?"
	promptDefaultCompletion = "Thank you! You are all set."

	promptTryAgain     = "Let's try that again."
	promptYesNo        = "Please say yes or no."
	promptChooseOption = "Sorry, I didn't catch that. Please choose one of the options."
	promptEmailReask   = "That didn't sound like a valid email. Please try again."
	promptGenericError = "Sorry, something went wrong. Please try again later."

	checkboxAgreeValue = "agree"
)

// handlerResult is what a step handler reports back to the driver.
type handlerResult struct {
	// value is the captured answer, meaningful when captured is true
	value string

	// captured marks that value should be recorded under the step's map key
	captured bool

	// next is the id of the step to advance to
	next string

	// terminal marks the end of the conversation
	terminal bool
}

type stepHandler func(ctx context.Context, r *turnRunner, step flow.StepDef) (handlerResult, error)

// handlerFor resolves the handler for a step kind. The kind set is
// closed; anything else is rejected rather than skipped so a typo in a
// document cannot silently drop a question.
func handlerFor(kind flow.StepKind) (stepHandler, bool) {
	switch kind {
	case flow.KindMessage:
		return handleMessage, true
	case flow.KindText, flow.KindTextarea:
		return handleText, true
	case flow.KindEmail:
		return handleEmail, true
	case flow.KindSingleSelect:
		return handleSingleSelect, true
	case flow.KindCheckbox:
		return handleCheckbox, true
	case flow.KindCompletion:
		return handleCompletion, true
	}
	return nil, false
}

// turnRunner carries the per-session turn machinery shared by handlers.
type turnRunner struct {
	io            turn.IO
	listenTimeout time.Duration
	maxAttempts   int
	log           logging.Logger
}

func (r *turnRunner) speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return r.io.Speak(ctx, text)
}

func (r *turnRunner) listen(ctx context.Context) (string, error) {
	heard, err := r.io.Listen(ctx, r.listenTimeout)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(heard), nil
}

// speakBestEffort delivers a final notice on a session that is already
// failing. Errors are logged and dropped.
func (r *turnRunner) speakBestEffort(ctx context.Context, text string) {
	if err := r.speak(ctx, text); err != nil {
		r.log.Debug("failed to speak final notice", logging.F("error", err.Error()))
	}
}

// fatalListenErr reports whether a listen failure ends the session.
// Timeouts and transient capture errors re-ask; a dead capture channel
// or a canceled context does not recover.
func fatalListenErr(err error) bool {
	if errors.Is(err, turn.ErrCaptureUnavailable) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// nextAttempt counts one ask of the current question against the retry
// budget. A budget of zero means unbounded.
func (r *turnRunner) nextAttempt(attempts *int) error {
	*attempts++
	if r.maxAttempts > 0 && *attempts > r.maxAttempts {
		return ErrAttemptsExhausted
	}
	return nil
}

// extraction is the outcome of interpreting one utterance for a
// capturing step.
type extraction struct {
	// value is the canonical value to record
	value string

	// display is what confirmation reads back to the respondent
	display string

	// ok marks the utterance as accepted; when false, reask is spoken
	// and the question is asked again
	ok    bool
	reask string
}

// captureLoop runs the shared ask protocol for a capturing step: speak
// the prompt, listen, interpret, optionally confirm, and either return
// the accepted value or go around again.
func (r *turnRunner) captureLoop(ctx context.Context, step flow.StepDef, prompt, retryPrompt, confirmFallback string, extract func(heard string) extraction) (string, error) {
	attempts := 0
	for {
		if err := r.nextAttempt(&attempts); err != nil {
			return "", err
		}
		if err := r.speak(ctx, prompt); err != nil {
			return "", err
		}

		heard, err := r.listen(ctx)
		if err != nil {
			if fatalListenErr(err) {
				return "", err
			}
			r.log.Debug("listen attempt failed",
				logging.F("step", step.Map),
				logging.F("error", err.Error()))
			if err := r.speak(ctx, retryPrompt); err != nil {
				return "", err
			}
			continue
		}

		ex := extract(heard)
		if !ex.ok {
			if err := r.speak(ctx, ex.reask); err != nil {
				return "", err
			}
			continue
		}

		if step.Confirm != nil && step.Confirm.Enabled {
			confirmed, err := r.confirm(ctx, step, ex.display, confirmFallback, &attempts)
			if err != nil {
				return "", err
			}
			if !confirmed {
				if err := r.speak(ctx, promptTryAgain); err != nil {
					return "", err
				}
				continue
			}
		}

		return ex.value, nil
	}
}

// confirm reads the captured value back and waits for a yes or a no.
// An indeterminate reply re-prompts for yes or no only; it never
// restarts the underlying question.
func (r *turnRunner) confirm(ctx context.Context, step flow.StepDef, display, fallback string, attempts *int) (bool, error) {
	prompt := confirmPrompt(step, display, fallback)
	for {
		if err := r.speak(ctx, prompt); err != nil {
			return false, err
		}

		heard, err := r.listen(ctx)
		if err != nil {
			if fatalListenErr(err) {
				return false, err
			}
			if err := r.nextAttempt(attempts); err != nil {
				return false, err
			}
			prompt = promptYesNo
			continue
		}

		switch speech.ClassifyYesNo(heard) {
		case speech.Affirmed:
			return true, nil
		case speech.Denied:
			return false, nil
		default:
			if err := r.nextAttempt(attempts); err != nil {
				return false, err
			}
			prompt = promptYesNo
		}
	}
}

// confirmPrompt builds the read-back line. A configured prompt may
// reference the step's map key in braces, e.g. "You said {email},
// right?".
func confirmPrompt(step flow.StepDef, display, fallback string) string {
	if step.Confirm != nil && step.Confirm.Prompt != "" {
		return strings.ReplaceAll(step.Confirm.Prompt, "{"+step.Map+"}", display)
	}
	return fallback + display + ". Is that correct?"
}

func askPrompt(step flow.StepDef, fallback string) string {
	if step.Speak != "" {
		return step.Speak
	}
	if step.Label != "" {
		return step.Label
	}
	return fallback
}

func reaskPrompt(step flow.StepDef, fallback string) string {
	if step.Reask != "" {
		return step.Reask
	}
	return fallback
}

func handleMessage(ctx context.Context, r *turnRunner, step flow.StepDef) (handlerResult, error) {
	text := step.Speak
	if text == "" {
		text = step.Text
	}
	if err := r.speak(ctx, text); err != nil {
		return handlerResult{}, err
	}
	return handlerResult{next: step.Next}, nil
}

func handleText(ctx context.Context, r *turnRunner, step flow.StepDef) (handlerResult, error) {
	prompt := askPrompt(step, promptDefaultText)
	reask := reaskPrompt(step, promptTryAgain)

	value, err := r.captureLoop(ctx, step, prompt, reask, "I heard ", func(heard string) extraction {
		if heard == "" {
			return extraction{reask: reask}
		}
		if step.Validate != nil && step.Validate.Regex != "" {
			if !speech.MatchesPattern(heard, step.Validate.Regex) {
				msg := reask
				if step.Validate.Message != "" {
					msg = step.Validate.Message
				}
				return extraction{reask: msg}
			}
		}
		return extraction{value: heard, display: heard, ok: true}
	})
	if err != nil {
		return handlerResult{}, err
	}
	return handlerResult{value: value, captured: true, next: step.Next}, nil
}

func handleEmail(ctx context.Context, r *turnRunner, step flow.StepDef) (handlerResult, error) {
	prompt := askPrompt(step, promptDefaultEmail)
	reask := reaskPrompt(step, promptEmailReask)

	value, err := r.captureLoop(ctx, step, prompt, reask, "I heard ", func(heard string) extraction {
		normalized := speech.NormalizeEmail(heard)
		if !speech.IsEmail(normalized) {
			return extraction{reask: reask}
		}
		return extraction{value: normalized, display: normalized, ok: true}
	})
	if err != nil {
		return handlerResult{}, err
	}
	return handlerResult{value: value, captured: true, next: step.Next}, nil
}

func handleSingleSelect(ctx context.Context, r *turnRunner, step flow.StepDef) (handlerResult, error) {
	prompt := askPrompt(step, promptDefaultSelect)
	reask := reaskPrompt(step, promptChooseOption)

	value, err := r.captureLoop(ctx, step, prompt, reask, "You chose ", func(heard string) extraction {
		id, ok := speech.MatchSynonym(heard, step.Options)
		if !ok {
			return extraction{reask: reask}
		}
		return extraction{value: id, display: optionLabel(step.Options, id), ok: true}
	})
	if err != nil {
		return handlerResult{}, err
	}
	return handlerResult{value: value, captured: true, next: step.Next}, nil
}

func handleCheckbox(ctx context.Context, r *turnRunner, step flow.StepDef) (handlerResult, error) {
	prompt := askPrompt(step, promptDefaultCheckbox)
	reask := reaskPrompt(step, promptYesNo)

	value, err := r.captureLoop(ctx, step, prompt, reask, "You said ", func(heard string) extraction {
		switch speech.ClassifyYesNo(heard) {
		case speech.Affirmed:
			return extraction{value: checkboxAgreeValue, display: "yes", ok: true}
		case speech.Denied:
			return extraction{value: "", display: "no", ok: true}
		default:
			return extraction{reask: reask}
		}
	})
	if err != nil {
		return handlerResult{}, err
	}
	return handlerResult{value: value, captured: true, next: step.Next}, nil
}

func handleCompletion(ctx context.Context, r *turnRunner, step flow.StepDef) (handlerResult, error) {
	text := step.Speak
	if text == "" {
		text = step.Text
	}
	if text == "" {
		text = promptDefaultCompletion
	}
	if err := r.speak(ctx, text); err != nil {
		return handlerResult{}, err
	}
	return handlerResult{terminal: true}, nil
}

func optionLabel(options []flow.OptionDef, id string) string {
	for _, opt := range options {
		if opt.ID == id {
			if opt.Label != "" {
				return opt.Label
			}
			return opt.ID
		}
	}
	return id
}
