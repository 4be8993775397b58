package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/formversation/voiceform/pkg/collector"
	"github.com/formversation/voiceform/pkg/flow"
	"github.com/formversation/voiceform/pkg/logging"
	"github.com/formversation/voiceform/pkg/turn"
)

// Options tunes the driver's turn behavior.
type Options struct {
	// ListenTimeout bounds each wait for an utterance. Zero uses
	// turn.DefaultListenTimeout.
	ListenTimeout time.Duration

	// MaxAttempts caps how many times one question may be asked,
	// counting the first ask. Zero means unbounded.
	MaxAttempts int
}

// Driver walks a flow document over a turn adapter, one step at a time,
// and records captured answers on the session.
type Driver struct {
	doc  *flow.Document
	io   turn.IO
	coll collector.Collector
	log  logging.Logger
	opts Options
}

// NewDriver creates a driver for the given document. The collector may
// be nil when submissions are handled elsewhere.
func NewDriver(doc *flow.Document, io turn.IO, coll collector.Collector, log logging.Logger, opts Options) *Driver {
	if log == nil {
		log = logging.Nop()
	}
	if opts.ListenTimeout <= 0 {
		opts.ListenTimeout = turn.DefaultListenTimeout
	}
	return &Driver{
		doc:  doc,
		io:   io,
		coll: coll,
		log:  log,
		opts: opts,
	}
}

// NewDriverSession creates a fresh session positioned at the document's
// start step.
func (d *Driver) NewDriverSession() *Session {
	return NewSession(d.doc.ID(), d.doc.StartStepID())
}

// Run executes the conversation until a completion step is reached or a
// fatal condition aborts it. The session is updated in place; on a
// normal return its State is StateCompleted, on error StateAborted.
func (d *Driver) Run(ctx context.Context, sess *Session) error {
	runner := &turnRunner{
		io:            d.io,
		listenTimeout: d.opts.ListenTimeout,
		maxAttempts:   d.opts.MaxAttempts,
		log:           d.log,
	}

	for {
		if err := ctx.Err(); err != nil {
			sess.abort(AbortCanceled)
			return err
		}

		step, ok := d.doc.Step(sess.CurrentStepID)
		if !ok {
			// Graph shape is validated at load time, so a dangling
			// reference here means the document changed underneath a
			// live session.
			runner.speakBestEffort(ctx, promptGenericError)
			sess.abort(AbortMissingStep)
			return fmt.Errorf("%w: %q", ErrMissingStep, sess.CurrentStepID)
		}

		handler, ok := handlerFor(step.Type)
		if !ok {
			d.log.Warn("aborting on unknown step type",
				logging.F("session_id", sess.ID),
				logging.F("step_id", sess.CurrentStepID),
				logging.F("type", string(step.Type)))
			runner.speakBestEffort(ctx, promptGenericError)
			sess.abort(AbortUnknownStepType)
			return fmt.Errorf("%w: %q", ErrUnknownStepType, step.Type)
		}

		sess.Visited = append(sess.Visited, sess.CurrentStepID)

		// The terminal side effect fires before the closing prompt so
		// the respondent is never thanked for answers that were lost.
		if step.Type.Terminal() {
			d.submit(ctx, sess)
		}

		res, err := handler(ctx, runner, step)
		if err != nil {
			d.abortOn(ctx, runner, sess, err)
			return err
		}

		if res.captured && step.Map != "" {
			sess.Answers[step.Map] = res.value
		}

		if res.terminal {
			sess.State = StateCompleted
			d.log.Info("session completed",
				logging.F("session_id", sess.ID),
				logging.F("form_id", sess.FormID),
				logging.F("steps", len(sess.Visited)))
			return nil
		}

		sess.CurrentStepID = res.next
	}
}

func (d *Driver) abortOn(ctx context.Context, runner *turnRunner, sess *Session, err error) {
	reason := AbortCanceled
	switch {
	case errors.Is(err, turn.ErrCaptureUnavailable):
		reason = AbortCaptureUnavailable
		runner.speakBestEffort(ctx, promptGenericError)
	case errors.Is(err, ErrAttemptsExhausted):
		reason = AbortMaxAttempts
		runner.speakBestEffort(ctx, promptGenericError)
	}
	sess.abort(reason)
	d.log.Warn("session aborted",
		logging.F("session_id", sess.ID),
		logging.F("step_id", sess.CurrentStepID),
		logging.F("reason", reason),
		logging.F("error", err.Error()))
}

// submit delivers the collected answers exactly once per session.
// Delivery failure is logged but never surfaced to the respondent; the
// conversation still ends normally.
func (d *Driver) submit(ctx context.Context, sess *Session) {
	if d.coll == nil {
		return
	}
	id, err := d.coll.Submit(ctx, sess.FormID, sess.Answers)
	if err != nil {
		d.log.Error("submission delivery failed",
			logging.F("session_id", sess.ID),
			logging.F("form_id", sess.FormID),
			logging.F("error", err.Error()))
		return
	}
	d.log.Info("submission delivered",
		logging.F("session_id", sess.ID),
		logging.F("form_id", sess.FormID),
		logging.F("submission_id", id))
}
