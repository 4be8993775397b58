package turn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/formversation/voiceform/pkg/logging"
)

// ConsoleIO drives a conversation over a terminal: prompts are printed,
// utterances are typed. Used by the CLI `run` command for trying a form
// definition without any speech hardware.
type ConsoleIO struct {
	out   io.Writer
	log   logging.Logger
	lines chan readResult

	mu        sync.Mutex
	listening bool

	startOnce sync.Once
	in        io.Reader
}

type readResult struct {
	text string
	err  error
}

// NewConsoleIO creates a console turn adapter reading from in and
// writing prompts to out.
func NewConsoleIO(in io.Reader, out io.Writer, log logging.Logger) *ConsoleIO {
	return &ConsoleIO{
		in:    in,
		out:   out,
		log:   log,
		lines: make(chan readResult),
	}
}

// Speak prints the prompt. Console output cannot fail in a way worth
// aborting a conversation over, so errors are logged and swallowed.
func (c *ConsoleIO) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.out, "> %s\n", text); err != nil {
		c.log.Warn("console speak failed", logging.F("error", err.Error()))
	}
	return nil
}

// Listen reads one line of input, honoring the timeout.
func (c *ConsoleIO) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultListenTimeout
	}

	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return "", ErrListenBusy
	}
	c.listening = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.listening = false
		c.mu.Unlock()
	}()

	// One reader goroutine for the adapter's lifetime; lines queue up in
	// the channel so an abandoned read is picked up by the next Listen.
	c.startOnce.Do(func() {
		go c.readLines()
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res, ok := <-c.lines:
		if !ok {
			return "", ErrCaptureUnavailable
		}
		if res.err != nil {
			return "", &CaptureError{Err: res.err}
		}
		return strings.TrimSpace(res.text), nil
	case <-timer.C:
		return "", ErrListenTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *ConsoleIO) readLines() {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		c.lines <- readResult{text: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		c.lines <- readResult{err: err}
	}
	close(c.lines)
}
