package turn

import (
	"context"
	"sync"
	"time"
)

// ScriptedIO replays a fixed sequence of utterances and records every
// spoken prompt. Used for deterministic replay in tests and by the CLI.
type ScriptedIO struct {
	mu      sync.Mutex
	replies []scriptReply
	spoken  []string
}

type scriptReply struct {
	text string
	err  error
}

// NewScriptedIO creates a scripted adapter that answers successive
// Listen calls with the given utterances, in order.
func NewScriptedIO(utterances ...string) *ScriptedIO {
	s := &ScriptedIO{}
	for _, u := range utterances {
		s.replies = append(s.replies, scriptReply{text: u})
	}
	return s
}

// QueueUtterance appends an utterance to the script.
func (s *ScriptedIO) QueueUtterance(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptReply{text: text})
}

// QueueError appends a Listen failure to the script.
func (s *ScriptedIO) QueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptReply{err: err})
}

// Speak records the prompt.
func (s *ScriptedIO) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

// Listen pops the next scripted reply. An exhausted script behaves like
// silence and reports a timeout.
func (s *ScriptedIO) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return "", ErrListenTimeout
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	if reply.err != nil {
		return "", reply.err
	}
	return reply.text, nil
}

// Spoken returns every prompt spoken so far, in order.
func (s *ScriptedIO) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// Remaining returns how many scripted replies are left.
func (s *ScriptedIO) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}
