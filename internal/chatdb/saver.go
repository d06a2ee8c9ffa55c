package chatdb

import (
	"context"
	"sync"
	"time"

	"chatvault/pkg/models"
)

type SessionWriter interface {
	SetSessionMessages(ctx context.Context, msgs []models.Message) Outcome
}

// SessionSaver coalesces bursts of session saves into one trailing write.
// Writes run one at a time, and each write takes the latest pending value,
// so a later Save always supersedes an earlier one.
type SessionSaver struct {
	target SessionWriter
	delay  time.Duration

	// Held for the duration of a write.
	writeMu sync.Mutex

	mu         sync.Mutex
	pending    []models.Message
	hasPending bool
	timer      *time.Timer
	closed     bool
}

func NewSessionSaver(target SessionWriter, delay time.Duration) *SessionSaver {
	return &SessionSaver{target: target, delay: delay}
}

// Save schedules msgs to be written after the saver's delay. With a
// non-positive delay, or after Close, the write happens before Save returns.
func (s *SessionSaver) Save(msgs []models.Message) {
	s.mu.Lock()
	s.pending = append([]models.Message(nil), msgs...)
	s.hasPending = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	immediate := s.closed || s.delay <= 0
	if !immediate {
		s.timer = time.AfterFunc(s.delay, func() {
			s.Flush(context.Background())
		})
	}
	s.mu.Unlock()

	if immediate {
		s.Flush(context.Background())
	}
}

// Flush writes the pending value, if any, and waits for it. The second return
// is false when there was nothing to write.
func (s *SessionSaver) Flush(ctx context.Context) (Outcome, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.hasPending {
		s.mu.Unlock()
		return Outcome{}, false
	}
	msgs := s.pending
	s.pending = nil
	s.hasPending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	return s.target.SetSessionMessages(ctx, msgs), true
}

// Pending reports whether a save is waiting to be written.
func (s *SessionSaver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPending
}

// Close writes any pending value. Later saves are written immediately.
func (s *SessionSaver) Close(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Flush(ctx)
}
