package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Session is one authoritative countdown shared by every client of a room.
// At most one decrement loop runs per session; starting again supersedes it.
type Session struct {
	room     string
	clock    clockwork.Clock
	emitter  Emitter
	interval time.Duration

	mu         sync.Mutex
	remaining  int
	duration   int
	active     bool
	startedAt  time.Time
	idleSince  time.Time
	generation uint64
	ticker     clockwork.Ticker
	cancel     context.CancelFunc

	// Set once the registry drops the session; it never starts again
	retired bool
}

func newSession(room string, initial int, clock clockwork.Clock, emitter Emitter, interval time.Duration) *Session {
	return &Session{
		room:      room,
		clock:     clock,
		emitter:   emitter,
		interval:  interval,
		remaining: initial,
		duration:  initial,
		idleSince: clock.Now(),
	}
}

// start cancels any running loop and begins a new countdown of the given length.
// The caller has already validated seconds. It returns false, doing nothing, when
// the session has been retired or parent is already done.
func (s *Session) start(parent context.Context, seconds int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired || parent.Err() != nil {
		return false
	}

	superseded := s.active
	s.stopLocked()
	s.generation++
	s.remaining = seconds
	s.duration = seconds
	s.startedAt = s.clock.Now()

	if seconds == 0 {
		s.active = false
		s.idleSince = s.startedAt
		s.emitLocked(EventTypeTimeUp)
		log.Info().Str("room", s.room).Msg("countdown started at zero, time up")
		return true
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.ticker = s.clock.NewTicker(s.interval)
	s.active = true

	go s.run(ctx, s.generation, s.ticker)

	log.Info().
		Str("room", s.room).
		Int("duration_sec", seconds).
		Bool("superseded", superseded).
		Msg("countdown started")
	return true
}

// stop halts the running loop, if any, and retires the session. The remaining
// value is left untouched.
func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = true
	if s.active {
		s.idleSince = s.clock.Now()
	}
	s.stopLocked()
	s.active = false
}

// stopLocked releases the ticker synchronously so a superseded loop cannot observe
// further ticks from it.
func (s *Session) stopLocked() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) run(ctx context.Context, generation uint64, ticker clockwork.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !s.tick(generation) {
				return
			}
		}
	}
}

// tick performs one decrement-and-broadcast cycle. It reports whether the loop
// should keep running.
func (s *Session) tick(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A tick already queued by a superseded ticker is discarded here.
	if generation != s.generation || !s.active {
		return false
	}

	s.remaining--
	s.emitLocked(EventTypeTimeUpdate)

	if s.remaining > 0 {
		return true
	}

	s.remaining = 0
	s.stopLocked()
	s.active = false
	s.idleSince = s.clock.Now()
	s.emitLocked(EventTypeTimeUp)

	log.Info().
		Str("room", s.room).
		Int("duration_sec", s.duration).
		Msg("countdown finished")
	return false
}

func (s *Session) emitLocked(eventType EventType) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(Event{
		Room:      s.room,
		Type:      eventType,
		Remaining: s.remaining,
		EmittedAt: s.clock.Now(),
	})
}

// Snapshot returns the current state of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Room:             s.room,
		RemainingSeconds: s.remaining,
		DurationSeconds:  s.duration,
		Active:           s.active,
	}
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		snap.StartedAt = &startedAt
	}
	return snap
}

// retireIfIdle retires the session when it has been idle for at least ttl and
// reports whether it did
func (s *Session) retireIfIdle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active || now.Sub(s.idleSince) < ttl {
		return false
	}
	s.retired = true
	return true
}
