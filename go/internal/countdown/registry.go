package countdown

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultRoom is used by clients that do not name a room. Everyone in it shares
// a single countdown.
const DefaultRoom = "global"

// Starter starts or restarts the countdown of a room
type Starter interface {
	Start(ctx context.Context, room string, seconds int) error
}

// Config holds the countdown registry settings
type Config struct {
	DefaultSeconds int           // Initial value of a freshly created session
	MaxSeconds     int           // Upper bound on a requested duration, 0 for none
	TickInterval   time.Duration // Time between decrements
	PruneInterval  time.Duration // How often idle sessions are swept
	IdleTTL        time.Duration // How long a session may sit idle before it is pruned
}

// DefaultConfig returns the default countdown configuration
func DefaultConfig() Config {
	return Config{
		DefaultSeconds: 3600,
		MaxSeconds:     24 * 60 * 60,
		TickInterval:   time.Second,
		PruneInterval:  time.Minute,
		IdleTTL:        10 * time.Minute,
	}
}

// Registry maps room identifiers to their countdown sessions
type Registry struct {
	config  Config
	clock   clockwork.Clock
	emitter Emitter

	// Parent of every session loop; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates a registry holding the default room
func NewRegistry(config Config, clock clockwork.Clock, emitter Emitter) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		config:   config,
		clock:    clock,
		emitter:  emitter,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	r.sessions[DefaultRoom] = r.newSession(DefaultRoom)
	return r
}

// NormalizeRoom trims a room identifier and maps the empty room to DefaultRoom
func NormalizeRoom(room string) string {
	room = strings.TrimSpace(room)
	if room == "" {
		return DefaultRoom
	}
	return room
}

func (r *Registry) newSession(room string) *Session {
	return newSession(room, r.config.DefaultSeconds, r.clock, r.emitter, r.config.TickInterval)
}

// MaxSeconds returns the configured duration ceiling
func (r *Registry) MaxSeconds() int {
	return r.config.MaxSeconds
}

// Start validates seconds and (re)starts the countdown for room. The countdown
// outlives ctx; only Close stops it early.
func (r *Registry) Start(ctx context.Context, room string, seconds int) error {
	if err := ValidateDuration(seconds, r.config.MaxSeconds); err != nil {
		return err
	}

	room = NormalizeRoom(room)
	for {
		session, err := r.session(room)
		if err != nil {
			return err
		}
		// A session pruned or closed since the lookup refuses to start; the next
		// lookup sees the replacement or the closed registry.
		if session.start(r.ctx, seconds) {
			return nil
		}
	}
}

// session returns the session for room, creating it on first use
func (r *Registry) session(room string) (*Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[room]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRegistryClosed
	}
	if ok {
		return session, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if session, ok := r.sessions[room]; ok {
		return session, nil
	}
	session = r.newSession(room)
	r.sessions[room] = session

	log.Debug().
		Str("room", room).
		Int("total_rooms", len(r.sessions)).
		Msg("countdown session created")
	return session, nil
}

// Snapshot returns the state of a room's countdown
func (r *Registry) Snapshot(room string) (Snapshot, bool) {
	r.mu.RLock()
	session, ok := r.sessions[NormalizeRoom(room)]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return session.Snapshot(), true
}

// Snapshots returns the state of every known room ordered by room
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(sessions))
	for _, session := range sessions {
		snaps = append(snaps, session.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Room < snaps[j].Room })
	return snaps
}

// Prune removes sessions that have been idle for at least IdleTTL. The default
// room is kept.
func (r *Registry) Prune() int {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for room, session := range r.sessions {
		if room == DefaultRoom {
			continue
		}
		if session.retireIfIdle(now, r.config.IdleTTL) {
			delete(r.sessions, room)
			pruned++
		}
	}
	return pruned
}

// Run sweeps idle sessions until ctx is cancelled, then closes the registry
func (r *Registry) Run(ctx context.Context) error {
	defer r.Close()

	if r.config.PruneInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := r.clock.NewTicker(r.config.PruneInterval)
	defer ticker.Stop()

	log.Info().Dur("prune_interval", r.config.PruneInterval).Msg("countdown registry started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("countdown registry shutting down")
			return nil
		case <-ticker.Chan():
			if n := r.Prune(); n > 0 {
				log.Debug().Int("pruned", n).Msg("pruned idle countdown sessions")
			}
		}
	}
}

// Close stops every running countdown. Later starts fail with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()

	r.cancel()
	for _, session := range sessions {
		session.stop()
	}
}
