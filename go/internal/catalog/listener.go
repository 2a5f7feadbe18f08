package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Invalidator is what the listener needs from a cache
type Invalidator interface {
	Invalidate(testID string)
	InvalidateAll()
}

// ListenerConfig holds configuration for catalog change notifications
type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often the whole cache is dropped in case notifications were missed
	PingInterval     time.Duration
}

// DefaultListenerConfig returns default listener configuration
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "mock_tests_changed",
		FallbackInterval: 5 * time.Minute,
		PingInterval:     90 * time.Second,
	}
}

// Listener invalidates cached durations when mock_tests rows change. The
// notification payload is the changed test id, or empty to drop everything.
type Listener struct {
	listener *pq.Listener
	cache    Invalidator
	cfg      ListenerConfig
}

// NewListener starts listening on cfg.NotifyChannel
func NewListener(cache Invalidator, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("catalog listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for catalog notifications")

	return &Listener{
		listener: l,
		cache:    cache,
		cfg:      cfg,
	}, nil
}

// Start processes notifications until ctx is cancelled
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("catalog listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("catalog listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// Connection was re-established; anything may have changed meanwhile
				l.cache.InvalidateAll()
				continue
			}
			handleNotification(l.cache, note.Extra)
		case <-fallbackTicker.C:
			l.cache.InvalidateAll()
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping catalog listener")
			}
		}
	}
}

// Stop closes the underlying connection
func (l *Listener) Stop() error {
	return l.listener.Close()
}

func handleNotification(cache Invalidator, extra string) {
	testID := strings.TrimSpace(extra)
	if testID == "" {
		cache.InvalidateAll()
		return
	}
	cache.Invalidate(testID)
}
