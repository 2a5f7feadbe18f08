package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/prepaired/go/internal/catalog"
	"github.com/mcdev12/prepaired/go/internal/countdown"
)

// ErrUntrustedDuration is returned when a client supplies a duration but the
// server only accepts durations derived from test metadata
var ErrUntrustedDuration = errors.New("client supplied durations are not accepted, test_id required")

// DurationSource resolves the countdown length of a mock test
type DurationSource interface {
	Duration(ctx context.Context, testID string) (int, error)
}

// Service is the timer gateway: it accepts WebSocket clients, applies their
// start-timer requests and fans countdown events out to them
type Service struct {
	config            Config
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	starter           countdown.Starter
	durations         DurationSource
}

// Config holds configuration for the timer gateway service
type Config struct {
	ConnectionConfig ConnectionConfig

	// When false a start-timer must name a test known to the catalog
	TrustClientDuration bool
	// Bound on a single catalog lookup
	CatalogTimeout time.Duration
}

// DefaultConfig returns default configuration for the timer gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:    DefaultConnectionConfig(),
		TrustClientDuration: true,
		CatalogTimeout:      5 * time.Second,
	}
}

// NewService creates a new timer gateway service. durations may be nil when no
// catalog is configured.
func NewService(config Config, cm *ConnectionManager, starter countdown.Starter, states StateProvider, durations DurationSource) *Service {
	if config.CatalogTimeout <= 0 {
		config.CatalogTimeout = DefaultConfig().CatalogTimeout
	}

	s := &Service{
		config:            config,
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		stateHandler:      NewStateHandler(states),
		starter:           starter,
		durations:         durations,
	}
	cm.SetMessageHandler(s)
	return s
}

// Start runs the broadcast loop until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting timer gateway service")

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("timer gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	log.Info().Msg("timer gateway routes registered")
}

// Handler returns every route wrapped in permissive CORS
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// HandleMessage implements MessageHandler
func (s *Service) HandleMessage(ctx context.Context, conn *Connection, message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("malformed client message")
		s.sendError(conn, "bad_message", err)
		return
	}

	switch msg.Event {
	case ClientEventStartTimer:
		s.handleStartTimer(ctx, conn, msg.Data)
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("event", string(msg.Event)).
			Msg("unknown client event - ignoring")
		s.sendError(conn, "unknown_event", fmt.Errorf("unknown event %q", msg.Event))
	}
}

func (s *Service) handleStartTimer(ctx context.Context, conn *Connection, data json.RawMessage) {
	req, err := ParseStartTimer(data)
	if err != nil {
		s.rejectStart(conn, req, err)
		return
	}

	seconds, err := s.resolveDuration(ctx, req)
	if err != nil {
		s.rejectStart(conn, req, err)
		return
	}

	if err := s.starter.Start(ctx, conn.Room, seconds); err != nil {
		s.rejectStart(conn, req, err)
		return
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("room", conn.Room).
		Str("test_id", req.TestID).
		Int("duration_sec", seconds).
		Msg("start-timer accepted")
}

// resolveDuration prefers server-held test metadata over the client's value
func (s *Service) resolveDuration(ctx context.Context, req StartTimerRequest) (int, error) {
	if req.TestID != "" && s.durations != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, s.config.CatalogTimeout)
		defer cancel()

		seconds, err := s.durations.Duration(lookupCtx, req.TestID)
		if err != nil {
			return 0, fmt.Errorf("resolve duration for test %s: %w", req.TestID, err)
		}
		return seconds, nil
	}

	if !s.config.TrustClientDuration {
		return 0, ErrUntrustedDuration
	}
	if !req.HasSeconds {
		return 0, fmt.Errorf("%w: missing duration", countdown.ErrInvalidDuration)
	}
	return req.Seconds, nil
}

func (s *Service) rejectStart(conn *Connection, req StartTimerRequest, err error) {
	log.Warn().
		Err(err).
		Str("connection_id", conn.ID).
		Str("room", conn.Room).
		Str("test_id", req.TestID).
		Msg("start-timer rejected")
	s.sendError(conn, errorCode(err), err)
}

func (s *Service) sendError(conn *Connection, code string, err error) {
	s.connectionManager.SendToConnection(conn, &ServerEvent{
		Event:     ServerEventTimerError,
		Room:      conn.Room,
		Data:      TimerErrorPayload{Code: code, Message: err.Error()},
		Timestamp: time.Now(),
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, countdown.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, countdown.ErrDurationTooLong):
		return "duration_too_long"
	case errors.Is(err, ErrUntrustedDuration):
		return "test_id_required"
	case errors.Is(err, catalog.ErrTestNotFound):
		return "unknown_test"
	case errors.Is(err, countdown.ErrRegistryClosed):
		return "unavailable"
	default:
		return "start_failed"
	}
}
