// Package relay shares start-timer commands between gateway instances over NATS.
// Every instance applies every command to its own registry, so clients of the
// same room see the same countdown whichever instance they are connected to.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/prepaired/go/internal/countdown"
)

// Config holds configuration for the NATS relay
type Config struct {
	URL           string
	Subject       string // A single subject keeps command order identical on every instance
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default relay configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Subject:       "prepaired.timer.control",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// StartCommand is the message published for every accepted start-timer
type StartCommand struct {
	Room     string    `json:"room"`
	Seconds  int       `json:"seconds"`
	IssuedAt time.Time `json:"issued_at"`
	Origin   string    `json:"origin"`
}

// Connect opens a NATS connection with reconnect logging
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("prepaired-timer-gateway"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// MessagePublisher is the subset of *nats.Conn the publisher uses
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// Publisher implements countdown.Starter by publishing the command instead of
// applying it locally
type Publisher struct {
	conn       MessagePublisher
	subject    string
	origin     string
	maxSeconds int
}

// NewPublisher creates a relay publisher. Commands are validated against
// maxSeconds before they leave the instance.
func NewPublisher(conn MessagePublisher, subject string, maxSeconds int) *Publisher {
	return &Publisher{
		conn:       conn,
		subject:    subject,
		origin:     uuid.New().String()[:8],
		maxSeconds: maxSeconds,
	}
}

// Start implements countdown.Starter
func (p *Publisher) Start(ctx context.Context, room string, seconds int) error {
	if err := countdown.ValidateDuration(seconds, p.maxSeconds); err != nil {
		return err
	}

	cmd := StartCommand{
		Room:     countdown.NormalizeRoom(room),
		Seconds:  seconds,
		IssuedAt: time.Now().UTC(),
		Origin:   p.origin,
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal start command: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish start command: %w", err)
	}

	log.Debug().
		Str("room", cmd.Room).
		Int("duration_sec", seconds).
		Str("subject", p.subject).
		Msg("start command published")
	return nil
}

// Subscriber applies relayed start commands to a local registry
type Subscriber struct {
	nc      *nats.Conn
	subject string
	target  countdown.Starter
}

// NewSubscriber creates a relay subscriber
func NewSubscriber(nc *nats.Conn, subject string, target countdown.Starter) *Subscriber {
	return &Subscriber{
		nc:      nc,
		subject: subject,
		target:  target,
	}
}

// Run subscribes and applies commands until ctx is cancelled
func (s *Subscriber) Run(ctx context.Context) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		if err := s.apply(msg.Data); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject).
				Msg("failed to apply relayed start command")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.subject, err)
	}

	log.Info().Str("subject", s.subject).Msg("relay subscriber started")

	<-ctx.Done()

	log.Info().Msg("relay subscriber shutting down")
	if err := sub.Unsubscribe(); err != nil {
		log.Error().Err(err).Msg("failed to unsubscribe relay")
	}
	return nil
}

func (s *Subscriber) apply(data []byte) error {
	var cmd StartCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("unmarshal start command: %w", err)
	}

	log.Debug().
		Str("room", cmd.Room).
		Int("duration_sec", cmd.Seconds).
		Str("origin", cmd.Origin).
		Msg("applying relayed start command")

	return s.target.Start(context.Background(), cmd.Room, cmd.Seconds)
}
