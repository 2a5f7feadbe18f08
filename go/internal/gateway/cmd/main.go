package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/prepaired/go/internal/catalog"
	"github.com/mcdev12/prepaired/go/internal/countdown"
	"github.com/mcdev12/prepaired/go/internal/gateway"
	"github.com/mcdev12/prepaired/go/internal/relay"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := loadConfig()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.LogLevel)

	log.Info().
		Str("port", cfg.Port).
		Str("catalog_driver", cfg.CatalogDriver).
		Bool("relay", cfg.NATSURL != "").
		Int("default_sec", cfg.Countdown.DefaultSeconds).
		Msg("starting timer gateway")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	durations, closeCatalog, err := setupCatalog(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up catalog")
	}
	defer closeCatalog()

	connectionManager := gateway.NewConnectionManager(cfg.Gateway.ConnectionConfig)
	registry := countdown.NewRegistry(cfg.Countdown, clockwork.NewRealClock(), connectionManager)

	var starter countdown.Starter = registry
	if cfg.NATSURL != "" {
		nc, err := relay.Connect(cfg.Relay)
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.NATSURL).Msg("failed to connect relay")
		}
		defer nc.Close()

		starter = relay.NewPublisher(nc, cfg.Relay.Subject, cfg.Countdown.MaxSeconds)
		subscriber := relay.NewSubscriber(nc, cfg.Relay.Subject, registry)
		go func() {
			if err := subscriber.Run(ctx); err != nil {
				log.Error().Err(err).Msg("relay subscriber failed")
			}
		}()
	}

	gatewayService := gateway.NewService(cfg.Gateway, connectionManager, starter, registry, durations)

	go func() {
		if err := registry.Run(ctx); err != nil {
			log.Error().Err(err).Msg("countdown registry failed")
		}
	}()

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     h2c.NewHandler(gatewayService.Handler(), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stops countdowns, the broadcast loop and the relay
	cancel()

	// Give write pumps time to send close frames
	time.Sleep(500 * time.Millisecond)

	log.Info().Msg("timer gateway shutdown complete")
}

// setupCatalog builds the duration source selected by CATALOG_DRIVER. The
// returned source is nil when no catalog is configured.
func setupCatalog(ctx context.Context, cfg Config) (gateway.DurationSource, func(), error) {
	noop := func() {}

	switch cfg.CatalogDriver {
	case catalogDriverNone, "":
		return nil, noop, nil

	case catalogDriverFile:
		fileCatalog, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, noop, err
		}
		log.Info().
			Str("file", cfg.CatalogFile).
			Int("tests", len(fileCatalog.Tests())).
			Msg("loaded mock test catalog")
		return fileCatalog, noop, nil

	case catalogDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("failed to ping database: %w", err)
		}

		cached := catalog.NewCachedCatalog(catalog.NewPostgresCatalog(pool))

		listener, err := catalog.NewListener(cached, cfg.Listener)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		go func() {
			if err := listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("catalog listener stopped with error")
			}
		}()

		log.Info().
			Str("database", cfg.Database.Database).
			Str("channel", cfg.Listener.NotifyChannel).
			Msg("using postgres mock test catalog")
		return cached, pool.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown catalog driver %q", cfg.CatalogDriver)
	}
}
