package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/prepaired/go/internal/catalog"
	"github.com/mcdev12/prepaired/go/internal/countdown"
	"github.com/mcdev12/prepaired/go/internal/dbconfig"
	"github.com/mcdev12/prepaired/go/internal/gateway"
	"github.com/mcdev12/prepaired/go/internal/relay"
)

const (
	catalogDriverNone     = "none"
	catalogDriverFile     = "file"
	catalogDriverPostgres = "postgres"
)

// Config is the full process configuration
type Config struct {
	Port     string
	LogLevel zerolog.Level

	Countdown countdown.Config
	Gateway   gateway.Config

	CatalogDriver string
	CatalogFile   string
	Database      dbconfig.Config
	Listener      catalog.ListenerConfig

	// Relay is enabled when NATSURL is set
	NATSURL string
	Relay   relay.Config
}

func loadConfig() Config {
	countdownCfg := countdown.DefaultConfig()
	countdownCfg.DefaultSeconds = getEnvAsInt("TIMER_DEFAULT_SECONDS", countdownCfg.DefaultSeconds)
	countdownCfg.MaxSeconds = getEnvAsInt("TIMER_MAX_SECONDS", countdownCfg.MaxSeconds)
	countdownCfg.PruneInterval = getEnvAsDuration("TIMER_PRUNE_INTERVAL", countdownCfg.PruneInterval)
	countdownCfg.IdleTTL = getEnvAsDuration("TIMER_IDLE_TTL", countdownCfg.IdleTTL)

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.TrustClientDuration = getEnvAsBool("TIMER_TRUST_CLIENT_DURATION", gatewayCfg.TrustClientDuration)
	gatewayCfg.CatalogTimeout = getEnvAsDuration("CATALOG_TIMEOUT", gatewayCfg.CatalogTimeout)

	dbCfg := dbconfig.NewConfigFromEnv()

	listenerCfg := catalog.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dbCfg.DSN()
	listenerCfg.NotifyChannel = getEnv("CATALOG_NOTIFY_CHANNEL", listenerCfg.NotifyChannel)

	relayCfg := relay.DefaultConfig()
	relayCfg.Subject = getEnv("NATS_SUBJECT", relayCfg.Subject)
	natsURL := getEnv("NATS_URL", "")
	if natsURL != "" {
		relayCfg.URL = natsURL
	}

	return Config{
		Port:          getEnv("PORT", "4000"),
		LogLevel:      parseLogLevel(getEnv("LOG_LEVEL", "info")),
		Countdown:     countdownCfg,
		Gateway:       gatewayCfg,
		CatalogDriver: strings.ToLower(getEnv("CATALOG_DRIVER", catalogDriverNone)),
		CatalogFile:   getEnv("CATALOG_FILE", "catalog.yaml"),
		Database:      dbCfg,
		Listener:      listenerCfg,
		NATSURL:       natsURL,
		Relay:         relayCfg,
	}
}

func parseLogLevel(value string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(value))
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", value).Msg("unknown log level, using info")
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid integer, using default")
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid boolean, using default")
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration, using default")
	}
	return defaultValue
}
