package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/localstate"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Config holds the configuration for the client state layer.
// Environment variables are parsed from the HAMHIBOKKA_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`
	Debug       bool        `envconfig:"DEBUG" default:"false"`

	// Durable key/value store
	StoreDriver string `envconfig:"STORE_DRIVER" default:"badger"`
	StorePath   string `envconfig:"STORE_PATH" default:""`

	// Push gateway (websocket) and device registration endpoint
	PushURL         string `envconfig:"PUSH_URL" default:""`
	RegistrationURL string `envconfig:"REGISTRATION_URL" default:""`
	Platform        string `envconfig:"PLATFORM" default:"android"`

	// Notification queue
	QueueSize      int           `envconfig:"QUEUE_SIZE" default:"64"`
	EnqueueTimeout time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"250ms"`
}

// ResolveDefaults validates StoreDriver and derives StorePath when empty.
func (c *Config) ResolveDefaults() error {
	switch c.StoreDriver {
	case "", "auto":
		c.StoreDriver = DriverBadger
	case DriverMemory, DriverBadger, DriverSQLite:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}

	if c.StorePath == "" && c.StoreDriver != DriverMemory {
		var (
			p   string
			err error
		)
		if c.StoreDriver == DriverBadger {
			p, err = localstate.BadgerDir()
		} else {
			p, err = localstate.SQLitePath()
		}
		if err != nil {
			return fmt.Errorf("resolve store path: %w", err)
		}
		c.StorePath = p
	}

	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be > 0, got %d", c.QueueSize)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Example: HAMHIBOKKA_STORE_DRIVER=sqlite HAMHIBOKKA_LOG_LEVEL=debug
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("HAMHIBOKKA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("environment", string(cfg.Environment)).
		Str("store_driver", cfg.StoreDriver).
		Str("store_path", cfg.StorePath).
		Bool("push_configured", cfg.PushURL != "").
		Bool("registration_configured", cfg.RegistrationURL != "").
		Int("queue_size", cfg.QueueSize).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates an in-memory config for tests.
func NewForTesting() *Config {
	return &Config{
		Environment:    EnvTesting,
		LogLevel:       "disabled",
		StoreDriver:    DriverMemory,
		Platform:       "test",
		QueueSize:      16,
		EnqueueTimeout: 100 * time.Millisecond,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
