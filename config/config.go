// Package config loads process settings from CMDR_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Transport names accepted by CMDR_TRANSPORT.
const (
	TransportInMemory = "inmemory"
	TransportNATS     = "nats"
	TransportRabbitMQ = "rabbitmq"
	TransportKafka    = "kafka"
)

// Config is the startup configuration of a cmdr process.
type Config struct {
	// HandlerSources lists catalog names in registration order.
	HandlerSources []string `env:"CMDR_HANDLER_SOURCES" envSeparator:","`
	MaxDepth       int      `env:"CMDR_MAX_DEPTH"       envDefault:"64"`
	LogLevel       string   `env:"CMDR_LOG_LEVEL"       envDefault:"info"`

	Transport    string   `env:"CMDR_TRANSPORT"     envDefault:"inmemory"`
	NATSURL      string   `env:"CMDR_NATS_URL"      envDefault:"nats://127.0.0.1:4222"`
	AMQPURL      string   `env:"CMDR_AMQP_URL"`
	KafkaBrokers []string `env:"CMDR_KAFKA_BROKERS" envSeparator:","`
	// Group is the NATS queue group or Kafka consumer group of the worker.
	Group string `env:"CMDR_GROUP" envDefault:"cmdr-workers"`
	// Queues are job queues the worker consumes in addition to the routes
	// derived from registered queueable commands and queued listeners.
	Queues []string `env:"CMDR_QUEUES" envSeparator:"," envDefault:"default"`

	MetricsAddr  string `env:"CMDR_METRICS_ADDR"`
	OTelEndpoint string `env:"CMDR_OTEL_ENDPOINT"`
	DatabasePath string `env:"CMDR_DATABASE_PATH" envDefault:"ledger.db"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that the selected transport has its connection settings
// and that MaxDepth is positive.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportInMemory, TransportNATS:
	case TransportRabbitMQ:
		if c.AMQPURL == "" {
			return fmt.Errorf("config: CMDR_AMQP_URL required for transport %q", c.Transport)
		}
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("config: CMDR_KAFKA_BROKERS required for transport %q", c.Transport)
		}
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}

	if c.MaxDepth <= 0 {
		return fmt.Errorf("config: CMDR_MAX_DEPTH must be positive, got %d", c.MaxDepth)
	}

	return nil
}

// Level maps LogLevel to a slog level; unknown values mean info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
