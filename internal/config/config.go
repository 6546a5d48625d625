package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig `envconfig:"DB"`
	Events        EventsConfig
	Auth          AuthConfig
	Dispatch      DispatchConfig
	Notifications NotificationsConfig
	Log           LogConfig
}

type ServerConfig struct {
	Address         string        `envconfig:"ADDRESS" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	Driver string `envconfig:"DRIVER" default:"postgres"`
	URL    string `envconfig:"URL" required:"true"`
}

type EventsConfig struct {
	Source       string `envconfig:"SOURCE" default:"memory"`
	RedisURL     string `envconfig:"REDIS_URL"`
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"retention.events"`
}

type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET"`
}

type DispatchConfig struct {
	Concurrency    int           `envconfig:"CONCURRENCY" default:"8"`
	AttemptTimeout time.Duration `envconfig:"ATTEMPT_TIMEOUT" default:"10s"`
	WebhookURL     string        `envconfig:"WEBHOOK_URL"`
}

type NotificationsConfig struct {
	FeedLimit     int           `envconfig:"FEED_LIMIT" default:"10"`
	BackfillLimit int           `envconfig:"BACKFILL_LIMIT" default:"5"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"30m"`
}

type LogConfig struct {
	Level string `envconfig:"LEVEL" default:"info"`
}

const (
	SourceMemory   = "memory"
	SourcePostgres = "postgres"
	SourceRedis    = "redis"
	SourceAMQP     = "amqp"
)

// Load reads the process environment. Callers load .env files beforehand.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequireAuth reports a missing signing secret. Only the API server needs one.
func (c *Config) RequireAuth() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must not be empty")
	}
	return nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DB_URL must not be empty")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}

	switch c.Events.Source {
	case SourceMemory:
	case SourcePostgres:
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("EVENTS_SOURCE=postgres requires DB_DRIVER=postgres")
		}
	case SourceRedis:
		if c.Events.RedisURL == "" {
			return fmt.Errorf("EVENTS_REDIS_URL is required when EVENTS_SOURCE=redis")
		}
	case SourceAMQP:
		if c.Events.AMQPURL == "" {
			return fmt.Errorf("EVENTS_AMQP_URL is required when EVENTS_SOURCE=amqp")
		}
	default:
		return fmt.Errorf("unknown EVENTS_SOURCE %q", c.Events.Source)
	}

	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("SERVER_REQUEST_TIMEOUT must not be negative")
	}
	if c.Dispatch.Concurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be > 0")
	}
	if c.Dispatch.AttemptTimeout <= 0 {
		return fmt.Errorf("DISPATCH_ATTEMPT_TIMEOUT must be > 0")
	}
	if c.Notifications.FeedLimit <= 0 || c.Notifications.BackfillLimit <= 0 {
		return fmt.Errorf("NOTIFICATIONS_FEED_LIMIT and NOTIFICATIONS_BACKFILL_LIMIT must be > 0")
	}
	if c.Notifications.SessionTTL <= 0 {
		return fmt.Errorf("NOTIFICATIONS_SESSION_TTL must be > 0")
	}
	return nil
}
