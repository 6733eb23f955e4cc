package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Validate checks settings that have no safe fallback
func (c *LocalConfig) Validate() error {
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("daemon.port out of range: %d", c.Daemon.Port)
	}
	switch c.Daemon.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("daemon.log_level must be debug, info, warn or error: %q", c.Daemon.LogLevel)
	}
	switch c.Session.Storage {
	case "file", "sqlite":
	default:
		return fmt.Errorf("session.storage must be file or sqlite: %q", c.Session.Storage)
	}
	if c.Session.WarningLead < 0 {
		return fmt.Errorf("session.warning_lead must not be negative: %s", c.Session.WarningLead)
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.PostgresURL == "" {
			return fmt.Errorf("database.driver postgres requires postgres_url in secrets.yaml or APRENDIZAJE_POSTGRES_URL")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres: %q", c.Database.Driver)
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		return fmt.Errorf("queue.enabled requires rabbitmq_url in secrets.yaml or APRENDIZAJE_RABBITMQ_URL")
	}
	return nil
}

// DaemonURL returns the address the daemon listens on
func (c *LocalConfig) DaemonURL() string {
	return fmt.Sprintf("http://%s:%d", c.Daemon.Bind, c.Daemon.Port)
}

// applyEnv overrides file settings with APRENDIZAJE_* variables
func applyEnv(c *LocalConfig) {
	c.Daemon.Port = getEnvInt("APRENDIZAJE_PORT", c.Daemon.Port)
	c.Daemon.Bind = getEnv("APRENDIZAJE_BIND", c.Daemon.Bind)
	c.Daemon.LogLevel = getEnv("APRENDIZAJE_LOG_LEVEL", c.Daemon.LogLevel)
	c.Daemon.AuthRatePerMinute = getEnvInt("APRENDIZAJE_AUTH_RATE_PER_MINUTE", c.Daemon.AuthRatePerMinute)

	c.Session.ServerURL = getEnv("APRENDIZAJE_SERVER_URL", c.Session.ServerURL)
	c.Session.WarningLead = getEnvDuration("APRENDIZAJE_WARNING_LEAD", c.Session.WarningLead)
	c.Session.Storage = getEnv("APRENDIZAJE_SESSION_STORAGE", c.Session.Storage)

	c.Runner.Timeout = getEnvDuration("APRENDIZAJE_RUNNER_TIMEOUT", c.Runner.Timeout)
	c.Runner.MaxConcurrent = getEnvInt("APRENDIZAJE_RUNNER_MAX_CONCURRENT", c.Runner.MaxConcurrent)

	c.Auth.TokenTTL = getEnvDuration("APRENDIZAJE_TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.TokenSecret = getEnv("APRENDIZAJE_TOKEN_SECRET", c.Auth.TokenSecret)

	c.Database.Driver = getEnv("APRENDIZAJE_DATABASE_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("APRENDIZAJE_DATABASE_PATH", c.Database.Path)
	c.Database.PostgresURL = getEnv("APRENDIZAJE_POSTGRES_URL", c.Database.PostgresURL)

	c.Queue.Enabled = getEnvBool("APRENDIZAJE_QUEUE_ENABLED", c.Queue.Enabled)
	c.Queue.Workers = getEnvInt("APRENDIZAJE_QUEUE_WORKERS", c.Queue.Workers)
	c.Queue.URL = getEnv("APRENDIZAJE_RABBITMQ_URL", c.Queue.URL)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
