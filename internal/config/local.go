package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for the CLI and the local daemon
type LocalConfig struct {
	Daemon   DaemonConfig   `yaml:"daemon"`
	Session  SessionConfig  `yaml:"session"`
	Runner   RunnerConfig   `yaml:"runner"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port              int    `yaml:"port"`
	Bind              string `yaml:"bind"`
	LogLevel          string `yaml:"log_level"`
	AuthRatePerMinute int    `yaml:"auth_rate_per_minute"`
}

// SessionConfig holds client session settings
type SessionConfig struct {
	ServerURL   string        `yaml:"server_url"`
	WarningLead time.Duration `yaml:"warning_lead"`
	GraceSkew   time.Duration `yaml:"grace_skew"`
	Storage     string        `yaml:"storage"` // file or sqlite
}

// RunnerConfig holds snippet execution limits
type RunnerConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxCallStackSize int           `yaml:"max_call_stack_size"`
	MaxOutputBytes   int           `yaml:"max_output_bytes"`
	MaxConcurrent    int           `yaml:"max_concurrent"`
	MaxQueue         int           `yaml:"max_queue"`
}

// AuthConfig holds token issuing settings
type AuthConfig struct {
	TokenTTL      time.Duration `yaml:"token_ttl"`
	RefreshWindow time.Duration `yaml:"refresh_window"`
	TokenSecret   string        `yaml:"-"` // Loaded from secrets.yaml
}

// DatabaseConfig selects the daemon's user and attempt storage
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // sqlite or postgres
	Path        string `yaml:"path"`
	PostgresURL string `yaml:"-"` // Loaded from secrets.yaml
}

// QueueConfig holds asynchronous grading settings
type QueueConfig struct {
	Enabled bool   `yaml:"enabled"`
	Workers int    `yaml:"workers"`
	URL     string `yaml:"-"` // Loaded from secrets.yaml
}

// SecretsConfig holds credentials loaded from secrets.yaml
type SecretsConfig struct {
	TokenSecret string `yaml:"token_secret,omitempty"`
	PostgresURL string `yaml:"postgres_url,omitempty"`
	RabbitMQURL string `yaml:"rabbitmq_url,omitempty"`
}

// Dir returns the path to ~/.aprendizaje
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".aprendizaje"), nil
}

// EnsureDir creates ~/.aprendizaje and subdirectories if they don't exist
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "client", "data"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0700); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:              7480,
			Bind:              "127.0.0.1",
			LogLevel:          "info",
			AuthRatePerMinute: 30,
		},
		Session: SessionConfig{
			ServerURL:   "http://127.0.0.1:7480",
			WarningLead: 2 * time.Minute,
			GraceSkew:   5 * time.Second,
			Storage:     "file",
		},
		Runner: RunnerConfig{
			Timeout:          2 * time.Second,
			MaxCallStackSize: 1024,
			MaxOutputBytes:   64 * 1024,
			MaxConcurrent:    4,
			MaxQueue:         16,
		},
		Auth: AuthConfig{
			TokenTTL:      time.Hour,
			RefreshWindow: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "aprendizaje.db",
		},
		Queue: QueueConfig{
			Enabled: false,
			Workers: 2,
		},
	}
}

// Load reads config.yaml and secrets.yaml from ~/.aprendizaje, then applies
// .env files and APRENDIZAJE_* environment overrides.
func Load() (*LocalConfig, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom is Load with an explicit config directory
func LoadFrom(dir string) (*LocalConfig, error) {
	cfg, err := loadLocalConfig(dir)
	if err != nil {
		return nil, err
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(cfg)

	if !filepath.IsAbs(cfg.Database.Path) {
		cfg.Database.Path = filepath.Join(dir, "data", cfg.Database.Path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadLocalConfig(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	configPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	return cfg, nil
}

// loadSecrets loads credentials from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	secrets, err := readSecrets(dir)
	if err != nil {
		return err
	}

	cfg.Auth.TokenSecret = secrets.TokenSecret
	cfg.Database.PostgresURL = secrets.PostgresURL
	cfg.Queue.URL = secrets.RabbitMQURL
	return nil
}

func readSecrets(dir string) (*SecretsConfig, error) {
	secretsPath := filepath.Join(dir, "secrets.yaml")

	data, err := os.ReadFile(secretsPath)
	if errors.Is(err, os.ErrNotExist) {
		return &SecretsConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	return &secrets, nil
}

// loadDotEnv loads <dir>/.env and ./.env when present. Variables already in
// the environment win.
func loadDotEnv(dir string) error {
	for _, path := range []string{filepath.Join(dir, ".env"), ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// SaveLocalConfig saves configuration to <dir>/config.yaml
func SaveLocalConfig(dir string, cfg *LocalConfig) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveSecrets saves credentials to <dir>/secrets.yaml
func SaveSecrets(dir string, secrets *SecretsConfig) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// Write with restricted permissions (owner read/write only)
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}

// EnsureTokenSecret generates and persists a signing secret on first run.
func EnsureTokenSecret(dir string, cfg *LocalConfig) (generated bool, err error) {
	if cfg.Auth.TokenSecret != "" {
		return false, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("generate token secret: %w", err)
	}

	secrets, err := readSecrets(dir)
	if err != nil {
		return false, err
	}
	secrets.TokenSecret = hex.EncodeToString(buf)
	if err := SaveSecrets(dir, secrets); err != nil {
		return false, err
	}

	cfg.Auth.TokenSecret = secrets.TokenSecret
	return true, nil
}
