package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
)

// ErrUnavailable is returned when the runner is saturated or the caller gave
// up waiting for a slot.
var ErrUnavailable = errors.New("runner unavailable")

// Executor runs and grades snippets. Service implements it.
type Executor interface {
	Run(ctx context.Context, source string) (*Result, error)
	Grade(ctx context.Context, source, expected string) (*Grade, error)
}

var _ Executor = (*Service)(nil)

// ServiceConfig bounds concurrent executions.
type ServiceConfig struct {
	MaxConcurrent int
	MaxQueue      int
	QueueTimeout  time.Duration
}

// DefaultServiceConfig returns default concurrency limits.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxConcurrent: 4,
		MaxQueue:      16,
		QueueTimeout:  5 * time.Second,
	}
}

// Service handles code execution for the daemon, the queue consumer and the
// MCP server.
type Service struct {
	runner   *Runner
	bulkhead bulkhead.Bulkhead[*Result]
	logger   *slog.Logger
}

// NewService creates a runner service.
func NewService(r *Runner, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultServiceConfig().MaxConcurrent
	}
	if cfg.MaxQueue < 0 {
		cfg.MaxQueue = 0
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultServiceConfig().QueueTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		runner: r,
		bulkhead: bulkhead.New[*Result](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxQueue,
			QueueTimeout:  cfg.QueueTimeout,
		}),
		logger: logger,
	}
}

// Run executes source within the concurrency limit.
func (s *Service) Run(ctx context.Context, source string) (*Result, error) {
	res, err := s.bulkhead.Execute(ctx, func(ctx context.Context) (*Result, error) {
		return s.runner.Run(ctx, source), nil
	})
	if err != nil {
		s.logger.Warn("run rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.logger.Debug("snippet executed",
		"bytes", len(source),
		"error", res.Error,
		"timed_out", res.TimedOut,
		"duration", res.Duration)
	return res, nil
}

// Grade executes source and compares its output with expected.
func (s *Service) Grade(ctx context.Context, source, expected string) (*Grade, error) {
	res, err := s.Run(ctx, source)
	if err != nil {
		return nil, err
	}
	g := newGrade(res, expected)
	s.logger.Info("snippet graded", "correct", g.Correct, "error", g.Error)
	return g, nil
}
