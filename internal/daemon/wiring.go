package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/auth"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/config"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/queue"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/runner"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/storage/sqlite"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/token"
)

// NewRunnerService builds the bounded snippet runner described by cfg.
func NewRunnerService(cfg config.RunnerConfig, logger *slog.Logger) *runner.Service {
	r := runner.New(runner.Config{
		Timeout:          cfg.Timeout,
		MaxCallStackSize: cfg.MaxCallStackSize,
		MaxOutputBytes:   cfg.MaxOutputBytes,
	})
	return runner.NewService(r, runner.ServiceConfig{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxQueue:      cfg.MaxQueue,
	}, logger)
}

// Open builds a server and all of its dependencies from cfg. Attempts always
// live in the SQLite file; users live in SQLite or Postgres depending on
// database.driver. The returned server owns every opened resource and
// releases them on Shutdown.
func Open(ctx context.Context, cfg *config.LocalConfig, version string) (s *Server, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	issuer, err := token.NewIssuer(token.IssuerConfig{
		Secret:        cfg.Auth.TokenSecret,
		TTL:           cfg.Auth.TokenTTL,
		RefreshWindow: cfg.Auth.RefreshWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	closers = append(closers, db.Close)
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	attempts := sqlite.NewAttemptStore(db)

	var users auth.Repository
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := auth.ConnectPostgres(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() error { pg.Close(); return nil })
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		users = pg
	default:
		users = sqlite.NewUserStore(db)
	}

	logger := slog.Default()
	runnerSvc := NewRunnerService(cfg.Runner, logger.With("component", "runner"))

	var jobs JobPublisher
	if cfg.Queue.Enabled {
		conn, err := queue.NewConnection(cfg.Queue.URL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, conn.Close)

		consumer := queue.NewConsumer(conn, queue.GradeHandler(runnerSvc, attempts), queue.ConsumerConfig{
			Workers: cfg.Queue.Workers,
		})
		if err := consumer.Start(context.Background()); err != nil {
			return nil, err
		}
		closers = append(closers, func() error { consumer.Stop(); return nil })
		jobs = queue.NewProducer(conn)
	}

	s, err = NewServer(ServerConfig{
		Addr:              fmt.Sprintf("%s:%d", cfg.Daemon.Bind, cfg.Daemon.Port),
		Version:           version,
		Database:          cfg.Database.Driver,
		Auth:              auth.NewService(users, issuer, logger.With("component", "auth")),
		Runner:            runnerSvc,
		Attempts:          attempts,
		Jobs:              jobs,
		AuthRatePerMinute: cfg.Daemon.AuthRatePerMinute,
	})
	if err != nil {
		return nil, err
	}
	s.closers = closers
	return s, nil
}
