package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/daemon"
	mcpserver "github.com/aprendizaje-adaptativo/aprendizaje/internal/mcp"
)

// cmdMCP serves the snippet tools over stdio. Stdout carries the protocol,
// so diagnostics go to stderr only.
func cmdMCP() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	srv := mcpserver.NewServer(mcpserver.Config{
		Runner:  daemon.NewRunnerService(cfg.Runner, logger),
		Version: Version,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return srv.ServeStdio(ctx)
}
