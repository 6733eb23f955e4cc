package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/daemon"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/runner"
)

var errIncorrect = errors.New("output did not match the expected value")

// cmdRun executes a snippet locally and prints its console output
func cmdRun(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: aprendizaje run <file|->")
	}
	source, err := readSource(args[0])
	if err != nil {
		return err
	}

	exec, err := localRunner()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := exec.Run(ctx, source)
	if err != nil {
		return err
	}
	printResult(os.Stdout, res)
	if res.Error {
		return errors.New("snippet failed")
	}
	return nil
}

// cmdGrade runs a snippet and compares its output with the expected value
func cmdGrade(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: aprendizaje grade <file|-> <expected>")
	}
	source, err := readSource(args[0])
	if err != nil {
		return err
	}

	exec, err := localRunner()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, err := exec.Grade(ctx, source, args[1])
	if err != nil {
		return err
	}
	printResult(os.Stdout, &g.Result)

	switch {
	case g.Correct:
		fmt.Println("✓ Correct")
		return nil
	case g.Error:
		fmt.Println("✗ The snippet threw or timed out")
	default:
		fmt.Printf("✗ Incorrect, expected:\n%s\n", g.Expected)
	}
	return errIncorrect
}

func localRunner() (runner.Executor, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return daemon.NewRunnerService(cfg.Runner, logger), nil
}

// readSource reads a snippet from path, or from stdin when path is "-"
func readSource(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read snippet: %w", err)
	}
	return string(data), nil
}

func printResult(w io.Writer, res *runner.Result) {
	if res.Output != "" {
		fmt.Fprintln(w, res.Output)
	}
	status := "ok"
	if res.TimedOut {
		status = "timed out"
	} else if res.Error {
		status = "error"
	}
	fmt.Fprintf(w, "--- %s in %s\n", status, res.Duration.Round(time.Millisecond))
}
