package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestService(cfg ServiceConfig) *Service {
	return NewService(New(DefaultConfig()), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestService_RunAndGrade(t *testing.T) {
	svc := newTestService(DefaultServiceConfig())

	res, err := svc.Run(context.Background(), `console.log(1 + 1)`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Output != "2" {
		t.Errorf("Output = %q, want 2", res.Output)
	}

	g, err := svc.Grade(context.Background(), `console.log([1, 2].length)`, "2")
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if !g.Correct {
		t.Errorf("Correct = false, output %q", g.Output)
	}
}

func TestService_RejectsWhenSaturated(t *testing.T) {
	svc := NewService(New(Config{Timeout: 300 * time.Millisecond}), ServiceConfig{
		MaxConcurrent: 1,
		MaxQueue:      0,
		QueueTimeout:  10 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		svc.Run(context.Background(), `while (true) {}`)
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	_, err := svc.Run(context.Background(), `console.log("x")`)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Run() error = %v, want ErrUnavailable", err)
	}
	<-done
}
