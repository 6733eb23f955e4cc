package mcp

import (
	"context"
	"errors"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/runner"
)

var errNoRunner = errors.New("runner not configured")

// Server exposes the snippet runner as MCP tools
type Server struct {
	mcpServer *server.Server
	runner    runner.Executor
}

// Config contains configuration for the MCP server
type Config struct {
	Runner  runner.Executor
	Version string
}

// NewServer creates a new MCP server
func NewServer(cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{runner: cfg.Runner}
	s.mcpServer = server.New(server.Info{
		Name:    "aprendizaje",
		Version: version,
	}, server.WithInstructions(`
Aprendizaje runs the JavaScript snippets used in diagnostic quizzes.
Snippets run in an isolated VM with only console.log available; output is
what console.log printed, objects rendered as indented JSON.

Available tools:
- aprendizaje_run: run a snippet and return its console output
- aprendizaje_grade: run a snippet and compare its output with the expected answer
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("aprendizaje_run").
		Description("Run a JavaScript snippet and return what it printed with console.log.").
		Handler(s.handleRun)

	s.mcpServer.Tool("aprendizaje_grade").
		Description("Run a JavaScript snippet and check its output against an expected answer. Surrounding whitespace is ignored.").
		Handler(s.handleGrade)
}

type RunInput struct {
	Source string `json:"source" jsonschema:"description=JavaScript source to execute"`
}

type RunOutput struct {
	Output     string `json:"output"`
	Error      bool   `json:"error"`
	TimedOut   bool   `json:"timed_out"`
	DurationMS int64  `json:"duration_ms"`
}

type GradeInput struct {
	Source   string `json:"source" jsonschema:"description=JavaScript source to execute"`
	Expected string `json:"expected" jsonschema:"description=Expected console output"`
}

type GradeOutput struct {
	RunOutput
	Expected string `json:"expected"`
	Correct  bool   `json:"correct"`
	Summary  string `json:"summary"`
}

func (s *Server) handleRun(ctx context.Context, input RunInput) (RunOutput, error) {
	if s.runner == nil {
		return RunOutput{}, errNoRunner
	}
	res, err := s.runner.Run(ctx, input.Source)
	if err != nil {
		return RunOutput{}, fmt.Errorf("run failed: %w", err)
	}
	return toRunOutput(res), nil
}

func (s *Server) handleGrade(ctx context.Context, input GradeInput) (GradeOutput, error) {
	if s.runner == nil {
		return GradeOutput{}, errNoRunner
	}
	g, err := s.runner.Grade(ctx, input.Source, input.Expected)
	if err != nil {
		return GradeOutput{}, fmt.Errorf("grade failed: %w", err)
	}

	out := GradeOutput{
		RunOutput: toRunOutput(&g.Result),
		Expected:  g.Expected,
		Correct:   g.Correct,
	}
	switch {
	case g.Correct:
		out.Summary = "Correct ✓"
	case g.Error:
		out.Summary = "Error ✗ (the snippet threw or timed out)"
	default:
		out.Summary = "Incorrect ✗"
	}
	return out, nil
}

func toRunOutput(res *runner.Result) RunOutput {
	return RunOutput{
		Output:     res.Output,
		Error:      res.Error,
		TimedOut:   res.TimedOut,
		DurationMS: res.Duration.Milliseconds(),
	}
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
