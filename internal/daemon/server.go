package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/google/uuid"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/auth"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/queue"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/runner"
)

// AttemptStore records graded attempts and lists them per user.
type AttemptStore interface {
	Save(ctx context.Context, a *domain.Attempt) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Attempt, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Attempt, error)
}

// JobPublisher enqueues grading jobs for asynchronous processing.
type JobPublisher interface {
	PublishGradeJob(ctx context.Context, job *queue.GradeJob) error
}

// Server represents the daemon HTTP server
type Server struct {
	server   *http.Server
	router   *http.ServeMux
	validate *requestValidator
	limiter  ratelimit.RateLimiter

	version  string
	database string

	// Services
	auth     *auth.Service
	runner   runner.Executor
	attempts AttemptStore
	jobs     JobPublisher

	closers []func() error
}

// ServerConfig holds the dependencies of a new server
type ServerConfig struct {
	Addr     string
	Version  string
	Database string // driver name reported by /v1/status

	Auth     *auth.Service
	Runner   runner.Executor
	Attempts AttemptStore
	Jobs     JobPublisher // nil grades synchronously

	// AuthRatePerMinute limits /v1/auth/* per client address; 0 disables it.
	AuthRatePerMinute int
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Auth == nil || cfg.Runner == nil || cfg.Attempts == nil {
		return nil, errors.New("auth, runner and attempts are required")
	}

	s := &Server{
		router:   http.NewServeMux(),
		validate: newRequestValidator(),
		version:  cfg.Version,
		database: cfg.Database,
		auth:     cfg.Auth,
		runner:   cfg.Runner,
		attempts: cfg.Attempts,
		jobs:     cfg.Jobs,
	}
	if s.version == "" {
		s.version = "dev"
	}

	if cfg.AuthRatePerMinute > 0 {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.AuthRatePerMinute,
			Burst:    cfg.AuthRatePerMinute,
			Interval: time.Minute,
		})
	}

	s.setupRoutes()

	handler := recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Auth
	s.router.HandleFunc("POST /v1/auth/register", s.rateLimited(s.limiter, s.handleRegister))
	s.router.HandleFunc("POST /v1/auth/login", s.rateLimited(s.limiter, s.handleLogin))
	s.router.HandleFunc("POST /v1/auth/refresh", s.rateLimited(s.limiter, s.handleRefresh))
	s.router.HandleFunc("GET /v1/auth/me", s.rateLimited(s.limiter, s.handleMe))

	// Code
	s.router.HandleFunc("POST /v1/code/run", s.requireAuth(s.handleRun))
	s.router.HandleFunc("POST /v1/code/grade", s.requireAuth(s.handleGrade))

	// Attempts
	s.router.HandleFunc("GET /v1/attempts", s.requireAuth(s.handleListAttempts))
	s.router.HandleFunc("GET /v1/attempts/{id}", s.requireAuth(s.handleGetAttempt))
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting aprendizaje daemon",
		"addr", s.server.Addr,
		"version", s.version,
		"database", s.database,
		"async_grading", s.jobs != nil,
	)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and releases owned resources in reverse
// order of acquisition.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)

	if s.limiter != nil {
		if cerr := s.limiter.Close(); cerr != nil {
			slog.Warn("failed to close rate limiter", "error", cerr)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if cerr := s.closers[i](); cerr != nil {
			slog.Warn("failed to release resource", "error", cerr)
		}
	}
	s.closers = nil
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":        "running",
		"version":       s.version,
		"database":      s.database,
		"async_grading": s.jobs != nil,
		"rate_limited":  s.limiter != nil,
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// decodeRequest decodes and validates a JSON body, writing a 400 response
// on failure.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := s.validate.decode(r, dst)
	if err == nil {
		return true
	}
	if fields, ok := s.validate.fieldErrors(err); ok {
		s.jsonResponse(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"status": http.StatusBadRequest,
			"fields": fields,
		})
		return false
	}
	s.jsonError(w, http.StatusBadRequest, "invalid request", err)
	return false
}
