package daemon

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/queue"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/runner"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/token"
)

const (
	defaultAttemptLimit = 20
	maxAttemptLimit     = 200
)

type runRequest struct {
	Source string `json:"source" validate:"max=65536"`
}

type gradeRequest struct {
	QuestionID string `json:"question_id" validate:"max=128"`
	Source     string `json:"source" validate:"max=65536"`
	Expected   string `json:"expected" validate:"max=65536"`
	Async      bool   `json:"async"`
}

type gradeResponse struct {
	*runner.Grade
	AttemptID uuid.UUID `json:"attempt_id"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	res, err := s.runner.Run(r.Context(), req.Source)
	if err != nil {
		s.runnerError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleGrade grades a snippet and records the attempt. With async set and a
// queue configured the job is enqueued and the attempt appears under the
// returned job ID once a worker has processed it.
func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req gradeRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	if req.Async && s.jobs != nil {
		job := queue.NewGradeJob(claims.Subject, req.QuestionID, req.Source, req.Expected)
		if err := s.jobs.PublishGradeJob(r.Context(), job); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "failed to enqueue grade job", err)
			return
		}
		s.jsonResponse(w, http.StatusAccepted, map[string]any{
			"job_id": job.ID,
			"status": "queued",
		})
		return
	}

	g, err := s.runner.Grade(r.Context(), req.Source, req.Expected)
	if err != nil {
		s.runnerError(w, err)
		return
	}

	a := domain.NewAttempt(claims.Subject, req.QuestionID, req.Source, req.Expected)
	a.Output = g.Output
	a.Error = g.Error
	a.Correct = g.Correct
	a.Duration = g.Duration
	if err := s.attempts.Save(r.Context(), a); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to record attempt", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, gradeResponse{Grade: g, AttemptID: a.ID})
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.caller(w, r)
	if !ok {
		return
	}

	limit := defaultAttemptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxAttemptLimit)
	}

	attempts, err := s.attempts.ListByUser(r.Context(), claims.Subject, limit)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to list attempts", err)
		return
	}
	if attempts == nil {
		attempts = []*domain.Attempt{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// handleGetAttempt returns one of the caller's attempts. Other users'
// attempts are reported as missing.
func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.caller(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid attempt id", err)
		return
	}

	a, err := s.attempts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			s.jsonError(w, http.StatusNotFound, "attempt not found", nil)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to load attempt", err)
		return
	}
	if a.UserID != claims.Subject {
		s.jsonError(w, http.StatusNotFound, "attempt not found", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, a)
}

// caller returns the claims requireAuth stored, writing a 401 when the
// route was mounted without it.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (*token.Claims, bool) {
	claims, ok := GetClaims(r.Context())
	if !ok {
		s.jsonError(w, http.StatusUnauthorized, "authentication required", nil)
	}
	return claims, ok
}

func (s *Server) runnerError(w http.ResponseWriter, err error) {
	if errors.Is(err, runner.ErrUnavailable) {
		w.Header().Set("Retry-After", "1")
		s.jsonError(w, http.StatusServiceUnavailable, "runner busy, try again", nil)
		return
	}
	s.jsonError(w, http.StatusInternalServerError, "execution failed", err)
}
