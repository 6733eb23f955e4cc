package queue

import (
	"context"
	"fmt"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/runner"
)

// AttemptRecorder stores graded attempts.
type AttemptRecorder interface {
	Save(ctx context.Context, a *domain.Attempt) error
}

// GradeHandler grades the job's snippet and records the attempt under the
// job's ID.
func GradeHandler(exec runner.Executor, attempts AttemptRecorder) JobHandler {
	return func(ctx context.Context, job *GradeJob) (*GradeResult, error) {
		g, err := exec.Grade(ctx, job.Source, job.Expected)
		if err != nil {
			return nil, fmt.Errorf("grade: %w", err)
		}

		a := domain.NewAttempt(job.UserID, job.QuestionID, job.Source, job.Expected)
		a.ID = job.ID
		a.Output = g.Output
		a.Error = g.Error
		a.Correct = g.Correct
		a.Duration = g.Duration
		if err := attempts.Save(ctx, a); err != nil {
			return nil, fmt.Errorf("record attempt: %w", err)
		}

		return &GradeResult{
			Status:    StatusCompleted,
			Output:    g.Output,
			ExecError: g.Error,
			Correct:   g.Correct,
		}, nil
	}
}
