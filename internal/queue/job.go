package queue

import (
	"time"

	"github.com/google/uuid"
)

// Result statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// GradeJob is a snippet submitted for asynchronous grading.
// The recorded attempt reuses the job ID so clients can poll for it.
type GradeJob struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	QuestionID string    `json:"question_id,omitempty"`
	Source     string    `json:"source"`
	Expected   string    `json:"expected"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewGradeJob creates a grading job with a fresh ID.
func NewGradeJob(userID, questionID, source, expected string) *GradeJob {
	return &GradeJob{
		ID:         uuid.New(),
		UserID:     userID,
		QuestionID: questionID,
		Source:     source,
		Expected:   expected,
		CreatedAt:  time.Now(),
	}
}

// GradeResult is published once a job has been processed.
type GradeResult struct {
	JobID       uuid.UUID     `json:"job_id"`
	UserID      string        `json:"user_id"`
	Status      string        `json:"status"`
	Output      string        `json:"output,omitempty"`
	ExecError   bool          `json:"exec_error"`
	Correct     bool          `json:"correct"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}
