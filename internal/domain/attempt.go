package domain

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is a graded code submission kept for diagnostics history.
type Attempt struct {
	ID         uuid.UUID     `json:"id"`
	UserID     string        `json:"user_id"`
	QuestionID string        `json:"question_id,omitempty"`
	Source     string        `json:"source"`
	Expected   string        `json:"expected"`
	Output     string        `json:"output"`
	Error      bool          `json:"error"`
	Correct    bool          `json:"correct"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// NewAttempt creates an attempt with a fresh ID.
func NewAttempt(userID, questionID, source, expected string) *Attempt {
	return &Attempt{
		ID:         uuid.New(),
		UserID:     userID,
		QuestionID: questionID,
		Source:     source,
		Expected:   expected,
		CreatedAt:  time.Now(),
	}
}
