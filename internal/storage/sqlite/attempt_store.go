package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
)

const defaultAttemptLimit = 50

// AttemptStore records graded submissions.
type AttemptStore struct {
	db *DB
}

// NewAttemptStore creates a SQLite-backed attempt store.
func NewAttemptStore(db *DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// Save inserts an attempt.
func (s *AttemptStore) Save(ctx context.Context, a *domain.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (id, user_id, question_id, source, expected, output,
			error, correct, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.UserID, a.QuestionID, a.Source, a.Expected, a.Output,
		boolToInt(a.Error), boolToInt(a.Correct), int64(a.Duration), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Get retrieves an attempt by ID.
func (s *AttemptStore) Get(ctx context.Context, id uuid.UUID) (*domain.Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, question_id, source, expected, output, error, correct,
			duration_ns, created_at
		FROM attempts WHERE id = ?`, id.String())

	a, err := scanAttempt(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	return a, err
}

// ListByUser returns a user's most recent attempts, newest first.
func (s *AttemptStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Attempt, error) {
	if limit <= 0 {
		limit = defaultAttemptLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, question_id, source, expected, output, error, correct,
			duration_ns, created_at
		FROM attempts WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*domain.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanAttempt(scan func(dest ...any) error) (*domain.Attempt, error) {
	var a domain.Attempt
	var id string
	var errFlag, correct int
	var durationNS int64

	err := scan(&id, &a.UserID, &a.QuestionID, &a.Source, &a.Expected, &a.Output,
		&errFlag, &correct, &durationNS, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}

	a.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse attempt id: %w", err)
	}
	a.Error = errFlag != 0
	a.Correct = correct != 0
	a.Duration = time.Duration(durationNS)
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
