package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// publisher is the part of Connection the producer needs.
type publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes grading jobs and results
type Producer struct {
	conn publisher
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishGradeJob enqueues a grading job.
func (p *Producer) PublishGradeJob(ctx context.Context, job *GradeJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, GradeQueueName, job); err != nil {
		return fmt.Errorf("failed to publish grade job: %w", err)
	}

	slog.Info("published grade job",
		"job_id", job.ID,
		"user_id", job.UserID,
		"question_id", job.QuestionID,
	)
	return nil
}

// PublishResult publishes a grading result to the results queue
func (p *Producer) PublishResult(ctx context.Context, result *GradeResult) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, ResultQueueName, result); err != nil {
		return fmt.Errorf("failed to publish grade result: %w", err)
	}

	slog.Debug("published grade result",
		"job_id", result.JobID,
		"status", result.Status,
		"duration", result.Duration,
	)
	return nil
}
