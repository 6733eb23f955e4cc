//go:build integration

package queue_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/queue"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/runner"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get AMQP URL: %v", err)
	}
	return amqpURL
}

func connect(t *testing.T, url string) *queue.Connection {
	t.Helper()
	conn, err := queue.NewConnection(url)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type memoryRecorder struct {
	mu    sync.Mutex
	saved []*domain.Attempt
}

func (m *memoryRecorder) Save(_ context.Context, a *domain.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, a)
	return nil
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	conn, err := queue.NewConnection(setupRabbitMQ(t))
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("failed to close connection: %v", err)
	}
	if conn.IsConnected() {
		t.Error("expected connection to be closed")
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	if _, err := queue.NewConnection("amqp://invalid:5672"); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Producer_PublishGradeJob(t *testing.T) {
	conn := connect(t, setupRabbitMQ(t))
	producer := queue.NewProducer(conn)

	job := queue.NewGradeJob("u1", "q1", "console.log('hola')", "hola")
	if err := producer.PublishGradeJob(context.Background(), job); err != nil {
		t.Fatalf("failed to publish grade job: %v", err)
	}

	q, err := conn.Channel().QueueInspect(queue.GradeQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}
	if q.Messages != 1 {
		t.Errorf("expected 1 message in queue, got %d", q.Messages)
	}
}

func TestIntegration_ConsumerGradesAndPublishes(t *testing.T) {
	url := setupRabbitMQ(t)
	conn := connect(t, url)

	exec := runner.NewService(runner.New(runner.DefaultConfig()), runner.DefaultServiceConfig(), nil)
	rec := &memoryRecorder{}
	consumer := queue.NewConsumer(conn, queue.GradeHandler(exec, rec), queue.ConsumerConfig{Workers: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	// Results are read on a separate connection.
	resultConn := connect(t, url)
	results, err := resultConn.Channel().Consume(queue.ResultQueueName, "", true, false, false, false, nil)
	if err != nil {
		t.Fatalf("failed to consume results: %v", err)
	}

	job := queue.NewGradeJob("u1", "q1", "console.log(2 + 2)", "4")
	if err := queue.NewProducer(conn).PublishGradeJob(ctx, job); err != nil {
		t.Fatalf("failed to publish job: %v", err)
	}

	select {
	case msg := <-results:
		var res queue.GradeResult
		if err := json.Unmarshal(msg.Body, &res); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
		if res.JobID != job.ID {
			t.Errorf("JobID = %v; want %v", res.JobID, job.ID)
		}
		if res.Status != queue.StatusCompleted || !res.Correct || res.Output != "4" {
			t.Errorf("unexpected result %+v", res)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for grade result")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.saved) != 1 || rec.saved[0].ID != job.ID {
		t.Errorf("expected attempt recorded under job ID, got %+v", rec.saved)
	}
}
