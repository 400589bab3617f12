package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueProcessJob         = "queue:process_job"
	QueueGenerateVariations = "queue:generate_variations"
)

type Queue struct {
	client *redis.Client
}

// Task is the wire format for queued work. Jobs survive process restarts in
// the Redis list; the worker picks them up wherever they left off.
type Task struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	JobID     uuid.UUID `json:"job_id"`
	Count     int       `json:"count,omitempty"` // variation batch size
	CreatedAt time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Client exposes the underlying Redis client for components that share the
// connection (the rate limiter).
func (q *Queue) Client() *redis.Client {
	return q.client
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, task *Task) error {
	task.CreatedAt = time.Now()

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Task, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No task available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueProcessJob enqueues a full pipeline run for a content job.
func (q *Queue) EnqueueProcessJob(ctx context.Context, jobID uuid.UUID) error {
	task := &Task{
		ID:    uuid.New(),
		Type:  "process_job",
		JobID: jobID,
	}
	return q.Enqueue(ctx, QueueProcessJob, task)
}

// EnqueueGenerateVariations enqueues a variation batch for a completed job.
func (q *Queue) EnqueueGenerateVariations(ctx context.Context, jobID uuid.UUID, count int) error {
	task := &Task{
		ID:    uuid.New(),
		Type:  "generate_variations",
		JobID: jobID,
		Count: count,
	}
	return q.Enqueue(ctx, QueueGenerateVariations, task)
}
