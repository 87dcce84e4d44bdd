package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

// TaskKind names the registry change a notification task reports.
type TaskKind string

const (
	TaskCreated  TaskKind = "created"
	TaskRemoved  TaskKind = "removed"
	TaskReminder TaskKind = "reminder"
)

// ErrQueueFull is returned when the in-memory queue buffer is exhausted.
var ErrQueueFull = errors.New("notify: queue full")

// Task is one pending notification. The appointment is a snapshot taken
// right after the registry mutation committed.
type Task struct {
	ID          string                   `json:"id"`
	Kind        TaskKind                 `json:"kind"`
	Appointment appointments.Appointment `json:"appointment"`
	EnqueuedAt  time.Time                `json:"enqueued_at"`
	// HoursBefore is set on reminder tasks.
	HoursBefore int `json:"hours_before,omitempty"`
}

// NewTask stamps a task with an id and enqueue time.
func NewTask(kind TaskKind, appt appointments.Appointment) Task {
	return Task{
		ID:          uuid.NewString(),
		Kind:        kind,
		Appointment: appt,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// NewReminderTask builds a reminder for an appointment starting in about
// hoursBefore hours.
func NewReminderTask(appt appointments.Appointment, hoursBefore int) Task {
	task := NewTask(TaskReminder, appt)
	task.HoursBefore = hoursBefore
	return task
}

// Queue carries notification tasks from the request path to the worker.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	// Dequeue waits up to wait for a task. It returns nil, nil on timeout.
	Dequeue(ctx context.Context, wait time.Duration) (*Task, error)
}

// MemoryQueue is a Queue backed by an in-memory buffered channel.
type MemoryQueue struct {
	ch chan Task
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		ch: make(chan Task, buffer),
	}
}

// Enqueue adds a task without blocking; a full buffer yields ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a task is available, ctx is done, or wait elapses.
func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	if wait <= 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case task := <-q.ch:
			return &task, nil
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case task := <-q.ch:
		return &task, nil
	}
}

// TryDequeue returns a buffered task without waiting.
func (q *MemoryQueue) TryDequeue() (*Task, bool) {
	select {
	case task := <-q.ch:
		return &task, true
	default:
		return nil, false
	}
}

// Len reports the number of buffered tasks.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// RedisQueue stores tasks in a Redis list so several API instances can share
// one worker pool.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a Redis-backed queue on the given list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if client == nil {
		panic("notify: redis client cannot be nil")
	}
	if key == "" {
		key = "clinic:notify:tasks"
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue appends the task to the tail of the list.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("notify: encode task: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("notify: enqueue task: %w", err)
	}
	return nil
}

// Dequeue pops the head of the list, waiting up to wait.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	if wait <= 0 {
		wait = time.Second
	}
	res, err := q.client.BLPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("notify: dequeue task: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("notify: unexpected BLPOP reply of %d elements", len(res))
	}
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("notify: decode task: %w", err)
	}
	return &task, nil
}

// Len reports the list length.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

var (
	_ Queue = (*MemoryQueue)(nil)
	_ Queue = (*RedisQueue)(nil)
)
