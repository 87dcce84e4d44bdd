package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Notifier performs the side effects for one task.
type Notifier interface {
	NotifyCreated(ctx context.Context, appt appointments.Appointment) (string, error)
	NotifyRemoved(ctx context.Context, appt appointments.Appointment) error
	NotifyReminder(ctx context.Context, appt appointments.Appointment, hoursBefore int) error
	RetractEvent(ctx context.Context, ref string) error
}

// RefStore is the slice of the registry the worker needs to record calendar
// handles.
type RefStore interface {
	FindByConfirmation(ctx context.Context, confirmationID string) (*appointments.Appointment, error)
	SetExternalRef(ctx context.Context, confirmationID, ref string) error
}

// Worker drains the notification queue. Failed tasks are logged and counted
// but never retried.
type Worker struct {
	queue    Queue
	notifier Notifier
	refs     RefStore
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers     int
	pollWait    time.Duration
	taskTimeout time.Duration
}

const (
	defaultWorkerCount = 1
	defaultPollWait    = 2 * time.Second
	defaultTaskTimeout = 30 * time.Second
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithPollWait sets how long each dequeue waits before looping.
func WithPollWait(wait time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if wait > 0 {
			cfg.pollWait = wait
		}
	}
}

// WithTaskTimeout bounds the time spent on a single task.
func WithTaskTimeout(timeout time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if timeout > 0 {
			cfg.taskTimeout = timeout
		}
	}
}

// NewWorker creates a notification worker.
func NewWorker(queue Queue, notifier Notifier, refs RefStore, m *metrics.BookingMetrics, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("notify: queue cannot be nil")
	}
	if notifier == nil {
		panic("notify: notifier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:     defaultWorkerCount,
		pollWait:    defaultPollWait,
		taskTimeout: defaultTaskTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		queue:    queue,
		notifier: notifier,
		refs:     refs,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("notification worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("notification worker stopping", "worker_id", workerID)
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, w.cfg.pollWait)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Error("failed to dequeue notification task", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		if mq, ok := w.queue.(*MemoryQueue); ok {
			w.metrics.SetQueueDepth(mq.Len())
		}
		if task == nil {
			continue
		}
		w.Handle(ctx, *task)
	}
}

// Drain handles the tasks still buffered in an in-memory queue, stopping when
// the buffer is empty or ctx is done. Call it after Wait on shutdown; durable
// queues keep their tasks for the next process and are left alone. It
// returns the number of tasks handled.
func (w *Worker) Drain(ctx context.Context) int {
	mq, ok := w.queue.(*MemoryQueue)
	if !ok {
		return 0
	}
	handled := 0
	for ctx.Err() == nil {
		task, ok := mq.TryDequeue()
		if !ok {
			break
		}
		w.Handle(ctx, *task)
		handled++
	}
	if left := mq.Len(); left > 0 {
		w.logger.Warn("dropping undelivered notification tasks", "count", left)
	}
	return handled
}

// Handle processes a single task. Exposed so tests and synchronous callers
// can bypass the queue.
func (w *Worker) Handle(ctx context.Context, task Task) {
	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.taskTimeout)
	defer cancel()

	started := time.Now()
	appt := task.Appointment
	log := w.logger.With("task_id", task.ID, "kind", task.Kind, "confirmation_id", appt.ConfirmationID, "doctor_id", appt.DoctorID)

	var err error
	switch task.Kind {
	case TaskCreated:
		var ref string
		ref, err = w.notifier.NotifyCreated(taskCtx, appt)
		if ref != "" {
			w.recordRef(taskCtx, log, appt, ref)
		}
	case TaskRemoved:
		err = w.notifier.NotifyRemoved(taskCtx, appt)
	case TaskReminder:
		err = w.notifier.NotifyReminder(taskCtx, appt, task.HoursBefore)
	default:
		log.Warn("unknown notification task kind")
		w.metrics.ObserveNotification(string(task.Kind), "unknown")
		return
	}

	w.metrics.ObserveNotificationLatency(string(task.Kind), time.Since(started).Seconds())
	if err != nil {
		log.Error("notification failed", "error", err)
		w.metrics.ObserveNotification(string(task.Kind), "failed")
		return
	}
	log.Info("notification delivered", "duration_ms", time.Since(started).Milliseconds())
	w.metrics.ObserveNotification(string(task.Kind), "delivered")
}

// recordRef stores the calendar handle on the record. When the record was
// cancelled or moved while the event was being created, the event is stale
// and is retracted instead.
func (w *Worker) recordRef(ctx context.Context, log *logging.Logger, appt appointments.Appointment, ref string) {
	if w.refs == nil {
		return
	}
	current, err := w.refs.FindByConfirmation(ctx, appt.ConfirmationID)
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		log.Info("appointment gone before calendar ref was recorded; retracting event", "event_id", ref)
		w.retract(ctx, log, ref)
		return
	case err != nil:
		log.Error("failed to load appointment for calendar ref", "error", err, "event_id", ref)
		return
	case current.SlotKey() != appt.SlotKey():
		log.Info("appointment moved before calendar ref was recorded; retracting event", "event_id", ref)
		w.retract(ctx, log, ref)
		return
	}

	if err := w.refs.SetExternalRef(ctx, appt.ConfirmationID, ref); err != nil {
		log.Error("failed to record calendar ref", "error", err, "event_id", ref)
	}
}

func (w *Worker) retract(ctx context.Context, log *logging.Logger, ref string) {
	if err := w.notifier.RetractEvent(ctx, ref); err != nil {
		log.Error("failed to retract stale calendar event", "error", err, "event_id", ref)
	}
}
