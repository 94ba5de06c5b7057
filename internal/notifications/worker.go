package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	QueueSize         int
	NumWorkers        int
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	SendTimeout       time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		QueueSize:         100,
		NumWorkers:        2,
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2.0,
		SendTimeout:       10 * time.Second,
	}
}

// Worker delivers queued notifications to external senders, retrying
// retryable failures with exponential backoff.
type Worker struct {
	config   WorkerConfig
	renderer *Renderer
	logger   *slog.Logger

	queue    chan delivery
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new notification worker.
func NewWorker(config WorkerConfig, renderer *Renderer, logger *slog.Logger) *Worker {
	defaults := DefaultWorkerConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = defaults.NumWorkers
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	return &Worker{
		config:   config,
		renderer: renderer,
		logger:   logger,
		queue:    make(chan delivery, config.QueueSize),
		stopCh:   make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting notification worker",
		"workers", w.config.NumWorkers,
		"queue_size", w.config.QueueSize,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop stops all workers and waits for in-flight sends. Queued deliveries are dropped.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
	if n := len(w.queue); n > 0 {
		w.logger.Warn("dropping undelivered notifications", "count", n)
	}
	w.logger.Info("notification worker stopped")
}

func (w *Worker) enqueue(d delivery) error {
	select {
	case <-w.stopCh:
		return ErrWorkerStopped
	default:
	}

	select {
	case w.queue <- d:
		notificationQueueDepth.Set(float64(len(w.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case d := <-w.queue:
			notificationQueueDepth.Set(float64(len(w.queue)))
			w.process(ctx, workerID, d)
		}
	}
}

func (w *Worker) process(ctx context.Context, workerID int, d delivery) {
	name := d.route.Sender.Name()

	msg, err := w.renderer.Render(d.notification, d.route.Format)
	if err != nil {
		w.logger.Error("failed to render notification", "sender", name, "error", err)
		recordNotificationSent(name, "failed")
		return
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := w.send(ctx, d.route.Sender, msg)
		if err == nil {
			recordNotificationSent(name, "success")
			recordNotificationDuration(name, time.Since(start))
			w.logger.Debug("notification sent",
				"worker", workerID,
				"sender", name,
				"notification_id", d.notification.ID,
				"attempt", attempt,
			)
			return
		}

		w.logger.Warn("send failed",
			"sender", name,
			"notification_id", d.notification.ID,
			"attempt", attempt,
			"max_attempts", w.config.MaxAttempts,
			"error", err,
		)

		if !isRetryable(err) || attempt >= w.config.MaxAttempts {
			recordNotificationSent(name, "failed")
			return
		}

		recordNotificationSent(name, "retry")
		if !w.wait(ctx, w.calculateBackoff(attempt)) {
			recordNotificationSent(name, "failed")
			return
		}
	}
}

func (w *Worker) send(ctx context.Context, sender Sender, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	defer cancel()

	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", sender.Name(), err)
	}
	return nil
}

// wait sleeps for d unless the worker is stopped first.
func (w *Worker) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	}
}

func (w *Worker) calculateBackoff(attempt int) time.Duration {
	backoff := float64(w.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= w.config.BackoffMultiplier
	}

	if w.config.MaxBackoff > 0 && backoff > float64(w.config.MaxBackoff) {
		backoff = float64(w.config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	// Default: retry unknown errors
	return true
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}
