// Package reconcile runs background reconciliation for subscriptions whose
// last provider sync exhausted its retries. Degraded subscriptions are
// queued with a delay and re-checked against the provider until they
// converge or the attempt budget runs out.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/logx"
)

// Task is one scheduled reconciliation attempt.
type Task struct {
	SubscriptionID kernel.SubscriptionID `json:"subscription_id"`
	Attempts       int                   `json:"attempts"`
}

// Queue stores pending reconciliation tasks. Delayed tasks become visible to
// Dequeue only after their delay elapses and PromoteDue has run.
type Queue interface {
	Enqueue(ctx context.Context, task Task, delay time.Duration) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
	PromoteDue(ctx context.Context) error
}

// Resyncer reconciles one subscription with the billing provider.
type Resyncer interface {
	Resync(ctx context.Context, subID kernel.SubscriptionID) error
}

// Options configures the worker.
type Options struct {
	Concurrency     int
	PollInterval    time.Duration
	DequeueTimeout  time.Duration
	RetryDelay      time.Duration
	MaxAttempts     int
	ShutdownTimeout time.Duration
}

func defaultOptions() Options {
	return Options{
		Concurrency:     2,
		PollInterval:    time.Second,
		DequeueTimeout:  5 * time.Second,
		RetryDelay:      time.Minute,
		MaxAttempts:     10,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Option adjusts worker defaults.
type Option func(*Options)

func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryDelay = d }
}

func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// Worker drains the queue and drives Resync attempts. A failed attempt goes
// back on the queue with a delay until MaxAttempts is reached.
type Worker struct {
	queue    Queue
	resyncer Resyncer
	opts     Options

	mu      sync.Mutex
	running bool
}

func NewWorker(queue Queue, resyncer Resyncer, options ...Option) *Worker {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Worker{queue: queue, resyncer: resyncer, opts: opts}
}

// Enqueue schedules a subscription for reconciliation after delay. It
// satisfies subscription.ResyncEnqueuer.
func (w *Worker) Enqueue(ctx context.Context, subID kernel.SubscriptionID, delay time.Duration) error {
	return w.queue.Enqueue(ctx, Task{SubscriptionID: subID}, delay)
}

// Start runs the scheduler and worker loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errx.Conflict("reconcile worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	logx.Infof("reconcile: starting %d workers", w.opts.Concurrency)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.schedulerLoop(ctx)
	}()

	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.workerLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()
	logx.Info("reconcile: shutting down workers...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("reconcile: all workers stopped")
	case <-time.After(w.opts.ShutdownTimeout):
		logx.Warn("reconcile: shutdown timed out")
	}

	return nil
}

func (w *Worker) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.PromoteDue(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logx.WithError(err).Warn("reconcile: failed to promote due tasks")
			}
		}
	}
}

func (w *Worker) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, w.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).Warnf("reconcile: worker %d dequeue error", id)
			time.Sleep(w.opts.PollInterval)
			continue
		}
		if task == nil {
			continue
		}

		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task *Task) {
	err := w.resyncer.Resync(ctx, task.SubscriptionID)
	if err == nil {
		return
	}

	task.Attempts++
	if task.Attempts >= w.opts.MaxAttempts {
		logx.WithError(err).WithFields(logx.Fields{
			"subscription_id": task.SubscriptionID,
			"attempts":        task.Attempts,
		}).Error("reconcile: giving up on subscription")
		return
	}

	logx.WithError(err).WithFields(logx.Fields{
		"subscription_id": task.SubscriptionID,
		"attempts":        task.Attempts,
	}).Warn("reconcile: resync failed, rescheduling")

	if qErr := w.queue.Enqueue(ctx, *task, w.opts.RetryDelay); qErr != nil {
		logx.WithError(qErr).Error("reconcile: failed to reschedule task")
	}
}
