package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of periodic background work.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Run(ctx context.Context) error { return f(ctx) }

// Worker runs a Task on a fixed interval until its context is cancelled or
// Stop is called. Runs never overlap: a slow run delays the next tick.
type Worker struct {
	name     string
	task     Task
	interval time.Duration
	logger   *zap.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewWorker(name string, task Task, interval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		name:     name,
		task:     task,
		interval: interval,
		logger:   logger.With(zap.String("worker", name)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start blocks running the loop. A second call returns immediately.
func (w *Worker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("worker.started", zap.Duration("interval", w.interval))

	failures := 0
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker.stopped", zap.String("reason", "context cancelled"))
			return
		case <-w.stop:
			w.logger.Info("worker.stopped", zap.String("reason", "stop requested"))
			return
		case <-ticker.C:
			failures = w.run(ctx, failures)
		}
	}
}

// run executes the task once and returns the updated consecutive failure count.
func (w *Worker) run(ctx context.Context, failures int) int {
	started := time.Now()
	err := w.task.Run(ctx)
	if err != nil {
		failures++
		w.logger.Error("worker.run_failed",
			zap.Int("consecutive_failures", failures),
			zap.Duration("duration", time.Since(started)),
			zap.Error(err))
		return failures
	}
	if failures > 0 {
		w.logger.Info("worker.recovered", zap.Int("after_failures", failures))
	}
	w.logger.Debug("worker.run_completed", zap.Duration("duration", time.Since(started)))
	return 0
}

// Stop ends the loop and waits for an in-flight run to finish. It is safe to
// call more than once and before Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}
