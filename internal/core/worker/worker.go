// Package worker provides an execution-affinity worker: a single goroutine
// locked to one OS thread that runs submitted jobs one at a time, in
// submission order.
//
// Diagnostic handles created on the worker must only be touched from jobs
// running on it. A job must not submit to, or stop, its own worker.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/telemetry/metric"
)

// DefaultQueueSize is the job channel capacity.
const DefaultQueueSize = 64

// Worker runs jobs on a dedicated OS thread.
type Worker struct {
	name      string
	logger    *slog.Logger
	metrics   *metric.Registry
	finalizer func() error
	queueSize int

	jobs chan job

	// mu guards stopped and sends on jobs. Senders hold the read lock for
	// the duration of the send so Stop cannot close jobs underneath them.
	mu      sync.RWMutex
	stopped bool

	stopOnce sync.Once
	exited   chan struct{}
	stopErr  error
}

type job struct {
	fn   func() error
	done chan error
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithMetrics records per-job metrics into r.
func WithMetrics(r *metric.Registry) Option {
	return func(w *Worker) { w.metrics = r }
}

// WithFinalizer runs fn on the worker thread after the queue is drained
// by Stop. Its error is returned by Stop.
func WithFinalizer(fn func() error) Option {
	return func(w *Worker) { w.finalizer = fn }
}

// WithQueueSize sets the job channel capacity.
func WithQueueSize(n int) Option {
	return func(w *Worker) { w.queueSize = n }
}

// Start spawns the worker thread and runs init on it before any job. If
// init fails or panics, the thread exits and Start returns the error.
func Start(name string, init func() error, opts ...Option) (*Worker, error) {
	w := &Worker{
		name:      name,
		logger:    slog.Default(),
		queueSize: DefaultQueueSize,
		exited:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("worker", name)
	w.jobs = make(chan job, w.queueSize)

	ready := make(chan error, 1)
	go w.loop(init, ready)

	if err := <-ready; err != nil {
		<-w.exited
		return nil, err
	}
	return w, nil
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

func (w *Worker) loop(init func() error, ready chan<- error) {
	defer close(w.exited)

	// The thread is never unlocked: when this goroutine returns the OS
	// thread exits with it, taking any thread-bound state along.
	runtime.LockOSThread()

	if init != nil {
		if err := w.call(init); err != nil {
			w.mu.Lock()
			w.stopped = true
			w.mu.Unlock()
			ready <- err
			return
		}
	}
	ready <- nil
	w.logger.Debug("worker started")

	for j := range w.jobs {
		j.done <- w.exec(j.fn)
	}

	if w.finalizer != nil {
		w.stopErr = w.call(w.finalizer)
	}
	w.logger.Debug("worker exited")
}

func (w *Worker) exec(fn func() error) error {
	start := time.Now()
	err := w.call(fn)
	if w.metrics != nil {
		w.metrics.RecordWorkerJob(w.name, err != nil, time.Since(start).Seconds())
	}
	return err
}

// call runs fn, converting a panic into an error.
func (w *Worker) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			if e, ok := r.(error); ok {
				err = fmt.Errorf("worker %s: panic: %w", w.name, e)
				return
			}
			err = fmt.Errorf("worker %s: panic: %v", w.name, r)
		}
	}()
	return fn()
}

// Run enqueues fn and blocks until it has run on the worker thread,
// returning its error.
func (w *Worker) Run(fn func() error) error {
	done := make(chan error, 1)

	w.mu.RLock()
	if w.stopped {
		w.mu.RUnlock()
		return domain.ErrWorkerStopped.WithDetails(w.name)
	}
	w.jobs <- job{fn: fn, done: done}
	w.mu.RUnlock()

	return <-done
}

// Eval runs fn on w and returns its result.
func Eval[T any](w *Worker, fn func() (T, error)) (T, error) {
	var out T
	err := w.Run(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// Stop refuses new jobs, runs every job already queued, runs the
// finalizer and waits for the thread to exit. It is idempotent and returns
// the finalizer's error.
func (w *Worker) Stop() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if !w.stopped {
			w.stopped = true
			close(w.jobs)
		}
		w.mu.Unlock()
		<-w.exited
	})
	return w.stopErr
}

// Stopped reports whether Stop has been called.
func (w *Worker) Stopped() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}

// IsStopped reports whether err came from submitting to a stopped worker.
func IsStopped(err error) bool {
	return errors.Is(err, domain.ErrWorkerStopped)
}
