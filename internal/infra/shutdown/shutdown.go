package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Signals interrupt long operations.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// WithSignals returns a context cancelled by the first of Signals.
// Long operations such as a heap index build take this context and
// abort when it fires.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, Signals...)
}

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler runs named cleanup hooks once.
type Handler struct {
	timeout time.Duration

	mu       sync.Mutex
	hooks    []hook
	done     bool
	err      error
	finished chan struct{}
}

// NewHandler returns a handler whose hooks share one timeout.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{timeout: timeout, finished: make(chan struct{})}
}

// OnShutdown registers fn under name. Hooks run in reverse registration
// order, so a resource is released before the ones it was built on. A
// hook registered after Shutdown runs at once.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	if !h.done {
		h.hooks = append(h.hooks, hook{name: name, fn: fn})
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	if err := h.run([]hook{{name: name, fn: fn}}); err != nil {
		h.mu.Lock()
		h.err = errors.Join(h.err, err)
		h.mu.Unlock()
	}
}

// Shutdown runs the hooks and returns their errors, each prefixed with
// its hook name. Later calls wait for the first and return its result.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		<-h.finished
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.err
	}
	h.done = true
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	err := h.run(hooks)

	h.mu.Lock()
	h.err = errors.Join(err, h.err)
	err = h.err
	h.mu.Unlock()
	close(h.finished)
	return err
}

func (h *Handler) run(hooks []hook) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
		}
	}
	return errors.Join(errs...)
}
