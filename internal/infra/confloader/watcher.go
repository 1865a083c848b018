package confloader

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay quiet before its change is
// reported. Editors often write a file in several steps.
const DefaultSettle = 200 * time.Millisecond

// Watcher reports changes to configuration files, one notification per
// burst of writes.
type Watcher struct {
	fsw    *fsnotify.Watcher
	logger *slog.Logger
	settle time.Duration

	mu        sync.Mutex
	files     map[string]struct{}
	pending   map[string]*time.Timer
	callbacks []func(path string)
	stopped   bool

	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithSettle replaces DefaultSettle. Zero reports every event at once.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.settle = d }
}

// NewWatcher returns a watcher with nothing to watch yet.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:     fsw,
		logger:  slog.Default(),
		settle:  DefaultSettle,
		files:   make(map[string]struct{}),
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds the file at path. Its directory is watched so a save by
// rename is seen too.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	w.mu.Lock()
	w.files[abs] = struct{}{}
	w.mu.Unlock()
	w.logger.Debug("watching configuration file", "path", abs)
	return nil
}

// OnChange registers fn to run with the absolute path of a changed file.
// Callbacks run on a timer goroutine, one change at a time.
func (w *Watcher) OnChange(fn func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start handles events until Stop.
func (w *Watcher) Start() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.changed(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("configuration watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop ends Start and drops pending notifications. Later calls return
// the first call's result.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		for _, t := range w.pending {
			t.Stop()
		}
		w.mu.Unlock()

		close(w.done)
		w.stopErr = w.fsw.Close()
	})
	return w.stopErr
}

// changed schedules a notification for name if it is watched, pushing
// back one already pending.
func (w *Watcher) changed(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; !ok || w.stopped {
		return
	}
	if t, ok := w.pending[abs]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[abs] = time.AfterFunc(w.settle, func() { w.notify(abs) })
}

func (w *Watcher) notify(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	if w.stopped {
		w.mu.Unlock()
		return
	}
	callbacks := append([]func(string){}, w.callbacks...)
	w.mu.Unlock()

	w.logger.Debug("configuration file changed", "path", path)
	for _, fn := range callbacks {
		fn(path)
	}
}
