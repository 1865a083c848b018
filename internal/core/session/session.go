// Package session is the snapshot inspection façade.
//
// A Session owns one opened dump: the memory target, the runtime handle
// created over it, the worker thread every runtime call is routed
// through, and the heap index. Methods block until their work has run on
// the worker, or are served from the index without touching the worker.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yndnr/memscope-go/internal/bookmark"
	"github.com/yndnr/memscope-go/internal/core/decoder"
	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/core/worker"
	"github.com/yndnr/memscope-go/internal/dac"
	"github.com/yndnr/memscope-go/internal/storage/heapindex"
	"github.com/yndnr/memscope-go/internal/telemetry/metric"
	"github.com/yndnr/memscope-go/internal/telemetry/tracer"
)

// Session is one opened snapshot.
type Session struct {
	id         string
	path       string
	openedAt   time.Time
	threadType string

	log     *slog.Logger
	bus     Bus
	metrics *metric.Registry

	worker    *worker.Worker
	index     *heapindex.Index
	bookmarks *bookmark.Store

	// Set by the worker's init job and only used from the worker after.
	target  dac.DataTarget
	runtime dac.Runtime
	heap    dac.Heap
	decoder *decoder.Decoder
	version domain.RuntimeVersion

	closed      atomic.Bool
	disposeOnce sync.Once
	disposeErr  error

	threadsMu sync.Mutex
	threads   []domain.ThreadProperty
}

// Open opens the dump at path and initializes its runtime on a new
// worker. On any failure the target is closed and the returned error is
// domain.ErrInitialization wrapping the cause.
func Open(ctx context.Context, path string, opts Options) (s *Session, err error) {
	opts = opts.withDefaults()
	id := opts.ID
	if id == "" {
		id = ulid.Make().String()
	}

	_, span := tracer.StartSpan(ctx, "session.Open",
		attribute.String("session.id", id),
		attribute.String("session.dump", path))
	defer func() { tracer.EndSpan(span, err) }()

	s = &Session{
		id:         id,
		path:       path,
		openedAt:   time.Now(),
		threadType: opts.ThreadType,
		log:        opts.Logger.With("session", id),
		bus:        opts.Bus,
		metrics:    opts.Metrics,
	}

	target, err := opts.Provider.Open(path)
	if err != nil {
		return nil, domain.ErrInitialization.WithDetails(path).WithCause(err)
	}
	s.target = target

	s.worker, err = worker.Start("session-"+id,
		func() error { return s.initRuntime(opts.Locator) },
		worker.WithLogger(s.log),
		worker.WithMetrics(opts.Metrics),
		worker.WithFinalizer(s.release),
	)
	if err != nil {
		if !errors.Is(err, domain.ErrInitialization) {
			err = domain.ErrInitialization.WithDetails(path).WithCause(err)
		}
		return nil, err
	}

	s.index = heapindex.New(s.indexOptions(opts))

	s.bookmarks, err = bookmark.Open(path)
	if err != nil {
		s.log.Warn("bookmark file unreadable, starting empty", "error", err)
		s.bookmarks = bookmark.New(path)
	}

	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	s.log.Info("session opened", "dump", path, "runtime", s.version.String())
	return s, nil
}

// initRuntime is the worker's first job: resolve and load the component
// for the first declared runtime and create the runtime handle.
func (s *Session) initRuntime(locator dac.Locator) (err error) {
	defer func() {
		if err == nil {
			return
		}
		if s.runtime != nil {
			s.runtime.Close()
			s.runtime = nil
		}
		if cerr := s.target.Close(); cerr != nil {
			s.log.Warn("close target after failed init", "error", cerr)
		}
		if !errors.Is(err, domain.ErrInitialization) {
			err = domain.ErrInitialization.WithDetails(s.path).WithCause(err)
		}
	}()

	s.bus.Log(s, fmt.Sprintf("Initializing runtime for %s", s.path))

	versions := s.target.RuntimeVersions()
	if len(versions) == 0 {
		return domain.ErrNoRuntime.WithDetails(s.path)
	}
	s.version = versions[0]

	name, err := locator.FindComponent(s.version)
	if err != nil {
		return err
	}
	component, err := dac.Load(name)
	if err != nil {
		return err
	}
	rt, err := component.CreateRuntime(s.target)
	if err != nil {
		return err
	}

	s.runtime = rt
	s.heap = rt.Heap()
	s.decoder = decoder.New(s.heap)
	s.log.Debug("runtime created", "component", name, "runtime", s.version.String())
	return nil
}

func (s *Session) indexOptions(opts Options) heapindex.Options {
	ixOpts := heapindex.Options{
		CheckInterval:    opts.CheckInterval,
		ProgressInterval: opts.ProgressInterval,
		Progress:         opts.Progress,
		Badger:           opts.Badger,
		Logger:           s.log,
		Metrics:          opts.Metrics,
	}
	if opts.CacheDir == "" {
		return ixOpts
	}
	identity, err := heapindex.IdentityOf(s.path, s.target.RuntimeVersions())
	if err != nil {
		s.log.Warn("heap index will not be persisted", "error", err)
		return ixOpts
	}
	ixOpts.CacheDir = opts.CacheDir
	ixOpts.Identity = identity
	return ixOpts
}

// release is the worker finalizer: it runs on the worker thread once the
// queue has drained.
func (s *Session) release() error {
	var errs []error
	if s.runtime != nil {
		errs = append(errs, s.runtime.Close())
	}
	errs = append(errs, s.target.Close())
	return errors.Join(errs...)
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Path returns the dump path.
func (s *Session) Path() string { return s.path }

// OpenedAt returns when the session was opened.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// RuntimeVersion returns the runtime the session was initialized for.
func (s *Session) RuntimeVersion() domain.RuntimeVersion { return s.version }

// Closed reports whether Dispose has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// Bookmarks returns the bookmark store of the dump.
func (s *Session) Bookmarks() *bookmark.Store { return s.bookmarks }

// ============================================================================
// Worker Access
// ============================================================================

// Run runs fn on the worker with the runtime handle and waits for it.
func (s *Session) Run(fn func(dac.Runtime) error) error {
	return s.run(func() error { return fn(s.runtime) })
}

// Eval runs fn on the worker of s and returns its result.
func Eval[T any](s *Session, fn func(dac.Runtime) (T, error)) (T, error) {
	return eval(s, func() (T, error) { return fn(s.runtime) })
}

func (s *Session) run(fn func() error) error {
	if s.closed.Load() {
		return domain.ErrSessionClosed.WithDetails(s.id)
	}
	err := s.worker.Run(fn)
	if worker.IsStopped(err) {
		return domain.ErrSessionClosed.WithDetails(s.id).WithCause(err)
	}
	return err
}

func eval[T any](s *Session, fn func() (T, error)) (T, error) {
	var out T
	err := s.run(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// ============================================================================
// Type Lookups
// ============================================================================

// GetTypes returns the descriptors of every type the runtime knows.
func (s *Session) GetTypes() ([]domain.TypeDescriptor, error) {
	return eval(s, func() ([]domain.TypeDescriptor, error) {
		types := s.heap.Types()
		out := make([]domain.TypeDescriptor, len(types))
		for i, t := range types {
			out[i] = t.Descriptor()
		}
		return out, nil
	})
}

// GetType returns the descriptor of the named type.
func (s *Session) GetType(name string) (domain.TypeDescriptor, error) {
	return eval(s, func() (domain.TypeDescriptor, error) {
		t, ok := s.heap.TypeByName(name)
		if !ok {
			return domain.TypeDescriptor{}, domain.ErrTypeNotFound.WithDetails(name)
		}
		return t.Descriptor(), nil
	})
}

// GetTypeByHandle returns the descriptor of the type with the given
// runtime handle.
func (s *Session) GetTypeByHandle(handle uint64) (domain.TypeDescriptor, error) {
	return eval(s, func() (domain.TypeDescriptor, error) {
		t, ok := s.heap.TypeByHandle(handle)
		if !ok {
			return domain.TypeDescriptor{}, domain.ErrTypeNotFound.WithDetailsf("handle %#x", handle)
		}
		return t.Descriptor(), nil
	})
}

// GetObjectType returns the type of the object at addr.
func (s *Session) GetObjectType(addr domain.Address) (domain.TypeDescriptor, error) {
	return eval(s, func() (domain.TypeDescriptor, error) {
		t, err := s.heap.ObjectType(addr)
		if err != nil {
			return domain.TypeDescriptor{}, err
		}
		return t.Descriptor(), nil
	})
}

// GetObjectTypeName returns the type name of the object at addr.
func (s *Session) GetObjectTypeName(addr domain.Address) (string, error) {
	return eval(s, func() (string, error) {
		t, err := s.heap.ObjectType(addr)
		if err != nil {
			return "", err
		}
		return t.Name(), nil
	})
}

// GetObject resolves addr to an object reference.
func (s *Session) GetObject(addr domain.Address) (domain.ObjectRef, error) {
	t, err := s.GetObjectType(addr)
	if err != nil {
		return domain.ObjectRef{}, err
	}
	return domain.ObjectRef{Address: addr, Type: t}, nil
}

// ============================================================================
// Heap Index
// ============================================================================

// InitCache builds the heap index on the worker. Cancelling ctx aborts
// the build with domain.ErrBuildCancelled and leaves the index not ready.
// A second concurrent call fails with domain.ErrBuildInProgress.
func (s *Session) InitCache(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrSessionClosed.WithDetails(s.id)
	}
	return s.index.InitWith(ctx, s.heap, s.run)
}

// CacheStatus returns the state of the heap index.
func (s *Session) CacheStatus() heapindex.Status { return s.index.Status() }

// CacheSummary returns the size of the built index.
func (s *Session) CacheSummary() (heapindex.Summary, error) {
	if err := s.check(); err != nil {
		return heapindex.Summary{}, err
	}
	return s.index.Summary()
}

func (s *Session) check() error {
	if s.closed.Load() {
		return domain.ErrSessionClosed.WithDetails(s.id)
	}
	return nil
}

// GetTypeStats returns per-type instance counts and sizes, including
// types without instances.
func (s *Session) GetTypeStats() ([]domain.TypeStat, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.index.LoadTypeStat()
}

// GetTypeID returns the index id of the named type.
func (s *Session) GetTypeID(name string) (domain.TypeID, error) {
	if err := s.check(); err != nil {
		return domain.InvalidTypeID, err
	}
	return s.index.GetTypeID(name)
}

// GetInstances returns the addresses of every instance of the named type.
func (s *Session) GetInstances(name string) ([]domain.Address, error) {
	id, err := s.GetTypeID(name)
	if err != nil {
		return nil, err
	}
	return s.index.LoadInstances(id)
}

// GetInstancesByID returns the addresses of every instance of type id.
func (s *Session) GetInstancesByID(id domain.TypeID) ([]domain.Address, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.index.LoadInstances(id)
}

// EnumerateInstances returns a restartable sequence over the instances of
// the named type.
func (s *Session) EnumerateInstances(name string) (iter.Seq[domain.Address], error) {
	id, err := s.GetTypeID(name)
	if err != nil {
		return nil, err
	}
	return s.index.EnumerateInstances(id)
}

// GetReferences returns the objects addr references.
func (s *Session) GetReferences(addr domain.Address) ([]domain.Address, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.index.LoadReferences(addr)
}

// HasReferences reports whether addr references any object.
func (s *Session) HasReferences(addr domain.Address) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.index.HasReferences(addr)
}

// GetReferrers returns the objects referencing addr.
func (s *Session) GetReferrers(addr domain.Address) ([]domain.Address, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.index.LoadReferrers(addr)
}

// ============================================================================
// Values
// ============================================================================

// GetSimpleValue decodes the object at addr as type t. Types that are not
// simple yield addr itself.
func (s *Session) GetSimpleValue(addr domain.Address, t domain.TypeDescriptor) (any, error) {
	return eval(s, func() (any, error) {
		return s.decoder.GetSimpleValue(addr, t)
	})
}

// GetFieldValue walks path from the object at addr. A null reference
// along the path yields nil. A value that cannot be decoded is logged and
// also yields nil; only session errors are returned.
func (s *Session) GetFieldValue(addr domain.Address, t domain.TypeDescriptor, path []string) (any, error) {
	return eval(s, func() (any, error) {
		return s.fieldValue(addr, t, path), nil
	})
}

// fieldValue runs on the worker.
func (s *Session) fieldValue(addr domain.Address, t domain.TypeDescriptor, path []string) any {
	v, err := s.decoder.GetFieldValue(addr, t, path)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncDecodeFailure()
		}
		s.log.Debug("field value unavailable", "address", addr, "type", t.Name, "path", path, "error", err)
		return nil
	}
	return v
}

// ============================================================================
// Teardown
// ============================================================================

// Dispose releases the heap index, then the runtime handle and memory
// target on the worker, then stops the worker. Persisted index files are
// kept. Later calls return the first call's result.
func (s *Session) Dispose() error {
	s.disposeOnce.Do(func() {
		s.closed.Store(true)
		var errs []error
		if err := s.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close heap index: %w", err))
		}
		if err := s.worker.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("release runtime: %w", err))
		}
		s.disposeErr = errors.Join(errs...)
		if s.metrics != nil {
			s.metrics.SessionClosed()
		}
		s.log.Info("session disposed", "error", s.disposeErr)
	})
	return s.disposeErr
}

// Destroy disposes the session and deletes its persisted index.
func (s *Session) Destroy() error {
	err := s.Dispose()
	if derr := s.index.Destroy(); derr != nil {
		err = errors.Join(err, fmt.Errorf("destroy heap index: %w", derr))
	}
	return err
}
