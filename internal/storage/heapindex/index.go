// Package heapindex builds and serves the heap index of one snapshot:
// the type catalog, per-type instance lists, per-type statistics and the
// object reference graph.
//
// The index is built in a single walk over the heap segments and stored
// in dense arrays. When a cache directory is configured, a completed
// index is persisted to Badger and reloaded by later builds of the same
// snapshot instead of walking the heap again.
package heapindex

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac"
	"github.com/yndnr/memscope-go/internal/storage"
	"github.com/yndnr/memscope-go/internal/telemetry/metric"
)

// Defaults.
const (
	DefaultCheckInterval    = 4096
	DefaultProgressInterval = 250 * time.Millisecond
)

const tracerName = "github.com/yndnr/memscope-go/internal/storage/heapindex"

// Status is the lifecycle state of an index.
type Status int32

const (
	StatusNotReady Status = iota
	StatusBuilding
	StatusReady
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusNotReady:
		return "not-ready"
	case StatusBuilding:
		return "building"
	case StatusReady:
		return "ready"
	case StatusClosed:
		return "closed"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Progress reports how far a build has walked.
type Progress struct {
	Objects    uint64
	Segment    int
	Segments   int
	BytesDone  uint64
	BytesTotal uint64
}

// ProgressFunc receives build progress. It runs on the building thread
// and must not block.
type ProgressFunc func(Progress)

// Executor runs fn on the thread that owns the heap and waits for it.
type Executor func(fn func() error) error

// Options configures an Index.
type Options struct {
	// CheckInterval is the number of objects walked between cancellation
	// checks.
	CheckInterval int

	// ProgressInterval is the minimum time between two progress reports.
	ProgressInterval time.Duration
	Progress         ProgressFunc

	// CacheDir enables persistence. The index of a snapshot is stored in
	// CacheDir/<Identity.Fingerprint()>.
	CacheDir string
	Identity Identity
	Badger   storage.BadgerConfig

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Summary describes a ready index.
type Summary struct {
	Types   int
	Objects uint64
	Edges   uint64
}

// Index is the heap index of one snapshot. Queries are safe for
// concurrent use and fail with domain.ErrNotReady until a build has
// completed.
type Index struct {
	opts Options
	log  *slog.Logger

	building atomic.Bool
	closing  atomic.Bool

	mu     sync.RWMutex
	status Status
	data   *arena
	store  *storage.BadgerEngine
}

// New returns an unbuilt index.
func New(opts Options) *Index {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Badger == (storage.BadgerConfig{}) {
		opts.Badger = storage.DefaultBadgerConfig()
	}
	return &Index{opts: opts, log: opts.Logger.With("component", "heapindex")}
}

// Status returns the current state.
func (ix *Index) Status() Status {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.status
}

// Ready reports whether queries can be served.
func (ix *Index) Ready() bool { return ix.Status() == StatusReady }

// Init builds the index, calling into heap on the current goroutine.
func (ix *Index) Init(ctx context.Context, heap dac.Heap) error {
	return ix.InitWith(ctx, heap, func(fn func() error) error { return fn() })
}

// InitWith builds the index, calling into heap only from inside exec.
//
// At most one build runs at a time; a concurrent call fails with
// domain.ErrBuildInProgress. Calling it on a ready index does nothing. A
// cancelled build fails with domain.ErrBuildCancelled, any other failure
// with domain.ErrBuildFailed; either way the index stays not ready and
// may be built again.
func (ix *Index) InitWith(ctx context.Context, heap dac.Heap, exec Executor) (err error) {
	if !ix.building.CompareAndSwap(false, true) {
		return domain.ErrBuildInProgress
	}
	defer ix.building.Store(false)

	ix.mu.Lock()
	switch ix.status {
	case StatusClosed:
		ix.mu.Unlock()
		return domain.ErrIndexClosed
	case StatusReady:
		ix.mu.Unlock()
		return nil
	}
	ix.status = StatusBuilding
	ix.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "heapindex.Init")
	defer span.End()

	start := time.Now()
	a, loaded, err := ix.loadOrBuild(ctx, heap, exec)
	elapsed := time.Since(start)

	result := "ok"
	switch {
	case err == nil && loaded:
		result = "loaded"
	case domain.IsCancelled(err):
		result = "cancelled"
	case err != nil:
		result = "failed"
	}
	var objects, edges uint64
	if a != nil {
		objects, edges = uint64(len(a.objects)), a.edgeCount()
	}
	if ix.opts.Metrics != nil {
		ix.opts.Metrics.RecordIndexBuild(result, elapsed.Seconds(), objects, edges)
	}
	span.SetAttributes(
		attribute.String("heapindex.result", result),
		attribute.Int64("heapindex.objects", int64(objects)),
		attribute.Int64("heapindex.edges", int64(edges)),
	)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.status == StatusClosed {
		return domain.ErrIndexClosed
	}
	if err != nil {
		ix.status = StatusNotReady
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		ix.log.Warn("heap index build did not complete", "result", result, "error", err, "elapsed", elapsed)
		return err
	}
	ix.data = a
	ix.status = StatusReady
	ix.log.Info("heap index ready",
		"result", result,
		"types", a.typeCount(),
		"objects", objects,
		"edges", edges,
		"elapsed", elapsed)
	return nil
}

func (ix *Index) loadOrBuild(ctx context.Context, heap dac.Heap, exec Executor) (*arena, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, domain.ErrBuildCancelled.WithCause(err)
	}

	persist := ix.opts.CacheDir != "" && !ix.opts.Identity.IsZero()
	var fingerprint string
	if persist {
		fingerprint = ix.opts.Identity.Fingerprint()
		a, err := ix.load(ctx, fingerprint)
		if err == nil {
			return a, true, nil
		}
		if !errors.Is(err, errCacheMiss) {
			ix.log.Warn("discarding persisted heap index", "error", err)
		}
	}

	var a *arena
	err := exec(func() error {
		b := &builder{
			ctx:           ctx,
			heap:          heap,
			checkInterval: ix.opts.CheckInterval,
			closed:        ix.closing.Load,
			progress: throttledProgress(ix.opts.Progress,
				rate.NewLimiter(rate.Every(ix.opts.ProgressInterval), 1)),
		}
		b.catalog()
		if err := b.walk(); err != nil {
			return err
		}
		b.group()
		a = b.a
		return nil
	})
	if err != nil {
		if domain.IsDomainError(err, "") {
			return nil, false, err
		}
		return nil, false, domain.ErrBuildFailed.WithCause(err)
	}

	if persist {
		if err := ix.save(ctx, a, fingerprint); err != nil {
			ix.log.Warn("heap index not persisted", "error", err)
		}
	}
	return a, false, nil
}

func (ix *Index) storeDir(fingerprint string) string {
	return filepath.Join(ix.opts.CacheDir, fingerprint)
}

// openStore opens the Badger store lazily; it stays open until Close.
func (ix *Index) openStore(fingerprint string) (*storage.BadgerEngine, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.store != nil {
		return ix.store, nil
	}
	if ix.status == StatusClosed {
		return nil, domain.ErrIndexClosed
	}
	dir := ix.storeDir(fingerprint)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("heapindex: create cache dir: %w", err)
	}
	store, err := storage.NewBadgerEngine(storage.KVConfig{Dir: dir, Badger: ix.opts.Badger}, ix.log)
	if err != nil {
		return nil, err
	}
	ix.store = store
	return store, nil
}

func (ix *Index) load(ctx context.Context, fingerprint string) (*arena, error) {
	store, err := ix.openStore(fingerprint)
	if err != nil {
		return nil, err
	}
	a, err := loadArena(ctx, store, fingerprint)
	if errors.Is(err, errCacheMiss) {
		return nil, err
	}
	if err != nil {
		if derr := store.DropAll(ctx); derr != nil {
			ix.log.Warn("drop stale heap index", "error", derr)
		}
		return nil, err
	}
	ix.log.Debug("heap index loaded from cache", "dir", store.Dir())
	return a, nil
}

func (ix *Index) save(ctx context.Context, a *arena, fingerprint string) error {
	store, err := ix.openStore(fingerprint)
	if err != nil {
		return err
	}
	if err := store.DropAll(ctx); err != nil {
		return err
	}
	if err := saveArena(ctx, store, a, fingerprint); err != nil {
		return err
	}
	ix.log.Debug("heap index saved", "dir", store.Dir(), "bytes", store.Size())
	return nil
}

// Close releases the in-memory index and the store handle. Persisted
// files are kept. A build in progress is aborted at its next checkpoint.
func (ix *Index) Close() error {
	ix.closing.Store(true)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.status = StatusClosed
	ix.data = nil
	if ix.store == nil {
		return nil
	}
	err := ix.store.Close()
	ix.store = nil
	return err
}

// Destroy closes the index and deletes its persisted copy.
func (ix *Index) Destroy() error {
	err := ix.Close()
	if ix.opts.CacheDir == "" || ix.opts.Identity.IsZero() {
		return err
	}
	if rerr := os.RemoveAll(ix.storeDir(ix.opts.Identity.Fingerprint())); rerr != nil {
		return errors.Join(err, fmt.Errorf("heapindex: remove cache: %w", rerr))
	}
	return err
}

// ready returns the built arena or the error a query should fail with.
func (ix *Index) ready() (*arena, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	switch ix.status {
	case StatusReady:
		return ix.data, nil
	case StatusClosed:
		return nil, domain.ErrIndexClosed
	}
	return nil, domain.ErrNotReady
}

// GetTypeID returns the id of the named type.
func (ix *Index) GetTypeID(name string) (domain.TypeID, error) {
	a, err := ix.ready()
	if err != nil {
		return domain.InvalidTypeID, err
	}
	id, ok := a.byName[name]
	if !ok {
		return domain.InvalidTypeID, domain.ErrTypeNotFound.WithDetails(name)
	}
	return id, nil
}

// GetTypeIDByHandle returns the id of the type with the given handle.
func (ix *Index) GetTypeIDByHandle(handle uint64) (domain.TypeID, error) {
	a, err := ix.ready()
	if err != nil {
		return domain.InvalidTypeID, err
	}
	id, ok := a.byHandle[handle]
	if !ok {
		return domain.InvalidTypeID, domain.ErrTypeNotFound.WithDetailsf("handle %#x", handle)
	}
	return id, nil
}

// TypeName returns the name of type id.
func (ix *Index) TypeName(id domain.TypeID) (string, error) {
	a, err := ix.ready()
	if err != nil {
		return "", err
	}
	if !a.validID(id) {
		return "", domain.ErrTypeNotFound.WithDetailsf("type id %d", id)
	}
	return a.names[id-1], nil
}

// LoadInstances returns a copy of the instance addresses of type id, in
// address order.
func (ix *Index) LoadInstances(id domain.TypeID) ([]domain.Address, error) {
	a, err := ix.ready()
	if err != nil {
		return nil, err
	}
	if !a.validID(id) {
		return nil, domain.ErrTypeNotFound.WithDetailsf("type id %d", id)
	}
	return slices.Clone(a.instancesOf(id)), nil
}

// EnumerateInstances returns a sequence over the instances of type id.
// The sequence can be iterated any number of times; every iteration
// yields the same addresses in the same order.
func (ix *Index) EnumerateInstances(id domain.TypeID) (iter.Seq[domain.Address], error) {
	a, err := ix.ready()
	if err != nil {
		return nil, err
	}
	if !a.validID(id) {
		return nil, domain.ErrTypeNotFound.WithDetailsf("type id %d", id)
	}
	list := a.instancesOf(id)
	return func(yield func(domain.Address) bool) {
		for _, addr := range list {
			if !yield(addr) {
				return
			}
		}
	}, nil
}

// LoadReferences returns the objects addr references, in field order.
func (ix *Index) LoadReferences(addr domain.Address) ([]domain.Address, error) {
	a, err := ix.ready()
	if err != nil {
		return nil, err
	}
	i, ok := a.objectIndex(addr)
	if !ok {
		return nil, domain.ErrAddressNotFound.WithDetails(addr.String())
	}
	return slices.Clone(a.referencesAt(i)), nil
}

// HasReferences reports whether addr references at least one object.
func (ix *Index) HasReferences(addr domain.Address) (bool, error) {
	a, err := ix.ready()
	if err != nil {
		return false, err
	}
	if _, ok := a.objectIndex(addr); !ok {
		return false, domain.ErrAddressNotFound.WithDetails(addr.String())
	}
	return a.hasRefs.Contains(uint64(addr)), nil
}

// LoadReferrers returns the objects that reference addr, in address
// order.
func (ix *Index) LoadReferrers(addr domain.Address) ([]domain.Address, error) {
	a, err := ix.ready()
	if err != nil {
		return nil, err
	}
	i, ok := a.objectIndex(addr)
	if !ok {
		return nil, domain.ErrAddressNotFound.WithDetails(addr.String())
	}
	if !a.referenced.Contains(uint64(addr)) {
		return []domain.Address{}, nil
	}
	return slices.Clone(a.referrersAt(i)), nil
}

// LoadTypeStat returns the statistics of every catalog type, including
// types without instances, ordered by id.
func (ix *Index) LoadTypeStat() ([]domain.TypeStat, error) {
	a, err := ix.ready()
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.stats), nil
}

// Summary returns the size of a ready index.
func (ix *Index) Summary() (Summary, error) {
	a, err := ix.ready()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Types: a.typeCount(), Objects: uint64(len(a.objects)), Edges: a.edgeCount()}, nil
}
