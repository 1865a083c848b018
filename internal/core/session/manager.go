package session

import (
	"cmp"
	"context"
	"errors"
	"runtime"
	"slices"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/telemetry/metric"
	"github.com/yndnr/memscope-go/pkg/cmap"
)

// Manager tracks the open sessions of a process by id.
type Manager struct {
	opts     Options
	sessions *cmap.Map[string, *Session]
}

// NewManager creates a manager that opens sessions with opts. opts.ID is
// ignored.
func NewManager(opts Options) *Manager {
	opts.ID = ""
	return &Manager{
		opts:     opts,
		sessions: cmap.New[string, *Session](),
	}
}

// Open opens path under a fresh id.
func (m *Manager) Open(ctx context.Context, path string) (*Session, error) {
	return m.OpenWithID(ctx, ulid.Make().String(), path)
}

// OpenWithID opens path under id. An id already in use fails with
// domain.ErrSessionConflict before the dump is touched.
func (m *Manager) OpenWithID(ctx context.Context, id, path string) (*Session, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("empty session id")
	}
	if m.sessions.Has(id) {
		return nil, domain.ErrSessionConflict.WithDetails(id)
	}

	opts := m.opts
	opts.ID = id
	s, err := Open(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	if !m.sessions.SetIfAbsent(id, s) {
		s.Dispose()
		return nil, domain.ErrSessionConflict.WithDetails(id)
	}
	return s, nil
}

// OpenAll opens paths in parallel, at most GOMAXPROCS at a time. Sessions
// are returned in path order. If any open fails, the ones that succeeded
// are disposed and the errors are joined.
func (m *Manager) OpenAll(ctx context.Context, paths []string) ([]*Session, error) {
	out := make([]*Session, len(paths))
	p := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0)).WithContext(ctx)
	for i, path := range paths {
		p.Go(func(ctx context.Context) error {
			s, err := m.Open(ctx, path)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		for _, s := range out {
			if s != nil {
				m.Close(s.ID())
			}
		}
		return nil, err
	}
	return out, nil
}

// Get returns the open session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound.WithDetails(id)
	}
	return s, nil
}

// List returns the open sessions ordered by id, which for generated ids
// is also opening order.
func (m *Manager) List() []*Session {
	out := m.sessions.Values()
	slices.SortFunc(out, func(a, b *Session) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

// Count returns the number of open sessions.
func (m *Manager) Count() int { return m.sessions.Count() }

// Close disposes and forgets the session with the given id.
func (m *Manager) Close(id string) error {
	s, ok := m.sessions.Pop(id)
	if !ok {
		return domain.ErrSessionNotFound.WithDetails(id)
	}
	return s.Dispose()
}

// CloseAll disposes every open session.
func (m *Manager) CloseAll() error {
	var errs []error
	for _, s := range m.sessions.Drain() {
		errs = append(errs, s.Dispose())
	}
	return errors.Join(errs...)
}

// Collector reports the index state of every open session at scrape time.
func (m *Manager) Collector() *metric.Collector {
	return metric.NewCollector(func() []metric.SessionSample {
		sessions := m.List()
		out := make([]metric.SessionSample, 0, len(sessions))
		for _, s := range sessions {
			sample := metric.SessionSample{ID: s.ID()}
			if sum, err := s.CacheSummary(); err == nil {
				sample.IndexReady = true
				sample.Objects = sum.Objects
			}
			out = append(out, sample)
		}
		return out
	})
}
