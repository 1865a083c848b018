package worker

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/telemetry/metric"
)

func startWorker(t *testing.T, opts ...Option) *Worker {
	t.Helper()
	w, err := Start("test", nil, opts...)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

// waitQueued blocks until n jobs sit in the queue.
func waitQueued(t *testing.T, w *Worker, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(w.jobs) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d queued jobs (have %d)", n, len(w.jobs))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStart_InitRunsFirst(t *testing.T) {
	var initDone atomic.Bool
	w, err := Start("init", func() error {
		initDone.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := w.Run(func() error {
		if !initDone.Load() {
			return errors.New("job ran before init")
		}
		return nil
	}); err != nil {
		t.Error(err)
	}
}

func TestStart_InitFailure(t *testing.T) {
	tests := []struct {
		name string
		init func() error
		want string
	}{
		{"error", func() error { return domain.ErrInitialization }, "MS-INIT-5000"},
		{"panic", func() error { panic("no runtime") }, "no runtime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Start("bad", tt.init)
			if err == nil {
				t.Fatal("Start() should fail")
			}
			if w != nil {
				t.Error("Start() must not return a partially started worker")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Start() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRun_PropagatesErrors(t *testing.T) {
	w := startWorker(t)
	sentinel := errors.New("boom")

	if err := w.Run(func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("Run() error = %v, want %v", err, sentinel)
	}
	if err := w.Run(func() error { panic(sentinel) }); !errors.Is(err, sentinel) {
		t.Errorf("Run() panic error = %v, want wrapped %v", err, sentinel)
	}
	if err := w.Run(func() error { var m map[string]int; m["x"] = 1; return nil }); err == nil {
		t.Error("Run() should convert a runtime panic")
	}
	if err := w.Run(func() error { return nil }); err != nil {
		t.Errorf("worker should survive panics, got %v", err)
	}
}

func TestEval(t *testing.T) {
	w := startWorker(t)

	got, err := Eval(w, func() (string, error) { return "value", nil })
	if err != nil || got != "value" {
		t.Errorf("Eval() = %q, %v", got, err)
	}

	_, err = Eval(w, func() (int, error) { return 0, domain.ErrDecodeFailure })
	if !errors.Is(err, domain.ErrDecodeFailure) {
		t.Errorf("Eval() error = %v", err)
	}
}

func TestRun_FIFO(t *testing.T) {
	w := startWorker(t)

	release := make(chan struct{})
	started := make(chan struct{})
	go w.Run(func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	const n = 20
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		waitQueued(t, w, i+1)
	}
	close(release)
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("execution order = %v, want submission order", order)
		}
	}
}

func TestStop_DrainsQueue(t *testing.T) {
	var finalized atomic.Bool
	var ran atomic.Int32
	w, err := Start("drain", nil, WithFinalizer(func() error {
		if ran.Load() != 4 {
			return errors.New("finalizer ran before the queue drained")
		}
		finalized.Store(true)
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	go w.Run(func() error {
		close(started)
		<-release
		ran.Add(1)
		return nil
	})
	<-started

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(func() error { ran.Add(1); return nil })
		}()
	}
	waitQueued(t, w, 3)

	stopped := make(chan error)
	go func() { stopped <- w.Stop() }()
	close(release)

	if err := <-stopped; err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	wg.Wait()

	if ran.Load() != 4 {
		t.Errorf("ran %d jobs, want 4", ran.Load())
	}
	if !finalized.Load() {
		t.Error("finalizer did not run")
	}
	if err := w.Run(func() error { return nil }); !IsStopped(err) {
		t.Errorf("Run() after Stop error = %v, want ErrWorkerStopped", err)
	}
	if !w.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}

func TestStop_IdempotentFinalizerError(t *testing.T) {
	calls := 0
	ferr := errors.New("release failed")
	w, err := Start("fin", nil, WithFinalizer(func() error {
		calls++
		return ferr
	}))
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Stop(); !errors.Is(err, ferr) {
		t.Errorf("Stop() error = %v, want %v", err, ferr)
	}
	if err := w.Stop(); !errors.Is(err, ferr) {
		t.Errorf("second Stop() error = %v, want %v", err, ferr)
	}
	if calls != 1 {
		t.Errorf("finalizer ran %d times, want 1", calls)
	}
}

func TestWorkers_ShareNoState(t *testing.T) {
	a := startWorker(t)
	b := startWorker(t)

	block := make(chan struct{})
	started := make(chan struct{})
	go a.Run(func() error {
		close(started)
		<-block
		return nil
	})
	<-started

	done := make(chan error, 1)
	go func() { done <- b.Run(func() error { return nil }) }()
	select {
	case err := <-done:
		if err != nil {
			t.Error(err)
		}
	case <-time.After(5 * time.Second):
		t.Error("a blocked worker stalled an unrelated worker")
	}
	close(block)
}

func TestWithMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	w := startWorker(t, WithMetrics(reg))

	w.Run(func() error { return nil })
	w.Run(func() error { return errors.New("x") })

	if got := testutil.ToFloat64(reg.WorkerJobs.WithLabelValues("test", "ok")); got != 1 {
		t.Errorf("ok jobs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(reg.WorkerJobs.WithLabelValues("test", "error")); got != 1 {
		t.Errorf("failed jobs = %v, want 1", got)
	}
}
