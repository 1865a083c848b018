package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func openEngine(t *testing.T, dir string) *BadgerEngine {
	t.Helper()
	e, err := NewBadgerEngine(DefaultKVConfig(dir), quiet)
	if err != nil {
		t.Fatalf("NewBadgerEngine() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// columnEntries mimics a persisted index: a metadata key and n column
// chunks.
func columnEntries(n int) []Entry {
	entries := []Entry{{Key: []byte("m/fingerprint"), Value: []byte("fp-1")}}
	for i := range n {
		entries = append(entries, Entry{
			Key:   []byte(fmt.Sprintf("c/addr/%04d", i)),
			Value: []byte{byte(i), byte(i >> 8)},
		})
	}
	return entries
}

func TestBadgerEngine_WriteAndRead(t *testing.T) {
	e := openEngine(t, t.TempDir())
	ctx := context.Background()

	if err := e.WriteBatch(ctx, columnEntries(3)); err != nil {
		t.Fatal(err)
	}

	got, err := e.Get(ctx, []byte("m/fingerprint"))
	if err != nil || string(got) != "fp-1" {
		t.Errorf("Get() = %q, %v", got, err)
	}
	if _, err := e.Get(ctx, []byte("m/missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}
}

func TestBadgerEngine_Scan(t *testing.T) {
	e := openEngine(t, t.TempDir())
	ctx := context.Background()
	if err := e.WriteBatch(ctx, columnEntries(5)); err != nil {
		t.Fatal(err)
	}

	var keys []string
	err := e.Scan(ctx, []byte("c/addr/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c/addr/0000", "c/addr/0001", "c/addr/0002", "c/addr/0003", "c/addr/0004"}
	if !slices.Equal(keys, want) {
		t.Errorf("Scan keys = %v, want %v", keys, want)
	}

	n := 0
	if err := e.Scan(ctx, []byte("c/"), func(_, _ []byte) bool { n++; return n < 2 }); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Scan continued after false: %d calls", n)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := e.Scan(cancelled, []byte("c/"), func(_, _ []byte) bool { return true }); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan(cancelled) error = %v", err)
	}
}

func TestBadgerEngine_LargeBatch(t *testing.T) {
	e := openEngine(t, t.TempDir())
	ctx := context.Background()

	// More than one Badger transaction holds.
	entries := make([]Entry, 0, 20000)
	for i := range cap(entries) {
		entries = append(entries, Entry{Key: []byte(fmt.Sprintf("c/size/%06d", i)), Value: make([]byte, 64)})
	}
	if err := e.WriteBatch(ctx, entries); err != nil {
		t.Fatal(err)
	}

	n := 0
	if err := e.Scan(ctx, []byte("c/size/"), func(_, _ []byte) bool { n++; return true }); err != nil {
		t.Fatal(err)
	}
	if n != len(entries) {
		t.Errorf("scanned %d keys, want %d", n, len(entries))
	}
}

func TestBadgerEngine_DropAll(t *testing.T) {
	e := openEngine(t, t.TempDir())
	ctx := context.Background()
	if err := e.WriteBatch(ctx, columnEntries(2)); err != nil {
		t.Fatal(err)
	}
	if err := e.DropAll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Get(ctx, []byte("m/fingerprint")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after DropAll error = %v", err)
	}
}

func TestBadgerEngine_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewBadgerEngine(DefaultKVConfig(dir), quiet)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.WriteBatch(ctx, columnEntries(1)); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := openEngine(t, dir)
	if got, err := second.Get(ctx, []byte("m/fingerprint")); err != nil || string(got) != "fp-1" {
		t.Errorf("after reopen Get() = %q, %v", got, err)
	}
	if second.Dir() != dir {
		t.Errorf("Dir() = %q", second.Dir())
	}
}

func TestBadgerEngine_Uncompressed(t *testing.T) {
	cfg := DefaultKVConfig(t.TempDir())
	cfg.Badger.Compress = false
	e, err := NewBadgerEngine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if err := e.WriteBatch(context.Background(), columnEntries(1)); err != nil {
		t.Fatal(err)
	}
}

func TestBadgerEngine_Closed(t *testing.T) {
	e := openEngine(t, t.TempDir())
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	ctx := context.Background()
	checks := map[string]error{}
	_, checks["Get"] = e.Get(ctx, []byte("k"))
	checks["Scan"] = e.Scan(ctx, nil, func(_, _ []byte) bool { return true })
	checks["WriteBatch"] = e.WriteBatch(ctx, columnEntries(1))
	checks["DropAll"] = e.DropAll(ctx)
	for op, err := range checks {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("%s after Close error = %v, want ErrClosed", op, err)
		}
	}
	if e.Size() != 0 {
		t.Errorf("Size() after Close = %d", e.Size())
	}
}

func TestNewBadgerEngine_NoDir(t *testing.T) {
	if _, err := NewBadgerEngine(KVConfig{}, quiet); err == nil {
		t.Error("expected error without a dir")
	}
}
