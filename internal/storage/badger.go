package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
)

// BadgerEngine is a KVEngine on Badger v3.
type BadgerEngine struct {
	db     *badger.DB
	dir    string
	logger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ KVEngine = (*BadgerEngine)(nil)

// NewBadgerEngine opens or creates the store in cfg.Dir.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" {
		return nil, errors.New("storage: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	bc := cfg.Badger
	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(badgerLogger{logger}).
		WithBlockCacheSize(bc.BlockCacheSize).
		WithMemTableSize(bc.MemTableSize).
		WithValueLogFileSize(bc.ValueLogFileSize).
		WithNumMemtables(bc.NumMemtables).
		WithSyncWrites(bc.SyncWrites).
		WithDetectConflicts(false)
	if bc.Compress {
		opts = opts.WithCompression(options.ZSTD)
	} else {
		opts = opts.WithCompression(options.None)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Dir, err)
	}
	logger.Debug("badger store opened", "dir", cfg.Dir, "compress", bc.Compress)
	return &BadgerEngine{db: db, dir: cfg.Dir, logger: logger}, nil
}

// Dir returns the store directory.
func (e *BadgerEngine) Dir() string { return e.dir }

// Get implements KVEngine.
func (e *BadgerEngine) Get(_ context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// Scan implements KVEngine. Values are not prefetched; index columns are
// read one at a time.
func (e *BadgerEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				return nil
			}
		}
		return nil
	})
}

// WriteBatch implements KVEngine with a Badger write batch, which commits
// in as many transactions as the entries need.
func (e *BadgerEngine) WriteBatch(ctx context.Context, entries []Entry) error {
	if e.closed.Load() {
		return ErrClosed
	}
	wb := e.db.NewWriteBatch()
	defer wb.Cancel()

	for _, en := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.Set(en.Key, en.Value); err != nil {
			return fmt.Errorf("storage: batch set: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("storage: batch flush: %w", err)
	}
	return nil
}

// DropAll implements KVEngine.
func (e *BadgerEngine) DropAll(context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.db.DropAll(); err != nil {
		return fmt.Errorf("storage: drop all: %w", err)
	}
	return nil
}

// Size returns the bytes on disk, LSM tables plus value log. Badger
// refreshes the figure periodically, so it lags recent writes.
func (e *BadgerEngine) Size() int64 {
	if e.closed.Load() {
		return 0
	}
	lsm, vlog := e.db.Size()
	return lsm + vlog
}

// Close closes the store and keeps its files. Later calls return the
// first result.
func (e *BadgerEngine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if err := e.db.Close(); err != nil {
			e.closeErr = fmt.Errorf("storage: close %s: %w", e.dir, err)
			return
		}
		e.logger.Debug("badger store closed", "dir", e.dir)
	})
	return e.closeErr
}

// badgerLogger routes Badger's logging to slog, demoting its info chatter
// to debug.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(format string, args ...any) { b.l.Error(fmt.Sprintf(format, args...)) }

func (b badgerLogger) Warningf(format string, args ...any) { b.l.Warn(fmt.Sprintf(format, args...)) }

func (b badgerLogger) Infof(format string, args ...any) { b.l.Debug(fmt.Sprintf(format, args...)) }

func (b badgerLogger) Debugf(format string, args ...any) { b.l.Debug(fmt.Sprintf(format, args...)) }
