package storage

import (
	"context"
	"errors"
)

var (
	ErrKeyNotFound = errors.New("storage: key not found")
	ErrClosed      = errors.New("storage: engine closed")
)

// KVEngine is the ordered key-value store a persisted heap index lives
// in. It is written in bulk once and then only read.
type KVEngine interface {
	// Get returns a copy of the value under key, or ErrKeyNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Scan calls fn for each key starting with prefix, in key order,
	// until fn returns false. Key and value are copies.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// WriteBatch stores entries. There is no single-transaction size
	// limit, and a failed batch may be partly written.
	WriteBatch(ctx context.Context, entries []Entry) error

	// DropAll deletes every key.
	DropAll(ctx context.Context) error

	Close() error
}

// Entry is one key-value pair of a batch.
type Entry struct {
	Key   []byte
	Value []byte
}

// KVConfig locates and tunes a store.
type KVConfig struct {
	Dir    string
	Badger BadgerConfig
}

// BadgerConfig tunes Badger for a store that is small, written once and
// rebuilt from the snapshot when lost.
type BadgerConfig struct {
	BlockCacheSize   int64
	MemTableSize     int64
	ValueLogFileSize int64
	NumMemtables     int

	// Compress stores tables zstd-compressed. Index columns are runs of
	// small integers and shrink well.
	Compress bool

	// SyncWrites fsyncs every write.
	SyncWrites bool
}

// DefaultKVConfig returns a config for dir with DefaultBadgerConfig.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{Dir: dir, Badger: DefaultBadgerConfig()}
}

// DefaultBadgerConfig returns the tuning used for heap index caches.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		BlockCacheSize:   8 << 20,
		MemTableSize:     16 << 20,
		ValueLogFileSize: 64 << 20,
		NumMemtables:     2,
		Compress:         true,
	}
}
