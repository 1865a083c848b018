package heapindex

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/storage"
)

// SchemaVersion is bumped whenever the persisted layout changes.
const SchemaVersion uint32 = 1

// columnChunk is the number of values per persisted column key.
const columnChunk = 1 << 16

var (
	keySchema      = []byte("meta/schema")
	keyFingerprint = []byte("meta/fingerprint")
	keyCounts      = []byte("meta/counts")
	keyHasRefs     = []byte("bitmap/hasrefs")
	keyReferenced  = []byte("bitmap/referenced")
	prefixType     = []byte("type/")
)

var (
	errCacheMiss  = errors.New("heapindex: no persisted index")
	errCacheStale = errors.New("heapindex: persisted index does not match snapshot")
)

// saveArena writes a to kv. Metadata goes last so an interrupted save
// reads back as a miss.
func saveArena(ctx context.Context, kv storage.KVEngine, a *arena, fingerprint string) error {
	var entries []storage.Entry

	for i, name := range a.names {
		st := a.stats[i]
		val := make([]byte, 24, 24+len(name))
		binary.LittleEndian.PutUint64(val[0:], a.handles[i])
		binary.LittleEndian.PutUint64(val[8:], st.Count)
		binary.LittleEndian.PutUint64(val[16:], st.TotalSize)
		val = append(val, name...)
		entries = append(entries, storage.Entry{Key: typeKey(st.TypeID), Value: val})
	}

	entries = appendColumn(entries, "inst_offsets", a.instOffsets)
	entries = appendColumn(entries, "instances", a.instances)
	entries = appendColumn(entries, "objects", a.objects)
	entries = appendColumn(entries, "edge_offsets", a.edgeOffsets)
	entries = appendColumn(entries, "edge_targets", a.edgeTargets)

	for _, bm := range []struct {
		key []byte
		bm  *roaring64.Bitmap
	}{{keyHasRefs, a.hasRefs}, {keyReferenced, a.referenced}} {
		raw, err := bm.bm.MarshalBinary()
		if err != nil {
			return fmt.Errorf("heapindex: marshal bitmap: %w", err)
		}
		entries = append(entries, storage.Entry{Key: bm.key, Value: raw})
	}

	if err := kv.WriteBatch(ctx, entries); err != nil {
		return fmt.Errorf("heapindex: save: %w", err)
	}

	counts := make([]byte, 24)
	binary.LittleEndian.PutUint64(counts[0:], uint64(len(a.names)))
	binary.LittleEndian.PutUint64(counts[8:], uint64(len(a.objects)))
	binary.LittleEndian.PutUint64(counts[16:], uint64(len(a.edgeTargets)))
	schema := binary.LittleEndian.AppendUint32(nil, SchemaVersion)

	return kv.WriteBatch(ctx, []storage.Entry{
		{Key: keyCounts, Value: counts},
		{Key: keyFingerprint, Value: []byte(fingerprint)},
		{Key: keySchema, Value: schema},
	})
}

// loadArena reads an arena persisted by saveArena. It returns
// errCacheMiss when nothing usable is stored and errCacheStale when the
// stored index belongs to another snapshot or schema.
func loadArena(ctx context.Context, kv storage.KVEngine, fingerprint string) (*arena, error) {
	schema, err := kv.Get(ctx, keySchema)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, errCacheMiss
	}
	if err != nil {
		return nil, err
	}
	if len(schema) != 4 || binary.LittleEndian.Uint32(schema) != SchemaVersion {
		return nil, errCacheStale
	}
	fp, err := kv.Get(ctx, keyFingerprint)
	if err != nil {
		return nil, errCacheMiss
	}
	if string(fp) != fingerprint {
		return nil, errCacheStale
	}
	counts, err := kv.Get(ctx, keyCounts)
	if err != nil || len(counts) != 24 {
		return nil, errCacheMiss
	}
	nTypes := binary.LittleEndian.Uint64(counts[0:])
	nObjects := binary.LittleEndian.Uint64(counts[8:])
	nEdges := binary.LittleEndian.Uint64(counts[16:])

	a := &arena{
		byName:   make(map[string]domain.TypeID, nTypes),
		byHandle: make(map[uint64]domain.TypeID, nTypes),
	}
	var typeErr error
	err = kv.Scan(ctx, prefixType, func(key, val []byte) bool {
		id := domain.TypeID(binary.BigEndian.Uint32(key[len(prefixType):]))
		if len(val) < 24 || int(id) != len(a.names)+1 {
			typeErr = fmt.Errorf("heapindex: corrupt type record %d", id)
			return false
		}
		name := string(val[24:])
		handle := binary.LittleEndian.Uint64(val[0:])
		a.names = append(a.names, name)
		a.handles = append(a.handles, handle)
		if _, dup := a.byName[name]; !dup {
			a.byName[name] = id
		}
		a.byHandle[handle] = id
		a.stats = append(a.stats, domain.TypeStat{
			TypeID:    id,
			Name:      name,
			Count:     binary.LittleEndian.Uint64(val[8:]),
			TotalSize: binary.LittleEndian.Uint64(val[16:]),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	if typeErr != nil {
		return nil, typeErr
	}
	if uint64(len(a.names)) != nTypes {
		return nil, fmt.Errorf("heapindex: %d type records, want %d", len(a.names), nTypes)
	}

	if a.instOffsets, err = loadColumn[uint64](ctx, kv, "inst_offsets", nTypes+1); err != nil {
		return nil, err
	}
	if a.instances, err = loadColumn[domain.Address](ctx, kv, "instances", nObjects); err != nil {
		return nil, err
	}
	if a.objects, err = loadColumn[domain.Address](ctx, kv, "objects", nObjects); err != nil {
		return nil, err
	}
	if a.edgeOffsets, err = loadColumn[uint64](ctx, kv, "edge_offsets", nObjects+1); err != nil {
		return nil, err
	}
	if a.edgeTargets, err = loadColumn[domain.Address](ctx, kv, "edge_targets", nEdges); err != nil {
		return nil, err
	}

	if a.hasRefs, err = loadBitmap(ctx, kv, keyHasRefs); err != nil {
		return nil, err
	}
	if a.referenced, err = loadBitmap(ctx, kv, keyReferenced); err != nil {
		return nil, err
	}
	return a, nil
}

func typeKey(id domain.TypeID) []byte {
	return binary.BigEndian.AppendUint32(bytes.Clone(prefixType), uint32(id))
}

func columnPrefix(name string) []byte {
	return []byte("col/" + name + "/")
}

func appendColumn[T ~uint64](entries []storage.Entry, name string, col []T) []storage.Entry {
	prefix := columnPrefix(name)
	for chunk, start := uint32(0), 0; start < len(col); chunk, start = chunk+1, start+columnChunk {
		end := min(start+columnChunk, len(col))
		val := make([]byte, 0, 8*(end-start))
		for _, v := range col[start:end] {
			val = binary.LittleEndian.AppendUint64(val, uint64(v))
		}
		key := binary.BigEndian.AppendUint32(bytes.Clone(prefix), chunk)
		entries = append(entries, storage.Entry{Key: key, Value: val})
	}
	return entries
}

func loadColumn[T ~uint64](ctx context.Context, kv storage.KVEngine, name string, n uint64) ([]T, error) {
	col := make([]T, 0, n)
	var bad bool
	err := kv.Scan(ctx, columnPrefix(name), func(_, val []byte) bool {
		if len(val)%8 != 0 {
			bad = true
			return false
		}
		for i := 0; i < len(val); i += 8 {
			col = append(col, T(binary.LittleEndian.Uint64(val[i:])))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if bad || uint64(len(col)) != n {
		return nil, fmt.Errorf("heapindex: column %s has %d values, want %d", name, len(col), n)
	}
	return col, nil
}

func loadBitmap(ctx context.Context, kv storage.KVEngine, key []byte) (*roaring64.Bitmap, error) {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("heapindex: load %s: %w", key, err)
	}
	bm := roaring64.New()
	if err := bm.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("heapindex: unmarshal %s: %w", key, err)
	}
	return bm, nil
}
