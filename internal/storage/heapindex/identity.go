package heapindex

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

// Identity is what a persisted index is keyed by. A change to any field
// invalidates the persisted copy.
type Identity struct {
	Path     string
	Size     int64
	ModTime  time.Time
	Runtimes []domain.RuntimeVersion
}

// IdentityOf stats the dump at path.
func IdentityOf(path string, runtimes []domain.RuntimeVersion) (Identity, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Identity{}, fmt.Errorf("heapindex: resolve path: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return Identity{}, fmt.Errorf("heapindex: stat dump: %w", err)
	}
	return Identity{
		Path:     abs,
		Size:     fi.Size(),
		ModTime:  fi.ModTime(),
		Runtimes: runtimes,
	}, nil
}

// Fingerprint returns a 128-bit murmur3 digest of the identity as 32 hex
// characters. It doubles as the cache directory name.
func (id Identity) Fingerprint() string {
	h := murmur3.New128()
	writeString := func(s string) {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	var buf [8]byte

	writeString(id.Path)
	binary.LittleEndian.PutUint64(buf[:], uint64(id.Size))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(id.ModTime.UnixNano()))
	h.Write(buf[:])
	for _, rv := range id.Runtimes {
		writeString(rv.Flavor)
		writeString(rv.Version)
	}

	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo)
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.Path == ""
}
