// Package bookmark keeps named heap addresses per dump.
//
// Bookmarks of a dump live next to it in <dump>.bookmarks.yaml and are
// rewritten after every change. They are plain addresses: they stay
// valid for the same dump across sessions but mean nothing for another.
package bookmark

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

// FileSuffix is appended to the dump path to name the bookmark file.
const FileSuffix = ".bookmarks.yaml"

// Bookmark is one remembered object.
type Bookmark struct {
	Address   domain.Address `yaml:"address" json:"address"`
	TypeName  string         `yaml:"type,omitempty" json:"type,omitempty"`
	Note      string         `yaml:"note,omitempty" json:"note,omitempty"`
	CreatedAt time.Time      `yaml:"created_at" json:"created_at"`
}

type file struct {
	Dump      string     `yaml:"dump"`
	Bookmarks []Bookmark `yaml:"bookmarks"`
}

// Store holds the bookmarks of one dump. It is safe for concurrent use.
type Store struct {
	dump string
	path string

	mu    sync.Mutex
	items []Bookmark
}

// PathFor returns the bookmark file of dumpPath.
func PathFor(dumpPath string) string {
	return dumpPath + FileSuffix
}

// New returns an empty store for dumpPath without reading its file. The
// first change overwrites whatever the file held.
func New(dumpPath string) *Store {
	return &Store{dump: filepath.Base(dumpPath), path: PathFor(dumpPath)}
}

// Open loads the bookmarks of dumpPath. A missing file is an empty store.
func Open(dumpPath string) (*Store, error) {
	s := New(dumpPath)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bookmark: read %s: %w", s.path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("bookmark: parse %s: %w", s.path, err)
	}
	s.items = f.Bookmarks
	s.sort()
	return s, nil
}

// Path returns the bookmark file path.
func (s *Store) Path() string { return s.path }

// List returns the bookmarks in address order.
func (s *Store) List() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Get returns the bookmark at addr.
func (s *Store) Get(addr domain.Address) (Bookmark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.find(addr); ok {
		return s.items[i], true
	}
	return Bookmark{}, false
}

// Add stores b, replacing any bookmark at the same address, and saves.
func (s *Store) Add(b Bookmark) error {
	if b.Address == 0 {
		return domain.ErrInvalidArgument.WithDetails("bookmark at null address")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.find(b.Address); ok {
		s.items[i] = b
	} else {
		s.items = append(s.items, b)
		s.sort()
	}
	return s.save()
}

// Remove deletes the bookmark at addr and saves. It reports whether one
// existed.
func (s *Store) Remove(addr domain.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.find(addr)
	if !ok {
		return false, nil
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true, s.save()
}

func (s *Store) find(addr domain.Address) (int, bool) {
	return slices.BinarySearchFunc(s.items, addr, func(b Bookmark, a domain.Address) int {
		switch {
		case b.Address < a:
			return -1
		case b.Address > a:
			return 1
		}
		return 0
	})
}

func (s *Store) sort() {
	slices.SortStableFunc(s.items, func(a, b Bookmark) int {
		switch {
		case a.Address < b.Address:
			return -1
		case a.Address > b.Address:
			return 1
		}
		return 0
	})
}

// save writes through a temp file and renames it over the old one.
func (s *Store) save() error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(file{Dump: s.dump, Bookmarks: s.items}); err != nil {
		return fmt.Errorf("bookmark: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("bookmark: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("bookmark: save: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("bookmark: save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("bookmark: save: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("bookmark: save: %w", err)
	}
	return nil
}
