package dumpfile

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/yndnr/memscope-go/internal/core/domain"
	"github.com/yndnr/memscope-go/internal/dac"
)

// ErrTargetClosed is returned by reads on a closed target.
var ErrTargetClosed = errors.New("dumpfile: target closed")

// Target is an opened dump file. It implements dac.DataTarget.
type Target struct {
	path   string
	file   *File
	order  binary.ByteOrder
	closed bool
}

var _ dac.DataTarget = (*Target)(nil)

// Provider opens dump files from disk.
type Provider struct{}

// Open implements dac.Provider.
func (Provider) Open(path string) (dac.DataTarget, error) {
	return Open(path)
}

// Open reads and validates the dump at path. Paths ending in ".zst" are
// zstd-compressed.
func Open(path string) (*Target, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("dumpfile: resolve path: %w", err)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("dumpfile: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(abs, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("dumpfile: zstd: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	file, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return NewTarget(abs, file)
}

// Decode reads one document from r.
func Decode(r io.Reader) (*File, error) {
	var file File
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("dumpfile: decode: %w", err)
	}
	return &file, nil
}

// NewTarget wraps an in-memory document. path is reported by Path.
func NewTarget(path string, file *File) (*Target, error) {
	if file.Format != FormatVersion {
		return nil, fmt.Errorf("dumpfile: unsupported format %q", file.Format)
	}
	if file.PointerSize != 4 && file.PointerSize != 8 {
		return nil, fmt.Errorf("dumpfile: unsupported pointer size %d", file.PointerSize)
	}
	order, err := parseByteOrder(file.ByteOrder)
	if err != nil {
		return nil, fmt.Errorf("dumpfile: %w", err)
	}

	slices.SortFunc(file.Segments, func(a, b SegmentRecord) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	for i := 1; i < len(file.Segments); i++ {
		if file.Segments[i].Start < file.Segments[i-1].End() {
			return nil, fmt.Errorf("dumpfile: segment at %v overlaps previous segment", file.Segments[i].Start)
		}
	}

	return &Target{path: path, file: file, order: order}, nil
}

// WriteFile encodes file to path, compressing when path ends in ".zst".
func WriteFile(path string, file *File) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dumpfile: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(out)
	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("dumpfile: zstd: %w", err)
		}
		if err := Encode(enc, file); err != nil {
			enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("dumpfile: zstd: %w", err)
		}
	} else if err := Encode(w, file); err != nil {
		return err
	}
	return w.Flush()
}

// Encode writes file to w as JSON.
func Encode(w io.Writer, file *File) error {
	if err := json.NewEncoder(w).Encode(file); err != nil {
		return fmt.Errorf("dumpfile: encode: %w", err)
	}
	return nil
}

// Path implements dac.DataTarget.
func (t *Target) Path() string { return t.path }

// File returns the decoded document.
func (t *Target) File() *File { return t.file }

// RuntimeVersions implements dac.DataTarget.
func (t *Target) RuntimeVersions() []domain.RuntimeVersion {
	return slices.Clone(t.file.Runtimes)
}

// PointerSize implements dac.DataTarget.
func (t *Target) PointerSize() int { return t.file.PointerSize }

// ByteOrder implements dac.DataTarget.
func (t *Target) ByteOrder() binary.ByteOrder { return t.order }

// ReadMemory implements dac.DataTarget. Only heap segments are mapped.
func (t *Target) ReadMemory(addr domain.Address, buf []byte) (int, error) {
	if t.closed {
		return 0, ErrTargetClosed
	}
	seg, ok := t.segmentAt(addr)
	if !ok {
		return 0, fmt.Errorf("dumpfile: address %v is not mapped", addr)
	}
	off := int(addr - seg.Start)
	n := copy(buf, seg.Data[off:])
	if n < len(buf) {
		return n, fmt.Errorf("dumpfile: short read at %v: %w", addr, io.ErrUnexpectedEOF)
	}
	return n, nil
}

// Close implements dac.DataTarget.
func (t *Target) Close() error {
	t.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (t *Target) Closed() bool { return t.closed }

func (t *Target) segmentAt(addr domain.Address) (*SegmentRecord, bool) {
	segs := t.file.Segments
	i, found := slices.BinarySearchFunc(segs, addr, func(s SegmentRecord, a domain.Address) int {
		switch {
		case s.Start < a:
			return -1
		case s.Start > a:
			return 1
		}
		return 0
	})
	if !found {
		i--
	}
	if i < 0 || addr >= segs[i].End() {
		return nil, false
	}
	return &segs[i], true
}
