package repl

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// DefaultHistorySize bounds the entries kept in memory and on disk.
const DefaultHistorySize = 1000

// History is the list of shell lines, oldest first, persisted one line
// per entry.
type History struct {
	path    string
	limit   int
	entries []string
}

// DefaultHistoryFile returns ~/.memscope/history, falling back to the
// temp dir when there is no home.
func DefaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".memscope", "history")
}

// NewHistory returns an empty history saved to path, or to
// DefaultHistoryFile when path is empty.
func NewHistory(path string) *History {
	if path == "" {
		path = DefaultHistoryFile()
	}
	return &History{path: path, limit: DefaultHistorySize}
}

// Add appends line unless it repeats the last entry.
func (h *History) Add(line string) {
	if n := len(h.entries); n > 0 && h.entries[n-1] == line {
		return
	}
	h.entries = append(h.entries, line)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = slices.Delete(h.entries, 0, over)
	}
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []string {
	return slices.Clone(h.entries)
}

// Expand resolves a recall line: "!!" is the last entry and "!N" the
// N-th as numbered by the history command. Other lines are returned
// unchanged.
func (h *History) Expand(line string) (string, error) {
	if !strings.HasPrefix(line, "!") {
		return line, nil
	}
	if line == "!!" {
		if len(h.entries) == 0 {
			return "", errors.New("history is empty")
		}
		return h.entries[len(h.entries)-1], nil
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 1 || n > len(h.entries) {
		return "", fmt.Errorf("%s: event not found", line)
	}
	return h.entries[n-1], nil
}

// Load appends the entries saved in the history file. A missing file is
// not an error.
func (h *History) Load() error {
	data, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			h.Add(line)
		}
	}
	return nil
}

// Save replaces the history file through a rename, so a crash leaves
// the old file intact.
func (h *History) Save() error {
	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var b strings.Builder
	for _, e := range h.entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), h.path)
}
