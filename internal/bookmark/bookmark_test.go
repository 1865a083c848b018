package bookmark

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

func TestOpen_Missing(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "app.dump.json")
	s, err := Open(dump)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(s.List()) != 0 {
		t.Errorf("List() = %v, want empty", s.List())
	}
	if s.Path() != dump+FileSuffix {
		t.Errorf("Path() = %q", s.Path())
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("Open() created the bookmark file")
	}
}

func TestStore_AddListRemove(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "app.dump.json")
	s, err := Open(dump)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, b := range []Bookmark{
		{Address: 0x30000, TypeName: "App.Node", Note: "tail", CreatedAt: created},
		{Address: 0x10000, TypeName: "App.Node", Note: "head", CreatedAt: created},
		{Address: 0x20000, Note: "array"},
	} {
		if err := s.Add(b); err != nil {
			t.Fatalf("Add(%v) error = %v", b.Address, err)
		}
	}

	list := s.List()
	if len(list) != 3 || list[0].Address != 0x10000 || list[2].Address != 0x30000 {
		t.Fatalf("List() = %+v, want address order", list)
	}
	if list[1].CreatedAt.IsZero() {
		t.Error("Add() did not stamp CreatedAt")
	}

	if err := s.Add(Bookmark{Address: 0x10000, Note: "renamed"}); err != nil {
		t.Fatalf("Add(replace) error = %v", err)
	}
	if b, ok := s.Get(0x10000); !ok || b.Note != "renamed" {
		t.Errorf("Get() = %+v, %v", b, ok)
	}
	if len(s.List()) != 3 {
		t.Errorf("replace changed the count to %d", len(s.List()))
	}

	removed, err := s.Remove(0x20000)
	if err != nil || !removed {
		t.Fatalf("Remove() = %v, %v", removed, err)
	}
	removed, err = s.Remove(0x20000)
	if err != nil || removed {
		t.Errorf("second Remove() = %v, %v", removed, err)
	}

	reopened, err := Open(dump)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	got := reopened.List()
	if len(got) != 2 || got[0].Note != "renamed" || got[1].Note != "tail" {
		t.Errorf("reopened List() = %+v", got)
	}
	if !got[1].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got[1].CreatedAt, created)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "0x0000000000010000") ||
		!strings.Contains(string(data), "dump: app.dump.json") {
		t.Errorf("file content:\n%s", data)
	}
}

func TestStore_AddNull(t *testing.T) {
	s, _ := Open(filepath.Join(t.TempDir(), "x.dump.json"))
	if err := s.Add(Bookmark{}); !domain.IsDomainError(err, domain.ErrInvalidArgument.Code) {
		t.Errorf("Add(null) error = %v", err)
	}
}

func TestOpen_Corrupt(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "bad.dump.json")
	if err := os.WriteFile(PathFor(dump), []byte("bookmarks: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dump); err == nil {
		t.Error("Open() of corrupt file succeeded")
	}
}
