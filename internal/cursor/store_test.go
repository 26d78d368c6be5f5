package cursor

import (
	"path/filepath"
	"testing"

	"github.com/SashaStrek/influxfeed/pkg/types"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CommitAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.db")
	s := openStore(t, path)

	c := types.FileCursor{Path: "/data/a.txt", Inode: 42, Line: 17}
	if err := s.Commit(c); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	got, ok := loaded["/data/a.txt"]
	if !ok {
		t.Fatal("cursor for /data/a.txt not found")
	}
	if got != c {
		t.Errorf("loaded cursor = %+v, want %+v", got, c)
	}
}

func TestStore_CommitOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.db")
	s := openStore(t, path)

	first := types.FileCursor{Path: "/data/a.txt", Inode: 42, Line: 10}
	second := types.FileCursor{Path: "/data/a.txt", Inode: 42, Line: 25, Complete: true}

	if err := s.Commit(first); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := s.Commit(second); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := loaded["/data/a.txt"]; got != second {
		t.Errorf("loaded cursor = %+v, want %+v", got, second)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	c := types.FileCursor{Path: "/data/b.txt", Inode: 7, Line: 3, Complete: true}
	if err := s.Commit(c); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s2 := openStore(t, path)
	loaded, err := s2.Load()
	if err != nil {
		t.Fatalf("Load() after reopen failed: %v", err)
	}
	if got := loaded["/data/b.txt"]; got != c {
		t.Errorf("loaded cursor = %+v, want %+v", got, c)
	}
}

func TestStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.db")
	s := openStore(t, path)

	if err := s.Commit(types.FileCursor{Path: "/data/a.txt", Line: 1}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := s.Delete("/data/a.txt"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Load() returned %d cursors after delete, want 0", len(loaded))
	}
}

func TestStore_SecondOpenFailsWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.db")
	openStore(t, path)

	// The file lock makes a concurrent run fail fast instead of silently
	// sharing the store.
	if _, err := Open(path); err == nil {
		t.Error("second Open() succeeded, want lock error")
	}
}

func TestStore_LoadEmpty(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "cursors.db"))

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Load() = %d cursors, want 0", len(loaded))
	}
}
