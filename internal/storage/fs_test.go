package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempWorkspace(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempWorkspace(t)
	content := []byte("0 0 0 255\n1000 255 255 255\n")
	if err := s.Write("ramp.txt", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("ramp.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempWorkspace(t)
	if err := s.Write("a/b/c.txt", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestResolve(t *testing.T) {
	s := tempWorkspace(t)
	if got := s.Resolve("dem.tif"); got != filepath.Join(s.Root(), "dem.tif") {
		t.Errorf("Resolve(relative) = %q", got)
	}
	if got := s.Resolve("/data/raw/a.tif"); got != "/data/raw/a.tif" {
		t.Errorf("Resolve(absolute) = %q", got)
	}
}

func TestExists(t *testing.T) {
	s := tempWorkspace(t)
	ok, err := s.Exists("missing.tif")
	if err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	_ = s.Write("present.tif", []byte("x"))
	ok, err = s.Exists("present.tif")
	if err != nil || !ok {
		t.Fatalf("Exists(present) = %v, %v", ok, err)
	}
}

func TestRemove(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("del.tif", []byte("bye"))
	if err := s.Remove("del.tif"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("del.tif"); err != nil {
		t.Errorf("second Remove should be a no-op: %v", err)
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("atomic.txt", []byte("original"))
	if err := s.Write("atomic.txt", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.txt")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, ".mapforge-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/mapforge-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "mapforge-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
