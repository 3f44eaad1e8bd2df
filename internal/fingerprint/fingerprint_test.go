package fingerprint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/mapforge/internal/apperr"
)

func testDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fingerprints.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

// stores runs fn against every backend.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		db, _ := testDB(t)
		fn(t, db)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
}

func TestKey(t *testing.T) {
	if got := Key("/data/out/alps_dem.tif"); got != "alps_dem.tif" {
		t.Errorf("Key = %q", got)
	}
	if Key("a/x.tif") != Key("b/x.tif") {
		t.Error("keys are derived from the base name only")
	}
}

func TestHashDeterministic(t *testing.T) {
	if Hash("gdalwarp a b") != Hash("gdalwarp a b") {
		t.Error("hash not deterministic")
	}
	if Hash("gdalwarp a b") == Hash("gdalwarp a c") {
		t.Error("different commands share a hash")
	}
}

func TestFirstRunIsChanged(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ok, err := s.Unchanged(context.Background(), "dem.tif", "gdalwarp a dem.tif")
		if err != nil {
			t.Fatalf("Unchanged: %v", err)
		}
		if ok {
			t.Error("target without record must be reported as changed")
		}
	})
}

func TestRecordThenUnchanged(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Record(ctx, "out/dem.tif", "gdalwarp a dem.tif"); err != nil {
			t.Fatalf("Record: %v", err)
		}
		ok, _ := s.Unchanged(ctx, "out/dem.tif", "gdalwarp a dem.tif")
		if !ok {
			t.Error("same command should be unchanged")
		}
		ok, _ = s.Unchanged(ctx, "out/dem.tif", "gdalwarp -r cubic a dem.tif")
		if ok {
			t.Error("different command should be changed")
		}
	})
}

func TestRecordOverwrites(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.Record(ctx, "hs.tif", "v1")
		_ = s.Record(ctx, "hs.tif", "v2")
		if ok, _ := s.Unchanged(ctx, "hs.tif", "v1"); ok {
			t.Error("old command should no longer match")
		}
		if ok, _ := s.Unchanged(ctx, "hs.tif", "v2"); !ok {
			t.Error("new command should match")
		}
		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("len = %d, want 1", len(list))
		}
		if list[0].Key != "hs.tif" || list[0].CommandHash != Hash("v2") {
			t.Errorf("record = %+v", list[0])
		}
	})
}

func TestForget(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.Record(ctx, "hs.tif", "v1")
		if err := s.Forget(ctx, "hs.tif"); err != nil {
			t.Fatalf("Forget: %v", err)
		}
		if ok, _ := s.Unchanged(ctx, "hs.tif", "v1"); ok {
			t.Error("forgotten record should not match")
		}
		if err := s.Forget(ctx, "hs.tif"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("second Forget err = %v, want ErrNotFound", err)
		}
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	db, path := testDB(t)
	ctx := context.Background()
	if err := db.Record(ctx, "dem.tif", "gdalwarp a dem.tif"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	db.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	ok, err := reopened.Unchanged(ctx, "dem.tif", "gdalwarp a dem.tif")
	if err != nil {
		t.Fatalf("Unchanged: %v", err)
	}
	if !ok {
		t.Error("fingerprint did not survive reopen")
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state", "fp.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("db file not created: %v", err)
	}
}
