package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	t.Run("empty path degrades to memory", func(t *testing.T) {
		db := Open("")
		defer db.Close()
		if _, ok := db.(*Memory); !ok {
			t.Fatalf("got %T, want *Memory", db)
		}
	})

	t.Run("valid path opens sqlite", func(t *testing.T) {
		db := Open(filepath.Join(t.TempDir(), "valet.db"))
		defer db.Close()
		if _, ok := db.(*SQLite); !ok {
			t.Fatalf("got %T, want *SQLite", db)
		}
		if err := db.Set("k", "v"); err != nil {
			t.Fatal(err)
		}
		v, ok, err := db.Get("k")
		if err != nil || !ok || v != "v" {
			t.Fatalf("Get = %q, %v, %v", v, ok, err)
		}
	})

	t.Run("unopenable path degrades to memory", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "occupied")
		if err := os.WriteFile(blocker, nil, 0600); err != nil {
			t.Fatal(err)
		}

		// The parent "directory" is a regular file, so sqlite cannot open.
		db := Open(filepath.Join(blocker, "valet.db"))
		defer db.Close()
		if _, ok := db.(*Memory); !ok {
			t.Fatalf("got %T, want *Memory", db)
		}
		if err := db.Set("k", "v"); err != nil {
			t.Fatalf("degraded store must still work: %v", err)
		}
	})
}
