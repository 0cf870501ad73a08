package mapping_test

import (
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"tgrelay/internal/domain/mapping"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bbolt")
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("bbolt.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStoreSaveAndLookup(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	store, err := mapping.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := store.Save(1, 100, 555); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok := store.Lookup(1, 100)
	if !ok {
		t.Fatal("Lookup(1, 100) not found")
	}
	if got != 555 {
		t.Fatalf("Lookup(1, 100) = %d, want 555", got)
	}

	if _, ok := store.Lookup(1, 999); ok {
		t.Fatal("Lookup(1, 999) should not be found")
	}
}

func TestStoreSurvivesReload(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	store, err := mapping.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.Save(2, 10, 20); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened, err := mapping.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() (reload) error = %v", err)
	}
	got, ok := reopened.Lookup(2, 10)
	if !ok || got != 20 {
		t.Fatalf("Lookup(2, 10) after reload = (%d, %v), want (20, true)", got, ok)
	}
}

func TestStoreDeleteAndPurgeForPair(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	store, err := mapping.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.Save(3, 1, 11); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(3, 2, 12); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(4, 1, 99); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(3, 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := store.Lookup(3, 1); ok {
		t.Fatal("Lookup(3, 1) should be gone after Delete")
	}

	if err := store.PurgeForPair(3); err != nil {
		t.Fatalf("PurgeForPair() error = %v", err)
	}
	if _, ok := store.Lookup(3, 2); ok {
		t.Fatal("Lookup(3, 2) should be gone after PurgeForPair(3)")
	}
	if got, ok := store.Lookup(4, 1); !ok || got != 99 {
		t.Fatalf("Lookup(4, 1) after purging pair 3 = (%d, %v), want (99, true)", got, ok)
	}
}
