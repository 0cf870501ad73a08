package boltstore_test

import (
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"tgrelay/internal/infra/boltstore"
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

func TestSettingsStoreGetDefaultAndSet(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	store, err := boltstore.NewSettingsStore(db)
	if err != nil {
		t.Fatalf("NewSettingsStore() error = %v", err)
	}

	if got := store.Get("missing_key", "fallback"); got != "fallback" {
		t.Fatalf("Get(missing_key) = %q, want fallback", got)
	}

	if err := store.Set("greeting", "hello"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := store.Get("greeting", "fallback"); got != "hello" {
		t.Fatalf("Get(greeting) = %q, want hello", got)
	}
}

func TestSettingsStorePausedToggle(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	store, err := boltstore.NewSettingsStore(db)
	if err != nil {
		t.Fatalf("NewSettingsStore() error = %v", err)
	}

	if store.Paused() {
		t.Fatal("Paused() should default to false")
	}
	if err := store.SetPaused(true); err != nil {
		t.Fatalf("SetPaused(true) error = %v", err)
	}
	if !store.Paused() {
		t.Fatal("Paused() should be true after SetPaused(true)")
	}
	if err := store.SetPaused(false); err != nil {
		t.Fatalf("SetPaused(false) error = %v", err)
	}
	if store.Paused() {
		t.Fatal("Paused() should be false after SetPaused(false)")
	}
}
