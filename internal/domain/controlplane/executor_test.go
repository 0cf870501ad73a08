package controlplane_test

import (
	"context"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"tgrelay/internal/domain/controlplane"
	"tgrelay/internal/domain/dispatch"
	"tgrelay/internal/domain/pairs"
	"tgrelay/internal/infra/boltstore"
	"tgrelay/internal/infra/metrics"
)

func newTestExecutor(t *testing.T) *controlplane.CommandExecutor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bbolt")
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("bbolt.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	registry, err := pairs.NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	settings, err := boltstore.NewSettingsStore(db)
	if err != nil {
		t.Fatalf("NewSettingsStore() error = %v", err)
	}
	queue := dispatch.NewPriorityQueue(16)
	monitor := metrics.NewMonitor(queue, 16, func(int) bool { return true }, func() {})

	return controlplane.NewExecutor(registry, settings, queue, monitor, 42, "relay_bot")
}

func TestCreateListUpdateDeletePair(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex := newTestExecutor(t)

	p := pairs.Pair{ID: 1, Name: "news", SourceChatID: 100, DestinationChatID: 200, Filter: pairs.DefaultFilterConfig()}
	created, err := ex.CreatePair(ctx, p)
	if err != nil {
		t.Fatalf("CreatePair() error = %v", err)
	}
	if created.Status != pairs.StatusActive {
		t.Fatalf("CreatePair() Status = %q, want default active", created.Status)
	}

	if _, err := ex.CreatePair(ctx, p); err == nil {
		t.Fatal("CreatePair() with duplicate id should error")
	}

	list, err := ex.ListPairs(ctx)
	if err != nil {
		t.Fatalf("ListPairs() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListPairs() len = %d, want 1", len(list))
	}

	p.Name = "news-renamed"
	updated, err := ex.UpdatePair(ctx, p)
	if err != nil {
		t.Fatalf("UpdatePair() error = %v", err)
	}
	if updated.Name != "news-renamed" {
		t.Fatalf("UpdatePair() Name = %q, want news-renamed", updated.Name)
	}

	if _, err := ex.UpdatePair(ctx, pairs.Pair{ID: 99}); err == nil {
		t.Fatal("UpdatePair() on unknown pair should error")
	}

	if err := ex.DeletePair(ctx, p.ID); err != nil {
		t.Fatalf("DeletePair() error = %v", err)
	}
	list, _ = ex.ListPairs(ctx)
	if len(list) != 0 {
		t.Fatalf("ListPairs() after delete len = %d, want 0", len(list))
	}
}

func TestSetPausedAndStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex := newTestExecutor(t)

	if err := ex.SetPaused(ctx, true); err != nil {
		t.Fatalf("SetPaused() error = %v", err)
	}

	status, err := ex.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Paused {
		t.Fatal("Status().Paused = false, want true")
	}
	if status.PairCount != 0 {
		t.Fatalf("Status().PairCount = %d, want 0", status.PairCount)
	}
}

func TestWhoamiAndVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex := newTestExecutor(t)

	who, err := ex.Whoami(ctx)
	if err != nil {
		t.Fatalf("Whoami() error = %v", err)
	}
	if who.ID != 42 || who.Username != "relay_bot" {
		t.Fatalf("Whoami() = %+v, want {42 relay_bot}", who)
	}

	ver := ex.Version(ctx)
	if ver.Name == "" || ver.Version == "" {
		t.Fatalf("Version() = %+v, want non-empty fields", ver)
	}
}

func TestSetSelf(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex := newTestExecutor(t)

	ex.SetSelf(7, "new_identity")

	who, err := ex.Whoami(ctx)
	if err != nil {
		t.Fatalf("Whoami() error = %v", err)
	}
	if who.ID != 7 || who.Username != "new_identity" {
		t.Fatalf("Whoami() after SetSelf() = %+v, want {7 new_identity}", who)
	}
}

func TestReloadPairs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ex := newTestExecutor(t)

	if err := ex.ReloadPairs(ctx); err != nil {
		t.Fatalf("ReloadPairs() error = %v", err)
	}
}
