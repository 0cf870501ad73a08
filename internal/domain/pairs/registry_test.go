package pairs_test

import (
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"tgrelay/internal/domain/pairs"
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

func TestRegistryPutGetAndSourceIndex(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	reg, err := pairs.NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	p1 := pairs.Pair{ID: 1, Name: "news-mirror", SourceChatID: 100, DestinationChatID: 200, Status: pairs.StatusActive, Filter: pairs.DefaultFilterConfig()}
	p2 := pairs.Pair{ID: 2, Name: "news-mirror-2", SourceChatID: 100, DestinationChatID: 201, Status: pairs.StatusActive, Filter: pairs.DefaultFilterConfig()}

	if err := reg.Put(p1); err != nil {
		t.Fatalf("Put(p1) error = %v", err)
	}
	if err := reg.Put(p2); err != nil {
		t.Fatalf("Put(p2) error = %v", err)
	}

	got, ok := reg.Get(1)
	if !ok {
		t.Fatal("Get(1) not found")
	}
	if got.Name != "news-mirror" {
		t.Fatalf("Get(1).Name = %q, want news-mirror", got.Name)
	}

	bySource := reg.PairsForSource(100)
	if len(bySource) != 2 {
		t.Fatalf("PairsForSource(100) len = %d, want 2", len(bySource))
	}

	// A fresh registry reading the same db should see an identical index.
	reg2, err := pairs.NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() (reload) error = %v", err)
	}
	if len(reg2.All()) != 2 {
		t.Fatalf("reloaded registry has %d pairs, want 2", len(reg2.All()))
	}
}

func TestRegistryDeleteRemovesFromBothIndexes(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	reg, err := pairs.NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	p := pairs.Pair{ID: 7, SourceChatID: 300, DestinationChatID: 400, Status: pairs.StatusActive}
	if err := reg.Put(p); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := reg.Delete(7); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := reg.Get(7); ok {
		t.Fatal("Get(7) should not be found after Delete")
	}
	if got := reg.PairsForSource(300); len(got) != 0 {
		t.Fatalf("PairsForSource(300) after delete = %v, want empty", got)
	}
}

func TestRegistryUpdateCounters(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	reg, err := pairs.NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	p := pairs.Pair{ID: 9, SourceChatID: 1, DestinationChatID: 2, Status: pairs.StatusActive}
	if err := reg.Put(p); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := reg.UpdateCounters(9, func(c *pairs.Counters) {
		c.MessagesCopied++
	}); err != nil {
		t.Fatalf("UpdateCounters() error = %v", err)
	}

	got, ok := reg.Get(9)
	if !ok {
		t.Fatal("Get(9) not found")
	}
	if got.Counters.MessagesCopied != 1 {
		t.Fatalf("MessagesCopied = %d, want 1", got.Counters.MessagesCopied)
	}
}

func TestRegistryRejectsInvalidFilterRule(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	reg, err := pairs.NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	p := pairs.Pair{
		ID: 1, SourceChatID: 1, DestinationChatID: 2, Status: pairs.StatusActive,
		Filter: pairs.FilterConfig{Rule: &pairs.FilterRule{Deny: &pairs.RuleNode{Type: "kw", Value: ""}}},
	}
	if err := reg.Put(p); err == nil {
		t.Fatal("Put() with an empty keyword should fail validation")
	}
}
