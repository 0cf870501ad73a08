package boltstore_test

import (
	"testing"
	"time"

	"tgrelay/internal/infra/boltstore"
)

func TestErrorLogAppendAndRecentOrdering(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	log, err := boltstore.NewErrorLog(db)
	if err != nil {
		t.Fatalf("NewErrorLog() error = %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []string{"flood_wait", "send_failed", "transform_error"} {
		rec := boltstore.ErrorRecord{
			Type:    typ,
			Message: typ + " occurred",
			PairID:  int64(i + 1),
			At:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := log.Append(rec); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	recent, err := log.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent(2) len = %d, want 2", len(recent))
	}
	if recent[0].Type != "transform_error" {
		t.Fatalf("Recent()[0].Type = %q, want transform_error (most recent first)", recent[0].Type)
	}
	if recent[1].Type != "send_failed" {
		t.Fatalf("Recent()[1].Type = %q, want send_failed", recent[1].Type)
	}
}

func TestErrorLogRecentOnEmptyLog(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	log, err := boltstore.NewErrorLog(db)
	if err != nil {
		t.Fatalf("NewErrorLog() error = %v", err)
	}
	recent, err := log.Recent(5)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 0 {
		t.Fatalf("Recent() on empty log = %v, want empty", recent)
	}
}
