package dispatch_test

import (
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"tgrelay/internal/domain/dispatch"
	"tgrelay/internal/domain/pairs"
)

func newTestRegistry(t *testing.T) *pairs.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bbolt")
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("bbolt.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	reg, err := pairs.NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func TestDispatcherEnqueuesForEachActiveMatchingPair(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)

	active := pairs.Pair{ID: 1, SourceChatID: 100, DestinationChatID: 200, Status: pairs.StatusActive, Filter: pairs.DefaultFilterConfig()}
	paused := pairs.Pair{ID: 2, SourceChatID: 100, DestinationChatID: 201, Status: pairs.StatusPaused, Filter: pairs.DefaultFilterConfig()}
	other := pairs.Pair{ID: 3, SourceChatID: 999, DestinationChatID: 202, Status: pairs.StatusActive, Filter: pairs.DefaultFilterConfig()}
	for _, p := range []pairs.Pair{active, paused, other} {
		if err := reg.Put(p); err != nil {
			t.Fatalf("Put(%d) error = %v", p.ID, err)
		}
	}

	q := dispatch.NewPriorityQueue(10)
	d := dispatch.NewDispatcher(reg, q)

	d.Dispatch(dispatch.SourceEvent{Kind: dispatch.KindNew, SourceChatID: 100, SourceMsgID: 5})

	if got := q.Size(); got != 1 {
		t.Fatalf("queue size = %d, want 1 (only the active pair should get a work item)", got)
	}
	item, ok := q.Get(time.Second)
	if !ok {
		t.Fatal("Get() timed out")
	}
	if item.PairID != 1 {
		t.Fatalf("WorkItem.PairID = %d, want 1", item.PairID)
	}
}

func TestDispatcherSkipsEditWhenSyncEditsDisabled(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)

	p := pairs.Pair{ID: 1, SourceChatID: 100, DestinationChatID: 200, Status: pairs.StatusActive,
		Filter: pairs.FilterConfig{SyncEdits: false}}
	if err := reg.Put(p); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	q := dispatch.NewPriorityQueue(10)
	d := dispatch.NewDispatcher(reg, q)
	d.Dispatch(dispatch.SourceEvent{Kind: dispatch.KindEdit, SourceChatID: 100, SourceMsgID: 5})

	if got := q.Size(); got != 0 {
		t.Fatalf("queue size = %d, want 0 (sync_edits disabled)", got)
	}
}

func TestDispatcherPriorityRules(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	p := pairs.Pair{ID: 1, SourceChatID: 100, DestinationChatID: 200, Status: pairs.StatusActive,
		Filter: pairs.FilterConfig{SyncEdits: true, SyncDeletes: true, PreserveReplies: true}}
	if err := reg.Put(p); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	cases := []struct {
		name string
		ev   dispatch.SourceEvent
		want dispatch.Priority
	}{
		{name: "plainNewMessage", ev: dispatch.SourceEvent{Kind: dispatch.KindNew, SourceChatID: 100}, want: dispatch.PriorityNormal},
		{name: "replyWithPreserveReplies", ev: dispatch.SourceEvent{Kind: dispatch.KindNew, SourceChatID: 100, IsReply: true}, want: dispatch.PriorityHigh},
		{name: "mediaMessage", ev: dispatch.SourceEvent{Kind: dispatch.KindNew, SourceChatID: 100, HasMedia: true}, want: dispatch.PriorityHigh},
		{name: "edit", ev: dispatch.SourceEvent{Kind: dispatch.KindEdit, SourceChatID: 100}, want: dispatch.PriorityHigh},
		{name: "delete", ev: dispatch.SourceEvent{Kind: dispatch.KindDelete, SourceChatID: 100}, want: dispatch.PriorityNormal},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			q := dispatch.NewPriorityQueue(10)
			d := dispatch.NewDispatcher(reg, q)
			d.Dispatch(tc.ev)
			item, ok := q.Get(time.Second)
			if !ok {
				t.Fatal("Get() timed out")
			}
			if item.Priority != tc.want {
				t.Fatalf("Priority = %v, want %v", item.Priority, tc.want)
			}
		})
	}
}

func TestDispatcherNoMatchingPairsIsNoop(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	q := dispatch.NewPriorityQueue(10)
	d := dispatch.NewDispatcher(reg, q)
	d.Dispatch(dispatch.SourceEvent{Kind: dispatch.KindNew, SourceChatID: 42})
	if got := q.Size(); got != 0 {
		t.Fatalf("queue size = %d, want 0", got)
	}
}
