package worker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"tgrelay/internal/domain/dispatch"
	"tgrelay/internal/domain/mapping"
	"tgrelay/internal/domain/media"
	"tgrelay/internal/domain/pairs"
	"tgrelay/internal/domain/transform"
	"tgrelay/internal/infra/boltstore"
	"tgrelay/internal/infra/metrics"
	"tgrelay/internal/infra/ratelimit"
)

type fakeSender struct {
	mu        sync.Mutex
	sent      []string
	nextID    int
	failWith  error
	edited    []int
	deleted   []int
}

func (f *fakeSender) SendMessage(ctx context.Context, botIndex int, destChatID int64, text string, entities []transform.Entity, prepared *media.Prepared) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		err := f.failWith
		f.failWith = nil
		return 0, err
	}
	f.nextID++
	f.sent = append(f.sent, text)
	return f.nextID, nil
}

func (f *fakeSender) EditMessage(ctx context.Context, botIndex int, destChatID int64, destMsgID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, destMsgID)
	return nil
}

func (f *fakeSender) DeleteMessage(ctx context.Context, botIndex int, destChatID int64, destMsgID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, destMsgID)
	return nil
}

func newTestPool(t *testing.T, sender Sender) (*Pool, *pairs.Registry, *mapping.Store, *dispatch.PriorityQueue) {
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
	mappings, err := mapping.NewStore(db)
	if err != nil {
		t.Fatalf("mapping.NewStore() error = %v", err)
	}
	settings, err := boltstore.NewSettingsStore(db)
	if err != nil {
		t.Fatalf("NewSettingsStore() error = %v", err)
	}
	errLog, err := boltstore.NewErrorLog(db)
	if err != nil {
		t.Fatalf("NewErrorLog() error = %v", err)
	}
	limiter := ratelimit.New(1000, time.Minute)
	monitor := metrics.NewMonitor(nil, 0, nil, nil)

	queue := dispatch.NewPriorityQueue(100)
	pool := NewPool(2, queue, registry, mappings, settings, errLog, limiter, monitor, sender, nil, nil)
	return pool, registry, mappings, queue
}

func TestPoolDeliversNewMessageAndSavesMapping(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	pool, registry, mappings, queue := newTestPool(t, sender)

	pair := pairs.Pair{ID: 1, SourceChatID: 10, DestinationChatID: 20, Status: pairs.StatusActive, Filter: pairs.DefaultFilterConfig()}
	if err := registry.Put(pair); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	queue.Put(dispatch.WorkItem{
		Event:    dispatch.SourceEvent{Kind: dispatch.KindNew, SourceChatID: 10, SourceMsgID: 7, Text: "hello world"},
		PairID:   1,
		Priority: dispatch.PriorityNormal,
	})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()
	pool.Wait()

	if destID, ok := mappings.Lookup(1, 7); !ok || destID != 1 {
		t.Fatalf("Lookup(1,7) = (%d, %v), want (1, true)", destID, ok)
	}
	got, _ := registry.Get(1)
	if got.Counters.MessagesCopied != 1 {
		t.Fatalf("MessagesCopied = %d, want 1", got.Counters.MessagesCopied)
	}
}

func TestPoolRespectsSystemPaused(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	pool, registry, _, queue := newTestPool(t, sender)

	pair := pairs.Pair{ID: 1, SourceChatID: 10, DestinationChatID: 20, Status: pairs.StatusActive, Filter: pairs.DefaultFilterConfig()}
	if err := registry.Put(pair); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := pool.settings.SetPaused(true); err != nil {
		t.Fatalf("SetPaused() error = %v", err)
	}

	queue.Put(dispatch.WorkItem{
		Event:  dispatch.SourceEvent{Kind: dispatch.KindNew, SourceChatID: 10, SourceMsgID: 1, Text: "paused test"},
		PairID: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	pool.Start(ctx)
	pool.Wait()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 0 {
		t.Fatalf("sent %d messages while system_paused, want 0", len(sender.sent))
	}
}

func TestPoolEditWithNoMappingIsNoop(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	pool, registry, _, queue := newTestPool(t, sender)

	pair := pairs.Pair{ID: 1, SourceChatID: 10, DestinationChatID: 20, Status: pairs.StatusActive,
		Filter: pairs.FilterConfig{SyncEdits: true}}
	if err := registry.Put(pair); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	queue.Put(dispatch.WorkItem{
		Event:  dispatch.SourceEvent{Kind: dispatch.KindEdit, SourceChatID: 10, SourceMsgID: 99, Text: "edited"},
		PairID: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	pool.Start(ctx)
	pool.Wait()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.edited) != 0 {
		t.Fatalf("edited %d messages with no prior mapping, want 0", len(sender.edited))
	}
}

func TestPoolDeleteUsesMappingAndRemovesIt(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	pool, registry, mappings, queue := newTestPool(t, sender)

	pair := pairs.Pair{ID: 1, SourceChatID: 10, DestinationChatID: 20, Status: pairs.StatusActive,
		Filter: pairs.FilterConfig{SyncDeletes: true}}
	if err := registry.Put(pair); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := mappings.Save(1, 55, 555); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	queue.Put(dispatch.WorkItem{
		Event:  dispatch.SourceEvent{Kind: dispatch.KindDelete, SourceChatID: 10, DeletedMsgIDs: []int{55}},
		PairID: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	pool.Start(ctx)
	pool.Wait()

	sender.mu.Lock()
	deletedCount := len(sender.deleted)
	sender.mu.Unlock()
	if deletedCount != 1 {
		t.Fatalf("deleted %d messages, want 1", deletedCount)
	}
	if _, ok := mappings.Lookup(1, 55); ok {
		t.Fatal("mapping for (1, 55) should be gone after delete")
	}
}
