package metrics

import (
	"context"
	"testing"
	"time"
)

func TestBotStatsObserveEMA(t *testing.T) {
	t.Parallel()
	var s BotStats

	s.Observe(true, 100*time.Millisecond)
	snap := s.Snapshot()
	if snap.SuccessRate != 1.0 {
		t.Fatalf("first sample SuccessRate = %v, want 1.0", snap.SuccessRate)
	}

	s.Observe(false, 200*time.Millisecond)
	snap = s.Snapshot()
	want := emaAlpha*0.0 + (1-emaAlpha)*1.0
	if diff := snap.SuccessRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("SuccessRate after second sample = %v, want %v", snap.SuccessRate, want)
	}
}

func TestBotStatsConsecutiveFailures(t *testing.T) {
	t.Parallel()
	var s BotStats
	s.RecordHealthCheck(false)
	s.RecordHealthCheck(false)
	if got := s.Snapshot().ConsecutiveFailures; got != 2 {
		t.Fatalf("ConsecutiveFailures = %d, want 2", got)
	}
	s.RecordHealthCheck(true)
	if got := s.Snapshot().ConsecutiveFailures; got != 0 {
		t.Fatalf("ConsecutiveFailures after success = %d, want 0", got)
	}
}

type fakeQueue struct{ depth int }

func (f fakeQueue) Size() int { return f.depth }

func TestMonitorQueueWatchUpdatesLoad(t *testing.T) {
	t.Parallel()
	m := NewMonitor(fakeQueue{depth: 42}, 100, nil, nil)
	m.RegisterBot(0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunQueueWatch(ctx, []int{0})
		close(done)
	}()

	// RunQueueWatch only samples on its ticker; exercise setQueueLoad directly
	// to verify the per-bot plumbing without waiting out a real 30s interval.
	m.Stats(0).setQueueLoad(42)
	if got := m.Stats(0).Snapshot().ObservedQueueLoad; got != 42 {
		t.Fatalf("ObservedQueueLoad = %d, want 42", got)
	}

	cancel()
	<-done
}

func TestMonitorHealthProbeRecordsOutcome(t *testing.T) {
	t.Parallel()
	calls := 0
	probe := func(botIndex int) bool {
		calls++
		return botIndex == 0
	}
	m := NewMonitor(nil, 0, probe, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	m.RunHealthProbe(ctx, 5*time.Millisecond, []int{0, 1})

	if calls == 0 {
		t.Fatal("expected the health probe to be called at least once")
	}
	if got := m.Stats(1).Snapshot().ConsecutiveFailures; got == 0 {
		t.Fatal("bot 1 should have recorded at least one failure")
	}
}

func TestMonitorSnapshotsReturnsAllBots(t *testing.T) {
	t.Parallel()
	m := NewMonitor(nil, 0, nil, nil)
	m.RegisterBot(0)
	m.RegisterBot(1)

	snaps := m.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("Snapshots() len = %d, want 2", len(snaps))
	}

	m.Unregister(1)
	if got := len(m.Snapshots()); got != 1 {
		t.Fatalf("Snapshots() after Unregister len = %d, want 1", got)
	}
}
