package dispatch

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tgrelay/internal/domain/pairs"
	"tgrelay/internal/infra/logger"
)

// Dispatcher ingests SourceFeed events, resolves them against the pair
// registry, and enqueues one WorkItem per matching pair. Grounded on the
// teacher's updates.Handlers.OnNewMessage (event -> filter -> enqueue shape)
// and the original source's _handle_new_message/_get_message_priority/
// _queue_message trio for the priority and overflow rules.
type Dispatcher struct {
	registry *pairs.Registry
	queue    *PriorityQueue

	lastDropped atomic.Int64
}

func NewDispatcher(registry *pairs.Registry, queue *PriorityQueue) *Dispatcher {
	return &Dispatcher{registry: registry, queue: queue}
}

// Dispatch resolves ev against every pair whose source matches and enqueues
// a WorkItem for each one that currently wants this kind of event. It never
// blocks on downstream consumers: PriorityQueue.Put is itself non-blocking
// (overflow drops the oldest item rather than stalling the caller).
func (d *Dispatcher) Dispatch(ev SourceEvent) {
	candidates := d.registry.PairsForSource(ev.SourceChatID)
	if len(candidates) == 0 {
		return
	}

	for _, p := range candidates {
		if !p.Active() {
			continue
		}
		switch ev.Kind {
		case KindEdit:
			if !p.Filter.SyncEdits {
				continue
			}
		case KindDelete:
			if !p.Filter.SyncDeletes {
				continue
			}
		}

		item := WorkItem{
			Event:      ev,
			PairID:     p.ID,
			BotIndex:   p.BotIndex,
			Priority:   priorityFor(ev, p),
			EnqueuedAt: time.Now(),
		}

		d.queue.Put(item)
		if dropped := d.queue.Dropped(); dropped > d.lastDropped.Swap(dropped) {
			logger.Warn("dispatch: queue overflow, dropped oldest backlog item",
				zap.Int64("total_dropped", dropped),
				zap.Int("queue_size", d.queue.Size()),
			)
		}
	}
}

// priorityFor implements the priority rule table: HIGH for a reply (when the
// pair preserves replies) or for media; edits default to HIGH; deletes to
// NORMAL; everything else is NORMAL.
func priorityFor(ev SourceEvent, p pairs.Pair) Priority {
	switch ev.Kind {
	case KindEdit:
		return PriorityHigh
	case KindDelete:
		return PriorityNormal
	}
	if (ev.IsReply && p.Filter.PreserveReplies) || ev.HasMedia {
		return PriorityHigh
	}
	return PriorityNormal
}
