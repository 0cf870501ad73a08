// Package worker implements WorkerPool: the fixed-size pool of goroutines
// that drain the PriorityQueue and drive ContentTransformer, MediaPipeline,
// RateLimiter and BotSendAPI to actually deliver a copy.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"tgrelay/internal/domain/dispatch"
	"tgrelay/internal/domain/mapping"
	"tgrelay/internal/domain/media"
	"tgrelay/internal/domain/pairs"
	"tgrelay/internal/domain/transform"
	"tgrelay/internal/infra/boltstore"
	"tgrelay/internal/infra/logger"
	"tgrelay/internal/infra/metrics"
	"tgrelay/internal/infra/ratelimit"
)

const dequeueTimeout = time.Second
const pausedRetrySleep = 5 * time.Second

// Sender is BotSendAPI's view from the worker pool: send a transformed
// message (with optional media) and report the resulting destination
// message id, or edit/delete an already-copied one.
type Sender interface {
	SendMessage(ctx context.Context, botIndex int, destChatID int64, text string, entities []transform.Entity, prepared *media.Prepared) (destMsgID int, err error)
	EditMessage(ctx context.Context, botIndex int, destChatID int64, destMsgID int, text string) error
	DeleteMessage(ctx context.Context, botIndex int, destChatID int64, destMsgID int) error
}

// MediaFetcher resolves a WorkItem's opaque media reference into a
// media.Descriptor. Supplied by the SourceFeed adapter since only it knows
// how to turn a gotd tg.* media union into bytes.
type MediaFetcher func(ctx context.Context, ref any) (media.Descriptor, bool)

// Pool is the fixed pool of worker goroutines described for WorkerPool.
type Pool struct {
	queue    *dispatch.PriorityQueue
	registry *pairs.Registry
	mappings *mapping.Store
	settings *boltstore.SettingsStore
	errLog   *boltstore.ErrorLog
	limiter  *ratelimit.Limiter
	monitor  *metrics.Monitor
	sender   Sender
	fetchMedia MediaFetcher
	dedup    media.DedupPredicate

	numWorkers int
	wg         sync.WaitGroup
}

func NewPool(
	numWorkers int,
	queue *dispatch.PriorityQueue,
	registry *pairs.Registry,
	mappings *mapping.Store,
	settings *boltstore.SettingsStore,
	errLog *boltstore.ErrorLog,
	limiter *ratelimit.Limiter,
	monitor *metrics.Monitor,
	sender Sender,
	fetchMedia MediaFetcher,
	dedup media.DedupPredicate,
) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		queue:      queue,
		registry:   registry,
		mappings:   mappings,
		settings:   settings,
		errLog:     errLog,
		limiter:    limiter,
		monitor:    monitor,
		sender:     sender,
		fetchMedia: fetchMedia,
		dedup:      dedup,
	}
}

// Start launches numWorkers goroutines, each running workerLoop until ctx is
// canceled. Call Wait afterward to block until they have all exited.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workerLoop(ctx, id)
		}(i)
	}
}

func (p *Pool) Wait() { p.wg.Wait() }

// workerLoop implements the seven-step cycle from the spec: dequeue with
// timeout, pause check, bot resolution, rate-limit admission, transform +
// send, success bookkeeping, failure classification.
func (p *Pool) workerLoop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		item, ok := p.queue.Get(dequeueTimeout)
		if !ok {
			continue
		}

		if p.settings.Paused() {
			p.queue.Put(item)
			sleepOrDone(ctx, pausedRetrySleep)
			continue
		}

		botIndex := item.BotIndex
		if botIndex < 0 {
			botIndex = 0
		}

		if !p.limiter.Admit(botIndex) {
			p.requeueWithBackoff(item)
			continue
		}

		p.process(ctx, item, botIndex)
	}
}

func (p *Pool) process(ctx context.Context, item dispatch.WorkItem, botIndex int) {
	start := time.Now()
	pair, ok := p.registry.Get(item.PairID)
	if !ok {
		return // pair was deleted between enqueue and processing
	}

	err := p.deliver(ctx, item, pair, botIndex)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		p.onSuccess(pair.ID, botIndex, elapsed)
	case isFloodWait(err):
		p.handleFloodWait(item, botIndex, err)
	case isRetryable(err):
		p.handleRetryable(item, pair.ID, botIndex, err)
	default:
		p.onTerminalFailure(item, pair.ID, botIndex, err)
	}
}

func (p *Pool) deliver(ctx context.Context, item dispatch.WorkItem, pair pairs.Pair, botIndex int) error {
	switch item.Event.Kind {
	case dispatch.KindDelete:
		return p.deliverDelete(ctx, item, pair, botIndex)
	case dispatch.KindEdit:
		return p.deliverEdit(ctx, item, pair, botIndex)
	default:
		return p.deliverNew(ctx, item, pair, botIndex)
	}
}

func (p *Pool) deliverNew(ctx context.Context, item dispatch.WorkItem, pair pairs.Pair, botIndex int) error {
	result, ok := transform.Transform(item.Event.Text, item.Event.Entities, pair.Filter)
	if !ok {
		_ = p.registry.UpdateCounters(pair.ID, func(c *pairs.Counters) { c.MessagesFiltered++ })
		return nil
	}

	var prepared *media.Prepared
	if item.Event.HasMedia && item.Event.MediaRef != nil && p.fetchMedia != nil {
		descriptor, found := p.fetchMedia(ctx, item.Event.MediaRef)
		if found {
			out, decision, err := media.Run(ctx, descriptor, pair.Filter, p.dedup)
			if err != nil {
				return &NetworkError{Err: err}
			}
			switch decision {
			case media.DecisionTypeNotAllowed:
				_ = p.registry.UpdateCounters(pair.ID, func(c *pairs.Counters) { c.MessagesFiltered++ })
				return nil
			case media.DecisionDuplicateBlocked:
				_ = p.registry.UpdateCounters(pair.ID, func(c *pairs.Counters) { c.ImagesBlocked++ })
				return nil
			}
			prepared = &out
		}
	}

	destMsgID, err := p.sender.SendMessage(ctx, botIndex, pair.DestinationChatID, result.Text, result.Entities, prepared)
	if err != nil {
		if bad, ok := err.(*BadRequestError); ok {
			destMsgID, err = p.sender.SendMessage(ctx, botIndex, pair.DestinationChatID, result.Text, nil, nil)
			if err != nil {
				return bad
			}
		} else {
			return err
		}
	}

	if err := p.mappings.Save(pair.ID, item.Event.SourceMsgID, destMsgID); err != nil {
		logger.Warn("worker: failed to persist mapping", zap.Int64("pair_id", pair.ID), zap.Error(err))
	}
	_ = p.registry.UpdateCounters(pair.ID, func(c *pairs.Counters) {
		c.MessagesCopied++
		if item.Event.IsReply && pair.Filter.PreserveReplies {
			c.RepliesPreserved++
		}
		c.LastActivity = time.Now()
	})
	return nil
}

func (p *Pool) deliverEdit(ctx context.Context, item dispatch.WorkItem, pair pairs.Pair, botIndex int) error {
	destMsgID, ok := p.mappings.Lookup(pair.ID, item.Event.SourceMsgID)
	if !ok {
		return nil // no prior copy to edit: silently acknowledged, not an error
	}
	result, ok := transform.Transform(item.Event.Text, item.Event.Entities, pair.Filter)
	if !ok {
		return nil
	}
	err := p.sender.EditMessage(ctx, botIndex, pair.DestinationChatID, destMsgID, result.Text)
	if err != nil {
		var notModified *NotModifiedError
		if errors.As(err, &notModified) {
			err = nil
		} else {
			return err
		}
	}
	_ = p.registry.UpdateCounters(pair.ID, func(c *pairs.Counters) {
		c.EditsSynced++
		c.LastActivity = time.Now()
	})
	return nil
}

func (p *Pool) deliverDelete(ctx context.Context, item dispatch.WorkItem, pair pairs.Pair, botIndex int) error {
	for _, sourceMsgID := range item.Event.DeletedMsgIDs {
		destMsgID, ok := p.mappings.Lookup(pair.ID, sourceMsgID)
		if !ok {
			continue
		}
		if err := p.sender.DeleteMessage(ctx, botIndex, pair.DestinationChatID, destMsgID); err != nil {
			var notFound *NotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
		}
		_ = p.mappings.Delete(pair.ID, sourceMsgID)
	}
	_ = p.registry.UpdateCounters(pair.ID, func(c *pairs.Counters) {
		c.DeletesSynced++
		c.LastActivity = time.Now()
	})
	return nil
}

func (p *Pool) onSuccess(pairID int64, botIndex int, elapsed time.Duration) {
	p.monitor.Stats(botIndex).Observe(true, elapsed)
}

func (p *Pool) handleFloodWait(item dispatch.WorkItem, botIndex int, err error) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		p.limiter.SetFloodWait(botIndex, time.Duration(fw.RetrySeconds)*time.Second)
	}
	p.queue.Put(item) // not counted as failure, per the error taxonomy
}

func (p *Pool) handleRetryable(item dispatch.WorkItem, pairID int64, botIndex int, err error) {
	if item.RetryCount >= dispatch.MaxRetries {
		p.onTerminalFailure(item, pairID, botIndex, err)
		return
	}
	item.RetryCount++
	go func(it dispatch.WorkItem) {
		backoff := time.Duration(1<<uint(it.RetryCount)) * time.Second
		time.Sleep(backoff)
		p.queue.Put(it)
	}(item)
}

func (p *Pool) requeueWithBackoff(item dispatch.WorkItem) {
	if item.RetryCount >= dispatch.MaxRetries {
		p.queue.Put(item) // rate-limit denial never drops an item, only backs off
		return
	}
	item.RetryCount++
	go func(it dispatch.WorkItem) {
		backoff := time.Duration(1<<uint(it.RetryCount)) * time.Second
		time.Sleep(backoff)
		p.queue.Put(it)
	}(item)
}

func (p *Pool) onTerminalFailure(item dispatch.WorkItem, pairID int64, botIndex int, err error) {
	p.monitor.Stats(botIndex).Observe(false, 0)
	_ = p.registry.UpdateCounters(pairID, func(c *pairs.Counters) { c.Errors++ })
	logger.Error("worker: terminal failure delivering work item",
		zap.Int64("pair_id", pairID), zap.Int("bot_index", botIndex), zap.Error(err))
	_ = p.errLog.Append(boltstore.ErrorRecord{
		Type:     errorKind(err),
		Message:  err.Error(),
		PairID:   pairID,
		BotIndex: botIndex,
		At:       time.Now(),
	})
}

func errorKind(err error) string {
	switch {
	case isForbidden(err):
		return "forbidden"
	case isBadRequest(err):
		return "bad_request"
	default:
		return "unknown"
	}
}

func isFloodWait(err error) bool {
	var fw *FloodWaitError
	return errors.As(err, &fw)
}

func isForbidden(err error) bool {
	var f *ForbiddenError
	return errors.As(err, &f)
}

func isBadRequest(err error) bool {
	var b *BadRequestError
	return errors.As(err, &b)
}

func isRetryable(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
