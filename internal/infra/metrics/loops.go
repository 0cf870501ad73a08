package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tgrelay/internal/infra/logger"
)

// queueWatchWarnThreshold is the fraction of capacity at which the queue
// watch loop starts warning.
const queueWatchWarnThreshold = 0.8

const (
	queueWatchInterval     = 30 * time.Second
	rateLimitSweepInterval = 60 * time.Second
)

// RunHealthProbe starts the health-probe loop, grounded on the teacher's
// con_manager.go reconnect-ping idiom: a ticker-driven goroutine that exits
// when ctx is canceled. interval is HEALTH_CHECK_INTERVAL seconds.
func (m *Monitor) RunHealthProbe(ctx context.Context, interval time.Duration, botIndexes []int) {
	if m.probe == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, idx := range botIndexes {
				ok := m.probe(idx)
				m.Stats(idx).RecordHealthCheck(ok)
				if !ok {
					logger.Warn("metrics: bot health probe failed", zap.Int("bot_index", idx))
				}
			}
		}
	}
}

// RunQueueWatch starts the queue-depth loop.
func (m *Monitor) RunQueueWatch(ctx context.Context, botIndexes []int) {
	if m.queue == nil {
		return
	}
	ticker := time.NewTicker(queueWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth := m.queue.Size()
			for _, idx := range botIndexes {
				m.Stats(idx).setQueueLoad(depth)
			}
			if m.capacity > 0 && float64(depth) >= queueWatchWarnThreshold*float64(m.capacity) {
				logger.Warn("metrics: queue depth above warn threshold",
					zap.Int("depth", depth), zap.Int("capacity", m.capacity))
			}
		}
	}
}

// RunRateLimitSweep starts the rate-limit sweep loop.
func (m *Monitor) RunRateLimitSweep(ctx context.Context) {
	if m.sweep == nil {
		return
	}
	ticker := time.NewTicker(rateLimitSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}
