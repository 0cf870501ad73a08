// Package controlplane implements ControlPlane: the thin administrative
// surface over PairRegistry and MetricsMonitor that CLI/web front doors
// drive, grounded on the teacher's internal/domain/commands.Executor
// interface generalized from queue/dialog administration to pair CRUD and
// dispatch-engine status. Restart/backup/cleanup/logs commands from the
// teacher's command surface are intentionally left unimplemented, matching
// the original source (see DESIGN.md).
package controlplane

import (
	"context"
	"fmt"
	"sync"

	"tgrelay/internal/domain/dispatch"
	"tgrelay/internal/domain/pairs"
	"tgrelay/internal/infra/boltstore"
	"tgrelay/internal/infra/metrics"
	"tgrelay/internal/support/version"
)

// Executor is ControlPlane's single implementation, shared by every front
// door (CLI, web, or any future admin transport).
type Executor interface {
	Status(ctx context.Context) (StatusResult, error)
	ListPairs(ctx context.Context) ([]pairs.Pair, error)
	CreatePair(ctx context.Context, p pairs.Pair) (pairs.Pair, error)
	UpdatePair(ctx context.Context, p pairs.Pair) (pairs.Pair, error)
	DeletePair(ctx context.Context, id int64) error
	SetPaused(ctx context.Context, paused bool) error
	ReloadPairs(ctx context.Context) error
	Whoami(ctx context.Context) (WhoamiResult, error)
	Version(ctx context.Context) VersionResult
}

// StatusResult reports the dispatch engine's live state.
type StatusResult struct {
	QueueSize    int
	QueueDropped int64
	Paused       bool
	PairCount    int
	BotStats     map[int]metrics.Snapshot
}

// WhoamiResult identifies the MTProto session driving SourceFeed.
type WhoamiResult struct {
	ID       int64
	Username string
}

// VersionResult is the control plane's build-identity report.
type VersionResult struct {
	Name    string
	Version string
}

type selfInfo struct {
	id       int64
	username string
}

// CommandExecutor is the concrete Executor, grounded on the teacher's
// CommandExecutor struct shape (one struct holding every collaborator the
// command surface needs).
type CommandExecutor struct {
	registry *pairs.Registry
	settings *boltstore.SettingsStore
	queue    *dispatch.PriorityQueue
	monitor  *metrics.Monitor

	selfMu sync.RWMutex
	self   selfInfo
}

func NewExecutor(registry *pairs.Registry, settings *boltstore.SettingsStore, queue *dispatch.PriorityQueue, monitor *metrics.Monitor, selfID int64, selfUsername string) *CommandExecutor {
	return &CommandExecutor{
		registry: registry,
		settings: settings,
		queue:    queue,
		monitor:  monitor,
		self:     selfInfo{id: selfID, username: selfUsername},
	}
}

var _ Executor = (*CommandExecutor)(nil)

func (e *CommandExecutor) Status(_ context.Context) (StatusResult, error) {
	return StatusResult{
		QueueSize:    e.queue.Size(),
		QueueDropped: e.queue.Dropped(),
		Paused:       e.settings.Paused(),
		PairCount:    len(e.registry.All()),
		BotStats:     e.monitor.Snapshots(),
	}, nil
}

func (e *CommandExecutor) ListPairs(_ context.Context) ([]pairs.Pair, error) {
	return e.registry.All(), nil
}

func (e *CommandExecutor) CreatePair(_ context.Context, p pairs.Pair) (pairs.Pair, error) {
	if p.ID == 0 {
		return pairs.Pair{}, fmt.Errorf("controlplane: pair id is required")
	}
	if _, exists := e.registry.Get(p.ID); exists {
		return pairs.Pair{}, fmt.Errorf("controlplane: pair %d already exists", p.ID)
	}
	if p.Status == "" {
		p.Status = pairs.StatusActive
	}
	if err := e.registry.Put(p); err != nil {
		return pairs.Pair{}, fmt.Errorf("controlplane: create pair: %w", err)
	}
	out, _ := e.registry.Get(p.ID)
	return out, nil
}

func (e *CommandExecutor) UpdatePair(_ context.Context, p pairs.Pair) (pairs.Pair, error) {
	if _, exists := e.registry.Get(p.ID); !exists {
		return pairs.Pair{}, fmt.Errorf("controlplane: pair %d does not exist", p.ID)
	}
	if err := e.registry.Put(p); err != nil {
		return pairs.Pair{}, fmt.Errorf("controlplane: update pair: %w", err)
	}
	out, _ := e.registry.Get(p.ID)
	return out, nil
}

func (e *CommandExecutor) DeletePair(_ context.Context, id int64) error {
	if err := e.registry.Delete(id); err != nil {
		return fmt.Errorf("controlplane: delete pair: %w", err)
	}
	return nil
}

func (e *CommandExecutor) SetPaused(_ context.Context, paused bool) error {
	return e.settings.SetPaused(paused)
}

func (e *CommandExecutor) ReloadPairs(_ context.Context) error {
	return e.registry.Reload()
}

func (e *CommandExecutor) Whoami(_ context.Context) (WhoamiResult, error) {
	e.selfMu.RLock()
	defer e.selfMu.RUnlock()
	return WhoamiResult{ID: e.self.id, Username: e.self.username}, nil
}

// SetSelf records the logged-in MTProto account's identity once SourceFeed
// completes auth. NewExecutor's selfID/selfUsername are only a placeholder
// until this is called.
func (e *CommandExecutor) SetSelf(id int64, username string) {
	e.selfMu.Lock()
	defer e.selfMu.Unlock()
	e.self = selfInfo{id: id, username: username}
}

func (e *CommandExecutor) Version(_ context.Context) VersionResult {
	return VersionResult{Name: version.Name, Version: version.Version}
}
