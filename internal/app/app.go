// Package app — верхний уровень сборки и инициализации движка репликации
// сообщений. Здесь связываются конфигурация, сетевой слой (gotd/telegram),
// диспетчер апдейтов, приоритетная очередь и пул воркеров, читающий её на
// стороне Bot API. Отсюда стартует основной цикл и обеспечивается
// корректный shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"tgrelay/internal/adapters/botsendapi"
	"tgrelay/internal/adapters/sourcefeed"
	"tgrelay/internal/domain/controlplane"
	"tgrelay/internal/domain/dispatch"
	"tgrelay/internal/domain/mapping"
	"tgrelay/internal/domain/media"
	"tgrelay/internal/domain/pairs"
	"tgrelay/internal/domain/worker"
	"tgrelay/internal/infra/boltstore"
	"tgrelay/internal/infra/concurrency"
	"tgrelay/internal/infra/config"
	"tgrelay/internal/infra/logger"
	"tgrelay/internal/infra/metrics"
	"tgrelay/internal/infra/ratelimit"
	"tgrelay/internal/infra/telegram/peersmgr"

	"github.com/gotd/td/telegram"
	tgupdates "github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"
)

// peersDBSuffix names the peers cache's own bbolt file, kept separate from
// the main DBPath so peersmgr's bucket layout never collides with pairs,
// mapping and settings.
const peersDBSuffix = ".peers"

// App агрегирует зависимости движка и управляет их связью.
// Отвечает за:
//   - bbolt-хранилища (pairs, mapping, settings, error log),
//   - диспетчер апдейтов и приоритетную очередь,
//   - rate limiter и мониторинг метрик по ботам,
//   - MTProto-клиент (SourceFeed) и пул ботов Bot API (BotSendAPI),
//   - защиту от дублей и сглаживание частых правок,
//   - пул воркеров и административный ControlPlane,
//   - запуск Runner, который оркестрирует жизненный цикл и graceful shutdown.
type App struct {
	db *bbolt.DB

	registry *pairs.Registry
	mappings *mapping.Store
	settings *boltstore.SettingsStore
	errLog   *boltstore.ErrorLog

	queue      *dispatch.PriorityQueue
	dispatcher *dispatch.Dispatcher
	limiter    *ratelimit.Limiter
	monitor    *metrics.Monitor
	botPool    *botsendapi.Pool

	peers     *peersmgr.Service
	dedup     *concurrency.Deduplicator
	debouncer *concurrency.Debouncer

	client *telegram.Client
	updMgr *tgupdates.Manager
	feed   *sourcefeed.Feed

	workerPool *worker.Pool
	executor   *controlplane.CommandExecutor

	runner *Runner

	ctx  context.Context
	stop context.CancelFunc
}

// NewApp создаёт пустой каркас приложения. Фактическая инициализация
// выполняется в Init().
func NewApp() *App {
	return &App{}
}

// Init связывает компоненты приложения и подготавливает их к запуску:
//  1. открывает bbolt и поднимает PairRegistry/MappingStore/SettingsStore/ErrorLog,
//  2. собирает PriorityQueue, Dispatcher и RateLimiter,
//  3. поднимает пул ботов Bot API и MetricsMonitor вокруг него,
//  4. строит MTProto-клиент, peers-кэш, дедупликатор и дебаунсер,
//  5. собирает SourceFeed и регистрирует его обработчики,
//  6. собирает WorkerPool и ControlPlane,
//  7. конструирует Runner.
//
// Возвращает ошибку, если какой-либо этап не удался.
func (a *App) Init(ctx context.Context, stop context.CancelFunc) error {
	logger.Info("tgrelay initializing...")

	a.ctx = ctx
	a.stop = stop

	env := config.Env()

	db, err := boltstore.Open(env.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	a.db = db

	if a.registry, err = pairs.NewRegistry(db); err != nil {
		return fmt.Errorf("init pair registry: %w", err)
	}
	if a.mappings, err = mapping.NewStore(db); err != nil {
		return fmt.Errorf("init mapping store: %w", err)
	}
	if a.settings, err = boltstore.NewSettingsStore(db); err != nil {
		return fmt.Errorf("init settings store: %w", err)
	}
	if a.errLog, err = boltstore.NewErrorLog(db); err != nil {
		return fmt.Errorf("init error log: %w", err)
	}

	a.queue = dispatch.NewPriorityQueue(env.MessageQueueSize)
	a.dispatcher = dispatch.NewDispatcher(a.registry, a.queue)
	a.limiter = ratelimit.New(env.RateLimitMessages, time.Duration(env.RateLimitWindowSec)*time.Second)

	if a.botPool, err = botsendapi.NewPool(env.BotTokens, env.TestDC); err != nil {
		return fmt.Errorf("init bot pool: %w", err)
	}

	botIndexes := make([]int, len(env.BotTokens))
	for i := range botIndexes {
		botIndexes[i] = i
	}
	probe := func(botIndex int) bool { return a.botPool.GetMe(context.Background(), botIndex) }
	a.monitor = metrics.NewMonitor(a.queue, env.MessageQueueSize, probe, a.limiter.Sweep)
	for _, i := range botIndexes {
		a.monitor.RegisterBot(i)
	}

	dispatcher := tg.NewUpdateDispatcher()
	a.client, a.updMgr = sourcefeed.NewClient(&dispatcher)

	if a.peers, err = peersmgr.New(a.client.API(), env.DBPath+peersDBSuffix); err != nil {
		return fmt.Errorf("init peers service: %w", err)
	}

	a.dedup = concurrency.NewDeduplicator(env.DedupWindowSec)
	a.debouncer = concurrency.NewDebouncer(env.DebounceEditMS)

	a.feed = sourcefeed.NewFeed(a.dispatcher, a.peers, a.dedup, a.debouncer)
	a.feed.Register(&dispatcher)

	fetchMedia := func(ctx context.Context, ref any) (media.Descriptor, bool) {
		return sourcefeed.DescribeMedia(ctx, a.client.API(), ref)
	}
	a.workerPool = worker.NewPool(env.MaxWorkers, a.queue, a.registry, a.mappings, a.settings, a.errLog, a.limiter, a.monitor, a.botPool, fetchMedia, nil)

	a.executor = controlplane.NewExecutor(a.registry, a.settings, a.queue, a.monitor, 0, "")

	a.runner = NewRunner(a.ctx, a.stop, a.client, a.peers, a.workerPool, a.dedup, a.debouncer, a.monitor, a.executor, botIndexes)

	return nil
}

// Run делегирует запуск основного цикла Runner'у с уже сконфигурированным
// менеджером обновлений.
func (a *App) Run() error {
	return a.runner.Run(a.updMgr)
}

// Executor exposes the control plane for front doors constructed after Init
// without reaching into App's other internals.
func (a *App) Executor() *controlplane.CommandExecutor {
	return a.executor
}
