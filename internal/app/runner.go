// Package app реализует верхний уровень управления жизненным циклом движка
// репликации. Файл runner.go — точка оркестрации: здесь запускаются сервисы
// в правильном порядке, выполняется авторизация, стартует менеджер
// обновлений, и организуется корректный graceful shutdown.
// Бизнес-назначение: гарантировать стабильный запуск и предсказуемое
// завершение работы так, чтобы доменные сервисы (воркеры, дедупликатор,
// дебаунсер) успели завершить операции, а MTProto-движок оставался жив до
// их полной остановки.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"tgrelay/internal/adapters/sourcefeed"
	"tgrelay/internal/domain/controlplane"
	"tgrelay/internal/domain/worker"
	"tgrelay/internal/infra/concurrency"
	"tgrelay/internal/infra/config"
	"tgrelay/internal/infra/logger"
	"tgrelay/internal/infra/metrics"
	"tgrelay/internal/infra/telegram/connection"
	"tgrelay/internal/infra/telegram/peersmgr"

	"github.com/gotd/td/telegram"
	tgupdates "github.com/gotd/td/telegram/updates"
)

// Runner инкапсулирует сценарий запуска и остановки MTProto-клиента и
// связанных подсистем. Отвечает за:
//   - авторизацию и идентификацию текущего пользователя (self),
//   - линейный запуск сервисов в правильном порядке,
//   - корректное завершение: сначала останавливаются доменные сервисы
//     (воркеры, дедупликатор, дебаунсер, менеджер обновлений), затем
//     гасится MTProto-движок,
//   - передачу идентичности self в ControlPlane.
type Runner struct {
	client     *telegram.Client
	peers      *peersmgr.Service
	workerPool *worker.Pool
	dedup      *concurrency.Deduplicator
	debouncer  *concurrency.Debouncer
	monitor    *metrics.Monitor
	executor   *controlplane.CommandExecutor
	botIndexes []int

	mainCtx    context.Context
	mainCancel context.CancelFunc

	updatesWG     sync.WaitGroup
	updatesCancel context.CancelFunc
}

// NewRunner подготавливает Runner с переданными зависимостями: клиент,
// пул воркеров, утилиты конкуррентности и мониторинг. Возвращает объект,
// готовый к запуску Run().
func NewRunner(
	mainCtx context.Context,
	mainCancel context.CancelFunc,
	client *telegram.Client,
	peers *peersmgr.Service,
	workerPool *worker.Pool,
	dedup *concurrency.Deduplicator,
	debouncer *concurrency.Debouncer,
	monitor *metrics.Monitor,
	executor *controlplane.CommandExecutor,
	botIndexes []int,
) *Runner {
	return &Runner{
		mainCtx:    mainCtx,
		mainCancel: mainCancel,
		client:     client,
		peers:      peers,
		workerPool: workerPool,
		dedup:      dedup,
		debouncer:  debouncer,
		monitor:    monitor,
		executor:   executor,
		botIndexes: botIndexes,
	}
}

// Run — главный цикл движка. Выполняет логин, сборку и запуск узлов,
// стартует updates.Manager и управляет корректным завершением. Блокируется
// до завершения клиентского контекста.
// Важно: используется отдельный контекст для MTProto-движка, чтобы дать
// шанс доменным сервисам корректно завершиться до гашения сетевого уровня.
func (r *Runner) Run(updmgr *tgupdates.Manager) error {
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	var shutdownWG sync.WaitGroup
	shutdownWG.Go(func() {
		<-r.mainCtx.Done()
		logger.Debug("shutdown signal received, stopping runner...")
		r.stopAllServices()
		clientCancel()
	})

	return r.client.Run(clientCtx, func(ctx context.Context) error {
		logger.Info("tgrelay running...")

		selfID, username, err := sourcefeed.Login(ctx, r.client)
		if err != nil {
			return err
		}
		r.executor.SetSelf(selfID, username)

		r.initPeers(ctx)

		if err := r.startAllServices(ctx, updmgr, selfID); err != nil {
			r.stopAllServices()
			return err
		}

		<-ctx.Done()
		shutdownWG.Wait()
		return ctx.Err()
	})
}

// initPeers loads the persisted peer cache and refreshes it from a live
// dialog listing. Failures are logged, not fatal: SourceFeed can still
// resolve peers lazily as updates arrive.
func (r *Runner) initPeers(ctx context.Context) {
	if r.peers == nil {
		return
	}
	if err := r.peers.LoadFromStorage(ctx); err != nil {
		logger.Errorf("failed to load peers from storage: %v", err)
	}
	if err := r.peers.RefreshDialogs(ctx, r.client.API()); err != nil {
		logger.Errorf("failed to refresh dialogs: %v", err)
		return
	}
	logger.Debug("peers warmup complete")
}

func (r *Runner) startAllServices(ctx context.Context, updmgr *tgupdates.Manager, selfID int64) error {
	// connection_manager
	logger.Debug("starting service connection_manager")
	connection.Init(ctx, r.client)
	logger.Debug("service connection_manager started")

	// deduplicator
	logger.Debug("starting service deduplicator")
	r.dedup.Start(ctx)
	logger.Debug("service deduplicator started")

	// debouncer
	logger.Debug("starting service debouncer")
	r.debouncer.Start(ctx)
	logger.Debug("service debouncer started")

	// metrics_monitor
	logger.Debug("starting service metrics_monitor")
	healthCheckInterval := time.Duration(config.Env().HealthCheckInterval) * time.Second
	go r.monitor.RunHealthProbe(ctx, healthCheckInterval, r.botIndexes)
	go r.monitor.RunQueueWatch(ctx, r.botIndexes)
	go r.monitor.RunRateLimitSweep(ctx)
	logger.Debug("service metrics_monitor started")

	// worker_pool
	logger.Debug("starting service worker_pool")
	r.workerPool.Start(ctx)
	logger.Debug("service worker_pool started")

	// updates_manager
	logger.Debug("starting service updates_manager")
	updatesCtx, updatesCancel := context.WithCancel(ctx)
	r.updatesCancel = updatesCancel
	r.updatesWG.Go(func() {
		logger.Debug("updates_manager service: Run started")
		mgrErr := updmgr.Run(updatesCtx, r.client.API(), selfID, tgupdates.AuthOptions{
			Forget:  false,
			OnStart: r.handleUpdatesManagerStart,
		})
		if mgrErr != nil && !errors.Is(mgrErr, context.Canceled) {
			logger.Errorf("updmgr.Run return: %v", mgrErr)
			r.mainCancel()
		}
		logger.Debugf("updates_manager service: Run finished (err=%v)", mgrErr)
	})
	logger.Debug("service updates_manager started")

	return nil
}

func (r *Runner) stopAllServices() {
	// Останавливаем в обратном порядке запуска.

	logger.Debug("stopping service updates_manager")
	if r.updatesCancel != nil {
		r.updatesCancel()
	}
	r.updatesWG.Wait()
	logger.Debug("service updates_manager stopped")

	logger.Debug("stopping service worker_pool")
	r.workerPool.Wait()
	logger.Debug("service worker_pool stopped")

	logger.Debug("stopping service debouncer")
	r.debouncer.Stop()
	logger.Debug("service debouncer stopped")

	logger.Debug("stopping service deduplicator")
	r.dedup.Stop()
	logger.Debug("service deduplicator stopped")

	logger.Debug("stopping service connection_manager")
	connection.Shutdown()
	logger.Debug("service connection_manager stopped")

	if r.peers != nil {
		logger.Debug("stopping service peers_manager")
		if err := r.peers.Close(); err != nil {
			logger.Errorf("failed to stop peers_manager: %v", err)
		}
		logger.Debug("service peers_manager stopped")
	}
}

// handleUpdatesManagerStart вызывается updates.Manager при старте обработки
// апдейтов.
func (r *Runner) handleUpdatesManagerStart(_ context.Context) {
	connection.MarkConnected()
	logger.Debug("updates manager started")
}
