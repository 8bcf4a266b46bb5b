package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/conductor"
	"github.com/ternarybob/ferrum/internal/execcmd"
	"github.com/ternarybob/ferrum/internal/handlers"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/queue"
	"github.com/ternarybob/ferrum/internal/services/allocator"
	"github.com/ternarybob/ferrum/internal/services/events"
	"github.com/ternarybob/ferrum/internal/services/powersync"
	badgerstorage "github.com/ternarybob/ferrum/internal/storage/badger"
	"github.com/timshannon/badgerhold/v4"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	EventService interfaces.EventService
	QueueManager interfaces.QueueManager

	Conductor        *conductor.Conductor
	AllocatorService *allocator.Service
	PowerSyncService *powersync.Service

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	NodeHandler       *handlers.NodeHandler
	PortHandler       *handlers.PortHandler
	AllocationHandler *handlers.AllocationHandler
	TaskHandler       *handlers.TaskHandler
	DeployHandler     *handlers.DeployHandler
	StatusHandler     *handlers.StatusHandler
	KVHandler         *handlers.KVHandler
	WSHandler         *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("queue_name", cfg.Queue.QueueName).
		Int("concurrency", cfg.Queue.Concurrency).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badgerstorage.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)

	// Queue manager shares the storage manager's Badger instance.
	// StorageManager.DB() returns *badgerhold.Store, we need to extract the underlying *badger.DB
	badgerStore, ok := a.StorageManager.DB().(*badgerhold.Store)
	if !ok {
		return fmt.Errorf("storage manager is not backed by BadgerDB (got %T)", a.StorageManager.DB())
	}

	queueMgr, err := queue.NewManager(
		badgerStore.Badger(),
		parseDuration(a.Config.Queue.VisibilityTimeout),
		a.Config.Queue.MaxReceive,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize queue manager: %w", err)
	}
	a.QueueManager = queueMgr
	a.Logger.Debug().Str("queue_name", a.Config.Queue.QueueName).Msg("Queue manager initialized")

	a.Conductor = conductor.New(a.Config, a.StorageManager, a.QueueManager,
		a.EventService, execcmd.NewExecutor())
	a.Logger.Debug().Str("host", a.Conductor.Host()).Msg("Conductor initialized")

	a.AllocatorService = allocator.NewService(a.StorageManager, a.EventService)
	a.PowerSyncService = powersync.NewService(a.Conductor, a.Config)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.StorageManager)
	a.NodeHandler = handlers.NewNodeHandler(a.StorageManager, a.Conductor)
	a.PortHandler = handlers.NewPortHandler(a.StorageManager)
	a.AllocationHandler = handlers.NewAllocationHandler(a.StorageManager, a.AllocatorService)
	a.TaskHandler = handlers.NewTaskHandler(a.StorageManager)
	a.DeployHandler = handlers.NewDeployHandler(a.Conductor)
	a.StatusHandler = handlers.NewStatusHandler(a.StorageManager, a.QueueManager, a.Config.Queue.QueueName)
	a.KVHandler = handlers.NewKVHandler(a.StorageManager.KeyValueStorage())
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, &a.Config.WebSocket)
}

// Start starts the conductor worker pool and the power sync scheduler
func (a *App) Start(ctx context.Context) error {
	if err := a.Conductor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start conductor: %w", err)
	}
	if err := a.PowerSyncService.Start(); err != nil {
		return fmt.Errorf("failed to start power sync: %w", err)
	}
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.PowerSyncService != nil {
		a.PowerSyncService.Stop()
	}

	if a.Conductor != nil {
		if err := a.Conductor.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop conductor")
		} else {
			a.Logger.Info().Msg("Conductor stopped")
		}
	}

	if a.QueueManager != nil {
		if err := a.QueueManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue manager")
		}
	}

	if a.EventService != nil {
		a.EventService.Close()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}
