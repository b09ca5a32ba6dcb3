package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	inventoryapp "github.com/vetstock/backend/internal/application/inventory"
	"github.com/vetstock/backend/internal/infrastructure/cache"
	"github.com/vetstock/backend/internal/infrastructure/config"
	"github.com/vetstock/backend/internal/infrastructure/event"
	"github.com/vetstock/backend/internal/infrastructure/logger"
	"github.com/vetstock/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Vetstock Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	locationRepo := persistence.NewGormLocationRepository(db.DB)
	batchRepo := persistence.NewGormStockBatchRepository(db.DB)
	levelRepo := persistence.NewGormStockLevelRepository(db.DB)
	movementRepo := persistence.NewGormStockMovementRepository(db.DB)
	countRepo := persistence.NewGormStockCountRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Initialize stock level cache (Redis when enabled, in-memory otherwise)
	cacheFactory := cache.NewStockLevelCacheFactory(cfg.Redis, cfg.Cache, cache.WithLogger(log))
	levelCache, err := cacheFactory.CreateCache()
	if err != nil {
		log.Fatal("Failed to create stock level cache", zap.Error(err))
	}

	// Initialize application services
	locationService := inventoryapp.NewLocationService(locationRepo)
	locationService.SetEventPublisher(eventBus)
	allocationService := inventoryapp.NewAllocationService(txScope, levelRepo, batchRepo, movementRepo, locationRepo, log)
	allocationService.SetEventPublisher(eventBus)
	allocationService.SetCache(levelCache)
	stockCountService := inventoryapp.NewStockCountService(countRepo, levelRepo, batchRepo, locationRepo, allocationService, log)
	stockCountService.SetEventPublisher(eventBus)
	sweepService := inventoryapp.NewExpirySweepService(batchRepo, log)
	sweepService.SetEventPublisher(eventBus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Log the registered locations so a misconfigured deployment is visible
	// at startup.
	if locations, err := locationService.ListActive(ctx); err != nil {
		log.Warn("Failed to list active locations", zap.Error(err))
	} else {
		log.Info("Active stock locations", zap.Int("count", len(locations)))
	}

	// Run the expiry sweep loop
	if cfg.Sweep.Enabled {
		go runExpirySweep(ctx, sweepService, cfg.Sweep.Interval, log)
		log.Info("Expiry sweep started", zap.Duration("interval", cfg.Sweep.Interval))
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")
	cancel()

	log.Info("Server exited gracefully")
}

// runExpirySweep marks expired batches on a fixed interval until the context
// is cancelled. An initial sweep runs immediately so a restart does not leave
// expired stock allocatable for a full interval.
func runExpirySweep(ctx context.Context, sweep *inventoryapp.ExpirySweepService, interval time.Duration, log *zap.Logger) {
	doSweep := func() {
		// Tag each run so the sweep's log lines can be correlated.
		runCtx, runLog := logger.WithOperationID(ctx, log, uuid.New().String())
		swept, err := sweep.Sweep(runCtx)
		if err != nil {
			runLog.Error("Expiry sweep failed", zap.Error(err))
			return
		}
		if swept > 0 {
			runLog.Info("Expiry sweep completed", zap.Int("batches_expired", swept))
		}
	}

	doSweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			doSweep()
		}
	}
}
