package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/config"
	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/journal"
	"github.com/mamadbah2/dairysync/internal/repository/local"
	"github.com/mamadbah2/dairysync/internal/repository/remote/mongodb"
	"github.com/mamadbah2/dairysync/internal/repository/sheets"
	"github.com/mamadbah2/dairysync/internal/scheduler"
	"github.com/mamadbah2/dairysync/internal/server/handlers"
	"github.com/mamadbah2/dairysync/internal/server/router"
	"github.com/mamadbah2/dairysync/internal/service/aggregation"
	"github.com/mamadbah2/dairysync/internal/service/connectivity"
	"github.com/mamadbah2/dairysync/internal/service/coordinator"
	"github.com/mamadbah2/dairysync/internal/service/entities"
	"github.com/mamadbah2/dairysync/internal/service/importer"
	"github.com/mamadbah2/dairysync/internal/service/realtime"
	"github.com/mamadbah2/dairysync/internal/service/session"
	"github.com/mamadbah2/dairysync/internal/worker"
	"github.com/mamadbah2/dairysync/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := local.Open(cfg.LocalStore.Path, logger.ParseGormLevel(cfg.LocalStore.LogLevel), baseLogger.Named("repo.local"))
	if err != nil {
		baseLogger.Fatal("failed to open local store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			baseLogger.Error("failed to close local store", zap.Error(err))
		}
	}()

	ops, err := journal.New(store.DB(), baseLogger.Named("repo.journal"))
	if err != nil {
		baseLogger.Fatal("failed to init operation journal", zap.Error(err))
	}

	mongoRepo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	pool := worker.NewPool(worker.Config{Workers: cfg.Sync.Workers, QueueSize: cfg.Sync.QueueSize}, baseLogger.Named("worker"))
	pool.Start(ctx)

	monitor := connectivity.NewMonitor(cfg.Connectivity.ProbeURL, cfg.Connectivity.Timeout, baseLogger.Named("svc.connectivity"))
	monitor.Check(ctx)

	sess := session.New(baseLogger.Named("svc.session"))
	calculator := aggregation.NewCalculator(store, baseLogger.Named("svc.aggregation"))

	sc := &entities.SyncContext{
		Local:        store,
		Journal:      ops,
		Remote:       mongoRepo,
		Auth:         sess,
		Net:          monitor,
		Pool:         pool,
		Guards:       reconcile.NewGuards(cfg.Sync.ProtectionWindow),
		Aggregates:   calculator,
		Validate:     validator.New(),
		Logger:       baseLogger.Named("svc.entities"),
		RecentWindow: cfg.Sync.RecentWindow,
	}
	repos := entities.NewSet(sc)
	syncers := repos.Syncers()

	coord := coordinator.New(sc, syncers, calculator, baseLogger.Named("svc.coordinator"))
	coord.OnProgress(func(percent int, status string) {
		baseLogger.Info("restore progress", zap.Int("percent", percent), zap.String("status", status))
	})

	adapter := realtime.NewAdapter(mongoRepo, sc.Guards, syncers, realtime.Config{SettleDelay: cfg.Sync.SettleDelay}, baseLogger.Named("svc.realtime"))
	adapter.OnChange(func(kind models.EntityType, res reconcile.Result) {
		owner, err := sc.Owner()
		if err != nil {
			return
		}
		if _, err := calculator.RecomputeAll(ctx, owner); err != nil {
			baseLogger.Warn("recompute after remote change failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	})

	sess.OnChange(func(userID string, signedIn bool) {
		if !signedIn {
			coord.Cancel()
			adapter.Stop()
			return
		}
		adapter.Start(ctx, userID)
		if err := coord.Trigger(); err != nil && !errors.Is(err, coordinator.ErrAlreadyRunning) {
			baseLogger.Warn("failed to queue sync after sign-in", zap.Error(err))
		}
	})

	monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		if _, err := sc.Owner(); err != nil {
			return
		}
		if err := coord.Trigger(); err != nil && !errors.Is(err, coordinator.ErrAlreadyRunning) {
			baseLogger.Warn("failed to queue sync after reconnect", zap.Error(err))
		}
	})

	var sheetImporter handlers.SheetImporter
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetImporter = importer.NewImporter(sheetsRepo, repos.Farmers, repos.Prices, baseLogger.Named("svc.importer"))
	} else {
		baseLogger.Warn("google sheets not configured, spreadsheet import disabled")
	}

	if cfg.Session.OwnerID != "" {
		if err := sess.SignIn(cfg.Session.OwnerID); err != nil {
			baseLogger.Warn("startup sign-in failed", zap.Error(err))
		}
	}

	sched := scheduler.NewScheduler(*cfg, coord, monitor, sess, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}

	engine := router.New(router.Handlers{
		Sync:    handlers.NewSyncHandler(coord, baseLogger.Named("handlers.sync")),
		Import:  handlers.NewImportHandler(sheetImporter, baseLogger.Named("handlers.import")),
		Session: handlers.NewSessionHandler(repos.Users, sess, baseLogger.Named("handlers.session")),
	}, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	sched.Stop()
	coord.Cancel()
	adapter.Stop()
	if err := pool.Stop(shutdownCtx); err != nil {
		baseLogger.Error("worker pool shutdown failed", zap.Error(err))
	}
}
