// Package server wires storage, the sync services and the HTTP API together
// and runs them until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/checkpoint"
	"github.com/dmitrijs2005/teamsync/internal/server/config"
	"github.com/dmitrijs2005/teamsync/internal/server/httpapi"
	"github.com/dmitrijs2005/teamsync/internal/server/media"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamsync/internal/server/services"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	metrics *metrics.Metrics
	handler *httpapi.Handler
	worker  *services.RetentionWorker
}

// NewApp opens the database, applies migrations and builds every component.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, rm, err := repomanager.Open(c.DBDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	var gateway *media.Gateway
	if c.S3Bucket != "" {
		store, err := media.NewS3Store(ctx, media.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("object store init error: %w", err)
		}
		gateway = media.NewGateway(store, c.MediaURLTTL, logger)
	} else {
		logger.Warn(ctx, "no S3 bucket configured, media endpoint disabled")
	}

	clock := timex.SystemClock
	validator := services.NewPayloadValidator()
	resolver := services.NewConflictResolver(db, rm, validator, clock)
	mapper := services.NewIDMapper(db, rm, validator, clock)
	deleter := services.NewDeletionPropagator(db, rm, clock)

	m := metrics.New()
	worker := services.NewRetentionWorker(deleter, c.TombstoneRetention, c.PurgeInterval, clock, logger)
	worker.OnPurge(func(s services.PurgeStats) {
		m.Purged.WithLabelValues("record").Add(float64(s.Records))
		m.Purged.WithLabelValues("tombstone").Add(float64(s.Tombstones))
	})

	handler := httpapi.NewHandler(httpapi.Services{
		Delta:    services.NewDeltaEngine(db, rm, checkpoint.NewCodec(c.CheckpointKey), c.TombstoneRetention, clock),
		Resolver: resolver,
		Mapper:   mapper,
		Deleter:  deleter,
		Batch:    services.NewBatchReconciler(resolver, mapper, logger),
		Media:    gateway,
	}, m, logger, c.SecretKey, c.CORSOrigins)

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		metrics: m,
		handler: handler,
		worker:  worker,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.HTTPAddress, app.handler.Routes(), app.config.ShutdownTimeout, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// waits for the server and the retention worker to stop and closes the
// database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.worker.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped", "at", time.Now().UTC())
}
