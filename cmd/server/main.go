// Command server runs the accessibility scan service: HTTP API, scan
// pipeline, the document scan worker pool and backlog reconciliation.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpadapter "github.com/afcbpeter1/Accessitest-sub009/internal/adapters/http"
	"github.com/afcbpeter1/Accessitest-sub009/internal/adapters/objectstore"
	pg "github.com/afcbpeter1/Accessitest-sub009/internal/adapters/postgres"
	"github.com/afcbpeter1/Accessitest-sub009/internal/config"
	"github.com/afcbpeter1/Accessitest-sub009/internal/jobtrack"
	"github.com/afcbpeter1/Accessitest-sub009/internal/pagescan"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
	"github.com/afcbpeter1/Accessitest-sub009/internal/progress"
	"github.com/afcbpeter1/Accessitest-sub009/internal/rulepack"
	backlogsvc "github.com/afcbpeter1/Accessitest-sub009/internal/services/backlog"
	creditsvc "github.com/afcbpeter1/Accessitest-sub009/internal/services/credit"
	historysvc "github.com/afcbpeter1/Accessitest-sub009/internal/services/history"
	"github.com/afcbpeter1/Accessitest-sub009/internal/services/notify"
	scansvc "github.com/afcbpeter1/Accessitest-sub009/internal/services/scanner"
	"github.com/afcbpeter1/Accessitest-sub009/internal/workers/pipeline"
	scanworker "github.com/afcbpeter1/Accessitest-sub009/internal/workers/scanrunner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	credits := pg.NewCredits(db)
	backlogRepo := pg.NewBacklog(db)
	scans := pg.NewScans(db)
	queue := pg.NewQueue(db)

	var objects ports.ObjectStore
	if cfg.ObjectStoreEndpoint != "" {
		store, err := objectstore.NewMinio(ctx, objectstore.MinioConfig{
			Endpoint:  cfg.ObjectStoreEndpoint,
			Bucket:    cfg.ObjectStoreBucket,
			AccessKey: cfg.ObjectStoreAccessKey,
			SecretKey: cfg.ObjectStoreSecretKey,
			UseSSL:    cfg.ObjectStoreUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("object store connection failed")
		}
		objects = store
	} else {
		log.Warn().Msg("OBJECT_STORE_ENDPOINT not set; screenshots and queued documents are held in memory")
		objects = objectstore.NewMemory()
	}

	registry, err := rulepack.Load(cfg.RuleProfileDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.RuleProfileDir).Msg("rule profiles failed to load")
	}

	clock := clockwork.NewRealClock()
	tracker := jobtrack.New()
	hub := progress.NewHub()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := hub.Reap(time.Hour); n > 0 {
					log.Debug().Int("streams", n).Msg("reaped finished progress streams")
				}
			}
		}
	}()

	gate := creditsvc.New(credits, notify.NewLogSink(), cfg.FreeCredits, cfg.LowCreditThreshold)
	reconciler := backlogsvc.New(backlogRepo, clock, cfg.ReopenGraceDays)
	hist := historysvc.New(scans)

	// The noop capabilities keep the pipeline runnable without a rendering
	// engine; every page and document comes back clean.
	log.Warn().Msg("no rendering engine configured; scans run with no-op capabilities")
	coordinator := pipeline.New(pipeline.Deps{
		Web:         pagescan.NoopCapability{},
		Documents:   pagescan.NoopDocumentCapability{},
		Tracker:     tracker,
		Hub:         hub,
		State:       scans,
		History:     scans,
		Reconciler:  reconciler,
		Screenshots: objects,
		Clock:       clock,
		PageOpts: pagescan.Options{
			Timeout:       cfg.PageTimeout,
			SafetyCeiling: cfg.PageSafetyCeiling,
			CancelPoll:    cfg.CancelPollInterval,
		},
	})

	scanner := scansvc.New(gate, coordinator, registry, tracker, scans, queue, objects, clock)

	if cfg.ScanWorkers > 0 {
		processor := scanworker.DocumentProcessor{
			Objects:     objects,
			Tracker:     tracker,
			Coordinator: coordinator,
			Clock:       clock,
		}
		scanworker.Run(ctx, queue, processor, cfg.ScanWorkers, cfg.QueuePollInterval)
		log.Info().Int("workers", cfg.ScanWorkers).Msg("document scan workers started")
	}

	api := httpadapter.New(scanner, reconciler, hist, gate, hub, registry)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("env", cfg.Env).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("http server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	// Cancelling the root context stops the queue workers and asks in-flight
	// scans to wind down before the server drains connections.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown forced")
	}
}
