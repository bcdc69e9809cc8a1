package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/arencloud/argus/internal/api"
	"github.com/arencloud/argus/internal/config"
	"github.com/arencloud/argus/internal/db"
	"github.com/arencloud/argus/internal/freshness"
	"github.com/arencloud/argus/internal/jobs"
	"github.com/arencloud/argus/internal/logging"
	"github.com/arencloud/argus/internal/middleware"
	"github.com/arencloud/argus/internal/provider"
	"github.com/arencloud/argus/internal/provider/monitor"
	"github.com/arencloud/argus/internal/provider/s3"
	"github.com/arencloud/argus/internal/provider/vsax"
	"github.com/arencloud/argus/internal/sched"
	"github.com/arencloud/argus/internal/store"
	"github.com/arencloud/argus/internal/syncer"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)

	if err := db.Init(cfg, logger); err != nil {
		logger.Fatal("failed to init db", "error", err)
	}
	st := store.New(db.DB)

	catalog, err := provider.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load catalog", "path", cfg.CatalogPath, "error", err)
	}

	ctx := context.Background()

	// Records synced before bucket enrichment existed lack these fields;
	// probe for them so the next pass backfills without waiting out the TTL.
	rules := freshness.NewRules()
	rules.Register(s3.KindBucket, freshness.MissingKeys("sizeBytes", "objectCount"))
	rules.Register(vsax.KindDevice, freshness.MissingKeys("network"))

	orch := syncer.NewOrchestrator(st, freshness.Policy{TTL: cfg.SyncTTL}, rules, cfg.ResourceConcurrency, logger)
	svc := syncer.NewService(orch, st, cfg.AccountConcurrency, logger)

	if len(catalog.S3) > 0 {
		c, err := s3.New(catalog.S3, sched.NewLimiter(cfg.RequestConcurrency, cfg.RequestInterval))
		if err != nil {
			logger.Fatal("failed to build s3 clients", "error", err)
		}
		svc.Register(c)
	}
	if catalog.VSAx != nil {
		svc.Register(vsax.New(*catalog.VSAx, sched.NewLimiter(cfg.RequestConcurrency, cfg.RequestInterval)))
	}
	if catalog.Monitor != nil {
		svc.Register(monitor.New(ctx, *catalog.Monitor, sched.NewLimiter(cfg.RequestConcurrency, cfg.RequestInterval)))
	}

	tracker := jobs.NewTracker(cfg.JobHistory)
	runners := map[string]*syncer.Runner{}
	for _, name := range svc.Providers() {
		rn := syncer.NewRunner(svc, name, cfg.SyncInterval, logger)
		rn.Start(ctx)
		runners[name] = rn
	}

	r := api.Router(cfg, logger, st, svc, runners, tracker)

	srv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           middleware.Recoverer(r, logger),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // SSE log stream stays open
		MaxHeaderBytes:    1 << 20,
	}
	logger.Info("server starting", "addr", srv.Addr, "providers", svc.Providers())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}
