package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"remedia/internal/directory"
	"remedia/internal/evidence"
	evidencemem "remedia/internal/evidence/store/memory"
	evidencepg "remedia/internal/evidence/store/postgres"
	"remedia/internal/notify"
	"remedia/internal/platform/config"
	"remedia/internal/platform/database"
	"remedia/internal/platform/httpserver"
	"remedia/internal/platform/logger"
	"remedia/internal/platform/metrics"
	platformredis "remedia/internal/platform/redis"
	"remedia/internal/sla"
	"remedia/internal/sla/cache"
	slastore "remedia/internal/sla/store"
	"remedia/internal/sweeper"
	"remedia/internal/trail"
	trailmem "remedia/internal/trail/store/memory"
	trailpg "remedia/internal/trail/store/postgres"
	transport "remedia/internal/transport/http"
	"remedia/internal/workflow/ports"
	"remedia/internal/workflow/service"
	workflowmem "remedia/internal/workflow/store/memory"
	workflowpg "remedia/internal/workflow/store/postgres"
)

// main wires dependencies and runs the HTTP server, notification worker, and
// overdue sweeper under one lifecycle. Business logic lives in the internal
// services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var (
		obsStore   ports.ObservationStore
		auditStore ports.AuditStore
		ruleStore  sla.RuleStore
		trailStore trail.Store
		evStore    evidence.Store
		db         *sql.DB
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(db, cfg.MigrationsPath); err != nil {
			return err
		}
		obsStore = workflowpg.NewObservationStore(db)
		auditStore = workflowpg.NewAuditStore(db)
		ruleStore = slastore.NewPostgresStore(db)
		trailStore = trailpg.New(db)
		evStore = evidencepg.NewStore(db)
		log.Info("using postgres stores")
	} else {
		obsStore = workflowmem.NewObservationStore()
		auditStore = workflowmem.NewAuditStore()
		ruleStore = slastore.NewMemoryStore()
		trailStore = trailmem.New()
		evStore = evidencemem.NewStore()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var ruleSource ports.RuleSource = ruleStore
	var ruleOpts []sla.ServiceOption
	if redisClient != nil {
		ruleCache := cache.New(ruleStore, redisClient.Client, cfg.Redis.CacheTTL, log)
		ruleSource = ruleCache
		ruleOpts = append(ruleOpts, sla.WithInvalidator(ruleCache))
		log.Info("sla rule cache enabled")
	}

	recorder := trail.NewRecorder(trailStore,
		trail.WithLogger(log),
		trail.WithMetrics(m),
	)
	dispatcher := notify.NewDispatcher(notify.LogSink{Logger: log},
		notify.WithLogger(log),
		notify.WithMetrics(m),
		notify.WithBuffer(cfg.NotifyBuffer),
	)

	dir := directory.AllowAll{}

	observations, err := service.NewObservationService(obsStore, auditStore, ruleSource, dir,
		service.WithHistory(recorder),
		service.WithNotifier(dispatcher),
		service.WithLogger(log),
		service.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	audits, err := service.NewAuditService(auditStore, obsStore, dir,
		service.WithAuditNotifier(dispatcher),
		service.WithAuditLogger(log),
		service.WithAuditMetrics(m),
	)
	if err != nil {
		return err
	}
	gate, err := evidence.NewService(evStore, observations,
		evidence.WithNotifier(dispatcher),
		evidence.WithLogger(log),
	)
	if err != nil {
		return err
	}
	rules := sla.NewService(ruleStore, append(ruleOpts, sla.WithLogger(log))...)
	sweep, err := sweeper.New(obsStore,
		sweeper.WithHistory(recorder),
		sweeper.WithNotifier(dispatcher),
		sweeper.WithLogger(log),
		sweeper.WithMetrics(m),
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithBatchSize(cfg.SweepBatchSize),
	)
	if err != nil {
		return err
	}

	checks := map[string]transport.HealthCheck{}
	if db != nil {
		checks["database"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	handler := transport.New(observations, audits, gate, rules, recorder, sweep, log)
	srv := httpserver.New(cfg.Addr, transport.NewRouter(handler, checks))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting remedia", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return sweep.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
