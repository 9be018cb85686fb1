package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"storyline/internal/config"
	"storyline/internal/domain/entity"
	"storyline/internal/infra/adapter/persistence"
	"storyline/internal/infra/db"
	"storyline/internal/infra/embedder"
	"storyline/internal/infra/scraper"
	"storyline/internal/infra/worker"
	"storyline/internal/observability/logging"
	"storyline/internal/observability/slo"
	"storyline/internal/observability/tracing"
	pkgconfig "storyline/internal/pkg/config"
	"storyline/internal/resilience/circuitbreaker"
	"storyline/internal/resilience/quota"
	"storyline/internal/usecase/embed"
	"storyline/internal/usecase/ingest"
	"storyline/internal/usecase/orchestrator"
	storyUC "storyline/internal/usecase/story"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	workerMetrics := worker.NewWorkerMetrics()
	workerConfig, err := worker.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load worker configuration: %w", err)
	}
	metricsPort := pkgconfig.Apply(
		pkgconfig.LoadEnvInt("METRICS_PORT", 9090,
			func(n int) error { return pkgconfig.ValidateIntRange(n, 1024, 65535) }),
		"metrics_port", workerMetrics.ConfigMetrics, logger)
	logger.Info("worker configuration loaded",
		slog.String("match_schedule", workerConfig.MatchSchedule),
		slog.String("sync_schedule", workerConfig.SyncSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("match_timeout", workerConfig.MatchTimeout),
		slog.Duration("sync_timeout", workerConfig.SyncTimeout),
		slog.Int("match_parallelism", workerConfig.MatchParallelism),
		slog.Int("health_port", workerConfig.HealthPort))

	shutdownTracing := tracing.Setup(tracing.ProviderConfig{
		ServiceName: "storyline-worker",
		Version:     pkgconfig.LoadEnvString("VERSION", "dev"),
		SampleRatio: 1,
	})
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTracing(flushCtx)
	}()

	settings := db.SettingsFromEnv(workerMetrics.ConfigMetrics, logger)
	database, err := db.Open(ctx, settings)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	if err := db.Migrate(database, settings.Driver); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	repos := persistence.New(database, settings.Driver)

	gate := quota.NewGate(repos.Quota, quota.WithLogger(logger))
	if err := gate.Load(ctx); err != nil {
		logger.Warn("quota state unavailable, starting unknown", slog.Any("error", err))
	}

	syncSched, matchSched, err := buildSchedulers(logger, database, repos, gate, workerConfig, workerMetrics)
	if err != nil {
		return err
	}

	healthServer := worker.NewHealthServer(fmt.Sprintf(":%d", workerConfig.HealthPort), logger)
	healthServer.RegisterTrigger(syncSched.Name(), syncSched.Trigger)
	healthServer.RegisterTrigger(matchSched.Name(), matchSched.Trigger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gate.Run(gctx)
		return nil
	})
	g.Go(func() error {
		db.ReportPoolStats(gctx, database, 15*time.Second)
		return nil
	})
	g.Go(func() error {
		return serveMetrics(gctx, newMetricsServer(metricsPort), logger)
	})
	g.Go(func() error {
		if err := healthServer.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	for _, s := range []*worker.Scheduler{syncSched, matchSched} {
		g.Go(func() error {
			logger.Info("scheduler started",
				slog.String("task", s.Name()),
				slog.Time("next_run", s.Next()))
			return s.Run(gctx)
		})
	}

	// Catch up once at startup: crawl first, then match what was crawled.
	syncSched.Trigger()
	matchSched.Trigger()
	healthServer.SetReady(true)

	return g.Wait()
}

// buildSchedulers wires the sync task (sources, crawl, embeddings) and the
// match task to their schedules.
func buildSchedulers(
	logger *slog.Logger,
	database *sql.DB,
	repos persistence.Repositories,
	gate *quota.Gate,
	cfg *worker.WorkerConfig,
	m *worker.WorkerMetrics,
) (syncSched, matchSched *worker.Scheduler, err error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	ingester := &ingest.Service{
		SourceRepo:  repos.Sources,
		ArticleRepo: repos.Articles,
		FeedFetcher: scraper.NewRSSFetcher(newFeedHTTPClient()),
		Gate:        gate,
		Logger:      logger,
	}

	var backfill Backfiller
	backfillLimit := 0
	embCfg, err := config.LoadEmbeddingConfig()
	switch {
	case err != nil:
		logger.Warn("embedding disabled, invalid configuration", slog.Any("error", err))
	case !embCfg.Enabled:
		logger.Info("embedding disabled via configuration")
	default:
		backfill = &embed.Service{
			Articles:   repos.Articles,
			Embeddings: repos.Embeddings,
			Provider:   embedder.NewOpenAI(*embCfg, gate),
			Gate:       gate,
			BatchSize:  embCfg.BatchSize,
			Logger:     logger,
		}
		backfillLimit = embCfg.BackfillLimit
	}

	sourcesPath := config.SourcesPath()
	loadSources := func() ([]entity.Source, error) {
		sc, err := config.LoadSourcesConfig(sourcesPath)
		if err != nil {
			return nil, err
		}
		return sc.Sources, nil
	}

	stories := &storyUC.Service{Stories: repos.Stories, Articles: repos.Articles}
	orch := orchestrator.New(stories, repos.Embeddings,
		orchestrator.WithParallelism(cfg.MatchParallelism),
		orchestrator.WithLogger(logger))

	common := []worker.SchedulerOption{
		worker.WithLocation(loc),
		worker.WithMetrics(m),
		worker.WithLogger(logger),
	}
	if cfg.RequireDBPing {
		common = append(common, worker.WithPrecondition("database", pingPrecondition(circuitbreaker.NewDBCircuitBreaker(database))))
	}

	syncSched, err = worker.NewScheduler("sync", cfg.SyncSchedule,
		syncTask(loadSources, ingester, backfill, backfillLimit, m, logger),
		append(common, worker.WithTimeout(cfg.SyncTimeout))...)
	if err != nil {
		return nil, nil, err
	}
	matchSched, err = worker.NewScheduler("match", cfg.MatchSchedule,
		matchTask(orch, m, slo.NewTracker(slo.DefaultWindow)),
		append(common, worker.WithTimeout(cfg.MatchTimeout))...)
	if err != nil {
		return nil, nil, err
	}
	return syncSched, matchSched, nil
}

// newFeedHTTPClient returns the client used for feed crawling. TLS 1.2+ is
// enforced.
func newFeedHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}
