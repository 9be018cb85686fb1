package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	hhttp "storyline/internal/handler/http"
	"storyline/internal/handler/http/requestid"
	hstory "storyline/internal/handler/http/story"
	"storyline/internal/infra/adapter/persistence"
	"storyline/internal/infra/db"
	"storyline/internal/observability/logging"
	"storyline/internal/observability/tracing"
	pkgconfig "storyline/internal/pkg/config"
	"storyline/internal/usecase/orchestrator"
	storyUC "storyline/internal/usecase/story"
)

// apiConfig is read once at startup. Invalid values fall back to defaults.
type apiConfig struct {
	Addr             string
	Version          string
	RequestTimeout   time.Duration
	MatchRunTimeout  time.Duration
	MatchRunInterval time.Duration
	Parallelism      int
	TraceSamplePct   int
	DB               db.Settings
}

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	cfg := loadConfig(logger)
	shutdownTracing := tracing.Setup(tracing.ProviderConfig{
		ServiceName: "storyline-api",
		Version:     cfg.Version,
		SampleRatio: float64(cfg.TraceSamplePct) / 100,
	})

	database := initDatabase(logger, cfg.DB)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go db.ReportPoolStats(ctx, database, 15*time.Second)

	handler := setupServer(logger, database, cfg)
	runServer(ctx, logger, handler, cfg)

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("tracer shutdown failed", slog.Any("error", err))
	}
}

func loadConfig(logger *slog.Logger) apiConfig {
	m := pkgconfig.NewConfigMetrics("api")
	positive := pkgconfig.ValidatePositiveDuration

	cfg := apiConfig{
		Addr:    pkgconfig.LoadEnvString("API_ADDR", ":8080"),
		Version: pkgconfig.LoadEnvString("VERSION", "dev"),
		RequestTimeout: pkgconfig.Apply(
			pkgconfig.LoadEnvDuration("REQUEST_TIMEOUT", 30*time.Second, positive),
			"request_timeout", m, logger),
		MatchRunTimeout: pkgconfig.Apply(
			pkgconfig.LoadEnvDuration("MATCH_RUN_TIMEOUT", 10*time.Minute, positive),
			"match_run_timeout", m, logger),
		MatchRunInterval: pkgconfig.Apply(
			pkgconfig.LoadEnvDuration("MATCH_RUN_MIN_INTERVAL", time.Minute, positive),
			"match_run_min_interval", m, logger),
		Parallelism: pkgconfig.Apply(
			pkgconfig.LoadEnvInt("MATCH_PARALLELISM", orchestrator.DefaultParallelism,
				func(n int) error { return pkgconfig.ValidateIntRange(n, 1, 64) }),
			"match_parallelism", m, logger),
		TraceSamplePct: pkgconfig.Apply(
			pkgconfig.LoadEnvInt("TRACE_SAMPLE_PERCENT", 10,
				func(n int) error { return pkgconfig.ValidateIntRange(n, 0, 100) }),
			"trace_sample_percent", m, logger),
	}
	cfg.DB = db.SettingsFromEnv(m, logger)
	m.RecordLoadTimestamp()

	logger.Info("api configuration loaded",
		slog.String("addr", cfg.Addr),
		slog.String("version", cfg.Version),
		slog.Duration("request_timeout", cfg.RequestTimeout),
		slog.Duration("match_run_timeout", cfg.MatchRunTimeout),
		slog.Int("match_parallelism", cfg.Parallelism))
	return cfg
}

// initDatabase opens the database connection and runs migrations.
func initDatabase(logger *slog.Logger, settings db.Settings) *sql.DB {
	database, err := db.Open(context.Background(), settings)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.Migrate(database, settings.Driver); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// setupServer wires the story routes, probes and middleware.
func setupServer(logger *slog.Logger, database *sql.DB, cfg apiConfig) http.Handler {
	repos := persistence.New(database, cfg.DB.Driver)
	stories := &storyUC.Service{Stories: repos.Stories, Articles: repos.Articles}
	orch := orchestrator.New(stories, repos.Embeddings,
		orchestrator.WithParallelism(cfg.Parallelism),
		orchestrator.WithLogger(logger))

	api := http.NewServeMux()
	hstory.Register(api, stories, orch, cfg.MatchRunTimeout)

	mux := http.NewServeMux()
	mux.Handle("/health", &hhttp.HealthHandler{DB: database, Version: cfg.Version, Stats: database.Stats})
	mux.Handle("/ready", &hhttp.ReadyHandler{DB: database})
	mux.Handle("/live", &hhttp.LiveHandler{})
	mux.Handle("/metrics", hhttp.MetricsHandler())
	mux.Handle("POST /matching/run",
		hhttp.RateLimit(rate.NewLimiter(rate.Every(cfg.MatchRunInterval), 1))(api))
	mux.Handle("/", api)

	// Order: request ID, tracing, recovery, logging, metrics, input limits,
	// timeout. A manual pass bounds itself with MatchRunTimeout.
	return hhttp.Chain(mux,
		requestid.Middleware,
		tracing.Middleware,
		hhttp.Recover(logger),
		hhttp.Logging(logger),
		hhttp.MetricsMiddleware,
		hhttp.InputValidation(),
		hhttp.Timeout(cfg.RequestTimeout, "/matching/run"),
	)
}

// runServer serves until ctx is cancelled, then drains in-flight requests.
func runServer(ctx context.Context, logger *slog.Logger, handler http.Handler, cfg apiConfig) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Addr),
			slog.String("version", cfg.Version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
