package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"storyline/internal/pkg/config"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// DefaultSQLitePath is used when DB_DRIVER=sqlite and SQLITE_PATH is unset.
const DefaultSQLitePath = "storyline.db"

const pingTimeout = 5 * time.Second

// PoolConfig tunes the PostgreSQL connection pool. SQLite ignores it.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig suits one API or worker process against a small server.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}
}

// Settings selects the database. DSN is DATABASE_URL for PostgreSQL and a
// file path for SQLite.
type Settings struct {
	Driver string
	DSN    string
	Pool   PoolConfig
}

// SettingsFromEnv reads DB_DRIVER, DATABASE_URL or SQLITE_PATH, and the
// DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS, DB_CONN_MAX_LIFETIME and
// DB_CONN_MAX_IDLE_TIME pool knobs. Invalid pool values fall back to the
// defaults through config.Apply; m and logger may be nil.
func SettingsFromEnv(m *config.ConfigMetrics, logger *slog.Logger) Settings {
	s := Settings{Driver: DriverPostgres}
	if config.LoadEnvString("DB_DRIVER", DriverPostgres) == DriverSQLite {
		s.Driver = DriverSQLite
		s.DSN = config.LoadEnvString("SQLITE_PATH", DefaultSQLitePath)
		return s
	}
	s.DSN = config.LoadEnvString("DATABASE_URL", "")
	s.Pool = DefaultPoolConfig()

	atLeastOne := func(n int) error { return config.ValidateIntRange(n, 1, 1000) }
	s.Pool.MaxOpenConns = config.Apply(
		config.LoadEnvInt("DB_MAX_OPEN_CONNS", s.Pool.MaxOpenConns, atLeastOne),
		"db_max_open_conns", m, logger)
	s.Pool.MaxIdleConns = config.Apply(
		config.LoadEnvInt("DB_MAX_IDLE_CONNS", s.Pool.MaxIdleConns, atLeastOne),
		"db_max_idle_conns", m, logger)
	s.Pool.ConnMaxLifetime = config.Apply(
		config.LoadEnvDuration("DB_CONN_MAX_LIFETIME", s.Pool.ConnMaxLifetime, config.ValidatePositiveDuration),
		"db_conn_max_lifetime", m, logger)
	s.Pool.ConnMaxIdleTime = config.Apply(
		config.LoadEnvDuration("DB_CONN_MAX_IDLE_TIME", s.Pool.ConnMaxIdleTime, config.ValidatePositiveDuration),
		"db_conn_max_idle_time", m, logger)
	return s
}

// Open opens and pings the database described by s.
func Open(ctx context.Context, s Settings) (*sql.DB, error) {
	switch s.Driver {
	case DriverSQLite:
		conn, err := OpenSQLite(s.DSN)
		if err != nil {
			return nil, err
		}
		slog.Info("sqlite database opened", slog.String("path", s.DSN))
		return conn, nil
	case DriverPostgres:
		if s.DSN == "" {
			return nil, errors.New("DATABASE_URL not set")
		}
		return OpenPostgres(ctx, s.DSN, s.Pool)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", s.Driver)
	}
}

// OpenPostgres opens a pgx-backed pool, applies pool and pings the server.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	conn, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conn.SetMaxOpenConns(pool.MaxOpenConns)
	conn.SetMaxIdleConns(min(pool.MaxIdleConns, pool.MaxOpenConns))
	conn.SetConnMaxLifetime(pool.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("postgres pool ready",
		slog.Int("max_open_conns", pool.MaxOpenConns),
		slog.Int("max_idle_conns", pool.MaxIdleConns),
		slog.Duration("conn_max_lifetime", pool.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", pool.ConnMaxIdleTime))
	return conn, nil
}

// OpenSQLite opens a single-connection SQLite handle. The one connection makes
// the process a single writer, and transactions start IMMEDIATE so a
// count-then-insert cannot interleave with another writer process.
// path may be ":memory:" for tests.
func OpenSQLite(path string) (*sql.DB, error) {
	conn, err := sql.Open(DriverSQLite, path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return conn, nil
}
