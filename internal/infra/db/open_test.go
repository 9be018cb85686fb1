package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/pkg/config"
)

func clearPoolEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME"} {
		t.Setenv(key, "")
	}
}

func TestSettingsFromEnv_PostgresDefaults(t *testing.T) {
	clearPoolEnv(t)
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/storyline")

	s := SettingsFromEnv(nil, nil)
	assert.Equal(t, Settings{
		Driver: DriverPostgres,
		DSN:    "postgres://u:p@localhost/storyline",
		Pool:   DefaultPoolConfig(),
	}, s)
}

func TestSettingsFromEnv_SQLite(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")

	t.Setenv("SQLITE_PATH", "")
	assert.Equal(t, Settings{Driver: DriverSQLite, DSN: DefaultSQLitePath}, SettingsFromEnv(nil, nil))

	t.Setenv("SQLITE_PATH", "/var/lib/storyline.db")
	assert.Equal(t, "/var/lib/storyline.db", SettingsFromEnv(nil, nil).DSN)
}

func TestSettingsFromEnv_PoolOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")
	t.Setenv("DB_MAX_IDLE_CONNS", "25")
	t.Setenv("DB_CONN_MAX_LIFETIME", "2h")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45m")

	assert.Equal(t, PoolConfig{
		MaxOpenConns:    50,
		MaxIdleConns:    25,
		ConnMaxLifetime: 2 * time.Hour,
		ConnMaxIdleTime: 45 * time.Minute,
	}, SettingsFromEnv(nil, nil).Pool)
}

func TestSettingsFromEnv_InvalidPoolValuesFallBack(t *testing.T) {
	tests := []struct {
		key, value, field string
	}{
		{"DB_MAX_OPEN_CONNS", "lots", "db_max_open_conns"},
		{"DB_MAX_OPEN_CONNS", "0", "db_max_open_conns"},
		{"DB_MAX_IDLE_CONNS", "-3", "db_max_idle_conns"},
		{"DB_CONN_MAX_LIFETIME", "forever", "db_conn_max_lifetime"},
		{"DB_CONN_MAX_IDLE_TIME", "-1m", "db_conn_max_idle_time"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearPoolEnv(t)
			t.Setenv("DB_DRIVER", "pgx")
			t.Setenv(tt.key, tt.value)
			m := config.NewConfigMetricsWithRegistry("db_test", prometheus.NewRegistry())

			s := SettingsFromEnv(m, nil)
			assert.Equal(t, DefaultPoolConfig(), s.Pool)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues(tt.field)))
		})
	}
}

func TestOpenSQLite_InMemory(t *testing.T) {
	conn, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	var fk int
	require.NoError(t, conn.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
	assert.Equal(t, 1, conn.Stats().MaxOpenConnections)
}

func TestOpen_SQLite(t *testing.T) {
	conn, err := Open(context.Background(), Settings{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	assert.NoError(t, conn.PingContext(context.Background()))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), Settings{Driver: DriverPostgres})
	assert.ErrorContains(t, err, "DATABASE_URL not set")

	_, err = Open(context.Background(), Settings{Driver: "mysql", DSN: "x"})
	assert.ErrorContains(t, err, `unsupported database driver "mysql"`)
}

func TestOpen_Postgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	conn, err := Open(context.Background(), Settings{Driver: DriverPostgres, DSN: dsn, Pool: DefaultPoolConfig()})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	assert.Equal(t, DefaultPoolConfig().MaxOpenConns, conn.Stats().MaxOpenConnections)
}
