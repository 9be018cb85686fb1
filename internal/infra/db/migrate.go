package db

import (
	"database/sql"
	"fmt"
)

// postgresSchema is applied in order by MigrateUp.
// story_articles is keyed by article_id: an article belongs to at most one
// story and appears in it once.
var postgresSchema = []string{
	`
CREATE TABLE IF NOT EXISTS sources (
    id              BIGSERIAL PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    feed_url        TEXT NOT NULL,
    bias            INTEGER,
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    last_crawled_at TIMESTAMPTZ
)`,
	`
CREATE TABLE IF NOT EXISTS articles (
    id           BIGSERIAL PRIMARY KEY,
    url          TEXT NOT NULL UNIQUE,
    title        TEXT NOT NULL,
    body         TEXT NOT NULL DEFAULT '',
    source_name  TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ NOT NULL,
    bias         INTEGER,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS stories (
    id             BIGSERIAL PRIMARY KEY,
    title          TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL,
    last_viewed_at TIMESTAMPTZ NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS story_articles (
    article_id BIGINT PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
    story_id   BIGINT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
    added_at   TIMESTAMPTZ NOT NULL
)`,
}

// postgresEmbeddingSchema runs after the pgvector extension is installed.
var postgresEmbeddingSchema = []string{
	`
CREATE TABLE IF NOT EXISTS article_embeddings (
    article_id BIGINT PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
    model      TEXT NOT NULL,
    dimension  INT NOT NULL,
    embedding  vector NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS quota_state (
    id                 SMALLINT PRIMARY KEY CHECK (id = 1),
    rate_limited_until TIMESTAMPTZ,
    remaining          INTEGER NOT NULL DEFAULT -1,
    updated_at         TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_story_articles_story_id ON story_articles(story_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(active) WHERE active = TRUE`,
}

// sqliteSchema mirrors postgresSchema. Timestamps are stored as Unix
// nanoseconds so that comparisons and MAX() order correctly.
var sqliteSchema = []string{
	`
CREATE TABLE IF NOT EXISTS sources (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL UNIQUE,
    feed_url        TEXT NOT NULL,
    bias            INTEGER,
    active          INTEGER NOT NULL DEFAULT 1,
    last_crawled_at INTEGER
)`,
	`
CREATE TABLE IF NOT EXISTS articles (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    url          TEXT NOT NULL UNIQUE,
    title        TEXT NOT NULL,
    body         TEXT NOT NULL DEFAULT '',
    source_name  TEXT NOT NULL DEFAULT '',
    published_at INTEGER NOT NULL,
    bias         INTEGER,
    created_at   INTEGER NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS stories (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    title          TEXT NOT NULL,
    created_at     INTEGER NOT NULL,
    last_viewed_at INTEGER NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS story_articles (
    article_id INTEGER PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
    story_id   INTEGER NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
    added_at   INTEGER NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS article_embeddings (
    article_id INTEGER PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
    model      TEXT NOT NULL,
    dimension  INTEGER NOT NULL,
    embedding  TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS quota_state (
    id                 INTEGER PRIMARY KEY CHECK (id = 1),
    rate_limited_until INTEGER,
    remaining          INTEGER NOT NULL DEFAULT -1,
    updated_at         INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_story_articles_story_id ON story_articles(story_id)`,
}

// MigrateUp creates the PostgreSQL schema. Every statement is idempotent.
func MigrateUp(db *sql.DB) error {
	if err := apply(db, postgresSchema); err != nil {
		return err
	}
	// Fails without superuser or when already installed; a missing extension
	// surfaces on the embeddings table instead.
	_, _ = db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`)
	return apply(db, postgresEmbeddingSchema)
}

// MigrateUpSQLite creates the SQLite schema. Every statement is idempotent.
func MigrateUpSQLite(db *sql.DB) error {
	return apply(db, sqliteSchema)
}

// Migrate runs the schema for driver.
func Migrate(db *sql.DB, driver string) error {
	switch driver {
	case DriverSQLite:
		return MigrateUpSQLite(db)
	case DriverPostgres:
		return MigrateUp(db)
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
}

// MigrateDown drops the matching tables in reverse dependency order.
// Use with caution: this deletes all story and embedding data.
func MigrateDown(db *sql.DB) error {
	return apply(db, []string{
		`DROP TABLE IF EXISTS story_articles`,
		`DROP TABLE IF EXISTS stories`,
		`DROP TABLE IF EXISTS article_embeddings`,
		`DROP TABLE IF EXISTS quota_state`,
	})
}

func apply(db *sql.DB, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
