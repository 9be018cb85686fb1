// Package persistence selects the repository implementations that match the
// opened database driver.
package persistence

import (
	"database/sql"

	"storyline/internal/infra/adapter/persistence/postgres"
	"storyline/internal/infra/adapter/persistence/sqlite"
	"storyline/internal/infra/db"
	"storyline/internal/repository"
)

// Repositories bundles every store the binaries use.
type Repositories struct {
	Articles   repository.ArticleRepository
	Embeddings repository.ArticleEmbeddingRepository
	Sources    repository.SourceRepository
	Stories    repository.StoryRepository
	Quota      repository.QuotaRepository
}

// New returns the repositories for driver, which is db.DriverPostgres or
// db.DriverSQLite.
func New(conn *sql.DB, driver string) Repositories {
	if driver == db.DriverSQLite {
		return Repositories{
			Articles:   sqlite.NewArticleRepo(conn),
			Embeddings: sqlite.NewArticleEmbeddingRepo(conn),
			Sources:    sqlite.NewSourceRepo(conn),
			Stories:    sqlite.NewStoryRepo(conn),
			Quota:      sqlite.NewQuotaRepo(conn),
		}
	}
	return Repositories{
		Articles:   postgres.NewArticleRepo(conn),
		Embeddings: postgres.NewArticleEmbeddingRepo(conn),
		Sources:    postgres.NewSourceRepo(conn),
		Stories:    postgres.NewStoryRepo(conn),
		Quota:      postgres.NewQuotaRepo(conn),
	}
}
