// Package repomanager vends the record store repositories for one SQL
// backend and runs its schema migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/server/migrations"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/changes"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/idmappings"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/mutations"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/tombstones"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLRepositoryManager binds repositories to PostgreSQL or SQLite.
type SQLRepositoryManager struct {
	dialect dbx.Dialect
}

func (m *SQLRepositoryManager) Dialect() dbx.Dialect {
	return m.dialect
}

func (m *SQLRepositoryManager) Records(db dbx.DBTX) records.Repository {
	if m.dialect == dbx.SQLite {
		return records.NewSQLiteRepository(db)
	}
	return records.NewPostgresRepository(db)
}

func (m *SQLRepositoryManager) Tombstones(db dbx.DBTX) tombstones.Repository {
	if m.dialect == dbx.SQLite {
		return tombstones.NewSQLiteRepository(db)
	}
	return tombstones.NewPostgresRepository(db)
}

func (m *SQLRepositoryManager) IDMappings(db dbx.DBTX) idmappings.Repository {
	if m.dialect == dbx.SQLite {
		return idmappings.NewSQLiteRepository(db)
	}
	return idmappings.NewPostgresRepository(db)
}

func (m *SQLRepositoryManager) Mutations(db dbx.DBTX) mutations.Repository {
	if m.dialect == dbx.SQLite {
		return mutations.NewSQLiteRepository(db)
	}
	return mutations.NewPostgresRepository(db)
}

func (m *SQLRepositoryManager) Changes(db dbx.DBTX) changes.Repository {
	if m.dialect == dbx.SQLite {
		return changes.NewSQLiteRepository(db)
	}
	return changes.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations for the manager's dialect.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.dialect.GooseDialect()); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, m.dialect.String())
}

func NewPostgresRepositoryManager() *SQLRepositoryManager {
	return &SQLRepositoryManager{dialect: dbx.Postgres}
}

func NewSQLiteRepositoryManager() *SQLRepositoryManager {
	return &SQLRepositoryManager{dialect: dbx.SQLite}
}

// Open connects to the database named by driver ("postgres" or "sqlite") and
// returns a manager for it.
func Open(driver, dsn string) (*sql.DB, *SQLRepositoryManager, error) {
	switch driver {
	case "postgres", "pgx", "":
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, NewPostgresRepositoryManager(), nil
	case "sqlite":
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, nil, err
		}
		// SQLite allows a single writer; one connection keeps in-memory
		// databases shared and avoids SQLITE_BUSY inside transactions.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, NewSQLiteRepositoryManager(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
