package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/changes"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/idmappings"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/mutations"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/tombstones"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Records(db dbx.DBTX) records.Repository
	Tombstones(db dbx.DBTX) tombstones.Repository
	IDMappings(db dbx.DBTX) idmappings.Repository
	Mutations(db dbx.DBTX) mutations.Repository
	Changes(db dbx.DBTX) changes.Repository
}
