// Package idmappings persists the permanent tempId -> serverId table used to
// reconcile records created while a client was offline.
package idmappings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewPostgresRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db, dialect: dbx.Postgres}
}

func NewSQLiteRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db, dialect: dbx.SQLite}
}

// Insert stores a mapping unless one already exists for (owner, tempId), in
// which case common.ErrDuplicate is returned and nothing is written.
func (r *SQLRepository) Insert(ctx context.Context, m *models.IDMapping) error {
	query := `
		INSERT INTO id_mappings (owner_id, temp_id, entity_type, server_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, temp_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		m.OwnerID, m.TempID, string(m.EntityType), m.ServerID, timex.ToMicros(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrDuplicate
	}
	return nil
}

// Get returns the mapping for tempID minted by ownerID or common.ErrorNotFound.
func (r *SQLRepository) Get(ctx context.Context, ownerID, tempID string) (*models.IDMapping, error) {
	query := `
		SELECT owner_id, temp_id, entity_type, server_id, created_at
		FROM id_mappings WHERE owner_id = $1 AND temp_id = $2
	`
	var (
		m         models.IDMapping
		entity    string
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), ownerID, tempID).
		Scan(&m.OwnerID, &m.TempID, &entity, &m.ServerID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	m.EntityType = models.EntityType(entity)
	m.CreatedAt = timex.FromMicros(createdAt)
	return &m, nil
}
