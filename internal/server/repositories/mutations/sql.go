// Package mutations keeps the ledger of applied client mutation ids so a
// retried submission is recognised instead of being applied twice.
package mutations

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

// Insert records an applied mutation; common.ErrDuplicate means another
// request already applied the same client mutation id.
func (r *SQLRepository) Insert(ctx context.Context, m *models.AppliedMutation) error {
	query := `
		INSERT INTO applied_mutations (owner_id, client_mutation_id, entity_type, record_id, updated_at, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, client_mutation_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		m.OwnerID, m.ClientMutationID, string(m.EntityType), m.RecordID,
		timex.ToMicros(m.UpdatedAt), timex.ToMicros(m.AppliedAt))
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

func (r *SQLRepository) Get(ctx context.Context, ownerID, clientMutationID string) (*models.AppliedMutation, error) {
	query := `
		SELECT owner_id, client_mutation_id, entity_type, record_id, updated_at, applied_at
		FROM applied_mutations WHERE owner_id = $1 AND client_mutation_id = $2
	`
	var (
		m                    models.AppliedMutation
		entity               string
		updatedAt, appliedAt int64
	)
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), ownerID, clientMutationID).
		Scan(&m.OwnerID, &m.ClientMutationID, &entity, &m.RecordID, &updatedAt, &appliedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	m.EntityType = models.EntityType(entity)
	m.UpdatedAt = timex.FromMicros(updatedAt)
	m.AppliedAt = timex.FromMicros(appliedAt)
	return &m, nil
}
