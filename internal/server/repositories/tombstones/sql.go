// Package tombstones stores deletion markers so clients can purge records
// removed on the server. Markers live until the retention worker drops them.
package tombstones

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

const tombstoneColumns = `entity_type, id, team_id, owner_id, deleted_at, synced_at, change_seq`

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

// Insert writes a tombstone. A second tombstone for the same record yields
// common.ErrDuplicate.
func (r *SQLRepository) Insert(ctx context.Context, t *models.Tombstone) error {
	query := `
		INSERT INTO tombstones (` + tombstoneColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_type, id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		string(t.EntityType), t.ID, t.TeamID, t.OwnerID, timex.ToMicros(t.DeletedAt), timex.ToMicros(t.SyncedAt), t.ChangeSeq)
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

func (r *SQLRepository) Get(ctx context.Context, entity models.EntityType, id string) (*models.Tombstone, error) {
	query := `SELECT ` + tombstoneColumns + ` FROM tombstones WHERE entity_type = $1 AND id = $2`

	t, err := scanTombstone(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), string(entity), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// SelectSince returns tombstones of one entity type stamped in (after, upto]
// and visible under v.
func (r *SQLRepository) SelectSince(ctx context.Context, entity models.EntityType, after, upto int64, v models.Visibility) ([]*models.Tombstone, error) {
	clause, vargs := repositories.VisibilityClause(v, 4)
	query := `SELECT ` + tombstoneColumns + ` FROM tombstones
		WHERE entity_type = $1 AND change_seq > $2 AND change_seq <= $3 AND ` + clause + `
		ORDER BY change_seq, id`

	args := append([]any{string(entity), after, upto}, vargs...)
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select tombstones: %w", err)
	}
	defer rows.Close()

	var result []*models.Tombstone
	for rows.Next() {
		t, err := scanTombstone(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteOlderThan drops tombstones written before olderThan and reports how
// many were removed.
func (r *SQLRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM tombstones WHERE synced_at < $1`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), timex.ToMicros(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTombstone(row rowScanner) (*models.Tombstone, error) {
	var (
		t                   models.Tombstone
		entity              string
		deletedAt, syncedAt int64
	)
	if err := row.Scan(&entity, &t.ID, &t.TeamID, &t.OwnerID, &deletedAt, &syncedAt, &t.ChangeSeq); err != nil {
		return nil, err
	}
	t.EntityType = models.EntityType(entity)
	t.DeletedAt = timex.FromMicros(deletedAt)
	t.SyncedAt = timex.FromMicros(syncedAt)
	return &t, nil
}
