// Package records provides the SQL-backed record store for synchronized
// entities, shared by the PostgreSQL and SQLite backends.
package records

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

const recordColumns = `entity_type, id, team_id, owner_id, payload, updated_at, synced_at, change_seq, deleted`

// SQLRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

// NewPostgresRepository constructs a repository bound to a PostgreSQL DBTX.
func NewPostgresRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db, dialect: dbx.Postgres}
}

// NewSQLiteRepository constructs a repository bound to a SQLite DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db, dialect: dbx.SQLite}
}

// Get returns the record including soft-deleted rows, or common.ErrorNotFound.
func (r *SQLRepository) Get(ctx context.Context, entity models.EntityType, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE entity_type = $1 AND id = $2`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), string(entity), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Insert stores a new record.
func (r *SQLRepository) Insert(ctx context.Context, rec *models.Record) error {
	query := `
		INSERT INTO records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
	`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		string(rec.EntityType), rec.ID, rec.TeamID, rec.OwnerID, string(rec.Payload),
		timex.ToMicros(rec.UpdatedAt), timex.ToMicros(rec.SyncedAt), rec.ChangeSeq)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// CompareAndSet replaces payload and version of a live record only when the
// stored updated_at is strictly older than rec.UpdatedAt. If no row matches,
// common.ErrVersionConflict is returned and the caller decides whether the
// record is missing, deleted or simply newer.
func (r *SQLRepository) CompareAndSet(ctx context.Context, rec *models.Record) error {
	query := `
		UPDATE records
		SET payload = $1, updated_at = $2, synced_at = $3, change_seq = $4
		WHERE entity_type = $5 AND id = $6 AND deleted = FALSE AND updated_at < $2
	`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		string(rec.Payload), timex.ToMicros(rec.UpdatedAt), timex.ToMicros(rec.SyncedAt), rec.ChangeSeq,
		string(rec.EntityType), rec.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// SoftDelete flags a live record as deleted. Deleting an already deleted or
// unknown record returns common.ErrorNotFound.
func (r *SQLRepository) SoftDelete(ctx context.Context, entity models.EntityType, id string, syncedAt time.Time, seq int64) error {
	query := `
		UPDATE records SET deleted = TRUE, synced_at = $1, change_seq = $2
		WHERE entity_type = $3 AND id = $4 AND deleted = FALSE
	`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), timex.ToMicros(syncedAt), seq, string(entity), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// SelectChanged returns live records of one entity type whose change_seq lies
// in (after, upto] and that are visible under v.
func (r *SQLRepository) SelectChanged(ctx context.Context, entity models.EntityType, after, upto int64, v models.Visibility) ([]*models.Record, error) {
	clause, vargs := repositories.VisibilityClause(v, 4)
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE entity_type = $1 AND change_seq > $2 AND change_seq <= $3 AND deleted = FALSE AND ` + clause + `
		ORDER BY change_seq, id`

	args := append([]any{string(entity), after, upto}, vargs...)
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PurgeDeleted physically removes soft-deleted rows whose tombstone is older
// than olderThan. It must run before the tombstones themselves are purged.
func (r *SQLRepository) PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM records
		WHERE deleted = TRUE AND (entity_type, id) IN (
			SELECT entity_type, id FROM tombstones WHERE synced_at < $1
		)
	`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), timex.ToMicros(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge records: %w", err)
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

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec                 models.Record
		entity              string
		payload             []byte
		updatedAt, syncedAt int64
	)
	if err := row.Scan(&entity, &rec.ID, &rec.TeamID, &rec.OwnerID, &payload, &updatedAt, &syncedAt, &rec.ChangeSeq, &rec.Deleted); err != nil {
		return nil, err
	}
	rec.EntityType = models.EntityType(entity)
	rec.Payload = payload
	rec.UpdatedAt = timex.FromMicros(updatedAt)
	rec.SyncedAt = timex.FromMicros(syncedAt)
	return &rec, nil
}
