// Package changes stores the change sequence counter that orders every write
// to records and tombstones for delta queries.
package changes

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/teamsync/internal/dbx"
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

// Next increments the counter and returns the new value.
func (r *SQLRepository) Next(ctx context.Context) (int64, error) {
	query := `UPDATE change_counter SET seq = seq + 1 WHERE id = 1 RETURNING seq`

	var seq int64
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query)).Scan(&seq); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return seq, nil
}

// Current returns the highest committed sequence number. Every row stamped
// with a number at or below it is already visible to readers.
func (r *SQLRepository) Current(ctx context.Context) (int64, error) {
	query := `SELECT seq FROM change_counter WHERE id = 1`

	var seq int64
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query)).Scan(&seq); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return seq, nil
}
