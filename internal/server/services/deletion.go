package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

// DeletionPropagator soft-deletes records and leaves tombstones that delta
// queries hand to clients until retention purges them.
type DeletionPropagator struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	clock       timex.Clock
}

func NewDeletionPropagator(db *sql.DB, repomanager repomanager.RepositoryManager, clock timex.Clock) *DeletionPropagator {
	return &DeletionPropagator{
		db:          db,
		repomanager: repomanager,
		clock:       clock,
	}
}

// Delete removes entity/id on behalf of scope. clientTimestamp is when the
// client observed the deletion; zero means now. A record updated at or after
// clientTimestamp is not deleted and *ConflictError is returned. Deleting an
// already deleted record returns its existing tombstone.
func (s *DeletionPropagator) Delete(ctx context.Context, scope models.Scope, entity models.EntityType, id string, clientTimestamp time.Time) (*models.Tombstone, error) {
	if id == "" {
		return nil, newValidationError("id", "is required")
	}

	var ts *models.Tombstone
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// taken first so the read below is serialized with other writers
		seq, err := s.repomanager.Changes(tx).Next(ctx)
		if err != nil {
			return err
		}
		recs := s.repomanager.Records(tx)
		tombs := s.repomanager.Tombstones(tx)

		rec, err := recs.Get(ctx, entity, id)
		if err != nil {
			return err
		}
		if !scope.CanWrite(rec.TeamID, rec.OwnerID) {
			return fmt.Errorf("%w: %s/%s is outside caller scope", common.ErrForbidden, entity, id)
		}
		if rec.Deleted {
			ts, err = tombs.Get(ctx, entity, id)
			return err
		}

		now := timex.Truncate(s.clock())
		deletedAt := now
		if !clientTimestamp.IsZero() {
			deletedAt = timex.Truncate(clientTimestamp)
			if !deletedAt.After(rec.UpdatedAt) {
				return &ConflictError{Current: rec}
			}
		}
		if deletedAt.Before(rec.UpdatedAt) {
			deletedAt = rec.UpdatedAt
		}

		if err := recs.SoftDelete(ctx, entity, id, now, seq); err != nil {
			return err
		}
		ts = &models.Tombstone{
			EntityType: entity,
			ID:         id,
			TeamID:     rec.TeamID,
			OwnerID:    rec.OwnerID,
			DeletedAt:  deletedAt,
			SyncedAt:   now,
			ChangeSeq:  seq,
		}
		if err := tombs.Insert(ctx, ts); err != nil {
			if errors.Is(err, common.ErrDuplicate) {
				return errReplay
			}
			return err
		}
		return nil
	})

	if errors.Is(err, errReplay) || errors.Is(err, common.ErrorNotFound) {
		// a concurrent delete won; its tombstone is the answer
		if existing, terr := s.repomanager.Tombstones(s.db).Get(ctx, entity, id); terr == nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// PurgeStats counts rows removed by one Purge run.
type PurgeStats struct {
	Records    int64
	Tombstones int64
}

// Purge physically removes soft-deleted records and tombstones written
// before olderThan. Records go first so no row is left without its marker.
func (s *DeletionPropagator) Purge(ctx context.Context, olderThan time.Time) (PurgeStats, error) {
	var stats PurgeStats
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := s.repomanager.Records(tx).PurgeDeleted(ctx, olderThan)
		if err != nil {
			return err
		}
		stats.Records = n

		n, err = s.repomanager.Tombstones(tx).DeleteOlderThan(ctx, olderThan)
		if err != nil {
			return err
		}
		stats.Tombstones = n
		return nil
	})
	if err != nil {
		return PurgeStats{}, err
	}
	return stats, nil
}
