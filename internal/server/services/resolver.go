package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

// Applied is the outcome of a successfully applied mutation. Replayed is set
// when the same clientMutationId or tempId had already been applied and the
// stored outcome is returned instead of writing again.
type Applied struct {
	Record   *models.Record
	Replayed bool
}

// errReplay aborts a transaction that lost a race against an identical
// submission; the caller then reports the stored outcome.
var errReplay = errors.New("mutation already applied")

// ConflictResolver applies whole-record last-writer-wins updates.
type ConflictResolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validator   *PayloadValidator
	clock       timex.Clock
}

func NewConflictResolver(db *sql.DB, repomanager repomanager.RepositoryManager, validator *PayloadValidator, clock timex.Clock) *ConflictResolver {
	return &ConflictResolver{
		db:          db,
		repomanager: repomanager,
		validator:   validator,
		clock:       clock,
	}
}

// Resolve applies m to the existing record m.ID when m.ClientTimestamp is
// strictly newer than the stored version, and returns *ConflictError
// otherwise. The version check and write are a single compare-and-set, so
// concurrent submissions for one record never lose an update.
func (r *ConflictResolver) Resolve(ctx context.Context, scope models.Scope, m *models.PendingMutation) (*Applied, error) {
	if m.ID == "" {
		return nil, newValidationError("id", "is required")
	}
	if m.ClientTimestamp.IsZero() {
		return nil, newValidationError("clientTimestamp", "is required")
	}

	if prior, err := r.replay(ctx, scope, m.ClientMutationID); err == nil {
		return prior, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	current, err := r.repomanager.Records(r.db).Get(ctx, m.EntityType, m.ID)
	if err != nil {
		return nil, err
	}
	if current.Deleted {
		return nil, fmt.Errorf("%w: %s/%s was deleted", common.ErrorNotFound, m.EntityType, m.ID)
	}
	if !scope.CanWrite(current.TeamID, current.OwnerID) {
		return nil, fmt.Errorf("%w: %s/%s is outside caller scope", common.ErrForbidden, m.EntityType, m.ID)
	}
	if m.TeamID != "" && m.TeamID != current.TeamID {
		return nil, newValidationError("teamId", "cannot move a record to another team")
	}
	if err := r.validator.Validate(m.EntityType, m.Payload); err != nil {
		return nil, err
	}

	next := *current
	next.Payload = m.Payload
	next.UpdatedAt = timex.Truncate(m.ClientTimestamp)
	next.SyncedAt = timex.Truncate(r.clock())

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		seq, err := r.repomanager.Changes(tx).Next(ctx)
		if err != nil {
			return err
		}
		next.ChangeSeq = seq

		recs := r.repomanager.Records(tx)
		if err := recs.CompareAndSet(ctx, &next); err != nil {
			if !errors.Is(err, common.ErrVersionConflict) {
				return err
			}
			latest, gerr := recs.Get(ctx, m.EntityType, m.ID)
			if gerr != nil {
				return gerr
			}
			if latest.Deleted {
				return fmt.Errorf("%w: %s/%s was deleted", common.ErrorNotFound, m.EntityType, m.ID)
			}
			return &ConflictError{Current: latest}
		}
		return recordMutation(ctx, r.repomanager, tx, scope, m, &next)
	})

	switch {
	case err == nil:
		return &Applied{Record: &next}, nil
	case errors.Is(err, errReplay), errors.Is(err, common.ErrVersionConflict):
		// an identical submission may have won the race and moved the version
		if prior, perr := r.replay(ctx, scope, m.ClientMutationID); perr == nil {
			return prior, nil
		}
	}
	return nil, err
}

// replay returns the stored outcome of clientMutationID, or
// common.ErrorNotFound when it has not been applied yet.
func (r *ConflictResolver) replay(ctx context.Context, scope models.Scope, clientMutationID string) (*Applied, error) {
	return replayMutation(ctx, r.db, r.repomanager, scope, clientMutationID)
}

func replayMutation(ctx context.Context, db *sql.DB, rm repomanager.RepositoryManager, scope models.Scope, clientMutationID string) (*Applied, error) {
	if clientMutationID == "" {
		return nil, common.ErrorNotFound
	}
	prior, err := rm.Mutations(db).Get(ctx, scope.UserID, clientMutationID)
	if err != nil {
		return nil, err
	}
	rec, err := rm.Records(db).Get(ctx, prior.EntityType, prior.RecordID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		// purged since; the id is all the client needs
		rec = &models.Record{EntityType: prior.EntityType, ID: prior.RecordID, UpdatedAt: prior.UpdatedAt, Deleted: true}
	}
	return &Applied{Record: rec, Replayed: true}, nil
}

// recordMutation writes the idempotence ledger entry inside tx.
func recordMutation(ctx context.Context, rm repomanager.RepositoryManager, tx dbx.DBTX, scope models.Scope, m *models.PendingMutation, rec *models.Record) error {
	if m.ClientMutationID == "" {
		return nil
	}
	err := rm.Mutations(tx).Insert(ctx, &models.AppliedMutation{
		OwnerID:          scope.UserID,
		ClientMutationID: m.ClientMutationID,
		EntityType:       rec.EntityType,
		RecordID:         rec.ID,
		UpdatedAt:        rec.UpdatedAt,
		AppliedAt:        rec.SyncedAt,
	})
	if errors.Is(err, common.ErrDuplicate) {
		return errReplay
	}
	return err
}
