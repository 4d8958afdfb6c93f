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
	"github.com/google/uuid"
)

// IDMapper turns records created offline under a client-minted tempId into
// server records, exactly once per (caller, tempId).
type IDMapper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validator   *PayloadValidator
	clock       timex.Clock
	newID       func() string
}

func NewIDMapper(db *sql.DB, repomanager repomanager.RepositoryManager, validator *PayloadValidator, clock timex.Clock) *IDMapper {
	return &IDMapper{
		db:          db,
		repomanager: repomanager,
		validator:   validator,
		clock:       clock,
		newID:       uuid.NewString,
	}
}

// Create stores the record described by m and maps m.TempID to its new
// server id. Retrying a creation whose mapping exists returns the mapped
// record with Replayed set and writes nothing.
func (s *IDMapper) Create(ctx context.Context, scope models.Scope, m *models.PendingMutation) (*Applied, error) {
	if m.TempID == "" {
		return nil, newValidationError("tempId", "is required")
	}

	if prior, err := s.lookupApplied(ctx, scope, m); err == nil {
		return prior, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	if m.EntityType != models.EntityTeam && m.TeamID == "" {
		return nil, newValidationError("teamId", "is required")
	}
	if !scope.CanCreate(m.EntityType, m.TeamID) {
		return nil, fmt.Errorf("%w: cannot create %s in team %q", common.ErrForbidden, m.EntityType, m.TeamID)
	}
	if err := s.validator.Validate(m.EntityType, m.Payload); err != nil {
		return nil, err
	}

	now := timex.Truncate(s.clock())
	serverID := s.newID()

	rec := &models.Record{
		EntityType: m.EntityType,
		ID:         serverID,
		TeamID:     m.TeamID,
		OwnerID:    scope.UserID,
		Payload:    m.Payload,
		UpdatedAt:  now,
		SyncedAt:   now,
	}
	// a team is its own scope
	if m.EntityType == models.EntityTeam {
		rec.TeamID = serverID
	}
	if !m.ClientTimestamp.IsZero() {
		rec.UpdatedAt = timex.Truncate(m.ClientTimestamp)
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		seq, err := s.repomanager.Changes(tx).Next(ctx)
		if err != nil {
			return err
		}
		rec.ChangeSeq = seq

		err = s.repomanager.IDMappings(tx).Insert(ctx, &models.IDMapping{
			OwnerID:    scope.UserID,
			TempID:     m.TempID,
			EntityType: m.EntityType,
			ServerID:   serverID,
			CreatedAt:  now,
		})
		if errors.Is(err, common.ErrDuplicate) {
			return errReplay
		}
		if err != nil {
			return err
		}
		if err := s.repomanager.Records(tx).Insert(ctx, rec); err != nil {
			return err
		}
		return recordMutation(ctx, s.repomanager, tx, scope, m, rec)
	})
	if errors.Is(err, errReplay) {
		return s.lookupApplied(ctx, scope, m)
	}
	if err != nil {
		return nil, err
	}
	return &Applied{Record: rec}, nil
}

// Lookup returns the mapping for tempID created by ownerID.
func (s *IDMapper) Lookup(ctx context.Context, ownerID, tempID string) (*models.IDMapping, error) {
	return s.repomanager.IDMappings(s.db).Get(ctx, ownerID, tempID)
}

// lookupApplied finds an earlier application of m by clientMutationId or by
// tempId, in that order.
func (s *IDMapper) lookupApplied(ctx context.Context, scope models.Scope, m *models.PendingMutation) (*Applied, error) {
	if prior, err := replayMutation(ctx, s.db, s.repomanager, scope, m.ClientMutationID); err == nil {
		return prior, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	mapping, err := s.Lookup(ctx, scope.UserID, m.TempID)
	if err != nil {
		return nil, err
	}
	if mapping.EntityType != m.EntityType {
		return nil, newValidationError("tempId", fmt.Sprintf("already used for a %s", mapping.EntityType))
	}

	rec, err := s.repomanager.Records(s.db).Get(ctx, mapping.EntityType, mapping.ServerID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		rec = &models.Record{EntityType: mapping.EntityType, ID: mapping.ServerID, Deleted: true}
	}
	return &Applied{Record: rec, Replayed: true}, nil
}
