package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/checkpoint"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

// DeltaResult is the set of changes a client must apply to catch up with the
// server, per entity type, and the checkpoint to present next time.
type DeltaResult struct {
	Updates   map[models.EntityType][]*models.Record
	Deletions map[models.EntityType][]*models.Tombstone
	SyncTime  string
	SyncedAt  time.Time
}

// Empty reports whether the result carries no changes at all.
func (r *DeltaResult) Empty() bool {
	for _, u := range r.Updates {
		if len(u) > 0 {
			return false
		}
	}
	for _, d := range r.Deletions {
		if len(d) > 0 {
			return false
		}
	}
	return true
}

type DeltaEngine struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *checkpoint.Codec
	retention   time.Duration
	clock       timex.Clock
}

func NewDeltaEngine(db *sql.DB, repomanager repomanager.RepositoryManager, codec *checkpoint.Codec,
	retention time.Duration, clock timex.Clock) *DeltaEngine {
	return &DeltaEngine{
		db:          db,
		repomanager: repomanager,
		codec:       codec,
		retention:   retention,
		clock:       clock,
	}
}

// writeGrace bounds how long before its checkpoint a change may have been
// stamped by the server clock. Retention keeps tombstones for the full window,
// so checkpoints are only honoured while that window still covers this slack.
const writeGrace = time.Minute

// Delta returns records and tombstones changed after token that scope may
// see. entities narrows the result; nil means every entity type.
//
// Changes are selected by change sequence number, not by clock: the result
// covers everything committed up to the counter value read at the start, and
// that value becomes the next checkpoint. A write still in flight holds a
// higher number and is picked up by the following delta.
//
// A token older than the tombstone retention window yields
// common.ErrResyncRequired because deletions before the window may already
// have been purged.
func (e *DeltaEngine) Delta(ctx context.Context, scope models.Scope, token string, entities []models.EntityType) (*DeltaResult, error) {
	now := timex.Truncate(e.clock())

	since, err := e.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if !since.IsZero() && e.retention > 0 && since.Time.Before(now.Add(-e.retention+writeGrace)) {
		return nil, fmt.Errorf("%w: checkpoint %s is older than the %s retention window",
			common.ErrResyncRequired, since.Time.Format(time.RFC3339), e.retention)
	}

	watermark, err := e.repomanager.Changes(e.db).Current(ctx)
	if err != nil {
		return nil, err
	}

	after := since.Seq
	if since.IsZero() {
		// rows migrated in before sequencing carry 0
		after = -1
	}
	if after > watermark {
		after = watermark
	}

	if len(entities) == 0 {
		entities = models.EntityTypes
	}

	vis := scope.Visibility()
	records := e.repomanager.Records(e.db)
	tombstones := e.repomanager.Tombstones(e.db)

	res := &DeltaResult{
		Updates:   make(map[models.EntityType][]*models.Record, len(entities)),
		Deletions: make(map[models.EntityType][]*models.Tombstone, len(entities)),
		SyncTime:  e.codec.Encode(checkpoint.Position{Time: now, Seq: watermark}),
		SyncedAt:  now,
	}

	for _, et := range entities {
		var deleted []*models.Tombstone
		// a first sync has nothing cached locally to remove
		if !since.IsZero() {
			deleted, err = tombstones.SelectSince(ctx, et, after, watermark, vis)
			if err != nil {
				return nil, err
			}
		}

		changed, err := records.SelectChanged(ctx, et, after, watermark, vis)
		if err != nil {
			return nil, err
		}

		res.Updates[et] = supersede(changed, deleted)
		res.Deletions[et] = orEmpty(deleted)
	}

	return res, nil
}

// supersede drops updates for ids that also appear as deletions.
func supersede(updates []*models.Record, deletions []*models.Tombstone) []*models.Record {
	if len(deletions) == 0 {
		return orEmpty(updates)
	}
	gone := make(map[string]struct{}, len(deletions))
	for _, d := range deletions {
		gone[d.ID] = struct{}{}
	}
	out := make([]*models.Record, 0, len(updates))
	for _, u := range updates {
		if _, ok := gone[u.ID]; !ok {
			out = append(out, u)
		}
	}
	return out
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
