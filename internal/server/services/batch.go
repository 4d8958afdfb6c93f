package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
)

// ItemStatus is the per-item outcome of a batch.
type ItemStatus string

const (
	StatusApplied   ItemStatus = "applied"
	StatusConflict  ItemStatus = "conflict"
	StatusForbidden ItemStatus = "forbidden"
	StatusInvalid   ItemStatus = "invalid"
	StatusNotFound  ItemStatus = "not_found"
	StatusError     ItemStatus = "error"
)

// ItemRef identifies a batch item the way the client submitted it.
type ItemRef struct {
	Index            int
	Entity           models.EntityType
	ID               string
	TempID           string
	ClientMutationID string
}

type ItemResult struct {
	Ref           ItemRef
	Status        ItemStatus
	ServerID      string
	Detail        string
	Fields        map[string]string
	Record        *models.Record
	ServerVersion *models.Record
}

type BatchResult struct {
	Results    []ItemResult
	IDMappings []*models.IDMapping
}

// Counts tallies results by status.
func (r *BatchResult) Counts() map[ItemStatus]int {
	out := make(map[ItemStatus]int)
	for _, it := range r.Results {
		out[it.Status]++
	}
	return out
}

// BatchReconciler applies a client's queued mutations one by one. Each item
// succeeds or fails on its own; the batch is not a transaction.
type BatchReconciler struct {
	resolver *ConflictResolver
	mapper   *IDMapper
	logger   logging.Logger
}

func NewBatchReconciler(resolver *ConflictResolver, mapper *IDMapper, logger logging.Logger) *BatchReconciler {
	return &BatchReconciler{
		resolver: resolver,
		mapper:   mapper,
		logger:   logger.With("module", "batch"),
	}
}

// Reconcile returns exactly one result per item, in submission order.
func (b *BatchReconciler) Reconcile(ctx context.Context, scope models.Scope, items []*models.PendingMutation) *BatchResult {
	res := &BatchResult{
		Results:    make([]ItemResult, 0, len(items)),
		IDMappings: []*models.IDMapping{},
	}

	for i, m := range items {
		ref := ItemRef{
			Index:            i,
			Entity:           m.EntityType,
			ID:               m.ID,
			TempID:           m.TempID,
			ClientMutationID: m.ClientMutationID,
		}
		result := b.apply(ctx, scope, ref, m)
		if result.Status == StatusApplied && m.IsCreate() {
			res.IDMappings = append(res.IDMappings, &models.IDMapping{
				OwnerID:    scope.UserID,
				TempID:     m.TempID,
				EntityType: m.EntityType,
				ServerID:   result.ServerID,
			})
		}
		res.Results = append(res.Results, result)
	}

	return res
}

func (b *BatchReconciler) apply(ctx context.Context, scope models.Scope, ref ItemRef, m *models.PendingMutation) ItemResult {
	if len(m.Malformed) > 0 {
		return b.failure(ctx, ref, &ValidationError{Fields: m.Malformed})
	}
	if _, err := models.ParseEntityType(string(m.EntityType)); err != nil {
		return ItemResult{Ref: ref, Status: StatusInvalid, Detail: err.Error()}
	}
	if (m.ID == "") == (m.TempID == "") {
		return ItemResult{Ref: ref, Status: StatusInvalid, Detail: "exactly one of id or tempId is required"}
	}

	var (
		applied *Applied
		err     error
	)
	if m.IsCreate() {
		applied, err = b.mapper.Create(ctx, scope, m)
	} else {
		applied, err = b.resolver.Resolve(ctx, scope, m)
	}
	if err != nil {
		return b.failure(ctx, ref, err)
	}

	out := ItemResult{Ref: ref, Status: StatusApplied, ServerID: applied.Record.ID, Record: applied.Record}
	if applied.Replayed {
		out.Detail = "duplicate"
	}
	return out
}

func (b *BatchReconciler) failure(ctx context.Context, ref ItemRef, err error) ItemResult {
	out := ItemResult{Ref: ref, Detail: err.Error()}

	var (
		conflict *ConflictError
		invalid  *ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		out.Status = StatusConflict
		out.ServerVersion = conflict.Current
	case errors.As(err, &invalid):
		out.Status = StatusInvalid
		out.Fields = invalid.Fields
	case errors.Is(err, common.ErrForbidden):
		out.Status = StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		out.Status = StatusNotFound
	default:
		b.logger.Error(ctx, "batch item failed", "index", ref.Index, "entity", ref.Entity, "error", err)
		out.Status = StatusError
		out.Detail = common.ErrorInternal.Error()
	}
	return out
}
