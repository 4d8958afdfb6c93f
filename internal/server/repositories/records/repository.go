package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/server/models"
)

// Repository is the authoritative record store. CompareAndSet is the single
// atomic primitive the conflict resolver relies on.
type Repository interface {
	Get(ctx context.Context, entity models.EntityType, id string) (*models.Record, error)
	Insert(ctx context.Context, r *models.Record) error
	CompareAndSet(ctx context.Context, r *models.Record) error
	SoftDelete(ctx context.Context, entity models.EntityType, id string, syncedAt time.Time, seq int64) error
	SelectChanged(ctx context.Context, entity models.EntityType, after, upto int64, v models.Visibility) ([]*models.Record, error)
	PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error)
}
