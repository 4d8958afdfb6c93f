package tombstones

import (
	"context"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, t *models.Tombstone) error
	Get(ctx context.Context, entity models.EntityType, id string) (*models.Tombstone, error)
	SelectSince(ctx context.Context, entity models.EntityType, after, upto int64, v models.Visibility) ([]*models.Tombstone, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}
