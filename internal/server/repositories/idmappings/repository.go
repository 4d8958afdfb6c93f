package idmappings

import (
	"context"

	"github.com/dmitrijs2005/teamsync/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, m *models.IDMapping) error
	Get(ctx context.Context, ownerID, tempID string) (*models.IDMapping, error)
}
