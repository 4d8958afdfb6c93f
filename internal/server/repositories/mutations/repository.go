package mutations

import (
	"context"

	"github.com/dmitrijs2005/teamsync/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, m *models.AppliedMutation) error
	Get(ctx context.Context, ownerID, clientMutationID string) (*models.AppliedMutation, error)
}
