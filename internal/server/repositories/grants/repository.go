// Package grants stores session grants, the server-side half of every
// issued session token.
package grants

import (
	"context"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, g *models.SessionGrant) error
	Get(ctx context.Context, tokenID string) (*models.SessionGrant, error)
	ListByUser(ctx context.Context, userID string) ([]*models.SessionGrant, error)
	Delete(ctx context.Context, tokenID string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
