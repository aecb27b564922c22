// Package institutions stores institutions and their member rosters.
package institutions

import (
	"context"

	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, inst *models.Institution) error
	GetByID(ctx context.Context, institutionID string) (*models.Institution, error)
	GetByAdmin(ctx context.Context, adminID string) (*models.Institution, error)
	GetByJoinCode(ctx context.Context, joinCode string) (*models.Institution, error)
	JoinCodeTaken(ctx context.Context, joinCode string) (bool, error)
	AddMember(ctx context.Context, institutionID, userID string) error
	RemoveMember(ctx context.Context, institutionID, userID string) error
	SetSubscription(ctx context.Context, institutionID, subscriptionID string) error
	Delete(ctx context.Context, institutionID string) error
}
