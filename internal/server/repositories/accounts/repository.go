// Package accounts stores user accounts.
package accounts

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, a *models.Account) error
	GetByUserID(ctx context.Context, userID string) (*models.Account, error)
	// GetCredentials looks an account up by username or email and decrypts
	// only what password verification needs.
	GetCredentials(ctx context.Context, field, identifier string) (*models.Account, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]*models.Account, error)
	UpdateProgress(ctx context.Context, userID string, progress json.RawMessage) error
	UpdatePassword(ctx context.Context, userID string, digest, salt []byte) error
	UpdateMembership(ctx context.Context, userID string, kind models.AccountKind, institutionID string) error
	ResetInstitution(ctx context.Context, institutionID string) (int64, error)
	Delete(ctx context.Context, userID string) error
	// UserHash is the index hash of a user id, used by institution rosters.
	UserHash(userID string) (string, error)
}
