// Package payments stores per-account payment profiles.
package payments

import (
	"context"

	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.PaymentProfile) error
	GetByUserID(ctx context.Context, userID string) (*models.PaymentProfile, error)
	SetInstitution(ctx context.Context, userID, institutionID string) error
	ResetInstitution(ctx context.Context, institutionID string) (int64, error)
	SetSubscription(ctx context.Context, userID, subscriptionID string) error
	MarkPaid(ctx context.Context, userID, courseID string) error
	Delete(ctx context.Context, userID string) error
}
