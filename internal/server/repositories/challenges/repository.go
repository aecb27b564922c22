// Package challenges stores the MFA challenge of each account.
package challenges

import (
	"context"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
)

type Repository interface {
	// Create adds an empty challenge for a new account.
	Create(ctx context.Context, userID string) error
	// Put replaces the current code, discarding any previous one.
	Put(ctx context.Context, userID, code string, issuedAt time.Time) error
	Get(ctx context.Context, userID string) (*models.AuthChallenge, error)
	// RecordFailure stores the number of wrong codes entered so far.
	RecordFailure(ctx context.Context, userID string, attempts int) error
	// Consume clears the code so it cannot be used again.
	Consume(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string) error
}
