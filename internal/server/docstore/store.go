// Package docstore persists documents. It knows nothing about encryption:
// documents arrive already encrypted and indexed, and filters are index
// hashes.
package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
)

// ErrConflict reports a transaction that lost a race with a concurrent one
// and may be retried from scratch.
var ErrConflict = errors.New("transaction conflict")

// Filter selects documents whose lookup entry Field equals Hash.
type Filter struct {
	Field string
	Hash  string
}

// Store is the document-level API shared by all backends, both inside and
// outside a transaction.
type Store interface {
	Insert(ctx context.Context, doc *models.Document) error
	Find(ctx context.Context, collection string, f Filter) ([]*models.Document, error)
	Update(ctx context.Context, collection string, f Filter, p models.Patch) (int64, error)
	Delete(ctx context.Context, collection string, f Filter) (int64, error)
	DeleteCreatedBefore(ctx context.Context, collection string, cutoff time.Time) (int64, error)
}

// Backend owns the connection to the storage tier.
type Backend interface {
	// Store returns a Store whose operations each commit on their own.
	Store() Store
	// WithTx runs fn in a transaction. All writes made through the Store
	// passed to fn land together or not at all. ErrConflict is returned
	// when the transaction cannot be serialized.
	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
