package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory() *MemoryBackend {
	return NewMemoryBackend(map[string][]string{"accounts": {"email"}})
}

func doc(id, email string, created time.Time) *models.Document {
	return &models.Document{
		ID:         id,
		Collection: "accounts",
		Data:       map[string]models.StoredField{"kind": {Raw: []byte(`"individual"`)}},
		Lookup:     map[string]string{"email": email, "institution_id": "inst"},
		CreatedAt:  created,
	}
}

func TestMemory_InsertFindDelete(t *testing.T) {
	ctx := context.Background()
	s := newMemory().Store()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, doc("b", "h2", t0.Add(time.Minute))))
	require.NoError(t, s.Insert(ctx, doc("a", "h1", t0)))

	got, err := s.Find(ctx, "accounts", Filter{Field: "email", Hash: "h1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	all, err := s.Find(ctx, "accounts", Filter{Field: "institution_id", Hash: "inst"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID, "results are ordered by creation time")

	// Returned documents are copies.
	all[0].Lookup["email"] = "mutated"
	again, _ := s.Find(ctx, "accounts", Filter{Field: "email", Hash: "h1"})
	assert.Len(t, again, 1)

	n, err := s.Delete(ctx, "accounts", Filter{Field: "email", Hash: "h1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.Delete(ctx, "accounts", Filter{Field: "email", Hash: "h1"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestMemory_UniqueOnInsertAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := newMemory().Store()

	require.NoError(t, s.Insert(ctx, doc("a", "h1", time.Now())))
	err := s.Insert(ctx, doc("b", "h1", time.Now()))
	require.ErrorIs(t, err, common.ErrorDuplicateKey)

	require.NoError(t, s.Insert(ctx, doc("b", "h2", time.Now())))
	_, err = s.Update(ctx, "accounts", Filter{Field: "email", Hash: "h2"}, models.Patch{Lookup: map[string]string{"email": "h1"}})
	require.ErrorIs(t, err, common.ErrorDuplicateKey)

	// Updating a document to its own value is not a conflict.
	n, err := s.Update(ctx, "accounts", Filter{Field: "email", Hash: "h1"}, models.Patch{Lookup: map[string]string{"email": "h1"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMemory_UpdateUnsetsLookup(t *testing.T) {
	ctx := context.Background()
	s := newMemory().Store()
	require.NoError(t, s.Insert(ctx, doc("a", "h1", time.Now())))

	_, err := s.Update(ctx, "accounts", Filter{Field: "email", Hash: "h1"}, models.Patch{UnsetLookup: []string{"institution_id"}})
	require.NoError(t, err)

	got, _ := s.Find(ctx, "accounts", Filter{Field: "institution_id", Hash: "inst"})
	assert.Empty(t, got)
}

func TestMemory_DeleteCreatedBefore(t *testing.T) {
	ctx := context.Background()
	s := newMemory().Store()
	now := time.Now()

	require.NoError(t, s.Insert(ctx, doc("old", "h1", now.Add(-2*time.Hour))))
	require.NoError(t, s.Insert(ctx, doc("new", "h2", now)))

	n, err := s.DeleteCreatedBefore(ctx, "accounts", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, _ := s.Find(ctx, "accounts", Filter{Field: "email", Hash: "h2"})
	assert.Len(t, got, 1)
}

func TestMemory_TxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	b := newMemory()

	err := b.WithTx(ctx, func(ctx context.Context, s Store) error {
		if err := s.Insert(ctx, doc("a", "h1", time.Now())); err != nil {
			return err
		}
		// Visible inside the transaction.
		got, err := s.Find(ctx, "accounts", Filter{Field: "email", Hash: "h1"})
		require.Len(t, got, 1)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = b.WithTx(ctx, func(ctx context.Context, s Store) error {
		_ = s.Insert(ctx, doc("b", "h2", time.Now()))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, _ := b.Store().Find(ctx, "accounts", Filter{Field: "email", Hash: "h2"})
	assert.Empty(t, got, "rolled back writes are not visible")
	got, _ = b.Store().Find(ctx, "accounts", Filter{Field: "email", Hash: "h1"})
	assert.Len(t, got, 1)
}

func TestMemory_TxConflict(t *testing.T) {
	ctx := context.Background()
	b := newMemory()

	err := b.WithTx(ctx, func(ctx context.Context, s Store) error {
		// A concurrent writer commits while this transaction is open.
		require.NoError(t, b.Store().Insert(ctx, doc("other", "h9", time.Now())))
		return s.Insert(ctx, doc("a", "h1", time.Now()))
	})
	require.ErrorIs(t, err, ErrConflict)

	got, _ := b.Store().Find(ctx, "accounts", Filter{Field: "email", Hash: "h1"})
	assert.Empty(t, got)
}

func TestMemory_ReadOnlyTxNeverConflicts(t *testing.T) {
	ctx := context.Background()
	b := newMemory()

	err := b.WithTx(ctx, func(ctx context.Context, s Store) error {
		require.NoError(t, b.Store().Insert(ctx, doc("other", "h9", time.Now())))
		_, err := s.Find(ctx, "accounts", Filter{Field: "email", Hash: "h9"})
		return err
	})
	assert.NoError(t, err)
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newMemory().Store().Insert(ctx, doc("a", "h1", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
}
