package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/cryptox"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/codec"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *repomanager.RecordRepositoryManager {
	t.Helper()
	cfg := codec.DefaultConfig()
	cfg.KDF = cryptox.KDFParams{Iterations: 1, MemoryKiB: 64, Parallelism: 1}
	c, err := codec.New([]byte("txn-test-secret"), cfg)
	require.NoError(t, err)
	return repomanager.NewRecordRepositoryManager(schema.Default(), c, logging.Nop(), nil)
}

var fastRetries = Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestRun_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	rm := newManager(t)
	backend := docstore.NewMemoryBackend(schema.Default().UniqueFields())
	c := NewCoordinator(backend, rm, fastRetries, logging.Nop(), metrics.NewNop())

	boom := errors.New("boom")
	err := c.Run(ctx, "signup", func(ctx context.Context, r *repomanager.Repositories) error {
		if err := r.Accounts.Create(ctx, &models.Account{UserID: "u1", Username: "alice", Kind: models.KindIndividual}); err != nil {
			return err
		}
		if err := r.Payments.Create(ctx, &models.PaymentProfile{UserID: "u1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	repos := rm.Bind(backend.Store())
	_, err = repos.Accounts.GetByUserID(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = repos.Payments.GetByUserID(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	err = c.Run(ctx, "signup", func(ctx context.Context, r *repomanager.Repositories) error {
		if err := r.Accounts.Create(ctx, &models.Account{UserID: "u1", Username: "alice", Kind: models.KindIndividual}); err != nil {
			return err
		}
		return r.Payments.Create(ctx, &models.PaymentProfile{UserID: "u1"})
	})
	require.NoError(t, err)
	_, err = repos.Payments.GetByUserID(ctx, "u1")
	assert.NoError(t, err)
}

func TestRun_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	rm := newManager(t)
	backend := docstore.NewMemoryBackend(schema.Default().UniqueFields())
	m := metrics.NewNop()
	c := NewCoordinator(backend, rm, fastRetries, logging.Nop(), m)

	calls := 0
	err := c.Run(ctx, "progress", func(ctx context.Context, r *repomanager.Repositories) error {
		calls++
		if calls == 1 {
			// Another writer commits while the first attempt is open.
			other := rm.Bind(backend.Store())
			require.NoError(t, other.Challenges.Create(ctx, "other"))
		}
		return r.Challenges.Create(ctx, "u1")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TxConflicts.WithLabelValues("progress")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TxAttempts.WithLabelValues("progress", "ok")))
}

type conflictingBackend struct {
	docstore.Backend
	calls int
}

func (b *conflictingBackend) WithTx(ctx context.Context, fn func(context.Context, docstore.Store) error) error {
	b.calls++
	return docstore.ErrConflict
}

func TestRun_GivesUpAfterMaxAttempts(t *testing.T) {
	b := &conflictingBackend{}
	c := NewCoordinator(b, newManager(t), fastRetries, logging.Nop(), metrics.NewNop())

	err := c.Run(context.Background(), "x", func(context.Context, *repomanager.Repositories) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrConflict)
	assert.Equal(t, common.CodeInternal, common.CodeOf(err))
	assert.Equal(t, 3, b.calls)
}

func TestRun_StopsWhenContextDone(t *testing.T) {
	b := &conflictingBackend{}
	cfg := Config{MaxAttempts: 10, BaseBackoff: time.Hour, MaxBackoff: time.Hour}
	c := NewCoordinator(b, newManager(t), cfg, logging.Nop(), metrics.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Run(ctx, "x", func(context.Context, *repomanager.Repositories) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, b.calls)
}
