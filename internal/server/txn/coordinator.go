// Package txn runs groups of repository writes atomically and retries them
// when the store reports a serialization conflict.
package txn

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
)

// Func is the body of a transaction. It may run more than once and must not
// call external collaborators.
type Func func(ctx context.Context, r *repomanager.Repositories) error

type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 5, BaseBackoff: 10 * time.Millisecond, MaxBackoff: 200 * time.Millisecond}
}

type Coordinator struct {
	backend docstore.Backend
	repos   repomanager.RepositoryManager
	cfg     Config
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewCoordinator(b docstore.Backend, rm repomanager.RepositoryManager, cfg Config, l logging.Logger, m *metrics.Metrics) *Coordinator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Coordinator{backend: b, repos: rm, cfg: cfg, logger: l.With("module", "txn"), metrics: m}
}

// Run executes fn in a transaction named name. On a conflict fn is retried
// from scratch with jittered exponential backoff until the attempts run out
// or ctx is done.
func (c *Coordinator) Run(ctx context.Context, name string, fn Func) error {
	backoff := c.cfg.BaseBackoff

	for attempt := 1; ; attempt++ {
		err := c.backend.WithTx(ctx, func(ctx context.Context, s docstore.Store) error {
			return fn(ctx, c.repos.Bind(s))
		})

		switch {
		case err == nil:
			c.metrics.TxAttempts.WithLabelValues(name, "ok").Inc()
			return nil
		case !errors.Is(err, docstore.ErrConflict):
			c.metrics.TxAttempts.WithLabelValues(name, "error").Inc()
			return err
		}

		c.metrics.TxConflicts.WithLabelValues(name).Inc()
		if attempt >= c.cfg.MaxAttempts {
			c.metrics.TxAttempts.WithLabelValues(name, "exhausted").Inc()
			c.logger.Warn(ctx, "transaction retries exhausted", "op", name, "attempts", attempt)
			return &common.Error{
				Code:        common.CodeInternal,
				Severity:    common.SeverityError,
				Message:     "transaction " + name + " kept conflicting",
				UserMessage: "the service is busy, try again",
				Err:         err,
			}
		}

		c.logger.Debug(ctx, "transaction conflict, retrying", "op", name, "attempt", attempt)

		wait := backoff
		if wait > 0 {
			wait += rand.N(wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}
