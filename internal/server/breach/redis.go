package breach

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/redis/go-redis/v9"
)

// CachedLookup keeps range bodies in Redis so repeated prefixes do not hit
// the corpus. Cache failures fall back to the corpus.
type CachedLookup struct {
	next   Lookup
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger logging.Logger
}

func NewCachedLookup(next Lookup, rdb redis.Cmdable, ttl time.Duration, l logging.Logger) *CachedLookup {
	return &CachedLookup{next: next, rdb: rdb, ttl: ttl, prefix: "learnkeeper:breach:", logger: l.With("module", "breach_cache")}
}

func (c *CachedLookup) Range(ctx context.Context, prefix string) (string, error) {
	key := c.prefix + prefix

	body, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return body, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn(ctx, "breach cache read failed", "error", err.Error())
	}

	body, err = c.next.Range(ctx, prefix)
	if err != nil {
		return "", err
	}

	if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "breach cache write failed", "error", err.Error())
	}
	return body, nil
}
