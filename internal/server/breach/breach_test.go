package breach

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPLookup_SendsOnlyPrefix(t *testing.T) {
	var gotPath, gotPadding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPadding = r.Header.Get("Add-Padding")
		_, _ = w.Write([]byte("0018A45C4D1DEF81644B54AB7F969B88D65:1\r\n00D4F6E8FA6EECAD2A3AA415EEC418D38EC:2\r\n"))
	}))
	defer srv.Close()

	l := NewHTTPLookup(srv.URL+"/range", time.Second)
	body, err := l.Range(context.Background(), "21BD1")
	require.NoError(t, err)

	assert.Equal(t, "/range/21BD1", gotPath)
	assert.Equal(t, "true", gotPadding)
	assert.Contains(t, body, "00D4F6E8FA6EECAD2A3AA415EEC418D38EC:2")
}

func TestHTTPLookup_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l := NewHTTPLookup(srv.URL, time.Second)
	_, err := l.Range(context.Background(), "ABCDE")
	assert.Error(t, err)

	_, err = l.Range(context.Background(), "ABCDEF")
	assert.Error(t, err, "prefix length is enforced")
}

func TestCount(t *testing.T) {
	body := "0018A45C4D1DEF81644B54AB7F969B88D65:3\r\n00D4F6E8FA6EECAD2A3AA415EEC418D38EC:0\nFFFF:12"

	assert.Equal(t, 3, Count(body, "0018a45c4d1def81644b54ab7f969b88d65"))
	assert.Equal(t, 0, Count(body, "00D4F6E8FA6EECAD2A3AA415EEC418D38EC"), "padding entries")
	assert.Equal(t, 12, Count(body, "FFFF"))
	assert.Equal(t, 0, Count(body, "ABCD"))
	assert.Equal(t, 0, Count("", "ABCD"))
}

type countingLookup struct {
	calls int
	body  string
	err   error
}

func (c *countingLookup) Range(context.Context, string) (string, error) {
	c.calls++
	return c.body, c.err
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCachedLookup(t *testing.T) {
	mr, rdb := newTestRedis(t)
	next := &countingLookup{body: "AAAA:1"}
	c := NewCachedLookup(next, rdb, time.Hour, logging.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		body, err := c.Range(ctx, "ABCDE")
		require.NoError(t, err)
		assert.Equal(t, "AAAA:1", body)
	}
	assert.Equal(t, 1, next.calls)

	ttl := mr.TTL("learnkeeper:breach:ABCDE")
	assert.Equal(t, time.Hour, ttl)

	mr.FastForward(2 * time.Hour)
	_, err := c.Range(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedLookup_UpstreamErrorNotCached(t *testing.T) {
	mr, rdb := newTestRedis(t)
	next := &countingLookup{err: errors.New("down")}
	c := NewCachedLookup(next, rdb, time.Hour, logging.Nop())

	_, err := c.Range(context.Background(), "ABCDE")
	require.Error(t, err)
	assert.False(t, mr.Exists("learnkeeper:breach:ABCDE"))
}

func TestCachedLookup_RedisDownFallsBack(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	next := &countingLookup{body: "AAAA:1"}
	c := NewCachedLookup(next, rdb, time.Hour, logging.Nop())

	body, err := c.Range(context.Background(), "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, "AAAA:1", body)
}
