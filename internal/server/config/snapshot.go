package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/metrics"
)

// Catalog lists the course and topic identifiers the platform sells.
type Catalog struct {
	Courses []string `json:"courses"`
	Topics  []string `json:"topics"`
}

// LoadCatalog reads a Catalog from a JSON file. An empty path yields an
// empty catalog.
func LoadCatalog(path string) (Catalog, error) {
	var c Catalog
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read catalog: %w", err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse catalog: %w", err)
	}
	return c, nil
}

// Snapshot is an immutable view of the reloadable settings. Readers keep
// the pointer they got for the duration of a request.
type Snapshot struct {
	Version   uint64
	LoadedAt  time.Time
	courses   map[string]struct{}
	topics    map[string]struct{}
	blocklist []*regexp.Regexp
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func (s *Snapshot) HasCourse(id string) bool {
	_, ok := s.courses[id]
	return ok
}

func (s *Snapshot) Blocklist() []*regexp.Regexp { return s.blocklist }

// Len returns the number of courses and topics in the snapshot.
func (s *Snapshot) Len() (courses, topics int) { return len(s.courses), len(s.topics) }

// Source produces the data of a fresh snapshot.
type Source func(ctx context.Context) (Catalog, []*regexp.Regexp, error)

// Holder publishes snapshots atomically.
type Holder struct {
	p       atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewHolder starts with an empty snapshot at version 0.
func NewHolder() *Holder {
	h := &Holder{}
	h.p.Store(&Snapshot{courses: map[string]struct{}{}, topics: map[string]struct{}{}})
	return h
}

func (h *Holder) Current() *Snapshot { return h.p.Load() }

// Blocklist returns the blocklist of the current snapshot.
func (h *Holder) Blocklist() []*regexp.Regexp { return h.Current().blocklist }

// Publish replaces the current snapshot and returns it.
func (h *Holder) Publish(c Catalog, blocklist []*regexp.Regexp) *Snapshot {
	s := &Snapshot{
		Version:   h.version.Add(1),
		LoadedAt:  time.Now().UTC(),
		courses:   toSet(c.Courses),
		topics:    toSet(c.Topics),
		blocklist: blocklist,
	}
	h.p.Store(s)
	return s
}

// Reload fetches from src and publishes the result. On error the current
// snapshot stays in place.
func (h *Holder) Reload(ctx context.Context, src Source) error {
	c, bl, err := src(ctx)
	if err != nil {
		return err
	}
	h.Publish(c, bl)
	return nil
}

// StartReloader calls Reload every interval until ctx is done.
func (h *Holder) StartReloader(ctx context.Context, interval time.Duration, src Source, l logging.Logger, m *metrics.Metrics) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.Reload(ctx, src); err != nil {
					m.ConfigReloads.WithLabelValues("error").Inc()
					l.Warn(ctx, "config reload failed, keeping current snapshot", "error", err.Error(), "version", h.Current().Version)
					continue
				}
				m.ConfigReloads.WithLabelValues("ok").Inc()
				l.Debug(ctx, "config reloaded", "version", h.Current().Version)
			}
		}
	}()
}
