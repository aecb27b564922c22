package docstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
)

// MemoryBackend keeps documents in process memory. Transactions work on a
// private copy and are committed only if nothing else committed meanwhile;
// otherwise they fail with ErrConflict.
type MemoryBackend struct {
	mu      sync.Mutex
	version uint64
	state   memState
	uniques map[string][]string
}

// NewMemoryBackend enforces the given unique lookup fields per collection,
// mirroring the unique indexes of the Postgres schema.
func NewMemoryBackend(uniques map[string][]string) *MemoryBackend {
	return &MemoryBackend{
		state:   memState{},
		uniques: uniques,
	}
}

func (b *MemoryBackend) Store() Store {
	return &memStore{backend: b}
}

func (b *MemoryBackend) WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	b.mu.Lock()
	start := b.version
	snapshot := b.state.clone()
	b.mu.Unlock()

	tx := &memStore{backend: b, tx: snapshot}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.version != start {
		return ErrConflict
	}
	b.state = snapshot
	b.version++
	return nil
}

func (b *MemoryBackend) Migrate(context.Context) error { return nil }
func (b *MemoryBackend) Ping(context.Context) error    { return nil }
func (b *MemoryBackend) Close() error                  { return nil }

// memState maps collection -> id -> document.
type memState map[string]map[string]*models.Document

func (s memState) clone() memState {
	out := make(memState, len(s))
	for c, docs := range s {
		m := make(map[string]*models.Document, len(docs))
		for id, d := range docs {
			m[id] = d.Clone()
		}
		out[c] = m
	}
	return out
}

func (s memState) matching(collection string, f Filter) []*models.Document {
	var out []*models.Document
	for _, d := range s[collection] {
		if h, ok := d.Lookup[f.Field]; ok && h == f.Hash {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b *models.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})
	return out
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// checkUnique reports a duplicate if candidate shares a unique lookup value
// with any other document in its collection.
func (s memState) checkUnique(uniques []string, candidate *models.Document) error {
	for _, field := range uniques {
		h, ok := candidate.Lookup[field]
		if !ok {
			continue
		}
		for id, d := range s[candidate.Collection] {
			if id != candidate.ID && d.Lookup[field] == h {
				return common.DuplicateKey(candidate.Collection, field)
			}
		}
	}
	return nil
}

type memStore struct {
	backend *MemoryBackend
	tx      memState
	dirty   bool
}

// run executes fn against the transaction copy, or against the shared state
// under the backend lock when not in a transaction.
func (m *memStore) run(ctx context.Context, write bool, fn func(s memState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.tx != nil {
		err := fn(m.tx)
		if err == nil && write {
			m.dirty = true
		}
		return err
	}

	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := fn(b.state); err != nil {
		return err
	}
	if write {
		b.version++
	}
	return nil
}

func (m *memStore) Insert(ctx context.Context, doc *models.Document) error {
	return m.run(ctx, true, func(s memState) error {
		docs := s[doc.Collection]
		if docs == nil {
			docs = map[string]*models.Document{}
			s[doc.Collection] = docs
		}
		if _, exists := docs[doc.ID]; exists {
			return fmt.Errorf("document %s/%s already exists", doc.Collection, doc.ID)
		}

		c := doc.Clone()
		if err := s.checkUnique(m.backend.uniques[doc.Collection], c); err != nil {
			return err
		}
		docs[c.ID] = c
		return nil
	})
}

func (m *memStore) Find(ctx context.Context, collection string, f Filter) ([]*models.Document, error) {
	var out []*models.Document
	err := m.run(ctx, false, func(s memState) error {
		for _, d := range s.matching(collection, f) {
			out = append(out, d.Clone())
		}
		return nil
	})
	return out, err
}

func (m *memStore) Update(ctx context.Context, collection string, f Filter, p models.Patch) (int64, error) {
	var n int64
	err := m.run(ctx, true, func(s memState) error {
		targets := s.matching(collection, f)

		// Validate every patched copy before touching the state.
		patched := make([]*models.Document, 0, len(targets))
		for _, d := range targets {
			c := d.Clone()
			p.Apply(c)
			if err := s.checkUnique(m.backend.uniques[collection], c); err != nil {
				return err
			}
			patched = append(patched, c)
		}
		for _, c := range patched {
			s[collection][c.ID] = c
		}
		n = int64(len(patched))
		return nil
	})
	return n, err
}

func (m *memStore) Delete(ctx context.Context, collection string, f Filter) (int64, error) {
	var n int64
	err := m.run(ctx, true, func(s memState) error {
		for _, d := range s.matching(collection, f) {
			delete(s[collection], d.ID)
			n++
		}
		return nil
	})
	return n, err
}

func (m *memStore) DeleteCreatedBefore(ctx context.Context, collection string, cutoff time.Time) (int64, error) {
	var n int64
	err := m.run(ctx, true, func(s memState) error {
		for id, d := range s[collection] {
			if d.CreatedAt.Before(cutoff) {
				delete(s[collection], id)
				n++
			}
		}
		return nil
	})
	return n, err
}
