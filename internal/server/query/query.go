// Package query guards writes to unique fields. Before a write it probes
// every unique field the write touches and refuses the write if another
// record already owns the value. The store's own unique indexes back this up
// for writers that race past the probe; their violations surface as the same
// duplicate-key error.
package query

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/records"
)

// Table wraps a records.Collection with uniqueness probing.
type Table struct {
	rec *records.Collection
}

func NewTable(rec *records.Collection) *Table {
	return &Table{rec: rec}
}

// Records exposes the underlying collection.
func (t *Table) Records() *records.Collection { return t.rec }

// uniqueValues returns the non-empty unique fields in values, sorted by name
// so probes run in a stable order.
func (t *Table) uniqueValues(values models.Values) []string {
	var fields []string
	for _, f := range t.rec.Schema().Unique() {
		if s, ok := values[f.Name].(string); ok && s != "" {
			fields = append(fields, f.Name)
		}
	}
	sort.Strings(fields)
	return fields
}

// probe fails with DuplicateKey if a unique value in values is owned by a
// record whose id is not in allowed.
func (t *Table) probe(ctx context.Context, values models.Values, allowed []string) error {
	for _, field := range t.uniqueValues(values) {
		ids, err := t.rec.Probe(ctx, field, values[field].(string))
		if err != nil {
			return err
		}
		for _, id := range ids {
			if !slices.Contains(allowed, id) {
				return common.DuplicateKey(t.rec.Name(), field)
			}
		}
	}
	return nil
}

// Insert probes the unique fields in values and inserts a new record.
func (t *Table) Insert(ctx context.Context, values models.Values) (string, error) {
	if err := t.probe(ctx, values, nil); err != nil {
		return "", err
	}
	return t.rec.Insert(ctx, values)
}

// UpdateOne updates the single record matched by the unique field, refusing
// to take over a unique value owned by another record.
func (t *Table) UpdateOne(ctx context.Context, field, value string, values models.Values) error {
	if len(t.uniqueValues(values)) > 0 {
		owners, err := t.rec.Probe(ctx, field, value)
		if err != nil {
			return err
		}
		if err := t.probe(ctx, values, owners); err != nil {
			return err
		}
	}
	return t.rec.UpdateOne(ctx, field, value, values)
}

// UpdateWhere updates every record matched by field. Unique values may only
// be written when they are not owned by a record outside the matched set.
func (t *Table) UpdateWhere(ctx context.Context, field, value string, values models.Values) (int64, error) {
	if len(t.uniqueValues(values)) > 0 {
		owners, err := t.rec.Probe(ctx, field, value)
		if err != nil {
			return 0, err
		}
		if len(owners) > 1 {
			return 0, common.Precondition("a unique value cannot be written to several records")
		}
		if err := t.probe(ctx, values, owners); err != nil {
			return 0, err
		}
	}
	return t.rec.UpdateWhere(ctx, field, value, values)
}

func (t *Table) FindOne(ctx context.Context, field, value string, fields ...string) (models.Record, error) {
	return t.rec.FindOne(ctx, field, value, fields...)
}

func (t *Table) FindByIndex(ctx context.Context, field, value string, fields ...string) ([]models.Record, error) {
	return t.rec.FindByIndex(ctx, field, value, fields...)
}

// Exists reports whether any record has field equal to value.
func (t *Table) Exists(ctx context.Context, field, value string) (bool, error) {
	ids, err := t.rec.Probe(ctx, field, value)
	return len(ids) > 0, err
}

func (t *Table) DeleteWhere(ctx context.Context, field, value string) (int64, error) {
	return t.rec.DeleteWhere(ctx, field, value)
}

func (t *Table) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.rec.DeleteCreatedBefore(ctx, cutoff)
}

func (t *Table) Hash(field, value string) (string, error) {
	return t.rec.Hash(field, value)
}
