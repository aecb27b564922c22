// Package records is the encrypted record store. It encodes plaintext values
// into documents on write, resolves equality lookups through index hashes and
// decrypts only the fields a caller asks for on read.
package records

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/codec"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"github.com/dmitrijs2005/learnkeeper/internal/timex"
	"github.com/oklog/ulid/v2"
)

// Collection is the record-level API of one collection bound to a store.
// It is cheap to construct; build one per store handle or transaction.
type Collection struct {
	coll   *schema.Collection
	codec  *codec.Codec
	store  docstore.Store
	logger logging.Logger
	now    timex.Clock
}

func New(coll *schema.Collection, c *codec.Codec, store docstore.Store, logger logging.Logger, now timex.Clock) *Collection {
	if now == nil {
		now = timex.Now
	}
	return &Collection{coll: coll, codec: c, store: store, logger: logger, now: now}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.coll.Name }

// Schema returns the collection declaration.
func (c *Collection) Schema() *schema.Collection { return c.coll }

// Insert stores values as a new document and returns its id.
func (c *Collection) Insert(ctx context.Context, values models.Values) (string, error) {
	doc, err := c.codec.EncodeDocument(c.coll, values)
	if err != nil {
		return "", err
	}
	doc.CreatedAt = c.now()
	doc.ID = ulid.MustNew(ulid.Timestamp(doc.CreatedAt), rand.Reader).String()

	if err := c.store.Insert(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// filter resolves field=value to a store filter. ok is false for an empty
// value, which is never indexed and so matches nothing.
func (c *Collection) filter(field, value string) (docstore.Filter, bool, error) {
	f, found := c.coll.Field(field)
	if !found || f.Class != schema.Indexed {
		return docstore.Filter{}, false, fmt.Errorf("%s: %q is not an indexed field", c.coll.Name, field)
	}
	if value == "" {
		return docstore.Filter{}, false, nil
	}
	h, err := c.codec.IndexHash(value, f.Encoding)
	if err != nil {
		return docstore.Filter{}, false, common.Policy(field, field+" is not valid "+string(f.Encoding))
	}
	return docstore.Filter{Field: field, Hash: h}, true, nil
}

func (c *Collection) requireUnique(field string) error {
	f, ok := c.coll.Field(field)
	if !ok || !f.Unique {
		return fmt.Errorf("%s: %q is not declared unique", c.coll.Name, field)
	}
	return nil
}

func (c *Collection) find(ctx context.Context, field, value string) ([]*models.Document, error) {
	f, ok, err := c.filter(field, value)
	if err != nil || !ok {
		return nil, err
	}
	return c.store.Find(ctx, c.coll.Name, f)
}

func (c *Collection) decode(doc *models.Document, fields []string) (models.Record, error) {
	vals, err := c.codec.DecodeDocument(c.coll, doc, fields...)
	if err != nil {
		return models.Record{}, err
	}
	return models.Record{ID: doc.ID, CreatedAt: doc.CreatedAt, Values: vals}, nil
}

// FindByIndex returns every record whose field equals value, decrypting the
// named fields (all fields when none are named).
func (c *Collection) FindByIndex(ctx context.Context, field, value string, fields ...string) ([]models.Record, error) {
	docs, err := c.find(ctx, field, value)
	if err != nil {
		return nil, err
	}

	out := make([]models.Record, 0, len(docs))
	for _, d := range docs {
		r, err := c.decode(d, fields)
		if err != nil {
			logging.LogError(ctx, c.logger, "record decode failed", err, "collection", c.coll.Name, "id", d.ID)
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Probe returns the ids of documents whose field equals value without
// decrypting anything.
func (c *Collection) Probe(ctx context.Context, field, value string) ([]string, error) {
	docs, err := c.find(ctx, field, value)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// one enforces the single-match rule on a unique field.
func (c *Collection) one(ctx context.Context, field, value string) (*models.Document, error) {
	if err := c.requireUnique(field); err != nil {
		return nil, err
	}
	docs, err := c.find(ctx, field, value)
	if err != nil {
		return nil, err
	}

	switch len(docs) {
	case 0:
		return nil, common.NotFound(c.coll.Name, field)
	case 1:
		return docs[0], nil
	default:
		err := common.DataIntegrity(c.coll.Name, field, len(docs))
		logging.LogError(ctx, c.logger, "unique field matched several records", err, "collection", c.coll.Name, "field", field)
		return nil, err
	}
}

// FindOne returns the single record whose unique field equals value.
func (c *Collection) FindOne(ctx context.Context, field, value string, fields ...string) (models.Record, error) {
	d, err := c.one(ctx, field, value)
	if err != nil {
		return models.Record{}, err
	}
	r, err := c.decode(d, fields)
	if err != nil {
		logging.LogError(ctx, c.logger, "record decode failed", err, "collection", c.coll.Name, "id", d.ID)
		return models.Record{}, err
	}
	return r, nil
}

// UpdateWhere applies values to every record whose field equals value and
// returns how many were updated.
func (c *Collection) UpdateWhere(ctx context.Context, field, value string, values models.Values) (int64, error) {
	f, ok, err := c.filter(field, value)
	if err != nil || !ok {
		return 0, err
	}
	p, err := c.codec.EncodePatch(c.coll, values)
	if err != nil {
		return 0, err
	}
	return c.store.Update(ctx, c.coll.Name, f, p)
}

// UpdateOne applies values to the single record whose unique field equals
// value. Nothing is written unless exactly one record matches.
func (c *Collection) UpdateOne(ctx context.Context, field, value string, values models.Values) error {
	if _, err := c.one(ctx, field, value); err != nil {
		return err
	}
	n, err := c.UpdateWhere(ctx, field, value, values)
	if err != nil {
		return err
	}
	if n != 1 {
		return common.NotFound(c.coll.Name, field)
	}
	return nil
}

// DeleteWhere removes every record whose field equals value. Deleting
// nothing is not an error.
func (c *Collection) DeleteWhere(ctx context.Context, field, value string) (int64, error) {
	f, ok, err := c.filter(field, value)
	if err != nil || !ok {
		return 0, err
	}
	return c.store.Delete(ctx, c.coll.Name, f)
}

// DeleteCreatedBefore removes records created before cutoff.
func (c *Collection) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return c.store.DeleteCreatedBefore(ctx, c.coll.Name, cutoff)
}

// Hash returns the index hash of value for field.
func (c *Collection) Hash(field, value string) (string, error) {
	return c.codec.HashField(c.coll, field, value)
}
