package codec

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
)

// EncodePatch encrypts and indexes values according to coll. Fields not
// present in values are left out of the patch.
func (c *Codec) EncodePatch(coll *schema.Collection, values models.Values) (models.Patch, error) {
	p := models.Patch{
		Data:   make(map[string]models.StoredField, len(values)),
		Lookup: make(map[string]string),
	}

	for name, v := range values {
		f, ok := coll.Field(name)
		if !ok {
			return models.Patch{}, fmt.Errorf("%s: unknown field %q", coll.Name, name)
		}

		if f.Class == schema.Opaque {
			raw, err := toRaw(v)
			if err != nil {
				return models.Patch{}, common.Policy(name, name+" must be valid JSON")
			}
			p.Data[name] = models.StoredField{Raw: raw}
			continue
		}

		s, ok := v.(string)
		if !ok {
			return models.Patch{}, common.Policy(name, name+" must be a string")
		}
		ev, err := c.Encrypt(s, f.Encoding)
		if err != nil {
			return models.Patch{}, common.Policy(name, name+" is not valid "+string(f.Encoding))
		}
		p.Data[name] = models.StoredField{Enc: ev}

		if f.Class != schema.Indexed {
			continue
		}
		if s == "" {
			p.UnsetLookup = append(p.UnsetLookup, name)
			continue
		}
		h, err := c.IndexHash(s, f.Encoding)
		if err != nil {
			return models.Patch{}, err
		}
		p.Lookup[name] = h
	}
	slices.Sort(p.UnsetLookup)

	return p, nil
}

// EncodeDocument builds a new document from values.
func (c *Codec) EncodeDocument(coll *schema.Collection, values models.Values) (*models.Document, error) {
	p, err := c.EncodePatch(coll, values)
	if err != nil {
		return nil, err
	}
	doc := &models.Document{Collection: coll.Name}
	p.Apply(doc)
	return doc, nil
}

// DecodeDocument decrypts the requested fields of doc, or every stored field
// when none are named. Requested fields missing from the document are
// omitted from the result.
func (c *Codec) DecodeDocument(coll *schema.Collection, doc *models.Document, fields ...string) (models.Values, error) {
	if len(fields) == 0 {
		for name := range doc.Data {
			fields = append(fields, name)
		}
	}

	out := make(models.Values, len(fields))
	for _, name := range fields {
		f, ok := coll.Field(name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown field %q", coll.Name, name)
		}
		sf, ok := doc.Data[name]
		if !ok {
			continue
		}

		if f.Class == schema.Opaque {
			out[name] = sf.Raw
			continue
		}

		plain, err := c.decryptBytes(sf.Enc)
		if err != nil {
			return nil, common.Decryption(name, err)
		}
		out[name] = render(plain, f.Encoding)
	}
	return out, nil
}

// HashField returns the index hash value would have in coll's field.
func (c *Codec) HashField(coll *schema.Collection, field, value string) (string, error) {
	f, ok := coll.Field(field)
	if !ok || f.Class != schema.Indexed {
		return "", fmt.Errorf("%s: %q is not an indexed field", coll.Name, field)
	}
	return c.IndexHash(value, f.Encoding)
}

func toRaw(v any) (json.RawMessage, error) {
	switch r := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(r) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return r, nil
	case []byte:
		if !json.Valid(r) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return json.RawMessage(r), nil
	default:
		return json.Marshal(v)
	}
}
