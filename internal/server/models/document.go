// Package models defines the documents persisted by the store and the
// entities the repositories build from them.
package models

import (
	"encoding/json"
	"maps"
	"time"
)

// EncryptedValue is one encrypted field. All byte fields are base64 (std).
type EncryptedValue struct {
	Ciphertext string `json:"ct"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	AuthTag    string `json:"tag"`
	Alg        string `json:"alg"`
}

// StoredField holds exactly one of Enc (encrypted classes) or Raw (opaque).
type StoredField struct {
	Enc *EncryptedValue `json:"enc,omitempty"`
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Document is the unit the store persists. Lookup maps indexed field names to
// their hex index hash; empty values are not indexed.
type Document struct {
	ID         string
	Collection string
	Data       map[string]StoredField
	Lookup     map[string]string
	CreatedAt  time.Time
}

// Clone returns a copy that shares no maps with d.
func (d *Document) Clone() *Document {
	c := *d
	c.Data = maps.Clone(d.Data)
	c.Lookup = maps.Clone(d.Lookup)
	if c.Data == nil {
		c.Data = map[string]StoredField{}
	}
	if c.Lookup == nil {
		c.Lookup = map[string]string{}
	}
	return &c
}

// Patch is a partial update. Data and Lookup entries are merged into the
// document; UnsetLookup removes index entries whose value became empty.
type Patch struct {
	Data        map[string]StoredField
	Lookup      map[string]string
	UnsetLookup []string
}

// Apply merges p into d in place.
func (p Patch) Apply(d *Document) {
	if d.Data == nil {
		d.Data = map[string]StoredField{}
	}
	if d.Lookup == nil {
		d.Lookup = map[string]string{}
	}
	maps.Copy(d.Data, p.Data)
	maps.Copy(d.Lookup, p.Lookup)
	for _, k := range p.UnsetLookup {
		delete(d.Lookup, k)
	}
}

// Values are plaintext field values keyed by field name. Encrypted classes
// carry strings; opaque fields carry json.RawMessage on read and any
// JSON-marshalable value on write.
type Values map[string]any

// String returns the string value of field, or "" if absent.
func (v Values) String(field string) string {
	s, _ := v[field].(string)
	return s
}

// Raw returns the JSON of an opaque field, or nil if absent.
func (v Values) Raw(field string) json.RawMessage {
	switch r := v[field].(type) {
	case json.RawMessage:
		return r
	case []byte:
		return r
	default:
		return nil
	}
}

// Record is a decoded document.
type Record struct {
	ID        string
	CreatedAt time.Time
	Values    Values
}
