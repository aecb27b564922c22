// Package schema declares which fields each collection stores, how every
// field is canonically encoded and whether it is indexed, encrypted or kept
// as an opaque object. The schema is built once at startup and validated
// before any store access.
package schema

import (
	"fmt"
	"regexp"
	"sort"
)

// Encoding is the canonical byte representation of a field value.
type Encoding string

const (
	UTF8   Encoding = "utf8"
	Base64 Encoding = "base64"
	Hex    Encoding = "hex"
	Object Encoding = "object"
)

// Class decides what the store keeps for a field.
type Class string

const (
	// Indexed fields are encrypted and also get a deterministic lookup hash.
	Indexed Class = "indexed"
	// Encrypted fields are encrypted only and cannot be searched.
	Encrypted Class = "encrypted"
	// Opaque fields are stored as plain JSON and never encrypted.
	Opaque Class = "opaque"
)

// Field describes one stored field.
type Field struct {
	Name     string
	Encoding Encoding
	Class    Class
	Unique   bool
}

// Collection is a named set of fields.
type Collection struct {
	Name   string
	Fields []Field

	byName map[string]Field
}

// Field returns the declaration of name.
func (c *Collection) Field(name string) (Field, bool) {
	f, ok := c.byName[name]
	return f, ok
}

// Unique returns the fields declared unique, in declaration order.
func (c *Collection) Unique() []Field {
	var out []Field
	for _, f := range c.Fields {
		if f.Unique {
			out = append(out, f)
		}
	}
	return out
}

// Schema is the validated set of collections.
type Schema struct {
	collections map[string]*Collection
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// New validates the declarations and returns a Schema.
func New(collections ...Collection) (*Schema, error) {
	s := &Schema{collections: make(map[string]*Collection, len(collections))}

	for i := range collections {
		c := collections[i]
		if !namePattern.MatchString(c.Name) {
			return nil, fmt.Errorf("invalid collection name %q", c.Name)
		}
		if _, dup := s.collections[c.Name]; dup {
			return nil, fmt.Errorf("collection %q declared twice", c.Name)
		}
		if len(c.Fields) == 0 {
			return nil, fmt.Errorf("collection %q has no fields", c.Name)
		}

		c.byName = make(map[string]Field, len(c.Fields))
		for _, f := range c.Fields {
			if err := validateField(f); err != nil {
				return nil, fmt.Errorf("collection %q: %w", c.Name, err)
			}
			if _, dup := c.byName[f.Name]; dup {
				return nil, fmt.Errorf("collection %q: field %q declared twice", c.Name, f.Name)
			}
			c.byName[f.Name] = f
		}
		s.collections[c.Name] = &c
	}

	return s, nil
}

func validateField(f Field) error {
	if !namePattern.MatchString(f.Name) {
		return fmt.Errorf("invalid field name %q", f.Name)
	}

	switch f.Encoding {
	case UTF8, Base64, Hex, Object:
	default:
		return fmt.Errorf("field %q: unknown encoding %q", f.Name, f.Encoding)
	}

	switch f.Class {
	case Indexed, Encrypted:
		if f.Encoding == Object {
			return fmt.Errorf("field %q: object encoding requires the opaque class", f.Name)
		}
	case Opaque:
		if f.Encoding != Object {
			return fmt.Errorf("field %q: opaque fields must use object encoding", f.Name)
		}
	default:
		return fmt.Errorf("field %q: unknown class %q", f.Name, f.Class)
	}

	if f.Unique && f.Class != Indexed {
		return fmt.Errorf("field %q: only indexed fields can be unique", f.Name)
	}
	return nil
}

// Collection returns the named collection.
func (s *Schema) Collection(name string) (*Collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	return c, nil
}

// MustCollection is Collection for names known at compile time.
func (s *Schema) MustCollection(name string) *Collection {
	c, err := s.Collection(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Names returns the collection names in sorted order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UniqueIndexName is the name of the storage-level unique index guarding
// field in collection. Store adapters use it to map a native violation back
// to the field.
func UniqueIndexName(collection, field string) string {
	return "documents_" + collection + "_" + field + "_uq"
}

// UniqueFields maps each collection to the names of its unique fields.
func (s *Schema) UniqueFields() map[string][]string {
	out := make(map[string][]string, len(s.collections))
	for name, c := range s.collections {
		for _, f := range c.Unique() {
			out[name] = append(out[name], f.Name)
		}
	}
	return out
}
