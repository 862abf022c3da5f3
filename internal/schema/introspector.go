// Package schema caches content-type field metadata for one crawl run and
// classifies every field into the closed set of shapes the mapping generator
// and the document projector dispatch on.
package schema

import (
	"errors"
	"fmt"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
)

// ErrNotFound signals a lookup of a content type or field that is not declared.
var ErrNotFound = errors.New("schema: not declared")

type contentTypeIndex struct {
	schema crawler.ContentType
	fields map[string]int
}

// Introspector resolves declared field metadata by content-type id. It is
// populated once by NewIntrospector and read-only afterwards, so concurrent
// readers need no synchronization.
type Introspector struct {
	order []string
	types map[string]*contentTypeIndex
}

// NewIntrospector indexes the supplied schemas. Duplicate content-type ids or
// duplicate field ids within one content type are rejected.
func NewIntrospector(types []crawler.ContentType) (*Introspector, error) {
	in := &Introspector{
		order: make([]string, 0, len(types)),
		types: make(map[string]*contentTypeIndex, len(types)),
	}
	for _, ct := range types {
		if ct.ID == "" {
			return nil, fmt.Errorf("content type %q has no id", ct.Name)
		}
		if _, dup := in.types[ct.ID]; dup {
			return nil, fmt.Errorf("duplicate content type %q", ct.ID)
		}
		idx := &contentTypeIndex{schema: ct, fields: make(map[string]int, len(ct.Fields))}
		for i, f := range ct.Fields {
			if _, dup := idx.fields[f.ID]; dup {
				return nil, fmt.Errorf("content type %q declares field %q twice", ct.ID, f.ID)
			}
			idx.fields[f.ID] = i
		}
		in.types[ct.ID] = idx
		in.order = append(in.order, ct.ID)
	}
	return in, nil
}

// ContentType returns the schema for id.
func (in *Introspector) ContentType(id string) (crawler.ContentType, error) {
	idx, ok := in.types[id]
	if !ok {
		return crawler.ContentType{}, fmt.Errorf("content type %q: %w", id, ErrNotFound)
	}
	return idx.schema, nil
}

// ContentTypes returns every cached schema in the order it was supplied.
func (in *Introspector) ContentTypes() []crawler.ContentType {
	out := make([]crawler.ContentType, 0, len(in.order))
	for _, id := range in.order {
		out = append(out, in.types[id].schema)
	}
	return out
}

// Field returns the declared field fieldID of content type ctID. Callers must
// only ask for fields present on an entry's raw data.
func (in *Introspector) Field(ctID, fieldID string) (crawler.Field, error) {
	idx, ok := in.types[ctID]
	if !ok {
		return crawler.Field{}, fmt.Errorf("content type %q: %w", ctID, ErrNotFound)
	}
	pos, ok := idx.fields[fieldID]
	if !ok {
		return crawler.Field{}, fmt.Errorf("field %q of content type %q: %w", fieldID, ctID, ErrNotFound)
	}
	return idx.schema.Fields[pos], nil
}

// HasField reports whether ctID declares fieldID.
func (in *Introspector) HasField(ctID, fieldID string) bool {
	_, err := in.Field(ctID, fieldID)
	return err == nil
}

// IsLocalized reports the localization flag of a declared field.
func (in *Introspector) IsLocalized(ctID, fieldID string) (bool, error) {
	f, err := in.Field(ctID, fieldID)
	if err != nil {
		return false, err
	}
	return f.Localized, nil
}

// LinkType reports the link sub-type of a declared field; empty for non-links.
func (in *Introspector) LinkType(ctID, fieldID string) (crawler.LinkType, error) {
	f, err := in.Field(ctID, fieldID)
	if err != nil {
		return "", err
	}
	return f.TargetLinkType(), nil
}
