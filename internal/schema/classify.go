package schema

import (
	"fmt"
	"regexp"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
)

// Kind is the shape a field takes in the index.
type Kind uint8

// Field kinds, in classification precedence order.
const (
	// KindScalar is stored as its declared type, per locale when localized.
	KindScalar Kind = iota
	// KindVocabulary is a link to a registered vocabulary, collapsed to terms.
	KindVocabulary
	// KindCollapsible is a scalar stored by its single resolved value.
	KindCollapsible
	// KindNested is a link to ordinary entries, stored as nested summaries.
	KindNested
	// KindObject is a free-form JSON object.
	KindObject
	// KindAsset is a link to binary assets.
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindVocabulary:
		return "vocabulary"
	case KindCollapsible:
		return "collapsible"
	case KindNested:
		return "nested"
	case KindObject:
		return "object"
	case KindAsset:
		return "asset"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// CollapsibleName matches scalar field ids stored by their resolved value.
var CollapsibleName = regexp.MustCompile(`^(.+(Id|Code|Type|Status)|code|gbifRegion)$`)

// VocabularySet answers whether a content type is a registered vocabulary.
type VocabularySet interface {
	IsVocabulary(contentTypeID string) bool
}

// Classification is the closed variant computed once per field.
type Classification struct {
	Field     crawler.Field
	Kind      Kind
	List      bool
	Localized bool
}

// Collapsed reports whether the field is emitted as one resolved value rather
// than a per-locale map.
func (c Classification) Collapsed() bool {
	return c.Kind == KindVocabulary || c.Kind == KindCollapsible
}

// Classify computes the classification of one field.
func Classify(f crawler.Field, vocab VocabularySet) Classification {
	c := Classification{
		Field:     f,
		List:      f.Type == crawler.FieldArray,
		Localized: f.Localized,
	}
	isLink := f.IsLink() || f.IsLinkList()
	switch {
	case isLink && f.TargetLinkType() == crawler.LinkAsset:
		c.Kind = KindAsset
	case isLink && targetsVocabulary(f, vocab):
		c.Kind = KindVocabulary
	// Links never collapse, even when the id looks like a code: a linked
	// entry has no scalar to collapse to without a vocabulary.
	case !isLink && (f.ValueType() == crawler.FieldBoolean || CollapsibleName.MatchString(f.ID)):
		c.Kind = KindCollapsible
	case isLink:
		c.Kind = KindNested
	case f.ValueType() == crawler.FieldObject:
		c.Kind = KindObject
	default:
		c.Kind = KindScalar
	}
	return c
}

func targetsVocabulary(f crawler.Field, vocab VocabularySet) bool {
	if vocab == nil {
		return false
	}
	targets := f.LinkContentTypes()
	if len(targets) == 0 {
		return false
	}
	for _, id := range targets {
		if !vocab.IsVocabulary(id) {
			return false
		}
	}
	return true
}

// Classifier holds the classification of every field of every cached content
// type. It is built once and read-only afterwards.
type Classifier struct {
	table map[string]map[string]Classification
	order map[string][]string
}

// NewClassifier classifies all fields known to schemas against vocab.
func NewClassifier(schemas *Introspector, vocab VocabularySet) *Classifier {
	c := &Classifier{
		table: make(map[string]map[string]Classification),
		order: make(map[string][]string),
	}
	for _, ct := range schemas.ContentTypes() {
		fields := make(map[string]Classification, len(ct.Fields))
		ids := make([]string, 0, len(ct.Fields))
		for _, f := range ct.Fields {
			fields[f.ID] = Classify(f, vocab)
			ids = append(ids, f.ID)
		}
		c.table[ct.ID] = fields
		c.order[ct.ID] = ids
	}
	return c
}

// Lookup returns the classification of a declared field.
func (c *Classifier) Lookup(ctID, fieldID string) (Classification, error) {
	fields, ok := c.table[ctID]
	if !ok {
		return Classification{}, fmt.Errorf("content type %q: %w", ctID, ErrNotFound)
	}
	cls, ok := fields[fieldID]
	if !ok {
		return Classification{}, fmt.Errorf("field %q of content type %q: %w", fieldID, ctID, ErrNotFound)
	}
	return cls, nil
}

// Fields returns the classifications of ctID in schema order.
func (c *Classifier) Fields(ctID string) ([]Classification, error) {
	ids, ok := c.order[ctID]
	if !ok {
		return nil, fmt.Errorf("content type %q: %w", ctID, ErrNotFound)
	}
	out := make([]Classification, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.table[ctID][id])
	}
	return out, nil
}
