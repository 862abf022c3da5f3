// Package vocabulary resolves entries of controlled-vocabulary content types
// to their scalar terms and derives regions from the country vocabulary.
//
// Vocabularies are small and shared by every other content type, so their
// schemas are registered once, before projection starts, and resolution is a
// synchronous in-memory lookup afterwards.
package vocabulary

import (
	"fmt"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
)

const (
	// TermField is the descriptive field every vocabulary must declare.
	TermField = "term"
	// CountryCodeField is the ISO 3166-1 alpha-2 field of the country vocabulary.
	CountryCodeField = "isoCode"
)

// Catalog maps vocabulary content-type ids to their descriptive field. It is
// written while the run is being set up and read-only once projection starts.
type Catalog struct {
	fields        map[string]string
	countryID     string
	defaultLocale string
}

// NewCatalog creates an empty catalog resolving values under defaultLocale.
func NewCatalog(defaultLocale string) *Catalog {
	return &Catalog{
		fields:        make(map[string]string),
		defaultLocale: defaultLocale,
	}
}

// RegisterVocabulary records ct as a vocabulary resolved by its term field.
func (c *Catalog) RegisterVocabulary(ct crawler.ContentType) error {
	if !declares(ct, TermField) {
		return &crawler.ConfigurationError{
			ContentType: ct.ID,
			Reason:      fmt.Sprintf("vocabulary has no %q field", TermField),
		}
	}
	c.fields[ct.ID] = TermField
	return nil
}

// RegisterCountryVocabulary records ct as the distinguished country vocabulary.
func (c *Catalog) RegisterCountryVocabulary(ct crawler.ContentType) error {
	if !declares(ct, CountryCodeField) {
		return &crawler.ConfigurationError{
			ContentType: ct.ID,
			Reason:      fmt.Sprintf("country vocabulary has no %q field", CountryCodeField),
		}
	}
	c.fields[ct.ID] = CountryCodeField
	c.countryID = ct.ID
	return nil
}

// IsVocabulary reports whether contentTypeID was registered.
func (c *Catalog) IsVocabulary(contentTypeID string) bool {
	_, ok := c.fields[contentTypeID]
	return ok
}

// CountryVocabularyID returns the distinguished country vocabulary id, if any.
func (c *Catalog) CountryVocabularyID() string {
	return c.countryID
}

// VocabularyIDs returns the registered vocabulary ids as a set.
func (c *Catalog) VocabularyIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(c.fields))
	for id := range c.fields {
		out[id] = struct{}{}
	}
	return out
}

// Resolve returns the descriptive field name for the entry's content type.
func (c *Catalog) Resolve(e *crawler.Entry) (string, bool) {
	if e == nil {
		return "", false
	}
	field, ok := c.fields[e.ContentTypeID]
	return field, ok
}

// ResolveCountryField returns the ISO-code field name iff e belongs to the
// country vocabulary.
func (c *Catalog) ResolveCountryField(e *crawler.Entry) (string, bool) {
	if e == nil || c.countryID == "" || e.ContentTypeID != c.countryID {
		return "", false
	}
	return CountryCodeField, true
}

// value reads field from e under the catalog's default locale.
func (c *Catalog) value(e *crawler.Entry, field string) (string, bool) {
	raw, ok := e.Fields[field].Resolve(c.defaultLocale)
	if !ok || raw == nil {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		s = fmt.Sprint(raw)
	}
	if s == "" {
		return "", false
	}
	return s, true
}

func declares(ct crawler.ContentType, fieldID string) bool {
	for _, f := range ct.Fields {
		if f.ID == fieldID {
			return true
		}
	}
	return false
}
