package vocabulary

import (
	"strings"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
)

// Builder accumulates, for one field, the vocabulary values and regions of the
// linked entries it is fed. Values and regions are ordered sets.
type Builder struct {
	catalog *Catalog
	values  orderedSet
	regions orderedSet
}

// NewBuilder returns an empty accumulator backed by c.
func (c *Catalog) NewBuilder() *Builder {
	return &Builder{catalog: c}
}

// Add accumulates one linked entry. Entries of unregistered content types
// contribute nothing.
func (b *Builder) Add(e *crawler.Entry) {
	if e == nil {
		return
	}
	if field, ok := b.catalog.ResolveCountryField(e); ok {
		code, ok := b.catalog.value(e, field)
		if !ok {
			return
		}
		b.values.add(code)
		if region, ok := RegionOf(code); ok {
			b.regions.add(region)
		}
		return
	}
	field, ok := b.catalog.Resolve(e)
	if !ok {
		return
	}
	if term, ok := b.catalog.value(e, field); ok {
		b.values.add(term)
	}
}

// AddAll accumulates every entry in es.
func (b *Builder) AddAll(es []*crawler.Entry) {
	for _, e := range es {
		b.Add(e)
	}
}

// IsEmpty is true iff nothing was accumulated. Callers fall back to treating
// the link as an ordinary nested reference.
func (b *Builder) IsEmpty() bool {
	return len(b.values.items) == 0
}

// One returns the first accumulated value.
func (b *Builder) One() (string, bool) {
	return b.values.first()
}

// All returns every accumulated value.
func (b *Builder) All() []string {
	return b.values.list()
}

// HasRegion reports whether a region was derived.
func (b *Builder) HasRegion() bool {
	return len(b.regions.items) > 0
}

// Region returns the first derived region.
func (b *Builder) Region() (string, bool) {
	return b.regions.first()
}

// Regions returns every derived region.
func (b *Builder) Regions() []string {
	return b.regions.list()
}

// RegionOf maps an ISO 3166-1 alpha-2 code to its region.
func RegionOf(isoCode string) (string, bool) {
	region, ok := countryRegions[strings.ToUpper(strings.TrimSpace(isoCode))]
	return region, ok
}

type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func (s *orderedSet) add(v string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, dup := s.seen[v]; dup {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) first() (string, bool) {
	if len(s.items) == 0 {
		return "", false
	}
	return s.items[0], true
}

func (s *orderedSet) list() []string {
	return append([]string(nil), s.items...)
}
