// Package document projects content-store entries into the flat documents
// written to the search index.
package document

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/mapping"
	"github.com/gbif/content-crawler-sub000/internal/schema"
	"github.com/gbif/content-crawler-sub000/internal/vocabulary"
)

const (
	// MetaField carries migration provenance on entries imported from an older store.
	MetaField = "meta"
	// MetaCreatedKey is the provenance key holding the original creation time.
	MetaCreatedKey = "created"
)

// NestedFunc observes the entries behind a nested link field. It is called at
// most once per field with the full candidate list, and only once the whole
// entry projected successfully.
type NestedFunc func(source *crawler.Entry, candidates []*crawler.Entry)

// Options configures a Projector.
type Options struct {
	// DefaultLocale selects the resolved scalar of localized values.
	DefaultLocale string
	// Labels maps content-type ids to the label stored under contentType.
	// The id itself is used when absent.
	Labels map[string]string
}

// Projector converts entries into documents. It only reads run-scoped state
// built before projection starts and may be shared between goroutines.
type Projector struct {
	classifier *schema.Classifier
	catalog    *vocabulary.Catalog
	opts       Options
}

// NewProjector creates a Projector over a complete classifier and catalog.
func NewProjector(classifier *schema.Classifier, catalog *vocabulary.Catalog, opts Options) *Projector {
	return &Projector{classifier: classifier, catalog: catalog, opts: opts}
}

// Label returns the content-type label for ctID.
func (p *Projector) Label(ctID string) string {
	if label, ok := p.opts.Labels[ctID]; ok && label != "" {
		return label
	}
	return ctID
}

// Project builds the document for e. onNested may be nil.
func (p *Projector) Project(e *crawler.Entry, onNested NestedFunc) (crawler.Document, error) {
	if e == nil || e.ID == "" {
		return nil, &crawler.ProjectionError{Err: errors.New("entry has no id")}
	}
	if e.ContentTypeID == "" {
		return nil, &crawler.ProjectionError{EntryID: e.ID, Err: errors.New("entry has no content type")}
	}

	doc := crawler.Document{}
	var nested [][]*crawler.Entry
	ids := make([]string, 0, len(e.Fields))
	for id := range e.Fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		cls, err := p.classifier.Lookup(e.ContentTypeID, id)
		if err != nil {
			if id == MetaField {
				continue
			}
			return nil, &crawler.ProjectionError{EntryID: e.ID, Field: id, Err: err}
		}
		if cls.Field.Disabled || cls.Field.Omitted {
			continue
		}
		candidates, err := p.projectField(doc, cls, e.Fields[id])
		if err != nil {
			return nil, &crawler.ProjectionError{EntryID: e.ID, Field: id, Err: err}
		}
		if len(candidates) > 0 {
			nested = append(nested, candidates)
		}
	}

	p.mergeSystemAttributes(doc, e)
	if onNested != nil {
		for _, candidates := range nested {
			onNested(e, candidates)
		}
	}
	return doc, nil
}

// projectField writes one field into doc and returns the linked entries it
// nested, if any.
func (p *Projector) projectField(doc crawler.Document, cls schema.Classification, raw crawler.LocalizedValue) ([]*crawler.Entry, error) {
	id := cls.Field.ID
	switch cls.Kind {
	case schema.KindAsset:
		resolved, ok := raw.Resolve(p.opts.DefaultLocale)
		if !ok || resolved == nil {
			return nil, nil
		}
		assets, err := linkedAssets(resolved)
		if err != nil {
			return nil, err
		}
		if len(assets) == 0 {
			return nil, nil
		}
		if cls.List {
			out := make([]any, 0, len(assets))
			for _, a := range assets {
				out = append(out, assetFields(a))
			}
			doc[id] = out
		} else {
			doc[id] = assetFields(assets[0])
		}

	case schema.KindVocabulary, schema.KindNested:
		resolved, ok := raw.Resolve(p.opts.DefaultLocale)
		if !ok || resolved == nil {
			return nil, nil
		}
		candidates, err := linkedEntries(resolved)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, nil
		}
		b := p.catalog.NewBuilder()
		b.AddAll(candidates)
		if !b.IsEmpty() {
			p.emitVocabulary(doc, id, cls.List, b)
			return nil, nil
		}
		if cls.Kind == schema.KindVocabulary {
			// Vocabulary links are never nested, even when nothing resolved.
			return nil, nil
		}
		if cls.List {
			out := make([]any, 0, len(candidates))
			for _, c := range candidates {
				out = append(out, p.summarize(c))
			}
			doc[id] = out
		} else {
			doc[id] = p.summarize(candidates[0])
		}
		return candidates, nil

	case schema.KindCollapsible:
		if v, ok := raw.Resolve(p.opts.DefaultLocale); ok && v != nil {
			doc[id] = v
		}

	default:
		if cls.Localized {
			doc[id] = copyLocales(raw)
			return nil, nil
		}
		if v, ok := raw.Resolve(p.opts.DefaultLocale); ok && v != nil {
			doc[id] = v
		}
	}
	return nil, nil
}

func (p *Projector) emitVocabulary(doc crawler.Document, id string, list bool, b *vocabulary.Builder) {
	if list {
		doc[id] = b.All()
	} else if v, ok := b.One(); ok {
		doc[id] = v
	}
	if !b.HasRegion() {
		return
	}
	regions := b.Regions()
	if !list {
		regions = regions[:1]
	}
	mergeRegions(doc, regions, list)
}

// mergeRegions combines regions derived from several country-linked fields.
func mergeRegions(doc crawler.Document, regions []string, list bool) {
	existing, ok := doc[mapping.FieldRegion]
	if !ok {
		if list {
			doc[mapping.FieldRegion] = regions
		} else {
			doc[mapping.FieldRegion] = regions[0]
		}
		return
	}
	var merged []string
	switch v := existing.(type) {
	case string:
		merged = []string{v}
	case []string:
		merged = append(merged, v...)
	}
	for _, r := range regions {
		if !contains(merged, r) {
			merged = append(merged, r)
		}
	}
	if len(merged) == 1 {
		doc[mapping.FieldRegion] = merged[0]
		return
	}
	doc[mapping.FieldRegion] = merged
}

func (p *Projector) mergeSystemAttributes(doc crawler.Document, e *crawler.Entry) {
	doc[mapping.FieldID] = e.ID
	doc[mapping.FieldContentType] = p.Label(e.ContentTypeID)
	if !e.CreatedAt.IsZero() {
		doc[mapping.FieldCreatedAt] = e.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !e.UpdatedAt.IsZero() {
		doc[mapping.FieldUpdatedAt] = e.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if created, ok := p.provenanceCreated(e); ok {
		doc[mapping.FieldCreatedAt] = created
	}
}

// provenanceCreated returns the original creation time recorded by a
// migration, if the entry carries a valid one.
func (p *Projector) provenanceCreated(e *crawler.Entry) (string, bool) {
	raw, ok := e.Fields[MetaField].Resolve(p.opts.DefaultLocale)
	if !ok {
		return "", false
	}
	meta, ok := raw.(map[string]any)
	if !ok {
		return "", false
	}
	created, ok := meta[MetaCreatedKey].(string)
	if !ok || created == "" {
		return "", false
	}
	if _, err := time.Parse(time.RFC3339, created); err != nil {
		return "", false
	}
	return created, true
}

func linkedEntries(v any) ([]*crawler.Entry, error) {
	switch x := v.(type) {
	case *crawler.Entry:
		if x == nil {
			return nil, nil
		}
		return []*crawler.Entry{x}, nil
	case crawler.Link:
		return nil, nil
	case []*crawler.Entry:
		out := make([]*crawler.Entry, 0, len(x))
		for _, it := range x {
			if it != nil {
				out = append(out, it)
			}
		}
		return out, nil
	case []any:
		out := make([]*crawler.Entry, 0, len(x))
		for _, item := range x {
			switch it := item.(type) {
			case *crawler.Entry:
				if it != nil {
					out = append(out, it)
				}
			case crawler.Link, nil:
				// Unresolved links are dropped.
			default:
				return nil, fmt.Errorf("unexpected link item %T", item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected link value %T", v)
	}
}

func linkedAssets(v any) ([]*crawler.Asset, error) {
	switch x := v.(type) {
	case *crawler.Asset:
		if x == nil {
			return nil, nil
		}
		return []*crawler.Asset{x}, nil
	case crawler.Link:
		return nil, nil
	case []*crawler.Asset:
		out := make([]*crawler.Asset, 0, len(x))
		for _, it := range x {
			if it != nil {
				out = append(out, it)
			}
		}
		return out, nil
	case []any:
		out := make([]*crawler.Asset, 0, len(x))
		for _, item := range x {
			switch it := item.(type) {
			case *crawler.Asset:
				if it != nil {
					out = append(out, it)
				}
			case crawler.Link, nil:
			default:
				return nil, fmt.Errorf("unexpected asset item %T", item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected asset value %T", v)
	}
}

// assetFields returns the asset's raw per-locale field map.
func assetFields(a *crawler.Asset) map[string]any {
	out := make(map[string]any, len(a.Fields))
	for id, v := range a.Fields {
		out[id] = copyLocales(v)
	}
	return out
}

func copyLocales(v crawler.LocalizedValue) map[string]any {
	out := make(map[string]any, len(v))
	for locale, val := range v {
		out[locale] = val
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
