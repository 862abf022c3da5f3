// Package contentstore serves content-type schemas and entries from a
// content-store export snapshot. Links are expanded one level deep, the way
// the delivery API does with include=1.
package contentstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
)

type sysLink struct {
	Sys struct {
		Type     string `json:"type"`
		LinkType string `json:"linkType"`
		ID       string `json:"id"`
	} `json:"sys"`
}

type rawContentType struct {
	Sys struct {
		ID string `json:"id"`
	} `json:"sys"`
	Name         string          `json:"name"`
	DisplayField string          `json:"displayField"`
	Fields       []crawler.Field `json:"fields"`
}

type rawEntry struct {
	Sys struct {
		ID          string    `json:"id"`
		ContentType sysLink   `json:"contentType"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
		Revision    int       `json:"revision"`
	} `json:"sys"`
	Fields map[string]map[string]json.RawMessage `json:"fields"`
}

type rawAsset struct {
	Sys struct {
		ID string `json:"id"`
	} `json:"sys"`
	Fields map[string]map[string]json.RawMessage `json:"fields"`
}

type export struct {
	ContentTypes []rawContentType `json:"contentTypes"`
	Entries      []rawEntry       `json:"entries"`
	Assets       []rawAsset       `json:"assets"`
}

// Snapshot is an immutable, fully loaded export. It implements
// crawler.SchemaProvider and crawler.EntryProvider.
type Snapshot struct {
	types   []crawler.ContentType
	entries map[string]*crawler.Entry
	byType  map[string][]string
	assets  map[string]*crawler.Asset
}

// LoadFile reads a snapshot export from path.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Load(f)
}

// Load decodes a snapshot export.
func Load(r io.Reader) (*Snapshot, error) {
	var exp export
	if err := json.NewDecoder(r).Decode(&exp); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	s := &Snapshot{
		entries: make(map[string]*crawler.Entry, len(exp.Entries)),
		byType:  make(map[string][]string),
		assets:  make(map[string]*crawler.Asset, len(exp.Assets)),
	}
	for _, rct := range exp.ContentTypes {
		if rct.Sys.ID == "" {
			return nil, fmt.Errorf("decode snapshot: content type without id")
		}
		s.types = append(s.types, crawler.ContentType{
			ID:           rct.Sys.ID,
			Name:         rct.Name,
			DisplayField: rct.DisplayField,
			Fields:       rct.Fields,
		})
	}
	for _, ra := range exp.Assets {
		fields, err := decodeFields(ra.Fields)
		if err != nil {
			return nil, fmt.Errorf("decode asset %s: %w", ra.Sys.ID, err)
		}
		s.assets[ra.Sys.ID] = &crawler.Asset{ID: ra.Sys.ID, Fields: fields}
	}
	for _, re := range exp.Entries {
		id := re.Sys.ID
		ctID := re.Sys.ContentType.Sys.ID
		if id == "" || ctID == "" {
			return nil, fmt.Errorf("decode snapshot: entry %q without id or content type", id)
		}
		fields, err := decodeFields(re.Fields)
		if err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", id, err)
		}
		s.entries[id] = &crawler.Entry{
			ID:            id,
			ContentTypeID: ctID,
			Fields:        fields,
			CreatedAt:     re.Sys.CreatedAt,
			UpdatedAt:     re.Sys.UpdatedAt,
			Revision:      re.Sys.Revision,
		}
		s.byType[ctID] = append(s.byType[ctID], id)
	}
	return s, nil
}

// ContentTypes returns every content type of the export.
func (s *Snapshot) ContentTypes(_ context.Context) ([]crawler.ContentType, error) {
	out := make([]crawler.ContentType, len(s.types))
	copy(out, s.types)
	return out, nil
}

// Entries returns one page of contentTypeID's entries in export order, with
// links expanded one level.
func (s *Snapshot) Entries(ctx context.Context, contentTypeID string, skip, limit int) (crawler.EntryPage, error) {
	if err := ctx.Err(); err != nil {
		return crawler.EntryPage{}, err
	}
	if skip < 0 || limit <= 0 {
		return crawler.EntryPage{}, fmt.Errorf("invalid page skip=%d limit=%d", skip, limit)
	}
	ids := s.byType[contentTypeID]
	page := crawler.EntryPage{Skip: skip, Limit: limit, Total: len(ids)}
	if skip >= len(ids) {
		return page, nil
	}
	end := min(skip+limit, len(ids))
	page.Items = make([]*crawler.Entry, 0, end-skip)
	for _, id := range ids[skip:end] {
		page.Items = append(page.Items, s.expand(s.entries[id]))
	}
	return page, nil
}

// ContentTypeIDs lists the content types that have entries, sorted.
func (s *Snapshot) ContentTypeIDs() []string {
	out := make([]string, 0, len(s.byType))
	for id := range s.byType {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// expand copies e with its links replaced by the linked entries and assets.
// Links of linked entries stay unresolved.
func (s *Snapshot) expand(e *crawler.Entry) *crawler.Entry {
	out := *e
	out.Fields = make(map[string]crawler.LocalizedValue, len(e.Fields))
	for id, locales := range e.Fields {
		cp := make(crawler.LocalizedValue, len(locales))
		for locale, v := range locales {
			cp[locale] = s.resolve(v)
		}
		out.Fields[id] = cp
	}
	return &out
}

func (s *Snapshot) resolve(v any) any {
	switch x := v.(type) {
	case crawler.Link:
		return s.target(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			if l, ok := item.(crawler.Link); ok {
				out[i] = s.target(l)
			} else {
				out[i] = item
			}
		}
		return out
	default:
		return v
	}
}

func (s *Snapshot) target(l crawler.Link) any {
	switch l.LinkType {
	case crawler.LinkEntry:
		if e, ok := s.entries[l.ID]; ok {
			return e
		}
	case crawler.LinkAsset:
		if a, ok := s.assets[l.ID]; ok {
			return a
		}
	}
	return l
}

func decodeFields(raw map[string]map[string]json.RawMessage) (map[string]crawler.LocalizedValue, error) {
	out := make(map[string]crawler.LocalizedValue, len(raw))
	for id, locales := range raw {
		lv := make(crawler.LocalizedValue, len(locales))
		for locale, msg := range locales {
			v, err := decodeValue(msg)
			if err != nil {
				return nil, fmt.Errorf("field %s locale %s: %w", id, locale, err)
			}
			lv[locale] = v
		}
		out[id] = lv
	}
	return out, nil
}

// decodeValue turns link objects into crawler.Link and keeps everything else
// as generic JSON.
func decodeValue(msg json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case map[string]any:
		if l, ok := asLink(x); ok {
			return l, nil
		}
	case []any:
		for i, item := range x {
			if m, ok := item.(map[string]any); ok {
				if l, ok := asLink(m); ok {
					x[i] = l
				}
			}
		}
		return x, nil
	}
	return v, nil
}

func asLink(m map[string]any) (crawler.Link, bool) {
	sys, ok := m["sys"].(map[string]any)
	if !ok || len(m) != 1 {
		return crawler.Link{}, false
	}
	if t, _ := sys["type"].(string); t != "Link" {
		return crawler.Link{}, false
	}
	linkType, _ := sys["linkType"].(string)
	id, _ := sys["id"].(string)
	if id == "" {
		return crawler.Link{}, false
	}
	return crawler.Link{LinkType: crawler.LinkType(linkType), ID: id}, true
}
