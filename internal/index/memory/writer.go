// Package memory provides an in-memory IndexWriter with the same observable
// semantics as the Elasticsearch writer. Documents are stored as their JSON
// round-trip so reads see exactly what a search index would return.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
)

// ErrIndexExists is returned when creating an index that already exists.
var ErrIndexExists = errors.New("index already exists")

type index struct {
	mapping []byte
	docs    map[string]map[string]any
}

// Writer is a thread-safe in-memory crawler.IndexWriter.
type Writer struct {
	mu      sync.RWMutex
	indices map[string]*index
	// Reject, when set, is consulted per bulk item; a non-empty reason fails it.
	Reject func(index, id string) string
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{indices: make(map[string]*index)}
}

// IndexExists reports whether name was created.
func (w *Writer) IndexExists(_ context.Context, name string) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.indices[name]
	return ok, nil
}

// CreateIndex creates name with the given mapping body.
func (w *Writer) CreateIndex(_ context.Context, name string, mapping []byte) error {
	if !json.Valid(mapping) {
		return fmt.Errorf("create index %s: mapping is not valid JSON", name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.indices[name]; ok {
		return fmt.Errorf("create index %s: %w", name, ErrIndexExists)
	}
	w.indices[name] = &index{mapping: append([]byte(nil), mapping...), docs: make(map[string]map[string]any)}
	return nil
}

// DeleteIndex drops name and every document in it. Deleting a missing index
// is not an error.
func (w *Writer) DeleteIndex(_ context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.indices, name)
	return nil
}

// BulkUpsert replaces each document by id. A missing index is created
// without a mapping, as a search cluster would on first write.
func (w *Writer) BulkUpsert(_ context.Context, name string, docs []crawler.IndexedDocument) (crawler.BulkResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indices[name]
	if idx == nil {
		idx = &index{docs: make(map[string]map[string]any)}
		w.indices[name] = idx
	}
	var res crawler.BulkResult
	for _, d := range docs {
		if w.Reject != nil {
			if reason := w.Reject(name, d.ID); reason != "" {
				res.Failures = append(res.Failures, crawler.BulkFailure{ID: d.ID, Status: 400, Reason: reason})
				continue
			}
		}
		stored, err := roundTrip(d.Body)
		if err != nil {
			res.Failures = append(res.Failures, crawler.BulkFailure{ID: d.ID, Status: 400, Reason: err.Error()})
			continue
		}
		idx.docs[d.ID] = stored
		res.Succeeded++
	}
	return res, nil
}

// PartialUpdate appends update.Value to the array under update.Field unless
// present. A missing index or document yields UpdateTargetMissing.
func (w *Writer) PartialUpdate(_ context.Context, name, id string, update crawler.AppendIfAbsent) (crawler.UpdateOutcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indices[name]
	if idx == nil {
		return crawler.UpdateTargetMissing, nil
	}
	doc, ok := idx.docs[id]
	if !ok {
		return crawler.UpdateTargetMissing, nil
	}
	var values []any
	switch existing := doc[update.Field].(type) {
	case nil:
	case []any:
		values = existing
	default:
		values = []any{existing}
	}
	for _, v := range values {
		if s, ok := v.(string); ok && s == update.Value {
			return crawler.UpdateUnchanged, nil
		}
	}
	doc[update.Field] = append(values, update.Value)
	return crawler.UpdateApplied, nil
}

// Document returns a copy of a stored document.
func (w *Writer) Document(name, id string) (map[string]any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	idx := w.indices[name]
	if idx == nil {
		return nil, false
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, false
	}
	cp, err := roundTrip(doc)
	if err != nil {
		return nil, false
	}
	return cp, true
}

// DocumentIDs lists the ids stored in name in lexical order.
func (w *Writer) DocumentIDs(name string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	idx := w.indices[name]
	if idx == nil {
		return nil
	}
	ids := make([]string, 0, len(idx.docs))
	for id := range idx.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Mapping returns the mapping body name was created with.
func (w *Writer) Mapping(name string) ([]byte, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	idx := w.indices[name]
	if idx == nil || idx.mapping == nil {
		return nil, false
	}
	return append([]byte(nil), idx.mapping...), true
}

func roundTrip(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
