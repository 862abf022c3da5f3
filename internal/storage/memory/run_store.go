package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gbif/content-crawler-sub000/internal/store"
)

// RunStore keeps the crawl-run ledger in memory for development and tests.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]store.Run
	stats map[uuid.UUID]map[string]*store.ContentTypeStats
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[uuid.UUID]store.Run),
		stats: make(map[uuid.UUID]map[string]*store.ContentTypeStats),
	}
}

// UpsertRunStart records a running run; repeated calls keep the first start time.
func (s *RunStore) UpsertRunStart(_ context.Context, runID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = store.Run{ID: runID, StartedAt: startedAt.UTC()}
	}
	run.Status = store.RunRunning
	s.runs[runID] = run
	return nil
}

// CompleteRun marks a run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	finished := finishedAt.UTC()
	run.FinishedAt = &finished
	run.Status = status
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	s.runs[runID] = run
	return nil
}

// UpsertContentTypeStats applies delta to the (run, content type) row.
func (s *RunStore) UpsertContentTypeStats(
	_ context.Context,
	runID uuid.UUID,
	contentType string,
	index string,
	delta store.StatsDelta,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byType := s.stats[runID]
	if byType == nil {
		byType = make(map[string]*store.ContentTypeStats)
		s.stats[runID] = byType
	}
	row := byType[contentType]
	if row == nil {
		row = &store.ContentTypeStats{RunID: runID, ContentType: contentType}
		byType[contentType] = row
	}
	if index != "" {
		row.Index = index
	}
	row.Indexed += delta.Indexed
	row.Failed += delta.Failed
	row.Skipped += delta.Skipped
	row.TagsApplied += delta.TagsApplied
	row.TagsUnchanged += delta.TagsUnchanged
	row.TagsDropped += delta.TagsDropped
	row.Recreated = row.Recreated || delta.Recreated
	if at.After(row.LastUpdate) {
		row.LastUpdate = at.UTC()
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return page(runs, limit, offset), nil
}

// ListRunContentTypes returns the content-type rows of a run, most recently
// updated first.
func (s *RunStore) ListRunContentTypes(
	_ context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.ContentTypeStats, error) {
	s.mu.RLock()
	rows := make([]store.ContentTypeStats, 0, len(s.stats[runID]))
	for _, row := range s.stats[runID] {
		rows = append(rows, *row)
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].LastUpdate.Equal(rows[j].LastUpdate) {
			return rows[i].ContentType < rows[j].ContentType
		}
		return rows[i].LastUpdate.After(rows[j].LastUpdate)
	})
	return page(rows, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
