package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gbif/content-crawler-sub000/internal/progress"
	"github.com/gbif/content-crawler-sub000/internal/store"
)

// TestStoreSinkPersistsEvents ensures counters are collapsed per content type before persisting.
func TestStoreSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: now},
		{RunID: runID, Stage: progress.StageContentTypeStart, TS: now, ContentType: "news", Index: "news-idx", Recreated: true},
		{RunID: runID, Stage: progress.StageBatchDone, TS: now.Add(time.Second), ContentType: "news", Indexed: 99, Failed: 1},
		{RunID: runID, Stage: progress.StageBatchDone, TS: now.Add(2 * time.Second), ContentType: "news", Indexed: 40, Skipped: 2},
		{RunID: runID, Stage: progress.StageTag, TS: now.Add(3 * time.Second), ContentType: "article", Tag: progress.TagApplied},
		{RunID: runID, Stage: progress.StageTag, TS: now.Add(3 * time.Second), ContentType: "article", Tag: progress.TagUnchanged},
		{RunID: runID, Stage: progress.StageTag, TS: now.Add(3 * time.Second), ContentType: "article", Tag: progress.TagTargetMissing},
		{RunID: runID, Stage: progress.StageTag, TS: now.Add(4 * time.Second), ContentType: "article", Tag: progress.TagDropped},
		{RunID: runID, Stage: progress.StageRunDone, TS: now.Add(5 * time.Second), Dur: 5 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []uuid.UUID{runUUID}, repo.starts)
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunSuccess, repo.completes[0].status)
	require.Len(t, repo.stats, 2)

	news := repo.stats[0]
	require.Equal(t, "news", news.contentType)
	require.Equal(t, "news-idx", news.index)
	require.Equal(t, store.StatsDelta{Indexed: 139, Failed: 1, Skipped: 2, Recreated: true}, news.delta)
	require.Equal(t, now.Add(2*time.Second), news.at)

	article := repo.stats[1]
	require.Equal(t, store.StatsDelta{TagsApplied: 1, TagsUnchanged: 1, TagsDropped: 1}, article.delta)
	require.True(t, repo.statsBeforeComplete, "counters must be stored before the run is completed")
}

// TestStoreSinkRecordsRunError keeps the failure note.
func TestStoreSinkRecordsRunError(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunError, TS: time.Now(), Note: "tag target missing"},
	})
	require.NoError(t, err)
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunError, repo.completes[0].status)
	require.Equal(t, "tag target missing", *repo.completes[0].errMsg)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.Error(t, err)

	err = sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageBatchDone, TS: time.Now(), ContentType: "news", Indexed: 1},
	})
	require.ErrorContains(t, err, "upsert content type stats")
}

type completeCall struct {
	runID  uuid.UUID
	status store.RunStatus
	errMsg *string
}

type statsCall struct {
	runID       uuid.UUID
	contentType string
	index       string
	delta       store.StatsDelta
	at          time.Time
}

type fakeRunRepo struct {
	mu                  sync.Mutex
	fail                bool
	starts              []uuid.UUID
	completes           []completeCall
	stats               []statsCall
	statsBeforeComplete bool
}

var errRepo = errors.New("repository unavailable")

func (f *fakeRunRepo) UpsertRunStart(_ context.Context, runID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errRepo
	}
	f.starts = append(f.starts, runID)
	return nil
}

func (f *fakeRunRepo) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	_ time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errRepo
	}
	f.statsBeforeComplete = len(f.stats) > 0
	f.completes = append(f.completes, completeCall{runID: runID, status: status, errMsg: errMsg})
	return nil
}

func (f *fakeRunRepo) UpsertContentTypeStats(
	_ context.Context,
	runID uuid.UUID,
	contentType string,
	index string,
	delta store.StatsDelta,
	at time.Time,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errRepo
	}
	f.stats = append(f.stats, statsCall{runID: runID, contentType: contentType, index: index, delta: delta, at: at})
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, store.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, nil
}

func (f *fakeRunRepo) ListRunContentTypes(context.Context, uuid.UUID, int, int) ([]store.ContentTypeStats, error) {
	return nil, nil
}
