package tagging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/index/memory"
	"github.com/gbif/content-crawler-sub000/internal/progress"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

type eventRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *eventRecorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) outcomes() []progress.TagOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.TagOutcome, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Tag)
	}
	return out
}

// failingWriter rejects every partial update.
type failingWriter struct {
	*memory.Writer
}

func (failingWriter) PartialUpdate(context.Context, string, string, crawler.AppendIfAbsent) (crawler.UpdateOutcome, error) {
	return "", errors.New("cluster unavailable")
}

var runID = [16]byte{1, 2, 3}

func newTagger(t *testing.T, writer crawler.IndexWriter, rec progress.Emitter, remember bool) *Tagger {
	t.Helper()
	return New(context.Background(), writer, rec, fixedClock{}, Config{
		RunID:           runID,
		Targets:         map[string]string{"news": "news-idx"},
		Labels:          map[string]string{"article": "Article"},
		Concurrency:     2,
		Buffer:          4,
		RememberMissing: remember,
	}, nil)
}

func seedNews(t *testing.T, w *memory.Writer, ids ...string) {
	t.Helper()
	docs := make([]crawler.IndexedDocument, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, crawler.IndexedDocument{ID: id, Body: crawler.Document{"id": id}})
	}
	_, err := w.BulkUpsert(context.Background(), "news-idx", docs)
	require.NoError(t, err)
}

func article(id string) *crawler.Entry {
	return &crawler.Entry{ID: id, ContentTypeID: "article"}
}

func newsEntry(id string) *crawler.Entry {
	return &crawler.Entry{ID: id, ContentTypeID: "news"}
}

func TestRequestsFiltersTargetsAndDeduplicates(t *testing.T) {
	t.Parallel()

	tg := newTagger(t, memory.NewWriter(), nil, false)
	defer tg.Close(context.Background())

	reqs := tg.Requests(article("art-1"), []*crawler.Entry{
		newsEntry("abc123"),
		{ID: "p1", ContentTypeID: "project"},
		newsEntry("abc123"),
		nil,
		newsEntry("def456"),
	})
	require.Equal(t, []Request{
		{SourceContentType: "article", TargetContentType: "news", Index: "news-idx", DocumentID: "abc123", Field: "ArticleTag", Value: "art-1"},
		{SourceContentType: "article", TargetContentType: "news", Index: "news-idx", DocumentID: "def456", Field: "ArticleTag", Value: "art-1"},
	}, reqs)

	require.Equal(t, "projectTag", tg.FieldFor("project"), "unlabelled sources use their id")
	require.True(t, tg.IsTarget("news"))
	require.False(t, tg.IsTarget("article"))
}

func TestApplyAppendsIfAbsent(t *testing.T) {
	t.Parallel()

	w := memory.NewWriter()
	seedNews(t, w, "abc123")
	rec := &eventRecorder{}
	tg := newTagger(t, w, rec, false)

	ctx := context.Background()
	n, err := tg.Apply(ctx, article("art-1"), []*crawler.Entry{newsEntry("abc123")})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	// Waiting between calls keeps the applied/unchanged order deterministic.
	require.Eventually(t, func() bool { return tg.Stats().Applied == 1 }, time.Second, time.Millisecond)
	_, err = tg.Apply(ctx, article("art-1"), []*crawler.Entry{newsEntry("abc123")})
	require.NoError(t, err)
	_, err = tg.Apply(ctx, article("art-2"), []*crawler.Entry{newsEntry("abc123")})
	require.NoError(t, err)
	require.NoError(t, tg.Close(ctx))

	doc, ok := w.Document("news-idx", "abc123")
	require.True(t, ok)
	require.ElementsMatch(t, []any{"art-1", "art-2"}, doc["ArticleTag"])

	stats := tg.Stats()
	require.Equal(t, int64(3), stats.Requested)
	require.Equal(t, int64(2), stats.Applied)
	require.Equal(t, int64(1), stats.Unchanged)
	require.ElementsMatch(t, []progress.TagOutcome{progress.TagApplied, progress.TagApplied, progress.TagUnchanged}, rec.outcomes())

	for _, evt := range rec.events {
		require.NoError(t, evt.Validate())
		require.Equal(t, "article", evt.ContentType)
		require.Equal(t, "news-idx", evt.Index)
	}
}

func TestMissingTargetIsDroppedByDefault(t *testing.T) {
	t.Parallel()

	w := memory.NewWriter()
	rec := &eventRecorder{}
	tg := newTagger(t, w, rec, false)

	_, err := tg.Apply(context.Background(), article("art-1"), []*crawler.Entry{newsEntry("abc123")})
	require.NoError(t, err)
	require.NoError(t, tg.Close(context.Background()))

	require.Equal(t, []progress.TagOutcome{progress.TagDropped}, rec.outcomes())
	require.Empty(t, tg.Pending())
	require.Equal(t, int64(1), tg.Stats().Missing)
	require.Equal(t, int64(1), tg.Stats().Dropped)

	// The article crawled first never tags the news document created later.
	seedNews(t, w, "abc123")
	doc, ok := w.Document("news-idx", "abc123")
	require.True(t, ok)
	require.NotContains(t, doc, "ArticleTag")
}

func TestMissingTargetReplayedAfterTargetIsIndexed(t *testing.T) {
	t.Parallel()

	w := memory.NewWriter()
	rec := &eventRecorder{}
	tg := newTagger(t, w, rec, true)
	ctx := context.Background()

	_, err := tg.Apply(ctx, article("art-1"), []*crawler.Entry{newsEntry("abc123"), newsEntry("ghost")})
	require.NoError(t, err)
	_, err = tg.Apply(ctx, article("art-1"), []*crawler.Entry{newsEntry("abc123")})
	require.NoError(t, err)
	require.NoError(t, tg.Close(ctx))

	pending := tg.Pending()
	require.Len(t, pending, 2, "duplicate missing requests collapse")

	seedNews(t, w, "abc123")
	report := tg.Replay(ctx)
	require.Equal(t, ReplayReport{Attempted: 2, Applied: 1, Dropped: 1}, report)
	require.Empty(t, tg.Pending())

	doc, ok := w.Document("news-idx", "abc123")
	require.True(t, ok)
	require.Equal(t, []any{"art-1"}, doc["ArticleTag"])

	outcomes := rec.outcomes()
	require.Len(t, outcomes, 5)
	require.ElementsMatch(t, []progress.TagOutcome{
		progress.TagTargetMissing, progress.TagTargetMissing, progress.TagTargetMissing,
		progress.TagApplied, progress.TagDropped,
	}, outcomes)
}

func TestWriterErrorsAreCountedAndNeverPropagate(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	tg := newTagger(t, failingWriter{memory.NewWriter()}, rec, true)

	n, err := tg.Apply(context.Background(), article("art-1"), []*crawler.Entry{newsEntry("abc123")})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, tg.Close(context.Background()))

	require.Equal(t, int64(1), tg.Stats().Failed)
	require.Equal(t, []progress.TagOutcome{progress.TagFailed}, rec.outcomes())
	require.Contains(t, rec.events[0].Note, "cluster unavailable")
	require.Empty(t, tg.Pending(), "failures are not replayed")
}

func TestApplyAfterClose(t *testing.T) {
	t.Parallel()

	tg := newTagger(t, memory.NewWriter(), nil, false)
	require.NoError(t, tg.Close(context.Background()))
	require.NoError(t, tg.Close(context.Background()), "close is idempotent")

	_, err := tg.Apply(context.Background(), article("art-1"), []*crawler.Entry{newsEntry("abc123")})
	require.ErrorIs(t, err, ErrClosed)

	n, err := tg.Apply(context.Background(), article("art-1"), []*crawler.Entry{{ID: "p", ContentTypeID: "project"}})
	require.NoError(t, err, "no target candidates means nothing to enqueue")
	require.Zero(t, n)
}

func TestConcurrentSourcesTagSameTarget(t *testing.T) {
	t.Parallel()

	w := memory.NewWriter()
	seedNews(t, w, "abc123")
	tg := newTagger(t, w, nil, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := article("art-" + string(rune('a'+i%5)))
			_, err := tg.Apply(ctx, src, []*crawler.Entry{newsEntry("abc123")})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()
	require.NoError(t, tg.Close(ctx))

	doc, ok := w.Document("news-idx", "abc123")
	require.True(t, ok)
	require.ElementsMatch(t, []any{"art-a", "art-b", "art-c", "art-d", "art-e"}, doc["ArticleTag"])
	stats := tg.Stats()
	require.Equal(t, int64(5), stats.Applied)
	require.Equal(t, int64(15), stats.Unchanged)
}
