package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gbif/content-crawler-sub000/internal/contentstore"
	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/index/memory"
	"github.com/gbif/content-crawler-sub000/internal/progress"
)

const runUUID = "0192f0a4-7a7b-7c3d-8e9f-0a1b2c3d4e5f"

type fixedIDs struct{ err error }

func (f fixedIDs) NewID() (string, error) { return runUUID, f.err }

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type eventRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *eventRecorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) byStage(stage progress.Stage) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, e := range r.events {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

type failingSchemas struct{}

func (failingSchemas) ContentTypes(context.Context) ([]crawler.ContentType, error) {
	return nil, errors.New("store unavailable")
}

func baseConfig() Config {
	return Config{
		DefaultLocale: "en-GB",
		ContentTypes: []ContentType{
			{ID: "project", Index: "project-idx", Label: "Project", Priority: 3},
			{ID: "article", Index: "article-idx", Label: "Article", Priority: 2},
			{ID: "news", Index: "news-idx", Label: "News", Priority: 1},
		},
		VocabularyIDs:       []string{"country", "topic"},
		CountryVocabularyID: "country",
		TagTargets:          []string{"news"},
		PageSize:            10,
	}
}

func newOrchestrator(t *testing.T, w crawler.IndexWriter, rec progress.Emitter, cfg Config) *Orchestrator {
	t.Helper()
	snap, err := contentstore.LoadFile("testdata/export.json")
	require.NoError(t, err)
	return New(snap, snap, w, nil, nil, nil,
		&stepClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}, fixedIDs{}, rec, cfg, nil)
}

func TestRunProjectsVocabulariesAndTags(t *testing.T) {
	t.Parallel()

	w := memory.NewWriter()
	rec := &eventRecorder{}
	summary, err := newOrchestrator(t, w, rec, baseConfig()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, runUUID, summary.RunID)
	require.Empty(t, summary.Failed)
	require.Len(t, summary.ContentTypes, 3)
	require.Equal(t, "news", summary.ContentTypes[0].ContentType, "tag targets are crawled first")

	project, ok := w.Document("project-idx", "p1")
	require.True(t, ok)
	require.Equal(t, "DK", project["country"])
	require.Equal(t, "EUROPE", project["region"])
	require.Equal(t, []any{"WATER"}, project["topics"])
	require.Equal(t, "Project", project["contentType"])

	article, ok := w.Document("article-idx", "art1")
	require.True(t, ok)
	require.Equal(t, []any{map[string]any{
		"id":    "abc123",
		"title": map[string]any{"en-GB": "Wetland survey", "da": "Vådområde"},
	}}, article["news"])

	news, ok := w.Document("news-idx", "abc123")
	require.True(t, ok)
	require.Equal(t, []any{"art1"}, news["ArticleTag"])
	require.Equal(t, "2021-03-04T05:06:07Z", news["createdAt"])
	require.Equal(t, int64(1), summary.Tags.Applied)

	body, ok := w.Mapping("project-idx")
	require.True(t, ok)
	var m struct {
		Mappings struct {
			Properties map[string]map[string]any `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(body, &m))
	require.Equal(t, "keyword", m.Mappings.Properties["country"]["type"])
	require.Equal(t, "keyword", m.Mappings.Properties["region"]["type"])

	require.Len(t, rec.byStage(progress.StageRunStart), 1)
	require.Len(t, rec.byStage(progress.StageRunDone), 1)
	require.Len(t, rec.byStage(progress.StageContentTypeDone), 3)
	require.Len(t, rec.byStage(progress.StageTag), 1)
}

func TestRunSourceBeforeTargetEitherTagsOrDrops(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ContentTypes[1].Priority = 0 // article before news
	w := memory.NewWriter()
	summary, err := newOrchestrator(t, w, nil, cfg).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "article", summary.ContentTypes[0].ContentType)

	news, ok := w.Document("news-idx", "abc123")
	require.True(t, ok)
	require.Equal(t, int64(1), summary.Tags.Applied+summary.Tags.Dropped)
	if summary.Tags.Applied == 1 {
		require.Equal(t, []any{"art1"}, news["ArticleTag"])
	} else {
		require.NotContains(t, news, "ArticleTag")
	}
	require.Nil(t, summary.Replay)
}

func TestRunReplaysMissingTargets(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ContentTypes[1].Priority = 0
	cfg.ReplayMissing = true
	w := memory.NewWriter()
	summary, err := newOrchestrator(t, w, nil, cfg).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary.Replay)
	require.Zero(t, summary.Replay.Dropped)

	news, ok := w.Document("news-idx", "abc123")
	require.True(t, ok)
	require.Equal(t, []any{"art1"}, news["ArticleTag"])
}

func TestRunReindexDiscardsTags(t *testing.T) {
	t.Parallel()

	w := memory.NewWriter()
	ctx := context.Background()
	_, err := newOrchestrator(t, w, nil, baseConfig()).Run(ctx)
	require.NoError(t, err)
	_, err = w.PartialUpdate(ctx, "news-idx", "abc123", crawler.AppendIfAbsent{Field: "LegacyTag", Value: "old"})
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.TagTargets = nil
	cfg.Reindex = true
	summary, err := newOrchestrator(t, w, nil, cfg).Run(ctx)
	require.NoError(t, err)
	for _, res := range summary.ContentTypes {
		require.True(t, res.Recreated)
	}

	news, ok := w.Document("news-idx", "abc123")
	require.True(t, ok)
	require.NotContains(t, news, "LegacyTag")
	require.NotContains(t, news, "ArticleTag")
}

func TestRunConfigurationErrorsAbortBeforeProjection(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"vocabulary without term":  func(c *Config) { c.VocabularyIDs = append(c.VocabularyIDs, "brokenVocabulary") },
		"vocabulary not in store":  func(c *Config) { c.VocabularyIDs = append(c.VocabularyIDs, "ghost") },
		"country without iso code": func(c *Config) { c.CountryVocabularyID = "topic" },
		"tag target not in store":  func(c *Config) { c.TagTargets = []string{"event"} },
		"tag target not crawled":   func(c *Config) { c.TagTargets = []string{"topic"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			mutate(&cfg)
			w := memory.NewWriter()
			rec := &eventRecorder{}
			_, err := newOrchestrator(t, w, rec, cfg).Run(context.Background())
			require.Error(t, err)
			require.True(t, crawler.IsFatal(err))
			exists, err := w.IndexExists(context.Background(), "news-idx")
			require.NoError(t, err)
			require.False(t, exists, "nothing is indexed")
			require.Len(t, rec.byStage(progress.StageRunError), 1)
		})
	}
}

func TestRunContinuesPastMissingContentType(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ContentTypes = append([]ContentType{{ID: "event", Index: "event-idx"}}, cfg.ContentTypes...)
	w := memory.NewWriter()
	summary, err := newOrchestrator(t, w, nil, cfg).Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, summary.Failed, "event")
	require.Len(t, summary.ContentTypes, 3)
}

func TestRunFailsWhenSchemasUnavailable(t *testing.T) {
	t.Parallel()

	o := New(failingSchemas{}, nil, memory.NewWriter(), nil, nil, nil, &stepClock{}, fixedIDs{}, nil, baseConfig(), nil)
	_, err := o.Run(context.Background())
	require.ErrorContains(t, err, "store unavailable")
	require.False(t, crawler.IsFatal(err))

	o = New(failingSchemas{}, nil, memory.NewWriter(), nil, nil, nil, &stepClock{}, fixedIDs{err: errors.New("entropy")}, nil, baseConfig(), nil)
	_, err = o.Run(context.Background())
	require.ErrorContains(t, err, "generate run id")
}

func TestMapping(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, memory.NewWriter(), nil, baseConfig())
	body, err := o.Mapping(context.Background(), "project")
	require.NoError(t, err)
	require.Contains(t, string(body), `"back_reference_tags"`)

	_, err = o.Mapping(context.Background(), "ghost")
	require.Error(t, err)
}

func TestOrderedIsStable(t *testing.T) {
	t.Parallel()

	in := []ContentType{{ID: "a", Priority: 2}, {ID: "b", Priority: 1}, {ID: "c", Priority: 2}, {ID: "d", Priority: 1}}
	out := Ordered(in)
	ids := make([]string, 0, len(out))
	for _, ct := range out {
		ids = append(ids, ct.ID)
	}
	require.Equal(t, []string{"b", "d", "a", "c"}, ids)
	require.Equal(t, "a", in[0].ID, "input is not reordered")
}
