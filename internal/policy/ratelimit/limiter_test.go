package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/index/memory"
)

func TestWaitUnlimitedByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "news"))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitIsPerIndex(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "news"))
	require.NoError(t, l.Wait(context.Background(), "project"), "other indices keep their own bucket")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorContains(t, l.Wait(ctx, "news"), "rate limit wait")
}

func TestWriterThrottlesWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := memory.NewWriter()
	require.NoError(t, inner.CreateIndex(ctx, "news", []byte(`{"mappings":{}}`)))
	w := NewWriter(inner, New(Config{RequestsPerSecond: 0.001, Burst: 2}))

	res, err := w.BulkUpsert(ctx, "news", []crawler.IndexedDocument{{ID: "a", Body: crawler.Document{"id": "a"}}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Succeeded)

	_, err = w.BulkUpsert(ctx, "news", nil)
	require.NoError(t, err, "empty batches take no token")

	out, err := w.PartialUpdate(ctx, "news", "a", crawler.AppendIfAbsent{Field: "projectTag", Value: "p1"})
	require.NoError(t, err)
	require.Equal(t, crawler.UpdateApplied, out)

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = w.PartialUpdate(blocked, "news", "a", crawler.AppendIfAbsent{Field: "projectTag", Value: "p2"})
	require.Error(t, err)

	exists, err := w.IndexExists(ctx, "news")
	require.NoError(t, err)
	require.True(t, exists)
}
