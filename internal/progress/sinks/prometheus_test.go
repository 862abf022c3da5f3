package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gbif/content-crawler-sub000/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageContentTypeStart, ContentType: "news", Recreated: true},
		{RunID: runID, TS: now, Stage: progress.StageBatchDone, ContentType: "news", Indexed: 98, Failed: 2},
		{RunID: runID, TS: now, Stage: progress.StageTag, ContentType: "article", Tag: progress.TagApplied},
		{RunID: runID, TS: now, Stage: progress.StageTag, ContentType: "article", Tag: progress.TagDropped},
		{RunID: runID, TS: now, Stage: progress.StageContentTypeDone, ContentType: "news", Dur: 3 * time.Second},
		{RunID: runID, TS: now.Add(15 * time.Second), Stage: progress.StageRunDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))

	require.InDelta(t, 98.0, testutil.ToFloat64(sink.documents.WithLabelValues("news", "indexed")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.documents.WithLabelValues("news", "failed")), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(sink.indexRecreated.WithLabelValues("news")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tags.WithLabelValues("article", "applied")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tags.WithLabelValues("article", "dropped")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.contentTypes.WithLabelValues("news", "success")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.contentTypeDuration, "content_crawler_content_type_duration_seconds"))
}

// TestPrometheusSinkDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
