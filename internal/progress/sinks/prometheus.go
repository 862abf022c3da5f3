package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gbif/content-crawler-sub000/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	contentTypes        *prometheus.CounterVec
	contentTypeDuration *prometheus.HistogramVec
	documents           *prometheus.CounterVec
	indexRecreated      *prometheus.CounterVec
	tags                *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_crawler_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_crawler_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_crawler_runs_running",
			Help: "Current number of running crawl runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "content_crawler_run_duration_seconds",
			Help:    "Wall time per completed crawl run.",
			Buckets: []float64{10, 30, 60, 300, 600, 1200, 3600, 7200},
		}, []string{"result"}),
		contentTypes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_crawler_content_types_total",
			Help: "Content types crawled partitioned by result.",
		}, []string{"content_type", "result"}),
		contentTypeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "content_crawler_content_type_duration_seconds",
			Help:    "Wall time per crawled content type.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800},
		}, []string{"content_type"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_crawler_documents_total",
			Help: "Documents handled partitioned by content type and result.",
		}, []string{"content_type", "result"}),
		indexRecreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_crawler_index_recreated_total",
			Help: "Indices dropped and recreated before crawling.",
		}, []string{"content_type"}),
		tags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_crawler_tags_total",
			Help: "Back-reference tag updates partitioned by source content type and outcome.",
		}, []string{"content_type", "outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.contentTypes,
		s.contentTypeDuration,
		s.documents,
		s.indexRecreated,
		s.tags,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StageContentTypeStart:
		if evt.Recreated {
			s.indexRecreated.WithLabelValues(evt.ContentType).Inc()
		}
	case progress.StageContentTypeDone, progress.StageContentTypeError:
		result := "success"
		if evt.Stage == progress.StageContentTypeError {
			result = "error"
		}
		s.contentTypes.WithLabelValues(evt.ContentType, result).Inc()
		if evt.Dur > 0 {
			s.contentTypeDuration.WithLabelValues(evt.ContentType).Observe(evt.Dur.Seconds())
		}
	case progress.StageBatchDone:
		s.addDocuments(evt.ContentType, "indexed", evt.Indexed)
		s.addDocuments(evt.ContentType, "failed", evt.Failed)
		s.addDocuments(evt.ContentType, "skipped", evt.Skipped)
	case progress.StageTag:
		s.tags.WithLabelValues(evt.ContentType, string(evt.Tag)).Inc()
	}
}

func (s *PrometheusSink) addDocuments(contentType, result string, n int64) {
	if n > 0 {
		s.documents.WithLabelValues(contentType, result).Add(float64(n))
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
