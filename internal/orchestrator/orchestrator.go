// Package orchestrator sequences one crawl run: it registers the vocabularies,
// crawls every configured content type in priority order, drains the tag
// updates and reports a summary.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/document"
	"github.com/gbif/content-crawler-sub000/internal/mapping"
	"github.com/gbif/content-crawler-sub000/internal/progress"
	"github.com/gbif/content-crawler-sub000/internal/schema"
	"github.com/gbif/content-crawler-sub000/internal/tagging"
	"github.com/gbif/content-crawler-sub000/internal/vocabulary"
	"github.com/gbif/content-crawler-sub000/internal/worker"
)

const defaultDrainTimeout = 30 * time.Second

// ContentType configures one crawled content type.
type ContentType struct {
	ID    string
	Index string
	// Label is stored under contentType and prefixes the tag field of tags
	// this content type sources. The id is used when empty.
	Label string
	// Priority orders the crawl, lowest first. Ties keep configured order.
	Priority int
}

// Config configures an Orchestrator.
type Config struct {
	DefaultLocale       string
	ContentTypes        []ContentType
	VocabularyIDs       []string
	CountryVocabularyID string
	TagTargets          []string
	Reindex             bool
	PageSize            int
	TagConcurrency      int
	TagBuffer           int
	ReplayMissing       bool
	ArchivePrefix       string
	Topic               string
	DrainTimeout        time.Duration
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	ContentTypes []worker.Result
	// Failed maps content-type ids whose crawl stopped early to the error text.
	Failed map[string]string
	Tags   tagging.Stats
	Replay *tagging.ReplayReport
}

// Orchestrator runs crawls. Every run builds its own schema cache and
// vocabulary catalog, so runs never share state.
type Orchestrator struct {
	schemas   crawler.SchemaProvider
	entries   crawler.EntryProvider
	writer    crawler.IndexWriter
	blobStore crawler.BlobStore
	hasher    crawler.Hasher
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	emitter   progress.Emitter
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. blobStore, hasher, publisher and emitter
// are optional.
func New(
	schemas crawler.SchemaProvider,
	entries crawler.EntryProvider,
	writer crawler.IndexWriter,
	blobStore crawler.BlobStore,
	hasher crawler.Hasher,
	publisher crawler.Publisher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	return &Orchestrator{
		schemas:   schemas,
		entries:   entries,
		writer:    writer,
		blobStore: blobStore,
		hasher:    hasher,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		emitter:   emitter,
		cfg:       cfg,
		logger:    logger,
	}
}

// runtime is the run-scoped, read-only state built before projection.
type runtime struct {
	schemas    *schema.Introspector
	catalog    *vocabulary.Catalog
	classifier *schema.Classifier
	generator  *mapping.Generator
}

// Run executes one crawl. Only configuration errors and a failure to list
// the content types abort it; every other failure is logged, recorded in the
// summary and skipped.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runID, err := o.newRunID()
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{
		RunID:     uuid.UUID(runID).String(),
		StartedAt: o.clock.Now(),
		Failed:    make(map[string]string),
	}
	log := o.logger.With(zap.String("run_id", summary.RunID))
	o.emit(runID, progress.Event{Stage: progress.StageRunStart})
	log.Info("crawl run started", zap.Int("content_types", len(o.cfg.ContentTypes)), zap.Bool("reindex", o.cfg.Reindex))

	rt, err := o.prepare(ctx)
	if err == nil {
		err = o.validateTargets(rt)
	}
	if err != nil {
		summary.FinishedAt = o.clock.Now()
		log.Error("crawl run aborted", zap.Error(err))
		o.emit(runID, progress.Event{Stage: progress.StageRunError, Dur: summary.FinishedAt.Sub(summary.StartedAt), Note: err.Error()})
		return summary, err
	}

	tagger := tagging.New(ctx, o.writer, o.emitter, o.clock, tagging.Config{
		RunID:           runID,
		Targets:         o.tagTargets(),
		Labels:          o.labels(),
		Concurrency:     o.cfg.TagConcurrency,
		Buffer:          o.cfg.TagBuffer,
		RememberMissing: o.cfg.ReplayMissing,
	}, log.Named("tagging"))

	wk := worker.New(
		o.entries,
		o.writer,
		rt.generator,
		document.NewProjector(rt.classifier, rt.catalog, document.Options{
			DefaultLocale: o.cfg.DefaultLocale,
			Labels:        o.labels(),
		}),
		tagger,
		o.blobStore,
		o.hasher,
		o.publisher,
		o.clock,
		o.emitter,
		worker.Config{
			RunID:         runID,
			PageSize:      o.cfg.PageSize,
			ArchivePrefix: o.cfg.ArchivePrefix,
			Topic:         o.cfg.Topic,
		},
		log.Named("worker"),
	)

	for _, ct := range Ordered(o.cfg.ContentTypes) {
		if ctx.Err() != nil {
			summary.Failed[ct.ID] = ctx.Err().Error()
			continue
		}
		schemaCT, err := rt.schemas.ContentType(ct.ID)
		if err != nil {
			summary.Failed[ct.ID] = err.Error()
			log.Error("content type not in content store", zap.String("content_type", ct.ID), zap.Error(err))
			o.emit(runID, progress.Event{Stage: progress.StageContentTypeError, ContentType: ct.ID, Index: ct.Index, Note: err.Error()})
			continue
		}
		res, err := wk.Crawl(ctx, worker.Target{ContentType: schemaCT, Index: ct.Index, Reindex: o.cfg.Reindex})
		summary.ContentTypes = append(summary.ContentTypes, res)
		if err != nil {
			summary.Failed[ct.ID] = err.Error()
		}
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.DrainTimeout)
	defer cancel()
	if err := tagger.Close(drainCtx); err != nil {
		log.Warn("tag updates not drained", zap.Error(err))
	}
	if o.cfg.ReplayMissing {
		report := tagger.Replay(drainCtx)
		summary.Replay = &report
	}
	summary.Tags = tagger.Stats()
	summary.FinishedAt = o.clock.Now()

	log.Info("crawl run finished",
		zap.Int("content_types", len(summary.ContentTypes)),
		zap.Int("failed_content_types", len(summary.Failed)),
		zap.Int64("tags_applied", summary.Tags.Applied),
		zap.Int64("tags_dropped", summary.Tags.Dropped),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	o.emit(runID, progress.Event{Stage: progress.StageRunDone, Dur: summary.FinishedAt.Sub(summary.StartedAt)})
	return summary, nil
}

// Mapping returns the index mapping body generated for contentTypeID against
// the current content store.
func (o *Orchestrator) Mapping(ctx context.Context, contentTypeID string) ([]byte, error) {
	rt, err := o.prepare(ctx)
	if err != nil {
		return nil, err
	}
	ct, err := rt.schemas.ContentType(contentTypeID)
	if err != nil {
		return nil, fmt.Errorf("lookup content type: %w", err)
	}
	body, err := rt.generator.Generate(ct).Body()
	if err != nil {
		return nil, fmt.Errorf("generate mapping: %w", err)
	}
	return body, nil
}

// prepare fetches the schemas and registers every vocabulary. Nothing is
// projected before it returns.
func (o *Orchestrator) prepare(ctx context.Context) (*runtime, error) {
	types, err := o.schemas.ContentTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list content types: %w", err)
	}
	schemas, err := schema.NewIntrospector(types)
	if err != nil {
		return nil, &crawler.ConfigurationError{Reason: "invalid content-type schemas", Err: err}
	}

	catalog := vocabulary.NewCatalog(o.cfg.DefaultLocale)
	if id := o.cfg.CountryVocabularyID; id != "" {
		ct, err := schemas.ContentType(id)
		if err != nil {
			return nil, &crawler.ConfigurationError{ContentType: id, Reason: "country vocabulary not in content store", Err: err}
		}
		if err := catalog.RegisterCountryVocabulary(ct); err != nil {
			return nil, err
		}
	}
	for _, id := range o.cfg.VocabularyIDs {
		if id == o.cfg.CountryVocabularyID {
			continue
		}
		ct, err := schemas.ContentType(id)
		if err != nil {
			return nil, &crawler.ConfigurationError{ContentType: id, Reason: "vocabulary not in content store", Err: err}
		}
		if err := catalog.RegisterVocabulary(ct); err != nil {
			return nil, err
		}
	}

	return &runtime{
		schemas:    schemas,
		catalog:    catalog,
		classifier: schema.NewClassifier(schemas, catalog),
		generator:  mapping.NewGenerator(catalog, catalog.CountryVocabularyID()),
	}, nil
}

func (o *Orchestrator) validateTargets(rt *runtime) error {
	crawled := make(map[string]struct{}, len(o.cfg.ContentTypes))
	for _, ct := range o.cfg.ContentTypes {
		crawled[ct.ID] = struct{}{}
	}
	for _, id := range o.cfg.TagTargets {
		if _, err := rt.schemas.ContentType(id); err != nil {
			return &crawler.ConfigurationError{ContentType: id, Reason: "tag target not in content store", Err: err}
		}
		if _, ok := crawled[id]; !ok {
			return &crawler.ConfigurationError{ContentType: id, Reason: "tag target is not crawled"}
		}
	}
	return nil
}

func (o *Orchestrator) tagTargets() map[string]string {
	targets := make(map[string]string, len(o.cfg.TagTargets))
	for _, id := range o.cfg.TagTargets {
		for _, ct := range o.cfg.ContentTypes {
			if ct.ID == id {
				targets[id] = ct.Index
			}
		}
	}
	return targets
}

func (o *Orchestrator) labels() map[string]string {
	labels := make(map[string]string, len(o.cfg.ContentTypes))
	for _, ct := range o.cfg.ContentTypes {
		if ct.Label != "" {
			labels[ct.ID] = ct.Label
		}
	}
	return labels
}

func (o *Orchestrator) newRunID() ([16]byte, error) {
	raw, err := o.ids.NewID()
	if err != nil {
		return [16]byte{}, fmt.Errorf("generate run id: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return progress.UUIDToBytes(id), nil
}

func (o *Orchestrator) emit(runID [16]byte, evt progress.Event) {
	evt.RunID = runID
	evt.TS = o.clock.Now()
	o.emitter.Emit(evt)
}

// Ordered returns cts stable-sorted by priority.
func Ordered(cts []ContentType) []ContentType {
	out := make([]ContentType, len(cts))
	copy(out, cts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

