// Package worker crawls one content type into its search index: it ensures
// the index exists with the generated mapping, pages through the entries,
// projects them and writes them in bulk.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/document"
	"github.com/gbif/content-crawler-sub000/internal/mapping"
	"github.com/gbif/content-crawler-sub000/internal/progress"
)

const defaultPageSize = 100

// Config controls Worker behavior.
type Config struct {
	RunID         [16]byte
	PageSize      int
	ArchivePrefix string
	Topic         string
}

// Target is one content type to crawl.
type Target struct {
	ContentType crawler.ContentType
	Index       string
	// Reindex drops the index before crawling, discarding every document and
	// back-reference tag it held.
	Reindex bool
}

// Result summarizes the crawl of one content type.
type Result struct {
	ContentType string
	Index       string
	Indexed     int
	Failed      int
	Skipped     int
	Recreated   bool
	MappingURI  string
	Duration    time.Duration
}

// Tagger receives the entries behind nested links of projected documents.
type Tagger interface {
	Apply(ctx context.Context, source *crawler.Entry, candidates []*crawler.Entry) (int, error)
}

// Worker executes content-type crawls. It holds no per-crawl state and can
// be reused for every content type of a run.
type Worker struct {
	entries   crawler.EntryProvider
	writer    crawler.IndexWriter
	generator *mapping.Generator
	projector *document.Projector
	tagger    Tagger
	blobStore crawler.BlobStore
	hasher    crawler.Hasher
	publisher crawler.Publisher
	clock     crawler.Clock
	emitter   progress.Emitter
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. tagger, blobStore, hasher and publisher are
// optional.
func New(
	entries crawler.EntryProvider,
	writer crawler.IndexWriter,
	generator *mapping.Generator,
	projector *document.Projector,
	tagger Tagger,
	blobStore crawler.BlobStore,
	hasher crawler.Hasher,
	publisher crawler.Publisher,
	clock crawler.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Worker{
		entries:   entries,
		writer:    writer,
		generator: generator,
		projector: projector,
		tagger:    tagger,
		blobStore: blobStore,
		hasher:    hasher,
		publisher: publisher,
		clock:     clock,
		emitter:   emitter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Crawl indexes every entry of target. Failing entries and batches are
// logged and counted; an error is returned only when the index could not be
// prepared or the entries could not be listed, in which case the result holds
// the progress made so far.
func (w *Worker) Crawl(ctx context.Context, target Target) (Result, error) {
	ctID := target.ContentType.ID
	res := Result{ContentType: ctID, Index: target.Index}
	start := w.clock.Now()
	log := w.logger.With(zap.String("content_type", ctID), zap.String("index", target.Index))

	w.emit(progress.Event{Stage: progress.StageContentTypeStart, ContentType: ctID, Index: target.Index})

	err := w.crawl(ctx, target, &res, log)
	res.Duration = w.clock.Now().Sub(start)
	if err != nil {
		log.Error("content type crawl failed", zap.Error(err))
		w.emit(progress.Event{
			Stage:       progress.StageContentTypeError,
			ContentType: ctID,
			Index:       target.Index,
			Recreated:   res.Recreated,
			Dur:         res.Duration,
			Note:        err.Error(),
		})
		return res, err
	}

	log.Info("content type crawled",
		zap.Int("indexed", res.Indexed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Bool("recreated", res.Recreated),
		zap.Duration("duration", res.Duration),
	)
	w.emit(progress.Event{
		Stage:       progress.StageContentTypeDone,
		ContentType: ctID,
		Index:       target.Index,
		Indexed:     int64(res.Indexed),
		Failed:      int64(res.Failed),
		Skipped:     int64(res.Skipped),
		Recreated:   res.Recreated,
		Dur:         res.Duration,
	})
	if err := w.publishResult(ctx, res); err != nil {
		log.Warn("completion notification failed", zap.Error(err))
	}
	return res, nil
}

func (w *Worker) crawl(ctx context.Context, target Target, res *Result, log *zap.Logger) error {
	body, err := w.generator.Generate(target.ContentType).Body()
	if err != nil {
		return fmt.Errorf("generate mapping: %w", err)
	}
	if uri, err := w.archiveMapping(ctx, target.Index, body); err != nil {
		log.Warn("mapping archive failed", zap.Error(err))
	} else {
		res.MappingURI = uri
	}

	if err := w.ensureIndex(ctx, target, body, res, log); err != nil {
		return err
	}

	for skip := 0; ; {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl canceled: %w", err)
		}
		page, err := w.entries.Entries(ctx, target.ContentType.ID, skip, w.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("list entries skip=%d: %w", skip, err)
		}
		if len(page.Items) == 0 {
			return nil
		}
		log.Debug("entries page fetched", zap.Int("skip", skip), zap.Int("items", len(page.Items)), zap.Int("total", page.Total))
		w.writeBatch(ctx, target.Index, page.Items, res, log)
		skip += len(page.Items)
		if page.Total > 0 && skip >= page.Total {
			return nil
		}
	}
}

func (w *Worker) ensureIndex(ctx context.Context, target Target, body []byte, res *Result, log *zap.Logger) error {
	if target.Reindex {
		if err := w.writer.DeleteIndex(ctx, target.Index); err != nil {
			return fmt.Errorf("delete index: %w", err)
		}
		res.Recreated = true
		log.Info("index deleted for reindex")
	}
	exists, err := w.writer.IndexExists(ctx, target.Index)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}
	if err := w.writer.CreateIndex(ctx, target.Index, body); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	log.Info("index created")
	return nil
}

func (w *Worker) writeBatch(ctx context.Context, index string, entries []*crawler.Entry, res *Result, log *zap.Logger) {
	onNested := w.nestedHandler(ctx, log)
	docs := make([]crawler.IndexedDocument, 0, len(entries))
	var skipped int
	for _, e := range entries {
		doc, err := w.projector.Project(e, onNested)
		if err != nil {
			skipped++
			entryID := ""
			if e != nil {
				entryID = e.ID
			}
			log.Warn("entry skipped", zap.String("entry_id", entryID), zap.Error(err))
			continue
		}
		docs = append(docs, crawler.IndexedDocument{ID: e.ID, Body: doc})
	}

	var indexed, failed int
	if len(docs) > 0 {
		bulk, err := w.writer.BulkUpsert(ctx, index, docs)
		switch {
		case err != nil:
			failed = len(docs)
			log.Error("bulk write failed", zap.Int("documents", len(docs)), zap.Error(err))
		default:
			indexed = bulk.Succeeded
			failed = len(bulk.Failures)
			if failed > 0 {
				werr := &crawler.IndexWriteError{Index: index, Failures: bulk.Failures}
				log.Error("bulk write partially applied", zap.Int("failed", failed), zap.Error(werr))
			}
		}
	}

	res.Indexed += indexed
	res.Failed += failed
	res.Skipped += skipped
	w.emit(progress.Event{
		Stage:       progress.StageBatchDone,
		ContentType: res.ContentType,
		Index:       index,
		Indexed:     int64(indexed),
		Failed:      int64(failed),
		Skipped:     int64(skipped),
	})
}

func (w *Worker) nestedHandler(ctx context.Context, log *zap.Logger) document.NestedFunc {
	if w.tagger == nil {
		return nil
	}
	return func(source *crawler.Entry, candidates []*crawler.Entry) {
		if _, err := w.tagger.Apply(ctx, source, candidates); err != nil {
			log.Warn("tag requests not queued", zap.String("entry_id", source.ID), zap.Error(err))
		}
	}
}

func (w *Worker) buildMappingPath(index, hash string) string {
	prefix := strings.Trim(w.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", index, hash)
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, index, hash)
}

func (w *Worker) archiveMapping(ctx context.Context, index string, body []byte) (string, error) {
	if w.blobStore == nil || w.hasher == nil {
		return "", nil
	}
	hash, err := w.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash mapping: %w", err)
	}
	uri, err := w.blobStore.PutObject(ctx, w.buildMappingPath(index, hash), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func (w *Worker) publishResult(ctx context.Context, res Result) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"run_id":       uuid.UUID(w.cfg.RunID).String(),
		"content_type": res.ContentType,
		"index":        res.Index,
		"indexed":      res.Indexed,
		"failed":       res.Failed,
		"skipped":      res.Skipped,
		"recreated":    res.Recreated,
		"mapping_uri":  res.MappingURI,
		"timestamp":    w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	return nil
}

func (w *Worker) emit(evt progress.Event) {
	evt.RunID = w.cfg.RunID
	evt.TS = w.clock.Now()
	w.emitter.Emit(evt)
}

