// Package tagging maintains back-reference tags: when a source document links
// an entry of a tag-target content type, the target's index document gets the
// source id appended to a "<label>Tag" field.
//
// Updates are dispatched asynchronously and are best effort. A target that has
// not been indexed yet is a first-class outcome; such requests can be kept and
// replayed once every content type has been crawled.
package tagging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
	"github.com/gbif/content-crawler-sub000/internal/mapping"
	"github.com/gbif/content-crawler-sub000/internal/progress"
)

// ErrClosed is returned by Apply after Close.
var ErrClosed = errors.New("tagger closed")

const (
	defaultConcurrency = 4
	defaultBuffer      = 256
)

// Request is one append-if-absent tag update against a target document.
type Request struct {
	SourceContentType string
	TargetContentType string
	Index             string
	DocumentID        string
	Field             string
	Value             string
}

func (r Request) key() string {
	return r.Index + "\x00" + r.DocumentID + "\x00" + r.Field + "\x00" + r.Value
}

// Config configures a Tagger.
type Config struct {
	// RunID stamps emitted progress events.
	RunID [16]byte
	// Targets maps tag-target content-type ids to their index.
	Targets map[string]string
	// Labels maps source content-type ids to the label used for the tag
	// field name. The id is used when absent.
	Labels map[string]string
	// Concurrency bounds in-flight partial updates.
	Concurrency int
	// Buffer is the capacity of the request queue.
	Buffer int
	// RememberMissing keeps requests whose target did not exist for Replay.
	// Without it those requests are dropped.
	RememberMissing bool
}

// Stats counts tag outcomes.
type Stats struct {
	Requested int64
	Applied   int64
	Unchanged int64
	Missing   int64
	Failed    int64
	Dropped   int64
}

// ReplayReport summarizes a Replay pass.
type ReplayReport struct {
	Attempted int
	Applied   int
	Unchanged int
	Dropped   int
}

// Tagger queues and applies back-reference tag updates.
type Tagger struct {
	writer  crawler.IndexWriter
	emitter progress.Emitter
	clock   crawler.Clock
	logger  *zap.Logger
	cfg     Config

	queue chan Request
	done  chan struct{}

	closeMu sync.RWMutex
	closed  bool

	pendingMu sync.Mutex
	pending   map[string]Request
	order     []string

	requested atomic.Int64
	applied   atomic.Int64
	unchanged atomic.Int64
	missing   atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// New creates a Tagger and starts its dispatch loop. Updates run under ctx;
// the loop ends once Close has been called and the queue is drained.
func New(
	ctx context.Context,
	writer crawler.IndexWriter,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Tagger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	t := &Tagger{
		writer:  writer,
		emitter: emitter,
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
		queue:   make(chan Request, cfg.Buffer),
		done:    make(chan struct{}),
		pending: make(map[string]Request),
	}
	go t.loop(ctx)
	return t
}

// IsTarget reports whether contentTypeID receives tags.
func (t *Tagger) IsTarget(contentTypeID string) bool {
	_, ok := t.cfg.Targets[contentTypeID]
	return ok
}

// FieldFor returns the tag field written for tags sourced from contentTypeID.
func (t *Tagger) FieldFor(contentTypeID string) string {
	label := contentTypeID
	if l, ok := t.cfg.Labels[contentTypeID]; ok && l != "" {
		label = l
	}
	return label + mapping.TagSuffix
}

// Requests builds the tag requests source implies for candidates. Candidates
// outside the target content types are ignored and duplicates collapse.
func (t *Tagger) Requests(source *crawler.Entry, candidates []*crawler.Entry) []Request {
	if source == nil || len(t.cfg.Targets) == 0 {
		return nil
	}
	field := t.FieldFor(source.ContentTypeID)
	seen := make(map[string]struct{}, len(candidates))
	var out []Request
	for _, c := range candidates {
		if c == nil || c.ID == "" {
			continue
		}
		index, ok := t.cfg.Targets[c.ContentTypeID]
		if !ok {
			continue
		}
		req := Request{
			SourceContentType: source.ContentTypeID,
			TargetContentType: c.ContentTypeID,
			Index:             index,
			DocumentID:        c.ID,
			Field:             field,
			Value:             source.ID,
		}
		if _, dup := seen[req.key()]; dup {
			continue
		}
		seen[req.key()] = struct{}{}
		out = append(out, req)
	}
	return out
}

// Apply enqueues the tag updates implied by source linking candidates and
// returns how many were queued. It waits for queue space but never for
// update completion.
func (t *Tagger) Apply(ctx context.Context, source *crawler.Entry, candidates []*crawler.Entry) (int, error) {
	reqs := t.Requests(source, candidates)
	if len(reqs) == 0 {
		return 0, nil
	}
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		return 0, ErrClosed
	}
	for i, req := range reqs {
		select {
		case t.queue <- req:
			t.requested.Add(1)
		case <-ctx.Done():
			return i, ctx.Err()
		}
	}
	return len(reqs), nil
}

// Close stops accepting requests and waits until queued updates finish or
// ctx ends.
func (t *Tagger) Close(ctx context.Context) error {
	t.closeMu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.closeMu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the remembered requests whose target was missing, in the
// order they were first seen.
func (t *Tagger) Pending() []Request {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	out := make([]Request, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.pending[k])
	}
	return out
}

// Replay retries every pending request once. Requests whose target is still
// missing, or that fail, are dropped. Call it after Close.
func (t *Tagger) Replay(ctx context.Context) ReplayReport {
	t.pendingMu.Lock()
	reqs := make([]Request, 0, len(t.order))
	for _, k := range t.order {
		reqs = append(reqs, t.pending[k])
	}
	t.pending = make(map[string]Request)
	t.order = nil
	t.pendingMu.Unlock()

	var (
		mu     sync.Mutex
		report = ReplayReport{Attempted: len(reqs)}
	)
	var g errgroup.Group
	g.SetLimit(t.cfg.Concurrency)
	for _, req := range reqs {
		g.Go(func() error {
			outcome := t.replayOne(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case progress.TagApplied:
				report.Applied++
			case progress.TagUnchanged:
				report.Unchanged++
			default:
				report.Dropped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Attempted > 0 {
		t.logger.Info("replayed missing-target tags",
			zap.Int("attempted", report.Attempted),
			zap.Int("applied", report.Applied),
			zap.Int("unchanged", report.Unchanged),
			zap.Int("dropped", report.Dropped),
		)
	}
	return report
}

// Stats returns a snapshot of the outcome counters.
func (t *Tagger) Stats() Stats {
	return Stats{
		Requested: t.requested.Load(),
		Applied:   t.applied.Load(),
		Unchanged: t.unchanged.Load(),
		Missing:   t.missing.Load(),
		Failed:    t.failed.Load(),
		Dropped:   t.dropped.Load(),
	}
}

func (t *Tagger) loop(ctx context.Context) {
	defer close(t.done)
	var g errgroup.Group
	g.SetLimit(t.cfg.Concurrency)
	for req := range t.queue {
		g.Go(func() error {
			t.applyOne(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
}

func (t *Tagger) applyOne(ctx context.Context, req Request) {
	outcome, err := t.update(ctx, req)
	switch {
	case err != nil:
		t.failed.Add(1)
		t.logger.Warn("tag update failed", t.fields(req, zap.Error(err))...)
		t.emit(req, progress.TagFailed, err.Error())
	case outcome == crawler.UpdateTargetMissing:
		t.missing.Add(1)
		if t.cfg.RememberMissing {
			t.remember(req)
			t.logger.Debug("tag target missing, kept for replay", t.fields(req)...)
			t.emit(req, progress.TagTargetMissing, "")
			return
		}
		t.dropped.Add(1)
		t.logger.Warn("tag dropped, target document missing", t.fields(req)...)
		t.emit(req, progress.TagDropped, "target missing")
	case outcome == crawler.UpdateUnchanged:
		t.unchanged.Add(1)
		t.emit(req, progress.TagUnchanged, "")
	default:
		t.applied.Add(1)
		t.emit(req, progress.TagApplied, "")
	}
}

func (t *Tagger) replayOne(ctx context.Context, req Request) progress.TagOutcome {
	outcome, err := t.update(ctx, req)
	switch {
	case err != nil:
		t.failed.Add(1)
		t.dropped.Add(1)
		t.logger.Warn("tag replay failed", t.fields(req, zap.Error(err))...)
		t.emit(req, progress.TagDropped, err.Error())
		return progress.TagDropped
	case outcome == crawler.UpdateTargetMissing:
		t.dropped.Add(1)
		t.logger.Warn("tag dropped, target still missing after replay", t.fields(req)...)
		t.emit(req, progress.TagDropped, "target missing after replay")
		return progress.TagDropped
	case outcome == crawler.UpdateUnchanged:
		t.unchanged.Add(1)
		t.emit(req, progress.TagUnchanged, "replay")
		return progress.TagUnchanged
	default:
		t.applied.Add(1)
		t.emit(req, progress.TagApplied, "replay")
		return progress.TagApplied
	}
}

func (t *Tagger) update(ctx context.Context, req Request) (crawler.UpdateOutcome, error) {
	outcome, err := t.writer.PartialUpdate(ctx, req.Index, req.DocumentID, crawler.AppendIfAbsent{
		Field: req.Field,
		Value: req.Value,
	})
	if err != nil {
		return "", &crawler.TagUpdateError{Index: req.Index, DocumentID: req.DocumentID, Field: req.Field, Err: err}
	}
	return outcome, nil
}

func (t *Tagger) remember(req Request) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	k := req.key()
	if _, ok := t.pending[k]; ok {
		return
	}
	t.pending[k] = req
	t.order = append(t.order, k)
}

func (t *Tagger) emit(req Request, outcome progress.TagOutcome, note string) {
	evt := progress.Event{
		RunID:       t.cfg.RunID,
		Stage:       progress.StageTag,
		ContentType: req.SourceContentType,
		Index:       req.Index,
		Tag:         outcome,
		Note:        note,
	}
	if t.clock != nil {
		evt.TS = t.clock.Now()
	} else {
		evt.TS = time.Now().UTC()
	}
	t.emitter.Emit(evt)
}

func (t *Tagger) fields(req Request, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("content_type", req.SourceContentType),
		zap.String("index", req.Index),
		zap.String("entry_id", req.DocumentID),
		zap.String("field", req.Field),
		zap.String("value", req.Value),
	}, extra...)
}
