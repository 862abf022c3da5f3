package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gbif/content-crawler-sub000/internal/progress"
	"github.com/gbif/content-crawler-sub000/internal/store"
)

// StoreSink persists progress into the crawl-run ledger. Per-content-type
// counters are collapsed per batch to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies run transitions in order and flushes collapsed counter
// deltas afterwards. Repository errors are returned wrapped.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[statsKey]*pendingStats)
	var order []statsKey

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, runID, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageRunDone, progress.StageRunError:
			// Counters must land before the run is marked finished.
			if err := s.flush(ctx, stats, order); err != nil {
				return err
			}
			stats = make(map[statsKey]*pendingStats)
			order = nil
			if err := s.completeRun(ctx, runID, evt); err != nil {
				return err
			}
		default:
			key := statsKey{runID: runID, contentType: evt.ContentType}
			pending := stats[key]
			if pending == nil {
				pending = &pendingStats{}
				stats[key] = pending
				order = append(order, key)
			}
			pending.record(evt)
		}
	}
	return s.flush(ctx, stats, order)
}

func (s *StoreSink) completeRun(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	if evt.Stage == progress.StageRunError {
		status = store.RunError
	}
	if evt.Note != "" {
		note = &evt.Note
	}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (s *StoreSink) flush(ctx context.Context, stats map[statsKey]*pendingStats, order []statsKey) error {
	for _, key := range order {
		pending := stats[key]
		if err := s.repo.UpsertContentTypeStats(
			ctx,
			key.runID,
			key.contentType,
			pending.index,
			pending.delta,
			pending.at,
		); err != nil {
			return fmt.Errorf("upsert content type stats: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	runID       uuid.UUID
	contentType string
}

type pendingStats struct {
	index string
	delta store.StatsDelta
	at    time.Time
}

func (p *pendingStats) record(evt progress.Event) {
	if evt.Index != "" {
		p.index = evt.Index
	}
	if evt.TS.After(p.at) {
		p.at = evt.TS
	}
	switch evt.Stage {
	case progress.StageContentTypeStart:
		p.delta.Recreated = p.delta.Recreated || evt.Recreated
	case progress.StageBatchDone:
		p.delta.Indexed += evt.Indexed
		p.delta.Failed += evt.Failed
		p.delta.Skipped += evt.Skipped
	case progress.StageTag:
		switch evt.Tag {
		case progress.TagApplied:
			p.delta.TagsApplied++
		case progress.TagUnchanged:
			p.delta.TagsUnchanged++
		case progress.TagDropped, progress.TagFailed:
			p.delta.TagsDropped++
		}
	}
}
