package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the crawl_runs status column.
type RunStatus string

// Crawl run statuses persisted in crawl_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one crawl run.
type Run struct {
	// ID identifies the run; it matches the run id carried by progress events.
	ID uuid.UUID
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// ContentTypeStats aggregates one content type's progress within a run.
type ContentTypeStats struct {
	RunID       uuid.UUID
	ContentType string
	Index       string
	LastUpdate  time.Time
	Indexed     int64
	Failed      int64
	Skipped     int64
	TagsApplied int64
	// TagsUnchanged counts tags that were already present on their target.
	TagsUnchanged int64
	// TagsDropped counts tags whose target was missing or whose update failed.
	TagsDropped int64
	Recreated   bool
}

// StatsDelta is an increment applied to ContentTypeStats.
type StatsDelta struct {
	Indexed       int64
	Failed        int64
	Skipped       int64
	TagsApplied   int64
	TagsUnchanged int64
	TagsDropped   int64
	Recreated     bool
}

// IsZero reports whether applying d would change nothing.
func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}

// Add accumulates other into d.
func (d *StatsDelta) Add(other StatsDelta) {
	d.Indexed += other.Indexed
	d.Failed += other.Failed
	d.Skipped += other.Skipped
	d.TagsApplied += other.TagsApplied
	d.TagsUnchanged += other.TagsUnchanged
	d.TagsDropped += other.TagsDropped
	d.Recreated = d.Recreated || other.Recreated
}

// RunRepository persists the crawl-run ledger.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently updates) the started_at timestamp.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// UpsertContentTypeStats applies counter deltas per (run, content type).
	UpsertContentTypeStats(
		ctx context.Context,
		runID uuid.UUID,
		contentType string,
		index string,
		delta StatsDelta,
		at time.Time,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunContentTypes returns the per-content-type stats of one run.
	ListRunContentTypes(ctx context.Context, runID uuid.UUID, limit, offset int) ([]ContentTypeStats, error)
}
