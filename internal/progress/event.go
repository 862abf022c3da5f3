package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart         Stage = "RUN_START"
	StageRunDone          Stage = "RUN_DONE"
	StageRunError         Stage = "RUN_ERROR"
	StageContentTypeStart Stage = "CONTENT_TYPE_START"
	StageContentTypeDone  Stage = "CONTENT_TYPE_DONE"
	StageContentTypeError Stage = "CONTENT_TYPE_ERROR"
	StageBatchDone        Stage = "BATCH_DONE"
	StageTag              Stage = "TAG"
)

// TagOutcome is the result class of one back-reference tag update.
type TagOutcome string

// Tag outcomes reported with StageTag events.
const (
	TagApplied       TagOutcome = "applied"
	TagUnchanged     TagOutcome = "unchanged"
	TagTargetMissing TagOutcome = "target_missing"
	TagFailed        TagOutcome = "failed"
	TagDropped       TagOutcome = "dropped"
)

// Event captures a single milestone of a crawl run.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// ContentType scopes content-type, batch and tag events.
	ContentType string
	// Index is the search index written for ContentType.
	Index string
	// Indexed, Failed and Skipped are document deltas for batch events and
	// totals for content-type completions.
	Indexed int64
	Failed  int64
	Skipped int64
	// Tag is set on StageTag events.
	Tag TagOutcome
	// Recreated marks a content type whose index was dropped first.
	Recreated bool
	// Dur captures wall time for content-type and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageContentTypeStart, StageContentTypeDone, StageContentTypeError, StageBatchDone:
		if e.ContentType == "" {
			return fmt.Errorf("%s requires content type", e.Stage)
		}
	case StageTag:
		if e.ContentType == "" {
			return errors.New("tag event requires content type")
		}
		if e.Tag == "" {
			return errors.New("tag event requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Indexed < 0 || e.Failed < 0 || e.Skipped < 0 {
		return errors.New("counters must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f.
func (f EmitterFunc) Emit(evt Event) { f(evt) }

// Discard ignores every event.
var Discard Emitter = EmitterFunc(func(Event) {})
