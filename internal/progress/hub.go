package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub.
type Config struct {
	// BufferSize is the capacity of the event queue (default 4096).
	BufferSize int
	// MaxBatchEvents flushes once this many events are pending (default 1000).
	MaxBatchEvents int
	// MaxBatchWait bounds how long the oldest pending event waits (default 500ms).
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call (default 10s).
	SinkTimeout time.Duration
	// LifecycleWait is how long run and content-type events may wait for room
	// in a full queue before being dropped (default 1s). Batch and tag events
	// never wait.
	LifecycleWait time.Duration
	// BaseContext parents sink calls (default context.Background()).
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	defaultLifecycleWait  = time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub batches crawl events on a background goroutine and fans each batch out
// to its sinks in registration order. Emit is safe for concurrent use.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropLog rate.Sometimes
	closed  atomic.Bool

	dropMu  sync.Mutex
	dropped map[Stage]int64

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts a Hub over sinks. It accepts events immediately.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.LifecycleWait <= 0 {
		cfg.LifecycleWait = defaultLifecycleWait
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// droppable reports whether a full queue may discard the stage without
// waiting. Losing one of these only skews counters, never run state.
func (s Stage) droppable() bool {
	return s == StageBatchDone || s == StageTag
}

// Emit enqueues evt. Batch and tag events are dropped when the queue is full;
// lifecycle events wait up to LifecycleWait first. Invalid events and events
// emitted after Close are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		return
	default:
	}
	if !evt.Stage.droppable() && h.cfg.LifecycleWait > 0 {
		timer := time.NewTimer(h.cfg.LifecycleWait)
		defer timer.Stop()
		select {
		case h.events <- evt:
			return
		case <-timer.C:
		case <-h.stopCh:
		}
	}
	h.recordDrop(evt)
}

func (h *Hub) recordDrop(evt Event) {
	h.dropMu.Lock()
	if h.dropped == nil {
		h.dropped = make(map[Stage]int64)
	}
	h.dropped[evt.Stage]++
	total := h.totalDroppedLocked()
	h.dropMu.Unlock()

	h.dropLog.Do(func() {
		h.logger.Warn("progress events dropped due to backpressure",
			zap.Int64("dropped_total", total),
			zap.String("stage", string(evt.Stage)),
			zap.String("content_type", evt.ContentType))
	})
}

func (h *Hub) totalDroppedLocked() int64 {
	var total int64
	for _, n := range h.dropped {
		total += n
	}
	return total
}

// Dropped returns how many events were discarded because the queue was full.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	return h.totalDroppedLocked()
}

// DroppedByStage returns the drop counts per stage.
func (h *Hub) DroppedByStage() map[Stage]int64 {
	out := map[Stage]int64{}
	if h == nil {
		return out
	}
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	for stage, n := range h.dropped {
		out[stage] = n
	}
	return out
}

// Close stops intake, flushes every queued event, closes the sinks and waits
// for the background goroutine. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// run owns the pending batch. The flush deadline is armed by the first event
// of a batch, so a steady trickle still flushes every MaxBatchWait.
func (h *Hub) run() {
	defer close(h.doneCh)

	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	var timer *time.Timer
	var deadline <-chan time.Time
	disarm := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, deadline = nil, nil
	}
	flush := func() {
		disarm()
		h.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				flush()
			} else if timer == nil {
				timer = time.NewTimer(h.cfg.MaxBatchWait)
				deadline = timer.C
			}
		case <-deadline:
			flush()
		case <-h.stopCh:
			disarm()
			for drained := false; !drained; {
				select {
				case evt := <-h.events:
					batch = append(batch, evt)
					if len(batch) >= h.cfg.MaxBatchEvents {
						flush()
					}
				default:
					drained = true
				}
			}
			flush()
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	snapshot := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, snapshot); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Int("batch", len(snapshot)), zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
