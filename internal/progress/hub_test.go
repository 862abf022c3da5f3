package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageRunStart)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWithoutConsumers asserts high-volume events never block callers.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{LifecycleWait: time.Minute},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageTag))
	hub.Emit(sampleEvent(StageBatchDone))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(2), hub.Dropped())
}

// TestHubLifecycleEventsWaitForRoom verifies run events survive a briefly full queue.
func TestHubLifecycleEventsWaitForRoom(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{LifecycleWait: time.Second},
		events: make(chan Event, 1),
		logger: zap.NewNop(),
	}
	hub.Emit(sampleEvent(StageBatchDone))

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-hub.events
	}()
	hub.Emit(sampleEvent(StageRunDone))
	require.Zero(t, hub.Dropped())
	require.Equal(t, StageRunDone, (<-hub.events).Stage)
}

// TestHubTrickleStillFlushes verifies the batch deadline is measured from the oldest event.
func TestHubTrickleStillFlushes(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 16, MaxBatchEvents: 100, MaxBatchWait: 40 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	for i := 0; i < 6; i++ {
		hub.Emit(sampleEvent(StageBatchDone))
		time.Sleep(15 * time.Millisecond)
	}
	require.Eventually(t, func() bool {
		return len(sink.Batches()) >= 2
	}, time.Second, 5*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	evt := sampleEvent(StageRunStart)
	hub.Emit(evt)

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
}

// TestHubDiscardsInvalidEvents ensures events failing validation never reach sinks.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{TS: time.Now(), Stage: StageRunStart})
	bad := sampleEvent(StageTag)
	bad.Tag = ""
	hub.Emit(bad)
	hub.Emit(sampleEvent(StageBatchDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Equal(t, StageBatchDone, sink.Batches()[0][0].Stage)
}

// TestHubCountsDrops verifies a full buffer drops events and reports them.
func TestHubCountsDrops(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event, 1),
		logger: zap.NewNop(),
	}
	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StageTag))
	hub.Emit(sampleEvent(StageTag))
	hub.Emit(sampleEvent(StageRunDone))
	require.Equal(t, int64(3), hub.Dropped())
	require.Equal(t, map[Stage]int64{StageTag: 2, StageRunDone: 1}, hub.DroppedByStage())
}

// TestEventValidate covers per-stage requirements.
func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr string
	}{
		{name: "valid batch", mutate: func(*Event) {}},
		{name: "missing run", mutate: func(e *Event) { e.RunID = [16]byte{} }, wantErr: "run id"},
		{name: "missing ts", mutate: func(e *Event) { e.TS = time.Time{} }, wantErr: "timestamp"},
		{name: "missing content type", mutate: func(e *Event) { e.ContentType = "" }, wantErr: "content type"},
		{name: "negative counter", mutate: func(e *Event) { e.Failed = -1 }, wantErr: "counters"},
		{name: "unknown stage", mutate: func(e *Event) { e.Stage = "FETCH" }, wantErr: "unknown stage"},
		{name: "run events need no content type", mutate: func(e *Event) { e.Stage = StageRunDone; e.ContentType = "" }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			evt := sampleEvent(StageBatchDone)
			tc.mutate(&evt)
			err := evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]Event(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	id := uuid.New()
	evt := Event{
		RunID:       UUIDToBytes(id),
		TS:          time.Now(),
		Stage:       stage,
		ContentType: "news",
		Index:       "news-idx",
	}
	if stage == StageTag {
		evt.Tag = TagApplied
	}
	return evt
}
