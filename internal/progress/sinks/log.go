package sinks

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gbif/content-crawler-sub000/internal/progress"
)

// LogSink emits structured logs for progress streams. Batch and tag events are
// logged at debug level; run and content-type milestones at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		switch evt.Stage {
		case progress.StageBatchDone, progress.StageTag:
			level = zapcore.DebugLevel
		case progress.StageRunError, progress.StageContentTypeError:
			level = zapcore.WarnLevel
		}
		ce := s.logger.Check(level, "progress event")
		if ce == nil {
			continue
		}
		fields := []zap.Field{
			zap.String("run_id", uuid.UUID(evt.RunID).String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.ContentType != "" {
			fields = append(fields, zap.String("content_type", evt.ContentType), zap.String("index", evt.Index))
		}
		if evt.Stage == progress.StageTag {
			fields = append(fields, zap.String("tag", string(evt.Tag)))
		} else {
			fields = append(fields,
				zap.Int64("indexed", evt.Indexed),
				zap.Int64("failed", evt.Failed),
				zap.Int64("skipped", evt.Skipped),
			)
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		ce.Write(fields...)
	}
	return nil
}

// Close implements the Sink interface; it flushes the logger.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}
