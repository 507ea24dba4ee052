package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/audit"
)

// LogSink emits structured logs for debugging audit streams. It is useful
// during development or reviews where a metrics backend is unavailable.
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
func (s *LogSink) Consume(_ context.Context, batch []audit.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.String("url", evt.URL),
			zap.String("change_type", evt.ChangeType),
			zap.String("strategy", evt.Strategy),
			zap.Int("sections", evt.Sections),
			zap.Int("facts", evt.Facts),
			zap.Int("chunks", evt.Chunks),
			zap.Int("rejected", evt.Rejected),
			zap.Int64("bytes", evt.Bytes),
			zap.Duration("dur", evt.Dur),
			zap.Float64("significance", evt.Significance),
			zap.String("note", evt.Note),
		}
		s.logger.Info("audit event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
