package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pgagents/pgagents/internal/observability"
)

type Sink interface {
	Emit(ctx context.Context, record Record) error
}

type SinkFunc func(ctx context.Context, record Record) error

func (f SinkFunc) Emit(ctx context.Context, record Record) error {
	return f(ctx, record)
}

// Discard drops every record.
var Discard Sink = SinkFunc(func(context.Context, Record) error { return nil })

type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: observability.LoggerOrDiscard(logger)}
}

func (s *LogSink) Emit(ctx context.Context, record Record) error {
	level := slog.LevelInfo
	if record.Status == StatusError {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "audit record",
		slog.String("run_id", record.RunID),
		slog.String("workflow", record.Workflow),
		slog.String("event_time", record.EventTime),
		slog.String("user_msg", record.UserMessage),
		slog.String("status", string(record.Status)),
		slog.String("response", record.Response),
		slog.Int("total_tokens", record.TotalTokens),
	)
	return nil
}

// MultiSink fans a record out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, record Record) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit delivers record to sink and counts it. A nil sink is treated as
// Discard.
func Emit(ctx context.Context, sink Sink, record Record) error {
	observability.ObserveAuditRecord(string(record.Status))
	if sink == nil {
		return nil
	}
	return sink.Emit(ctx, record)
}
