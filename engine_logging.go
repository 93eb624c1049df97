package editorstate

import (
	"context"
	"log/slog"
	"time"
)

// LogEvent describes one engine operation for logging.
type LogEvent struct {
	Op        string
	Format    Format
	Ref       string
	Duration  time.Duration
	Repairs   []Repair
	Defaulted []string
	Dropped   []string
	Rejected  []string
	Err       error
}

// EngineLogger records engine events.
type EngineLogger interface {
	LogEvent(LogEvent)
}

// EngineLoggerFunc adapts a function to EngineLogger.
type EngineLoggerFunc func(LogEvent)

// LogEvent implements EngineLogger.
func (f EngineLoggerFunc) LogEvent(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEngineLogger struct{}

func (noopEngineLogger) LogEvent(LogEvent) {}

// NewSlogLogger reports engine events through logger. Failures log at error
// level, repaired loads at warn, everything else at debug.
func NewSlogLogger(logger *slog.Logger) EngineLogger {
	if logger == nil {
		return noopEngineLogger{}
	}
	return EngineLoggerFunc(func(event LogEvent) {
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("op", event.Op),
			slog.Duration("duration", event.Duration),
		}
		if event.Format != "" {
			attrs = append(attrs, slog.String("format", string(event.Format)))
		}
		if event.Ref != "" {
			attrs = append(attrs, slog.String("ref", event.Ref))
		}
		if len(event.Repairs) > 0 {
			level = slog.LevelWarn
			repairs := make([]any, 0, len(event.Repairs))
			for _, repair := range event.Repairs {
				repairs = append(repairs, slog.Group(repair.Field,
					slog.String("kind", string(repair.Kind)),
					slog.Int("depth", repair.Depth),
				))
			}
			attrs = append(attrs, slog.Group("repairs", repairs...))
		}
		if len(event.Defaulted) > 0 {
			attrs = append(attrs, slog.Any("defaulted", event.Defaulted))
		}
		if len(event.Dropped) > 0 {
			attrs = append(attrs, slog.Any("dropped", event.Dropped))
		}
		if len(event.Rejected) > 0 {
			attrs = append(attrs, slog.Any("rejected", event.Rejected))
		}
		if event.Err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.String("error", event.Err.Error()))
		}
		logger.LogAttrs(context.Background(), level, "editorstate "+event.Op, attrs...)
	})
}
