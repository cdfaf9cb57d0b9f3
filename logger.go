package spritenav

import (
	"context"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/spritenav/model"
)

// Logger wraps slog.Logger with spritenav-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithROM adds the ROM identifier to the logger.
func (l *Logger) WithROM(romID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("rom", romID),
	}
}

// LogDiscovery logs a confirmed sprite location insert.
func (l *Logger) LogDiscovery(ctx context.Context, loc model.SpriteLocation, inserted bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "discovery rejected",
			"offset", loc.Offset,
			"size", humanize.Bytes(uint64(loc.CompressedSize)),
			"error", err,
		)
		return
	}
	if !inserted {
		l.DebugContext(ctx, "discovery ignored, lower confidence duplicate",
			"offset", loc.Offset,
		)
		return
	}
	l.DebugContext(ctx, "discovery recorded",
		"offset", loc.Offset,
		"size", humanize.Bytes(uint64(loc.CompressedSize)),
		"confidence", loc.Confidence,
		"strategy", loc.DiscoveredBy.String(),
	)
}

// LogHints logs a hint query.
func (l *Logger) LogHints(ctx context.Context, strategyName string, cursor uint64, count int, cached bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "hint query failed",
			"strategy", strategyName,
			"cursor", cursor,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "hint query completed",
		"strategy", strategyName,
		"cursor", cursor,
		"hints", count,
		"cached", cached,
	)
}

// LogStrategyFailure logs a strategy error or recovered panic.
func (l *Logger) LogStrategyFailure(ctx context.Context, name string, disabled bool, err error) {
	l.WarnContext(ctx, "strategy failed, degrading to linear",
		"strategy", name,
		"disabled", disabled,
		"error", err,
	)
}

// LogOutcome logs hint outcome feedback.
func (l *Logger) LogOutcome(ctx context.Context, hint model.NavigationHint, success bool) {
	l.DebugContext(ctx, "outcome recorded",
		"offset", hint.TargetOffset,
		"strategy", hint.Strategy.String(),
		"success", success,
	)
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, op, name string, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot "+op+" failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot "+op+" completed",
		"name", name,
		"size", humanize.Bytes(uint64(size)),
	)
}
