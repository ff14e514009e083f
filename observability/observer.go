// Package observability carries the events emitted by the store, its cache,
// and its storage providers to logging sinks. Level values align with
// OpenTelemetry SeverityNumbers so events map onto OTel log records without
// translation.
package observability

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Level is how much an event matters. Reads and per-key writes are
// verbose; failed storage calls and panicking callbacks are errors.
type Level int

const (
	LevelVerbose Level = 5
	LevelInfo    Level = 9
	LevelWarning Level = 13
	LevelError   Level = 17
)

// String names the level band the value falls in.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel is the slog level SlogObserver logs the event at.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType names what happened, such as "store.write" or
// "store.cache.evict".
type EventType string

// Event describes one step the store took. Source is the operation that
// emitted it and Data holds the keys and counts involved.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives store events. The write and delivery sequencers emit
// from their own goroutines, so OnEvent must be safe for concurrent use.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ParseLevel converts severity text ("debug", "info", "warn", "error") to a
// Level. Unknown text reports false.
func ParseLevel(text string) (Level, bool) {
	switch strings.ToLower(text) {
	case "verbose", "debug", "trace":
		return LevelVerbose, true
	case "info", "":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarning, true
	case "error":
		return LevelError, true
	}
	return 0, false
}
