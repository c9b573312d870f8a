package cms

import (
	"time"

	"github.com/google/uuid"
)

// Logger receives the engine's structured events. Arguments are slog-style
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

// NewNopLogger returns a Logger that drops every event.
func NewNopLogger() Logger { return discardLogger{} }

// Clock stamps working records, journal rows and sessions.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock in UTC, truncated to the microsecond
// precision both index dialects store.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// IDGenerator names journal rows and HTTP requests.
type IDGenerator interface {
	New() string
}

// UUIDGenerator issues time-ordered UUIDv7 identifiers, so journal rows
// written in the same instant still sort by creation.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
