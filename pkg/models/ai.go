// Package models contains shared data models used across the logsweep codebase.
package models

import (
	"context"
	"errors"
	"time"
)

// Errors returned by AIProvider implementations, wrapped with provider detail.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// AIProvider is the interface every inference integration implements.
// Never call specific AI providers directly; always inject this interface.
type AIProvider interface {
	// Generate sends a single prompt and returns the generated text.
	// An empty string with a nil error is a valid (unusable) answer.
	Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
	// Model returns the model identifier requests are sent to.
	Model() string
}

// LogSource is a log store that can be queried one bounded time span at a time.
type LogSource interface {
	Query(ctx context.Context, q LogQuery) (LogPage, error)
}

// LogQuery asks a LogSource for events of one source in [Start, End).
// Token is empty on the first call of a span and otherwise carries the
// continuation returned by the previous page of the same span.
type LogQuery struct {
	SourceID string
	Start    time.Time
	End      time.Time
	Token    string
	Limit    int
}

// LogPage is one page of query results. NextToken is empty when the span
// has no further results.
type LogPage struct {
	Events    []LogEvent
	NextToken string
}

// LogEvent is a single read-only log entry.
type LogEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Labels    map[string]string `json:"labels,omitempty"`
	Level     string            `json:"level,omitempty"`
}

// TimestampMillis returns the event time in milliseconds since the epoch.
func (e LogEvent) TimestampMillis() int64 {
	return e.Timestamp.UnixMilli()
}
