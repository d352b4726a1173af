package models

import (
	"time"

	"github.com/google/uuid"
)

// WindowStatus is the lifecycle state of a Window.
type WindowStatus string

const (
	WindowStatusPending    WindowStatus = "pending"
	WindowStatusProcessing WindowStatus = "processing"
	WindowStatusCompleted  WindowStatus = "completed"
	WindowStatusError      WindowStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s WindowStatus) Valid() bool {
	switch s {
	case WindowStatusPending, WindowStatusProcessing, WindowStatusCompleted, WindowStatusError:
		return true
	}
	return false
}

// Window is a fixed-duration slice of a Run's span covering [StartTime, EndTime).
// Windows are keyed by (RunID, ID); ID is the zero-based position in the run.
type Window struct {
	RunID        uuid.UUID    `db:"run_id"        json:"run_id"`
	ID           int          `db:"window_id"     json:"window_id"`
	StartTime    time.Time    `db:"start_time"    json:"start_time"`
	EndTime      time.Time    `db:"end_time"      json:"end_time"`
	Status       WindowStatus `db:"status"        json:"status"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	ProcessedAt  *time.Time   `db:"processed_at"  json:"processed_at,omitempty"`
	ErrorAt      *time.Time   `db:"error_at"      json:"error_at,omitempty"`
	UpdatedAt    time.Time    `db:"updated_at"    json:"updated_at"`
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.EndTime.Sub(w.StartTime)
}
