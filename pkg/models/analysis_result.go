package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisResult holds the generated analysis for exactly one Window.
// A retry of the same window overwrites the previous row.
type AnalysisResult struct {
	RunID            uuid.UUID `db:"run_id"             json:"run_id"`
	WindowID         int       `db:"window_id"          json:"window_id"`
	LogSource        string    `db:"log_source"         json:"log_source"`
	WindowStart      time.Time `db:"window_start"       json:"window_start"`
	WindowEnd        time.Time `db:"window_end"         json:"window_end"`
	LogCount         int       `db:"log_count"          json:"log_count"`
	AnalyzedLogCount int       `db:"analyzed_log_count" json:"analyzed_log_count"`
	Truncated        bool      `db:"truncated"          json:"truncated"`
	Analysis         string    `db:"analysis"           json:"analysis"`
	Fallback         bool      `db:"fallback"           json:"fallback"`
	Sections         []string  `db:"sections"           json:"sections"`
	Patterns         []Pattern `db:"patterns"           json:"patterns"`
	Provider         string    `db:"provider"           json:"provider"`
	Model            string    `db:"model"              json:"model"`
	CreatedAt        time.Time `db:"created_at"         json:"created_at"`
}

// Pattern is a group of log events sharing one normalized message fingerprint.
type Pattern struct {
	Fingerprint   string    `json:"fingerprint"`
	Level         string    `json:"level,omitempty"`
	Count         int       `json:"count"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	SampleMessage string    `json:"sample_message"`
}
