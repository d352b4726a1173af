package models

import (
	"time"

	"github.com/google/uuid"
)

// Run is one top-level analysis invocation spanning many windows.
// It is immutable after creation.
type Run struct {
	ID         uuid.UUID     `db:"id"          json:"id"`
	LogSource  string        `db:"log_source"  json:"log_source"`
	StartTime  time.Time     `db:"start_time"  json:"start_time"`
	EndTime    time.Time     `db:"end_time"    json:"end_time"`
	WindowSize time.Duration `db:"window_size_ms" json:"window_size"`
	CreatedAt  time.Time     `db:"created_at"  json:"created_at"`
}
