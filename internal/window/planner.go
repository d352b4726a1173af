// Package window partitions an analysis run into fixed-size time windows and
// owns the window lifecycle state machine.
package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// ErrInvalidConfiguration is returned when a span or window size cannot be planned.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Plan splits [start, end) into contiguous, non-overlapping windows of at most
// size each. The window count is rounded up so a shorter final window is kept,
// and the last window always ends exactly at end. Window IDs are zero-based
// positions and every window starts out pending.
func Plan(runID uuid.UUID, start, end time.Time, size time.Duration) ([]models.Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %s", ErrInvalidConfiguration, size)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s must be after start %s",
			ErrInvalidConfiguration, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	total := end.Sub(start)
	count := int((total + size - 1) / size)

	now := time.Now().UTC()
	windows := make([]models.Window, 0, count)
	for i := 0; i < count; i++ {
		ws := start.Add(time.Duration(i) * size)
		we := ws.Add(size)
		if i == count-1 || we.After(end) {
			we = end
		}
		windows = append(windows, models.Window{
			RunID:     runID,
			ID:        i,
			StartTime: ws,
			EndTime:   we,
			Status:    models.WindowStatusPending,
			UpdatedAt: now,
		})
	}
	return windows, nil
}
