package window

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// ErrInvalidTransition is returned for a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid window status transition")

// transitions lists, for every target status, the statuses it may be entered from.
// Re-applying the current status is always allowed and is not listed here.
var transitions = map[models.WindowStatus][]models.WindowStatus{
	models.WindowStatusProcessing: {models.WindowStatusPending, models.WindowStatusError},
	models.WindowStatusCompleted:  {models.WindowStatusProcessing},
	models.WindowStatusError:      {models.WindowStatusPending, models.WindowStatusProcessing},
}

// Transition validates a status change from -> to.
//
// The happy path is pending -> processing -> completed. Failures move
// pending or processing to error, and a failed window may be re-entered into
// processing by re-invoking it. Nothing leaves completed. Same-state
// transitions are idempotent so a restarted invocation can re-apply them.
func Transition(from, to models.WindowStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}
	if from == to {
		return nil
	}
	for _, allowed := range transitions[to] {
		if allowed == from {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// AllowedFrom returns every status from which to may be entered, including to
// itself. Stores use it to build single-key conditional updates.
func AllowedFrom(to models.WindowStatus) []models.WindowStatus {
	out := []models.WindowStatus{to}
	return append(out, transitions[to]...)
}

// IsTerminal reports whether s ends a processing attempt.
func IsTerminal(s models.WindowStatus) bool {
	return s == models.WindowStatusCompleted || s == models.WindowStatusError
}
