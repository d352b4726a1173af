package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logsweep/internal/window"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	// CreateRun inserts run and its planned windows atomically.
	CreateRun(ctx context.Context, run *models.Run, windows []models.Window) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)

	GetWindow(ctx context.Context, runID uuid.UUID, windowID int) (*models.Window, error)
	ListWindows(ctx context.Context, runID uuid.UUID) ([]models.Window, error)
	// UpdateWindowStatus moves a window to status with a single conditional
	// update. It returns window.ErrInvalidTransition when the current status
	// may not move to status, and ErrNotFound when the window does not exist.
	UpdateWindowStatus(ctx context.Context, runID uuid.UUID, windowID int, status models.WindowStatus, opts ...WindowUpdateOption) (*models.Window, error)

	// PutAnalysisResult inserts or replaces the result for (RunID, WindowID).
	PutAnalysisResult(ctx context.Context, result *models.AnalysisResult) error
	GetAnalysisResult(ctx context.Context, runID uuid.UUID, windowID int) (*models.AnalysisResult, error)
}

type windowUpdateParams struct {
	ErrorMessage *string
	At           time.Time
}

type WindowUpdateOption func(*windowUpdateParams)

// WithErrorMessage records msg on a transition to error.
func WithErrorMessage(msg string) WindowUpdateOption {
	return func(p *windowUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// WithTime stamps the transition with t instead of the current time.
func WithTime(t time.Time) WindowUpdateOption {
	return func(p *windowUpdateParams) {
		p.At = t
	}
}

func newUpdateParams(opts []WindowUpdateOption) windowUpdateParams {
	p := windowUpdateParams{}
	for _, opt := range opts {
		opt(&p)
	}
	if p.At.IsZero() {
		p.At = time.Now()
	}
	p.At = p.At.UTC()
	return p
}

// statusColumns returns the column values written by a transition to status.
// error_message and error_at are always overwritten, so entering processing or
// completed clears a previous failure. processedAt is nil when processed_at
// should keep its current value.
func statusColumns(status models.WindowStatus, p windowUpdateParams) (errMsg *string, errorAt, processedAt *time.Time) {
	at := p.At
	switch status {
	case models.WindowStatusCompleted:
		return nil, nil, &at
	case models.WindowStatusError:
		msg := ""
		if p.ErrorMessage != nil {
			msg = *p.ErrorMessage
		}
		return &msg, &at, nil
	}
	return nil, nil, nil
}

func allowedFrom(status models.WindowStatus) []string {
	from := window.AllowedFrom(status)
	out := make([]string, len(from))
	for i, s := range from {
		out[i] = string(s)
	}
	return out
}

func transitionError(current, target models.WindowStatus) error {
	if err := window.Transition(current, target); err != nil {
		return err
	}
	// The row changed between the conditional update and the lookup.
	return fmt.Errorf("%w: %s -> %s (concurrent update)", window.ErrInvalidTransition, current, target)
}

func validateRun(run *models.Run, windows []models.Window) error {
	if run.ID == uuid.Nil {
		return fmt.Errorf("create run: id is required")
	}
	for i, w := range windows {
		if w.RunID != run.ID {
			return fmt.Errorf("create run: window %d belongs to run %s", i, w.RunID)
		}
		if !w.Status.Valid() {
			return fmt.Errorf("create run: window %d has invalid status %q", i, w.Status)
		}
	}
	return nil
}

func marshalResultLists(r *models.AnalysisResult) (sections, patterns []byte, err error) {
	s := r.Sections
	if s == nil {
		s = []string{}
	}
	p := r.Patterns
	if p == nil {
		p = []models.Pattern{}
	}
	if sections, err = json.Marshal(s); err != nil {
		return nil, nil, fmt.Errorf("marshal sections: %w", err)
	}
	if patterns, err = json.Marshal(p); err != nil {
		return nil, nil, fmt.Errorf("marshal patterns: %w", err)
	}
	return sections, patterns, nil
}

func unmarshalResultLists(r *models.AnalysisResult, sections, patterns []byte) error {
	if err := json.Unmarshal(sections, &r.Sections); err != nil {
		return fmt.Errorf("unmarshal sections: %w", err)
	}
	if err := json.Unmarshal(patterns, &r.Patterns); err != nil {
		return fmt.Errorf("unmarshal patterns: %w", err)
	}
	return nil
}
