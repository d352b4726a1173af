// Package run plans analysis runs and reports their progress.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/logsweep/internal/store"
	"github.com/kiranshivaraju/logsweep/internal/window"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Defaults applied when a plan request leaves a field zero.
const (
	DefaultDaysToAnalyze   = 1
	DefaultWindowSizeHours = 4
)

// Upper bounds on a plan request. A year of hourly windows is 8784 rows.
const (
	MaxDaysToAnalyze   = 366
	MaxWindowSizeHours = MaxDaysToAnalyze * 24
)

// ErrInvalidInput is returned for a plan request that cannot be accepted.
var ErrInvalidInput = errors.New("invalid plan input")

// PlanInput is the planning request for one run.
type PlanInput struct {
	LogSource       string `json:"log_source"`
	DaysToAnalyze   int    `json:"days_to_analyze"`
	WindowSizeHours int    `json:"window_size_hours"`
}

// Plan is a created run with its planned windows.
type Plan struct {
	Run     *models.Run     `json:"run"`
	Windows []models.Window `json:"windows"`
}

// Status is a run with its windows and per-status window counts.
type Status struct {
	Run     *models.Run                 `json:"run"`
	Windows []models.Window             `json:"windows"`
	Counts  map[models.WindowStatus]int `json:"counts"`
	Done    bool                        `json:"done"`
}

// Service creates runs and reads their progress.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a Service. A nil clock uses time.Now.
func NewService(st store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, now: now}
}

// Start plans a run ending now and spanning in.DaysToAnalyze days, and stores
// the run with all of its windows pending.
func (s *Service) Start(ctx context.Context, in PlanInput) (*Plan, error) {
	in.LogSource = strings.TrimSpace(in.LogSource)
	if in.LogSource == "" {
		return nil, fmt.Errorf("%w: log_source is required", ErrInvalidInput)
	}
	if in.DaysToAnalyze == 0 {
		in.DaysToAnalyze = DefaultDaysToAnalyze
	}
	if in.WindowSizeHours == 0 {
		in.WindowSizeHours = DefaultWindowSizeHours
	}
	if in.DaysToAnalyze < 0 || in.WindowSizeHours < 0 {
		return nil, fmt.Errorf("%w: days_to_analyze and window_size_hours must be positive", ErrInvalidInput)
	}
	if in.DaysToAnalyze > MaxDaysToAnalyze {
		return nil, fmt.Errorf("%w: days_to_analyze must be at most %d, got %d", ErrInvalidInput, MaxDaysToAnalyze, in.DaysToAnalyze)
	}
	if in.WindowSizeHours > MaxWindowSizeHours {
		return nil, fmt.Errorf("%w: window_size_hours must be at most %d, got %d", ErrInvalidInput, MaxWindowSizeHours, in.WindowSizeHours)
	}

	end := s.now().UTC().Truncate(time.Millisecond)
	start := end.Add(-time.Duration(in.DaysToAnalyze) * 24 * time.Hour)
	size := time.Duration(in.WindowSizeHours) * time.Hour

	run := &models.Run{
		ID:         uuid.New(),
		LogSource:  in.LogSource,
		StartTime:  start,
		EndTime:    end,
		WindowSize: size,
		CreatedAt:  end,
	}
	windows, err := window.Plan(run.ID, start, end, size)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateRun(ctx, run, windows); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	slog.Info("run planned",
		"run_id", run.ID,
		"log_source", run.LogSource,
		"windows", len(windows),
		"start", start,
		"end", end,
	)
	return &Plan{Run: run, Windows: windows}, nil
}

// Status returns the run, its windows and how many windows are in each status.
func (s *Service) Status(ctx context.Context, runID uuid.UUID) (*Status, error) {
	r, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	windows, err := s.store.ListWindows(ctx, runID)
	if err != nil {
		return nil, err
	}

	counts := map[models.WindowStatus]int{
		models.WindowStatusPending:    0,
		models.WindowStatusProcessing: 0,
		models.WindowStatusCompleted:  0,
		models.WindowStatusError:      0,
	}
	for _, w := range windows {
		counts[w.Status]++
	}

	return &Status{
		Run:     r,
		Windows: windows,
		Counts:  counts,
		Done:    counts[models.WindowStatusCompleted] == len(windows),
	}, nil
}
