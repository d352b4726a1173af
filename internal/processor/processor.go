// Package processor runs the per-window analysis pipeline and owns the
// window's status transitions while doing so.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/logsweep/internal/analysis"
	"github.com/kiranshivaraju/logsweep/internal/archive"
	"github.com/kiranshivaraju/logsweep/internal/cache"
	"github.com/kiranshivaraju/logsweep/internal/condense"
	"github.com/kiranshivaraju/logsweep/internal/metrics"
	"github.com/kiranshivaraju/logsweep/internal/prompt"
	"github.com/kiranshivaraju/logsweep/internal/store"
	"github.com/kiranshivaraju/logsweep/internal/window"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Error kinds surfaced by Process. The returned error wraps both the kind and
// the underlying cause.
var (
	ErrWindowNotFound = errors.New("window not found")
	ErrLogStore       = errors.New("log store error")
	ErrInference      = errors.New("inference error")
	ErrPersistence    = errors.New("persistence error")
)

// recordTimeout bounds the best-effort failure write, which runs even when
// the caller's context is already done.
const recordTimeout = 10 * time.Second

// Config holds the processing limits.
type Config struct {
	MaxChars         int
	MaxOutputTokens  int
	InferenceTimeout time.Duration
	// StatusTTL is how long mirrored status keys live in the cache.
	StatusTTL    time.Duration
	PatternLimit int
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxChars:         condense.DefaultMaxChars,
		MaxOutputTokens:  4096,
		InferenceTimeout: 15 * time.Minute,
		StatusTTL:        24 * time.Hour,
		PatternLimit:     analysis.DefaultPatternLimit,
	}
}

// Fetcher retrieves every event of one source in [start, end).
type Fetcher interface {
	Fetch(ctx context.Context, sourceID string, start, end time.Time) ([]models.LogEvent, error)
}

// Request identifies the window to process.
type Request struct {
	RunID     uuid.UUID `json:"run_id"`
	WindowID  int       `json:"window_id"`
	LogSource string    `json:"log_source"`
}

// Summary reports the outcome of a successful Process call.
type Summary struct {
	RunID            uuid.UUID           `json:"run_id"`
	WindowID         int                 `json:"window_id"`
	LogCount         int                 `json:"log_count"`
	AnalyzedLogCount int                 `json:"analyzed_logs"`
	AnalysisLength   int                 `json:"analysis_length"`
	SectionCount     int                 `json:"analysis_sections"`
	Truncated        bool                `json:"truncated"`
	Fallback         bool                `json:"fallback"`
	Status           models.WindowStatus `json:"status"`
}

// Processor runs fetch, condense, prompt, inference and persistence for one
// window at a time. It keeps no state between calls and is safe for
// concurrent use on different windows.
type Processor struct {
	store    store.Store
	fetcher  Fetcher
	provider models.AIProvider
	archive  archive.Archive
	cache    cache.Cache
	cfg      Config
	now      func() time.Time
}

// Option customizes a Processor.
type Option func(*Processor)

// WithArchive writes window artifacts to a before the result is persisted.
func WithArchive(a archive.Archive) Option {
	return func(p *Processor) { p.archive = a }
}

// WithCache mirrors status transitions and run counters to c.
func WithCache(c cache.Cache) Option {
	return func(p *Processor) { p.cache = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a Processor. Zero config fields take their defaults.
func New(st store.Store, f Fetcher, provider models.AIProvider, cfg Config, opts ...Option) *Processor {
	def := DefaultConfig()
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = def.InferenceTimeout
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = def.StatusTTL
	}
	if cfg.PatternLimit <= 0 {
		cfg.PatternLimit = def.PatternLimit
	}

	p := &Processor{
		store:    st,
		fetcher:  f,
		provider: provider,
		archive:  archive.Nop{},
		cache:    cache.Nop{},
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process analyzes one window and marks it completed.
//
// A missing window fails immediately with ErrWindowNotFound and touches
// nothing. Any later failure is recorded on the window as status error with
// the returned error's message before the error is returned. If recording
// the failure fails too, that second error is logged and dropped.
//
// Reprocessing a completed window replaces its result and re-stamps
// processed_at without leaving completed.
func (p *Processor) Process(ctx context.Context, req Request) (Summary, error) {
	started := time.Now()
	log := slog.With("run_id", req.RunID, "window_id", req.WindowID)

	w, err := p.store.GetWindow(ctx, req.RunID, req.WindowID)
	if errors.Is(err, store.ErrNotFound) {
		return Summary{}, fmt.Errorf("%w: run %s window %d: %w", ErrWindowNotFound, req.RunID, req.WindowID, err)
	}
	if err != nil {
		return Summary{}, p.fail(ctx, log, req, "", started, ErrPersistence, fmt.Errorf("loading window: %w", err))
	}

	// cur tracks the stored status so the cache counters move only on change.
	cur := w.Status

	source := req.LogSource
	if source == "" {
		run, err := p.store.GetRun(ctx, req.RunID)
		if err != nil {
			return Summary{}, p.fail(ctx, log, req, cur, started, ErrPersistence, fmt.Errorf("loading run: %w", err))
		}
		source = run.LogSource
	}
	log = log.With("log_source", source)

	if w.Status != models.WindowStatusCompleted {
		if _, err := p.store.UpdateWindowStatus(ctx, req.RunID, req.WindowID, models.WindowStatusProcessing); err != nil {
			return Summary{}, p.fail(ctx, log, req, cur, started, ErrPersistence, fmt.Errorf("claiming window: %w", err))
		}
		p.mirrorStatus(ctx, log, req, cur, models.WindowStatusProcessing)
		cur = models.WindowStatusProcessing
	}

	events, err := p.fetcher.Fetch(ctx, source, w.StartTime, w.EndTime)
	if err != nil {
		return Summary{}, p.fail(ctx, log, req, cur, started, ErrLogStore, err)
	}
	metrics.LogEventsFetchedTotal.Add(float64(len(events)))

	condensed := condense.CondenseAt(events, p.cfg.MaxChars, p.now())
	if condensed.Truncated {
		metrics.WindowsTruncatedTotal.Inc()
	}
	log.Info("window condensed",
		"log_count", condensed.Total,
		"analyzed_logs", condensed.Rendered,
		"truncated", condensed.Truncated,
	)

	text, err := p.generate(ctx, prompt.Build(condensed.Text))
	if err != nil {
		return Summary{}, p.fail(ctx, log, req, cur, started, ErrInference, err)
	}
	fallback := !prompt.Usable(text)
	if fallback {
		log.Warn("empty analysis from provider, using fallback", "provider", p.provider.Name())
		text = prompt.Fallback()
	}

	if err := p.archive.PutWindow(ctx, req.RunID, req.WindowID, condensed.Text, text); err != nil {
		return Summary{}, p.fail(ctx, log, req, cur, started, ErrPersistence, fmt.Errorf("archiving window: %w", err))
	}

	now := p.now()
	result := &models.AnalysisResult{
		RunID:            req.RunID,
		WindowID:         req.WindowID,
		LogSource:        source,
		WindowStart:      w.StartTime,
		WindowEnd:        w.EndTime,
		LogCount:         condensed.Total,
		AnalyzedLogCount: condensed.Rendered,
		Truncated:        condensed.Truncated,
		Analysis:         text,
		Fallback:         fallback,
		Sections:         prompt.SectionTitles(),
		Patterns:         analysis.Patterns(events, p.cfg.PatternLimit),
		Provider:         p.provider.Name(),
		Model:            p.provider.Model(),
		CreatedAt:        now,
	}
	if err := p.store.PutAnalysisResult(ctx, result); err != nil {
		return Summary{}, p.fail(ctx, log, req, cur, started, ErrPersistence, fmt.Errorf("storing result: %w", err))
	}

	if _, err := p.store.UpdateWindowStatus(ctx, req.RunID, req.WindowID, models.WindowStatusCompleted, store.WithTime(now)); err != nil {
		return Summary{}, p.fail(ctx, log, req, cur, started, ErrPersistence, fmt.Errorf("completing window: %w", err))
	}
	p.mirrorStatus(ctx, log, req, cur, models.WindowStatusCompleted)
	p.observe(models.WindowStatusCompleted, started)

	log.Info("window completed",
		"analysis_length", len(text),
		"fallback", fallback,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return Summary{
		RunID:            req.RunID,
		WindowID:         req.WindowID,
		LogCount:         condensed.Total,
		AnalyzedLogCount: condensed.Rendered,
		AnalysisLength:   len(text),
		SectionCount:     len(prompt.Sections),
		Truncated:        condensed.Truncated,
		Fallback:         fallback,
		Status:           models.WindowStatusCompleted,
	}, nil
}

// generate calls the provider under the inference timeout.
func (p *Processor) generate(ctx context.Context, promptText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.InferenceTimeout)
	defer cancel()

	name, model := p.provider.Name(), p.provider.Model()
	start := time.Now()
	text, err := p.provider.Generate(ctx, promptText, p.cfg.MaxOutputTokens)
	metrics.InferenceDuration.WithLabelValues(name, model).Observe(time.Since(start).Seconds())

	status := metrics.StatusSuccess
	switch {
	case err != nil:
		status = metrics.StatusError
	case !prompt.Usable(text):
		status = metrics.StatusEmpty
	}
	metrics.InferenceRequestsTotal.WithLabelValues(name, model, status).Inc()
	return text, err
}

// fail wraps cause with kind, records it on the window and returns it.
func (p *Processor) fail(ctx context.Context, log *slog.Logger, req Request, from models.WindowStatus, started time.Time, kind, cause error) error {
	err := fmt.Errorf("%w: %w", kind, cause)
	p.observe(models.WindowStatusError, started)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	_, uerr := p.store.UpdateWindowStatus(rctx, req.RunID, req.WindowID, models.WindowStatusError,
		store.WithErrorMessage(err.Error()),
		store.WithTime(p.now()),
	)
	if uerr != nil {
		log.Error("recording window failure", "error", uerr, "cause", err)
		return err
	}
	p.mirrorStatus(rctx, log, req, from, models.WindowStatusError)

	log.Error("window failed", "error", err)
	return err
}

// mirrorStatus copies the transition from -> to into the cache. The run
// counters hold how many windows currently sit in each terminal status, so a
// window leaving one is taken off its counter and a same-status write moves
// nothing. Cache failures never change the outcome of the window.
func (p *Processor) mirrorStatus(ctx context.Context, log *slog.Logger, req Request, from, to models.WindowStatus) {
	if err := p.cache.SetWindowStatus(ctx, req.RunID, req.WindowID, to, p.cfg.StatusTTL); err != nil {
		log.Warn("caching window status", "status", to, "error", err)
		return
	}
	if from == to {
		return
	}
	if window.IsTerminal(from) {
		if _, err := p.cache.AddRunCounter(ctx, req.RunID, from, -1, p.cfg.StatusTTL); err != nil {
			log.Warn("decrementing run counter", "status", from, "error", err)
		}
	}
	if window.IsTerminal(to) {
		if _, err := p.cache.AddRunCounter(ctx, req.RunID, to, 1, p.cfg.StatusTTL); err != nil {
			log.Warn("incrementing run counter", "status", to, "error", err)
		}
	}
}

func (p *Processor) observe(status models.WindowStatus, started time.Time) {
	metrics.WindowsProcessedTotal.WithLabelValues(string(status)).Inc()
	metrics.WindowDuration.WithLabelValues(string(status)).Observe(time.Since(started).Seconds())
}
