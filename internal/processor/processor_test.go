package processor_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/logsweep/internal/ai/mock"
	"github.com/kiranshivaraju/logsweep/internal/cache"
	"github.com/kiranshivaraju/logsweep/internal/loki"
	"github.com/kiranshivaraju/logsweep/internal/processor"
	"github.com/kiranshivaraju/logsweep/internal/prompt"
	"github.com/kiranshivaraju/logsweep/internal/store"
	"github.com/kiranshivaraju/logsweep/internal/window"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// --- fakes ---

type fetchFunc func(ctx context.Context, sourceID string, start, end time.Time) ([]models.LogEvent, error)

func (f fetchFunc) Fetch(ctx context.Context, sourceID string, start, end time.Time) ([]models.LogEvent, error) {
	return f(ctx, sourceID, start, end)
}

func noLogs() processor.Fetcher {
	return fetchFunc(func(context.Context, string, time.Time, time.Time) ([]models.LogEvent, error) {
		return nil, nil
	})
}

// faultyStore fails selected operations of an otherwise real store.
type faultyStore struct {
	store.Store
	putErr    error
	statusErr map[models.WindowStatus]error
}

func (s *faultyStore) PutAnalysisResult(ctx context.Context, r *models.AnalysisResult) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.PutAnalysisResult(ctx, r)
}

func (s *faultyStore) UpdateWindowStatus(ctx context.Context, runID uuid.UUID, windowID int, status models.WindowStatus, opts ...store.WindowUpdateOption) (*models.Window, error) {
	if err := s.statusErr[status]; err != nil {
		return nil, err
	}
	return s.Store.UpdateWindowStatus(ctx, runID, windowID, status, opts...)
}

type recordingArchive struct {
	mu   sync.Mutex
	puts map[string]string
	err  error
}

func (a *recordingArchive) PutWindow(_ context.Context, runID uuid.UUID, windowID int, condensed, analysis string) error {
	if a.err != nil {
		return a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.puts == nil {
		a.puts = map[string]string{}
	}
	key := fmt.Sprintf("%s/%d", runID, windowID)
	a.puts[key+"/condensed"] = condensed
	a.puts[key+"/analysis"] = analysis
	return nil
}

type recordingCache struct {
	cache.Nop
	mu       sync.Mutex
	statuses []models.WindowStatus
	counters map[models.WindowStatus]int
	failAll  bool
}

func (c *recordingCache) SetWindowStatus(_ context.Context, _ uuid.UUID, _ int, status models.WindowStatus, _ time.Duration) error {
	if c.failAll {
		return errors.New("redis down")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, status)
	return nil
}

func (c *recordingCache) AddRunCounter(_ context.Context, _ uuid.UUID, status models.WindowStatus, delta int64, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counters == nil {
		c.counters = map[models.WindowStatus]int{}
	}
	c.counters[status] += int(delta)
	return int64(c.counters[status]), nil
}

// --- helpers ---

func setupStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logsweep.db")
	require.NoError(t, store.RunSQLiteMigrations(path))

	db, err := store.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	s := store.NewSQLiteStore(db)
	t.Cleanup(s.Close)
	return s
}

// seedRun plans a 2-day run of 4-hour windows.
func seedRun(t *testing.T, s store.Store) (*models.Run, []models.Window) {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	run := &models.Run{
		ID:         uuid.New(),
		LogSource:  "prod/payments-api",
		StartTime:  start,
		EndTime:    end,
		WindowSize: 4 * time.Hour,
	}
	windows, err := window.Plan(run.ID, start, end, run.WindowSize)
	require.NoError(t, err)
	require.NoError(t, s.CreateRun(context.Background(), run, windows))
	return run, windows
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// --- tests ---

func TestProcess_EmptyWindowsCompleteWithFallback(t *testing.T) {
	s := setupStore(t)
	run, windows := seedRun(t, s)
	require.Len(t, windows, 12)

	provider := mock.NewEmptyProvider()
	p := processor.New(s, noLogs(), provider, processor.DefaultConfig())
	ctx := context.Background()

	for _, w := range windows {
		sum, err := p.Process(ctx, processor.Request{RunID: run.ID, WindowID: w.ID, LogSource: run.LogSource})
		require.NoError(t, err)
		assert.Equal(t, models.WindowStatusCompleted, sum.Status)
		assert.Equal(t, 0, sum.LogCount)
		assert.Equal(t, 0, sum.AnalyzedLogCount)
		assert.Equal(t, 8, sum.SectionCount)
		assert.True(t, sum.Fallback)
	}

	stored, err := s.ListWindows(ctx, run.ID)
	require.NoError(t, err)
	for _, w := range stored {
		assert.Equal(t, models.WindowStatusCompleted, w.Status, "window %d", w.ID)
		assert.NotNil(t, w.ProcessedAt)
		assert.Nil(t, w.ErrorMessage)

		res, err := s.GetAnalysisResult(ctx, run.ID, w.ID)
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.Equal(t, prompt.Fallback(), res.Analysis)
		for _, title := range prompt.SectionTitles() {
			assert.Contains(t, res.Analysis, title+":")
		}
		assert.Equal(t, prompt.SectionTitles(), res.Sections)
		assert.Empty(t, res.Patterns)
	}
	assert.Equal(t, 12, provider.Calls())
}

func TestProcess_InferenceErrorRecordsError(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	ctx := context.Background()

	cause := fmt.Errorf("%w: connection reset", models.ErrProviderUnavailable)
	p := processor.New(s, noLogs(), mock.NewFailingProvider(cause), processor.DefaultConfig())

	_, err := p.Process(ctx, processor.Request{RunID: run.ID, WindowID: 3, LogSource: run.LogSource})
	require.Error(t, err)
	assert.ErrorIs(t, err, processor.ErrInference)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)

	w, err2 := s.GetWindow(ctx, run.ID, 3)
	require.NoError(t, err2)
	assert.Equal(t, models.WindowStatusError, w.Status)
	require.NotNil(t, w.ErrorMessage)
	assert.Equal(t, err.Error(), *w.ErrorMessage)
	assert.NotNil(t, w.ErrorAt)
	assert.Nil(t, w.ProcessedAt)

	_, err2 = s.GetAnalysisResult(ctx, run.ID, 3)
	assert.ErrorIs(t, err2, store.ErrNotFound)
}

func TestProcess_ReprocessCompletedOverwrites(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	ctx := context.Background()
	req := processor.Request{RunID: run.ID, WindowID: 0, LogSource: run.LogSource}

	first := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	p1 := processor.New(s, noLogs(), mock.NewMockProvider("first analysis"), processor.DefaultConfig(), processor.WithClock(fixedClock(first)))
	_, err := p1.Process(ctx, req)
	require.NoError(t, err)

	second := first.Add(time.Hour)
	p2 := processor.New(s, noLogs(), mock.NewMockProvider("second analysis"), processor.DefaultConfig(), processor.WithClock(fixedClock(second)))
	sum, err := p2.Process(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.WindowStatusCompleted, sum.Status)
	assert.False(t, sum.Fallback)

	res, err := s.GetAnalysisResult(ctx, run.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "second analysis", res.Analysis)
	assert.True(t, res.CreatedAt.Equal(second))

	w, err := s.GetWindow(ctx, run.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.WindowStatusCompleted, w.Status)
	require.NotNil(t, w.ProcessedAt)
	assert.True(t, w.ProcessedAt.Equal(second))
}

func TestProcess_ErrorThenRetrySucceeds(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	ctx := context.Background()
	req := processor.Request{RunID: run.ID, WindowID: 5, LogSource: run.LogSource}

	failing := processor.New(s, noLogs(), mock.NewFailingProvider(models.ErrInferenceTimeout), processor.DefaultConfig())
	_, err := failing.Process(ctx, req)
	require.ErrorIs(t, err, processor.ErrInference)

	ok := processor.New(s, noLogs(), mock.NewMockProvider("recovered"), processor.DefaultConfig())
	_, err = ok.Process(ctx, req)
	require.NoError(t, err)

	w, err := s.GetWindow(ctx, run.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.WindowStatusCompleted, w.Status)
	assert.Nil(t, w.ErrorMessage)
	assert.Nil(t, w.ErrorAt)
}

func TestProcess_WindowNotFound(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	provider := mock.NewMockProvider("unused")
	p := processor.New(s, noLogs(), provider, processor.DefaultConfig())

	_, err := p.Process(context.Background(), processor.Request{RunID: run.ID, WindowID: 99, LogSource: run.LogSource})
	assert.ErrorIs(t, err, processor.ErrWindowNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, provider.Calls())

	_, err = p.Process(context.Background(), processor.Request{RunID: uuid.New(), WindowID: 0})
	assert.ErrorIs(t, err, processor.ErrWindowNotFound)
}

func TestProcess_LogStoreError(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	ctx := context.Background()

	fetcher := fetchFunc(func(context.Context, string, time.Time, time.Time) ([]models.LogEvent, error) {
		return nil, fmt.Errorf("querying chunk: %w", loki.ErrLokiUnreachable)
	})
	provider := mock.NewMockProvider("unused")
	p := processor.New(s, fetcher, provider, processor.DefaultConfig())

	_, err := p.Process(ctx, processor.Request{RunID: run.ID, WindowID: 1, LogSource: run.LogSource})
	assert.ErrorIs(t, err, processor.ErrLogStore)
	assert.ErrorIs(t, err, loki.ErrLokiUnreachable)
	assert.Zero(t, provider.Calls())

	w, err2 := s.GetWindow(ctx, run.ID, 1)
	require.NoError(t, err2)
	assert.Equal(t, models.WindowStatusError, w.Status)
	require.NotNil(t, w.ErrorMessage)
	assert.Equal(t, err.Error(), *w.ErrorMessage)
}

func TestProcess_PersistenceFailureNeverCompletes(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	ctx := context.Background()

	fs := &faultyStore{Store: s, putErr: errors.New("disk full")}
	p := processor.New(fs, noLogs(), mock.NewMockProvider("analysis"), processor.DefaultConfig())

	_, err := p.Process(ctx, processor.Request{RunID: run.ID, WindowID: 2, LogSource: run.LogSource})
	assert.ErrorIs(t, err, processor.ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")

	w, err2 := s.GetWindow(ctx, run.ID, 2)
	require.NoError(t, err2)
	assert.Equal(t, models.WindowStatusError, w.Status)
	assert.Nil(t, w.ProcessedAt)
}

func TestProcess_DoubleFaultKeepsOriginalError(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	ctx := context.Background()

	fs := &faultyStore{
		Store:     s,
		statusErr: map[models.WindowStatus]error{models.WindowStatusError: errors.New("store unavailable")},
	}
	cause := fmt.Errorf("%w: bad gateway", models.ErrProviderUnavailable)
	p := processor.New(fs, noLogs(), mock.NewFailingProvider(cause), processor.DefaultConfig())

	_, err := p.Process(ctx, processor.Request{RunID: run.ID, WindowID: 4, LogSource: run.LogSource})
	require.Error(t, err)
	assert.ErrorIs(t, err, processor.ErrInference)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.NotContains(t, err.Error(), "store unavailable")

	w, err2 := s.GetWindow(ctx, run.ID, 4)
	require.NoError(t, err2)
	assert.Equal(t, models.WindowStatusProcessing, w.Status)
}

func TestProcess_CancelledContextStillRecordsError(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := fetchFunc(func(ctx context.Context, _ string, _, _ time.Time) ([]models.LogEvent, error) {
		cancel()
		return nil, fmt.Errorf("%w: %v", loki.ErrLokiTimeout, ctx.Err())
	})
	p := processor.New(s, fetcher, mock.NewMockProvider("unused"), processor.DefaultConfig())

	_, err := p.Process(ctx, processor.Request{RunID: run.ID, WindowID: 6, LogSource: run.LogSource})
	assert.ErrorIs(t, err, processor.ErrLogStore)

	w, err2 := s.GetWindow(context.Background(), run.ID, 6)
	require.NoError(t, err2)
	assert.Equal(t, models.WindowStatusError, w.Status)
}

func TestProcess_BuildsPromptAndPatterns(t *testing.T) {
	s := setupStore(t)
	run, windows := seedRun(t, s)
	ctx := context.Background()
	w := windows[0]

	var gotSource string
	var gotStart, gotEnd time.Time
	fetcher := fetchFunc(func(_ context.Context, src string, start, end time.Time) ([]models.LogEvent, error) {
		gotSource, gotStart, gotEnd = src, start, end
		return []models.LogEvent{
			{Timestamp: start.Add(time.Minute), Message: "dial tcp 10.0.0.1:5432: connection refused", Level: "error"},
			{Timestamp: start.Add(2 * time.Minute), Message: "dial tcp 10.0.0.2:5432: connection refused", Level: "error"},
			{Timestamp: start.Add(3 * time.Minute), Message: "request served", Level: "info"},
		}, nil
	})
	provider := mock.NewMockProvider("OVERALL HEALTH STATUS:\n- degraded")
	p := processor.New(s, fetcher, provider, processor.DefaultConfig())

	// An empty log source falls back to the run's.
	sum, err := p.Process(ctx, processor.Request{RunID: run.ID, WindowID: w.ID})
	require.NoError(t, err)
	assert.Equal(t, run.LogSource, gotSource)
	assert.True(t, gotStart.Equal(w.StartTime))
	assert.True(t, gotEnd.Equal(w.EndTime))
	assert.Equal(t, 3, sum.LogCount)
	assert.Equal(t, 3, sum.AnalyzedLogCount)
	assert.False(t, sum.Truncated)

	prompts := provider.Prompts()
	require.Len(t, prompts, 1)
	assert.True(t, strings.Contains(prompts[0], "LOGS TO ANALYZE:\n"))
	assert.Contains(t, prompts[0], "Total Logs: 3")
	assert.Contains(t, prompts[0], "request served")

	res, err := s.GetAnalysisResult(ctx, run.ID, w.ID)
	require.NoError(t, err)
	require.Len(t, res.Patterns, 2)
	assert.Equal(t, 2, res.Patterns[0].Count)
	assert.Equal(t, "error", res.Patterns[0].Level)
	assert.Equal(t, "mock", res.Provider)
	assert.Equal(t, "mock-v1", res.Model)
	assert.Equal(t, run.LogSource, res.LogSource)
}

func TestProcess_TruncatesToBudget(t *testing.T) {
	s := setupStore(t)
	run, windows := seedRun(t, s)
	w := windows[0]

	fetcher := fetchFunc(func(_ context.Context, _ string, start, _ time.Time) ([]models.LogEvent, error) {
		events := make([]models.LogEvent, 500)
		for i := range events {
			events[i] = models.LogEvent{Timestamp: start.Add(time.Duration(i) * time.Second), Message: strings.Repeat("x", 100)}
		}
		return events, nil
	})
	p := processor.New(s, fetcher, mock.NewMockProvider("ok"), processor.Config{MaxChars: 2000})

	sum, err := p.Process(context.Background(), processor.Request{RunID: run.ID, WindowID: w.ID})
	require.NoError(t, err)
	assert.Equal(t, 500, sum.LogCount)
	assert.Less(t, sum.AnalyzedLogCount, 500)
	assert.True(t, sum.Truncated)
}

func TestProcess_ArchivesAndMirrorsStatus(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	ctx := context.Background()

	arc := &recordingArchive{}
	c := &recordingCache{}
	p := processor.New(s, noLogs(), mock.NewMockProvider("archived analysis"), processor.DefaultConfig(),
		processor.WithArchive(arc), processor.WithCache(c))

	_, err := p.Process(ctx, processor.Request{RunID: run.ID, WindowID: 7, LogSource: run.LogSource})
	require.NoError(t, err)

	key := fmt.Sprintf("%s/7", run.ID)
	assert.Equal(t, "archived analysis", arc.puts[key+"/analysis"])
	assert.Contains(t, arc.puts[key+"/condensed"], "Total Logs: 0")
	assert.Equal(t, []models.WindowStatus{models.WindowStatusProcessing, models.WindowStatusCompleted}, c.statuses)
	assert.Equal(t, 1, c.counters[models.WindowStatusCompleted])
}

func TestProcess_RunCountersTrackCurrentStatus(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	ctx := context.Background()
	c := &recordingCache{}

	ok := processor.New(s, noLogs(), mock.NewMockProvider("fine"), processor.DefaultConfig(), processor.WithCache(c))
	failing := processor.New(s, noLogs(), mock.NewFailingProvider(models.ErrInferenceTimeout), processor.DefaultConfig(),
		processor.WithCache(c))

	// Window 0 completes, then is reprocessed twice.
	for i := 0; i < 3; i++ {
		_, err := ok.Process(ctx, processor.Request{RunID: run.ID, WindowID: 0})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, c.counters[models.WindowStatusCompleted])

	// Window 1 fails twice, then a retry succeeds.
	for i := 0; i < 2; i++ {
		_, err := failing.Process(ctx, processor.Request{RunID: run.ID, WindowID: 1})
		require.ErrorIs(t, err, processor.ErrInference)
	}
	assert.Equal(t, 1, c.counters[models.WindowStatusError])

	_, err := ok.Process(ctx, processor.Request{RunID: run.ID, WindowID: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, c.counters[models.WindowStatusCompleted])
	assert.Equal(t, 0, c.counters[models.WindowStatusError])

	st, err := s.ListWindows(ctx, run.ID)
	require.NoError(t, err)
	completed := 0
	for _, w := range st {
		if w.Status == models.WindowStatusCompleted {
			completed++
		}
	}
	assert.Equal(t, completed, c.counters[models.WindowStatusCompleted])
}

func TestProcess_ArchiveFailureIsPersistenceError(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)
	ctx := context.Background()

	arc := &recordingArchive{err: errors.New("bucket gone")}
	p := processor.New(s, noLogs(), mock.NewMockProvider("analysis"), processor.DefaultConfig(), processor.WithArchive(arc))

	_, err := p.Process(ctx, processor.Request{RunID: run.ID, WindowID: 8, LogSource: run.LogSource})
	assert.ErrorIs(t, err, processor.ErrPersistence)

	_, err = s.GetAnalysisResult(ctx, run.ID, 8)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcess_CacheFailureDoesNotAffectOutcome(t *testing.T) {
	s := setupStore(t)
	run, _ := seedRun(t, s)

	p := processor.New(s, noLogs(), mock.NewMockProvider("analysis"), processor.DefaultConfig(),
		processor.WithCache(&recordingCache{failAll: true}))

	sum, err := p.Process(context.Background(), processor.Request{RunID: run.ID, WindowID: 9, LogSource: run.LogSource})
	require.NoError(t, err)
	assert.Equal(t, models.WindowStatusCompleted, sum.Status)
}

func TestProcess_ConcurrentWindows(t *testing.T) {
	s := setupStore(t)
	run, windows := seedRun(t, s)
	p := processor.New(s, noLogs(), mock.NewMockProvider("analysis"), processor.DefaultConfig())

	var wg sync.WaitGroup
	errs := make([]error, len(windows))
	for i, w := range windows {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			_, errs[i] = p.Process(context.Background(), processor.Request{RunID: run.ID, WindowID: id, LogSource: run.LogSource})
		}(i, w.ID)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "window %d", i)
	}
	stored, err := s.ListWindows(context.Background(), run.ID)
	require.NoError(t, err)
	for _, w := range stored {
		assert.Equal(t, models.WindowStatusCompleted, w.Status)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := processor.DefaultConfig()
	assert.Equal(t, 32000, cfg.MaxChars)
	assert.Equal(t, 4096, cfg.MaxOutputTokens)
	assert.Equal(t, 15*time.Minute, cfg.InferenceTimeout)
	assert.Equal(t, 24*time.Hour, cfg.StatusTTL)
}
