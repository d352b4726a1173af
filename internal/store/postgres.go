package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run, windows []models.Window) error {
	if err := validateRun(run, windows); err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create run: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, log_source, start_time, end_time, window_size_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.LogSource, run.StartTime, run.EndTime, run.WindowSize.Milliseconds(), run.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create run: %w", err)
	}

	now := run.CreatedAt
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"windows"},
		[]string{"run_id", "window_id", "start_time", "end_time", "status", "updated_at"},
		pgx.CopyFromSlice(len(windows), func(i int) ([]any, error) {
			w := windows[i]
			return []any{w.RunID, w.ID, w.StartTime, w.EndTime, string(w.Status), now}, nil
		}),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create windows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create run: %w", err)
	}
	for i := range windows {
		windows[i].UpdatedAt = now
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var r models.Run
	var sizeMs int64
	err := s.pool.QueryRow(ctx,
		`SELECT id, log_source, start_time, end_time, window_size_ms, created_at FROM runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.LogSource, &r.StartTime, &r.EndTime, &sizeMs, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.WindowSize = time.Duration(sizeMs) * time.Millisecond
	normalizeRun(&r)
	return &r, nil
}

// --- Windows ---

const windowColumns = `run_id, window_id, start_time, end_time, status, error_message, processed_at, error_at, updated_at`

func scanWindow(row pgx.Row) (*models.Window, error) {
	var w models.Window
	var status string
	if err := row.Scan(&w.RunID, &w.ID, &w.StartTime, &w.EndTime, &status,
		&w.ErrorMessage, &w.ProcessedAt, &w.ErrorAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Status = models.WindowStatus(status)
	normalizeWindow(&w)
	return &w, nil
}

func (s *PostgresStore) GetWindow(ctx context.Context, runID uuid.UUID, windowID int) (*models.Window, error) {
	w, err := scanWindow(s.pool.QueryRow(ctx,
		`SELECT `+windowColumns+` FROM windows WHERE run_id = $1 AND window_id = $2`, runID, windowID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get window: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) ListWindows(ctx context.Context, runID uuid.UUID) ([]models.Window, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+windowColumns+` FROM windows WHERE run_id = $1 ORDER BY window_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	windows := []models.Window{}
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		windows = append(windows, *w)
	}
	return windows, rows.Err()
}

func (s *PostgresStore) UpdateWindowStatus(ctx context.Context, runID uuid.UUID, windowID int, status models.WindowStatus, opts ...WindowUpdateOption) (*models.Window, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("update window status: invalid status %q", status)
	}
	params := newUpdateParams(opts)
	errMsg, errorAt, processedAt := statusColumns(status, params)

	w, err := scanWindow(s.pool.QueryRow(ctx,
		`UPDATE windows
		 SET status = $3, updated_at = $4, error_message = $5, error_at = $6,
		     processed_at = COALESCE($7, processed_at)
		 WHERE run_id = $1 AND window_id = $2 AND status = ANY($8)
		 RETURNING `+windowColumns,
		runID, windowID, string(status), params.At, errMsg, errorAt, processedAt, allowedFrom(status)))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update window status: %w", err)
	}

	// Nothing matched: either the window is missing or the transition is not allowed.
	current, err := s.GetWindow(ctx, runID, windowID)
	if err != nil {
		return nil, err
	}
	return nil, transitionError(current.Status, status)
}

// --- Analysis Results ---

func (s *PostgresStore) PutAnalysisResult(ctx context.Context, result *models.AnalysisResult) error {
	sections, patterns, err := marshalResultLists(result)
	if err != nil {
		return err
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_results (run_id, window_id, log_source, window_start, window_end, log_count,
		     analyzed_log_count, truncated, analysis, fallback, sections, patterns, provider, model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, $13, $14, $15)
		 ON CONFLICT (run_id, window_id) DO UPDATE SET
		     log_source = EXCLUDED.log_source,
		     window_start = EXCLUDED.window_start,
		     window_end = EXCLUDED.window_end,
		     log_count = EXCLUDED.log_count,
		     analyzed_log_count = EXCLUDED.analyzed_log_count,
		     truncated = EXCLUDED.truncated,
		     analysis = EXCLUDED.analysis,
		     fallback = EXCLUDED.fallback,
		     sections = EXCLUDED.sections,
		     patterns = EXCLUDED.patterns,
		     provider = EXCLUDED.provider,
		     model = EXCLUDED.model,
		     created_at = EXCLUDED.created_at`,
		result.RunID, result.WindowID, result.LogSource, result.WindowStart, result.WindowEnd,
		result.LogCount, result.AnalyzedLogCount, result.Truncated, result.Analysis, result.Fallback,
		string(sections), string(patterns), result.Provider, result.Model, result.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("put analysis result: window %s/%d: %w", result.RunID, result.WindowID, ErrNotFound)
		}
		return fmt.Errorf("put analysis result: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysisResult(ctx context.Context, runID uuid.UUID, windowID int) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	var sections, patterns []byte
	err := s.pool.QueryRow(ctx,
		`SELECT run_id, window_id, log_source, window_start, window_end, log_count, analyzed_log_count,
		     truncated, analysis, fallback, sections::text, patterns::text, provider, model, created_at
		 FROM analysis_results WHERE run_id = $1 AND window_id = $2`, runID, windowID,
	).Scan(&r.RunID, &r.WindowID, &r.LogSource, &r.WindowStart, &r.WindowEnd, &r.LogCount,
		&r.AnalyzedLogCount, &r.Truncated, &r.Analysis, &r.Fallback, &sections, &patterns,
		&r.Provider, &r.Model, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis result: %w", err)
	}
	if err := unmarshalResultLists(&r, sections, patterns); err != nil {
		return nil, err
	}
	r.WindowStart = r.WindowStart.UTC()
	r.WindowEnd = r.WindowEnd.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}

func normalizeRun(r *models.Run) {
	r.StartTime = r.StartTime.UTC()
	r.EndTime = r.EndTime.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
}

func normalizeWindow(w *models.Window) {
	w.StartTime = w.StartTime.UTC()
	w.EndTime = w.EndTime.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	if w.ProcessedAt != nil {
		t := w.ProcessedAt.UTC()
		w.ProcessedAt = &t
	}
	if w.ErrorAt != nil {
		t := w.ErrorAt.UTC()
		w.ErrorAt = &t
	}
}

var _ Store = (*PostgresStore)(nil)
