package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logsweep/pkg/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements the Store interface on a single SQLite file, for
// runs that do not need a shared database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.Run, windows []models.Window) error {
	if err := validateRun(run, windows); err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, log_source, start_time, end_time, window_size_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.LogSource, formatTime(run.StartTime), formatTime(run.EndTime),
		run.WindowSize.Milliseconds(), formatTime(run.CreatedAt))
	if err != nil {
		if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO windows (run_id, window_id, start_time, end_time, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare create windows: %w", err)
	}
	defer stmt.Close()

	now := formatTime(run.CreatedAt)
	for _, w := range windows {
		if _, err := stmt.ExecContext(ctx, w.RunID.String(), w.ID,
			formatTime(w.StartTime), formatTime(w.EndTime), string(w.Status), now); err != nil {
			if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("create window %d: %w", w.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create run: %w", err)
	}
	for i := range windows {
		windows[i].UpdatedAt = run.CreatedAt
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var r models.Run
	var rid, start, end, created string
	var sizeMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, log_source, start_time, end_time, window_size_ms, created_at FROM runs WHERE id = ?`, id.String(),
	).Scan(&rid, &r.LogSource, &start, &end, &sizeMs, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if r.ID, err = uuid.Parse(rid); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := parseTimes(map[*time.Time]string{&r.StartTime: start, &r.EndTime: end, &r.CreatedAt: created}); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.WindowSize = time.Duration(sizeMs) * time.Millisecond
	return &r, nil
}

// --- Windows ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteWindow(row rowScanner) (*models.Window, error) {
	var w models.Window
	var runID, start, end, status, updated string
	var errMsg, processed, errAt sql.NullString
	if err := row.Scan(&runID, &w.ID, &start, &end, &status, &errMsg, &processed, &errAt, &updated); err != nil {
		return nil, err
	}
	var err error
	if w.RunID, err = uuid.Parse(runID); err != nil {
		return nil, err
	}
	if err := parseTimes(map[*time.Time]string{&w.StartTime: start, &w.EndTime: end, &w.UpdatedAt: updated}); err != nil {
		return nil, err
	}
	w.Status = models.WindowStatus(status)
	if errMsg.Valid {
		w.ErrorMessage = &errMsg.String
	}
	if w.ProcessedAt, err = parseNullTime(processed); err != nil {
		return nil, err
	}
	if w.ErrorAt, err = parseNullTime(errAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *SQLiteStore) GetWindow(ctx context.Context, runID uuid.UUID, windowID int) (*models.Window, error) {
	w, err := scanSQLiteWindow(s.db.QueryRowContext(ctx,
		`SELECT `+windowColumns+` FROM windows WHERE run_id = ? AND window_id = ?`, runID.String(), windowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get window: %w", err)
	}
	return w, nil
}

func (s *SQLiteStore) ListWindows(ctx context.Context, runID uuid.UUID) ([]models.Window, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+windowColumns+` FROM windows WHERE run_id = ? ORDER BY window_id`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	windows := []models.Window{}
	for rows.Next() {
		w, err := scanSQLiteWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		windows = append(windows, *w)
	}
	return windows, rows.Err()
}

func (s *SQLiteStore) UpdateWindowStatus(ctx context.Context, runID uuid.UUID, windowID int, status models.WindowStatus, opts ...WindowUpdateOption) (*models.Window, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("update window status: invalid status %q", status)
	}
	params := newUpdateParams(opts)
	errMsg, errorAt, processedAt := statusColumns(status, params)

	allowed := allowedFrom(status)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(allowed)), ", ")
	args := []any{string(status), formatTime(params.At), nullString(errMsg), nullTime(errorAt), nullTime(processedAt),
		runID.String(), windowID}
	for _, a := range allowed {
		args = append(args, a)
	}

	w, err := scanSQLiteWindow(s.db.QueryRowContext(ctx,
		`UPDATE windows
		 SET status = ?, updated_at = ?, error_message = ?, error_at = ?,
		     processed_at = COALESCE(?, processed_at)
		 WHERE run_id = ? AND window_id = ? AND status IN (`+placeholders+`)
		 RETURNING `+windowColumns, args...))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update window status: %w", err)
	}

	current, err := s.GetWindow(ctx, runID, windowID)
	if err != nil {
		return nil, err
	}
	return nil, transitionError(current.Status, status)
}

// --- Analysis Results ---

func (s *SQLiteStore) PutAnalysisResult(ctx context.Context, result *models.AnalysisResult) error {
	sections, patterns, err := marshalResultLists(result)
	if err != nil {
		return err
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_results (run_id, window_id, log_source, window_start, window_end, log_count,
		     analyzed_log_count, truncated, analysis, fallback, sections, patterns, provider, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, window_id) DO UPDATE SET
		     log_source = excluded.log_source,
		     window_start = excluded.window_start,
		     window_end = excluded.window_end,
		     log_count = excluded.log_count,
		     analyzed_log_count = excluded.analyzed_log_count,
		     truncated = excluded.truncated,
		     analysis = excluded.analysis,
		     fallback = excluded.fallback,
		     sections = excluded.sections,
		     patterns = excluded.patterns,
		     provider = excluded.provider,
		     model = excluded.model,
		     created_at = excluded.created_at`,
		result.RunID.String(), result.WindowID, result.LogSource, formatTime(result.WindowStart),
		formatTime(result.WindowEnd), result.LogCount, result.AnalyzedLogCount, result.Truncated,
		result.Analysis, result.Fallback, string(sections), string(patterns), result.Provider,
		result.Model, formatTime(result.CreatedAt))
	if err != nil {
		if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return fmt.Errorf("put analysis result: window %s/%d: %w", result.RunID, result.WindowID, ErrNotFound)
		}
		return fmt.Errorf("put analysis result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAnalysisResult(ctx context.Context, runID uuid.UUID, windowID int) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	var rid, start, end, created, sections, patterns string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, window_id, log_source, window_start, window_end, log_count, analyzed_log_count,
		     truncated, analysis, fallback, sections, patterns, provider, model, created_at
		 FROM analysis_results WHERE run_id = ? AND window_id = ?`, runID.String(), windowID,
	).Scan(&rid, &r.WindowID, &r.LogSource, &start, &end, &r.LogCount, &r.AnalyzedLogCount,
		&r.Truncated, &r.Analysis, &r.Fallback, &sections, &patterns, &r.Provider, &r.Model, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis result: %w", err)
	}
	if r.RunID, err = uuid.Parse(rid); err != nil {
		return nil, fmt.Errorf("get analysis result: %w", err)
	}
	if err := parseTimes(map[*time.Time]string{&r.WindowStart: start, &r.WindowEnd: end, &r.CreatedAt: created}); err != nil {
		return nil, fmt.Errorf("get analysis result: %w", err)
	}
	if err := unmarshalResultLists(&r, []byte(sections), []byte(patterns)); err != nil {
		return nil, err
	}
	return &r, nil
}

// --- helpers ---

const sqliteTimeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func parseTimes(fields map[*time.Time]string) error {
	for dst, v := range fields {
		t, err := time.Parse(sqliteTimeFormat, v)
		if err != nil {
			return fmt.Errorf("parse time %q: %w", v, err)
		}
		*dst = t.UTC()
	}
	return nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(sqliteTimeFormat, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", v.String, err)
	}
	t = t.UTC()
	return &t, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func isSQLiteConstraint(err error, code int) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == code
	}
	return false
}

var _ Store = (*SQLiteStore)(nil)
