package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/logsweep/internal/ai/mock"
	"github.com/kiranshivaraju/logsweep/internal/api"
	"github.com/kiranshivaraju/logsweep/internal/api/handler"
	"github.com/kiranshivaraju/logsweep/internal/cache"
	"github.com/kiranshivaraju/logsweep/internal/loki"
	"github.com/kiranshivaraju/logsweep/internal/processor"
	"github.com/kiranshivaraju/logsweep/internal/run"
	"github.com/kiranshivaraju/logsweep/internal/store"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fetchFunc func(ctx context.Context, sourceID string, start, end time.Time) ([]models.LogEvent, error)

func (f fetchFunc) Fetch(ctx context.Context, sourceID string, start, end time.Time) ([]models.LogEvent, error) {
	return f(ctx, sourceID, start, end)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

// ─── test server ─────────────────────────────────────────────────────────────

type testServer struct {
	server   *httptest.Server
	store    store.Store
	provider *mock.MockProvider
	fetchErr error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	path := filepath.Join(t.TempDir(), "logsweep.db")
	require.NoError(t, store.RunSQLiteMigrations(path))
	db, err := store.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	st := store.NewSQLiteStore(db)
	t.Cleanup(st.Close)

	ts := &testServer{store: st, provider: mock.NewMockProvider("OVERALL HEALTH STATUS:\n- healthy")}
	fetcher := fetchFunc(func(_ context.Context, _ string, start, _ time.Time) ([]models.LogEvent, error) {
		if ts.fetchErr != nil {
			return nil, ts.fetchErr
		}
		return []models.LogEvent{{Timestamp: start.Add(time.Minute), Message: "GET /health 200", Level: "info"}}, nil
	})

	svc := run.NewService(st, nil)
	proc := processor.New(st, fetcher, ts.provider, processor.DefaultConfig())

	router := api.NewRouter(api.Dependencies{
		HealthHandler:    handler.NewHealthHandler(st, cache.Nop{}),
		CreateRunHandler: handler.NewCreateRunHandler(svc),
		RunStatusHandler: handler.NewRunStatusHandler(svc),
		ProcessHandler:   handler.NewProcessWindowHandler(proc),
		ResultHandler:    handler.NewGetResultHandler(st),
	})
	ts.server = httptest.NewServer(router)
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (ts *testServer) createRun(t *testing.T, body any) (uuid.UUID, map[string]any) {
	t.Helper()
	code, out := ts.do(t, "POST", "/api/v1/runs", body)
	require.Equal(t, http.StatusCreated, code, out)
	data := out["data"].(map[string]any)
	runObj := data["run"].(map[string]any)
	return uuid.MustParse(runObj["id"].(string)), data
}

func errCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

// ─── health ──────────────────────────────────────────────────────────────────

func TestHealth_200_AllOK(t *testing.T) {
	ts := newTestServer(t)
	code, body := ts.do(t, "GET", "/api/v1/health", nil)

	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "ok", data["store"])
}

func TestHealth_503_CacheDown(t *testing.T) {
	rec := httptest.NewRecorder()
	handler.NewHealthHandler(cache.Nop{}, downPinger{}).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", errCode(body))
}

// ─── runs ────────────────────────────────────────────────────────────────────

func TestCreateRun_201_WithWindows(t *testing.T) {
	ts := newTestServer(t)
	_, data := ts.createRun(t, map[string]any{
		"log_source":        "prod/payments-api",
		"days_to_analyze":   2,
		"window_size_hours": 4,
	})

	windows := data["windows"].([]any)
	assert.Len(t, windows, 12)
	first := windows[0].(map[string]any)
	assert.Equal(t, "pending", first["status"])
	assert.Equal(t, float64(0), first["window_id"])
}

func TestCreateRun_201_Defaults(t *testing.T) {
	ts := newTestServer(t)
	_, data := ts.createRun(t, map[string]any{"log_source": "payments-api"})
	assert.Len(t, data["windows"].([]any), 6)
}

func TestCreateRun_400(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing source", map[string]any{"days_to_analyze": 1}},
		{"negative window", map[string]any{"log_source": "api", "window_size_hours": -1}},
		{"not json", "not-an-object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := ts.do(t, "POST", "/api/v1/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "INVALID_REQUEST", errCode(body))
		})
	}
}

func TestRunStatus_200_Counts(t *testing.T) {
	ts := newTestServer(t)
	runID, _ := ts.createRun(t, map[string]any{"log_source": "api"})

	code, _ := ts.do(t, "POST", fmt.Sprintf("/api/v1/runs/%s/windows/0/process", runID), nil)
	require.Equal(t, http.StatusOK, code)

	code, body := ts.do(t, "GET", "/api/v1/runs/"+runID.String(), nil)
	assert.Equal(t, http.StatusOK, code)
	counts := body["data"].(map[string]any)["counts"].(map[string]any)
	assert.Equal(t, float64(1), counts["completed"])
	assert.Equal(t, float64(5), counts["pending"])
}

func TestRunStatus_404(t *testing.T) {
	ts := newTestServer(t)
	code, body := ts.do(t, "GET", "/api/v1/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "RUN_NOT_FOUND", errCode(body))
}

func TestRunStatus_400_BadID(t *testing.T) {
	ts := newTestServer(t)
	code, body := ts.do(t, "GET", "/api/v1/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", errCode(body))
}

// ─── process & result ────────────────────────────────────────────────────────

func TestProcess_200_Summary(t *testing.T) {
	ts := newTestServer(t)
	runID, _ := ts.createRun(t, map[string]any{"log_source": "api"})

	code, body := ts.do(t, "POST", fmt.Sprintf("/api/v1/runs/%s/windows/2/process", runID), map[string]any{"log_source": "api"})
	require.Equal(t, http.StatusOK, code, body)

	data := body["data"].(map[string]any)
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, float64(1), data["log_count"])
	assert.Equal(t, float64(8), data["analysis_sections"])

	code, body = ts.do(t, "GET", fmt.Sprintf("/api/v1/runs/%s/windows/2/result", runID), nil)
	require.Equal(t, http.StatusOK, code)
	res := body["data"].(map[string]any)
	assert.Equal(t, "OVERALL HEALTH STATUS:\n- healthy", res["analysis"])
	assert.Equal(t, "mock", res["provider"])
}

func TestProcess_404_WindowNotFound(t *testing.T) {
	ts := newTestServer(t)
	runID, _ := ts.createRun(t, map[string]any{"log_source": "api"})

	code, body := ts.do(t, "POST", fmt.Sprintf("/api/v1/runs/%s/windows/99/process", runID), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "WINDOW_NOT_FOUND", errCode(body))
}

func TestProcess_502_LogStoreError(t *testing.T) {
	ts := newTestServer(t)
	ts.fetchErr = fmt.Errorf("%w: connection refused", loki.ErrLokiUnreachable)
	runID, _ := ts.createRun(t, map[string]any{"log_source": "api"})

	code, body := ts.do(t, "POST", fmt.Sprintf("/api/v1/runs/%s/windows/1/process", runID), nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "LOG_STORE_ERROR", errCode(body))

	// The response message and the recorded window error agree.
	w, err := ts.store.GetWindow(context.Background(), runID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.WindowStatusError, w.Status)
	require.NotNil(t, w.ErrorMessage)
	assert.Equal(t, *w.ErrorMessage, body["error"].(map[string]any)["message"])
}

func TestProcess_502_InferenceError(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.GenerateFunc = func(context.Context, string, int) (string, error) {
		return "", models.ErrInferenceTimeout
	}
	runID, _ := ts.createRun(t, map[string]any{"log_source": "api"})

	code, body := ts.do(t, "POST", fmt.Sprintf("/api/v1/runs/%s/windows/0/process", runID), nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "INFERENCE_ERROR", errCode(body))
}

func TestProcess_400_BadWindowID(t *testing.T) {
	ts := newTestServer(t)
	code, body := ts.do(t, "POST", fmt.Sprintf("/api/v1/runs/%s/windows/abc/process", uuid.New()), nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", errCode(body))
}

func TestResult_404_NotProcessed(t *testing.T) {
	ts := newTestServer(t)
	runID, _ := ts.createRun(t, map[string]any{"log_source": "api"})

	code, body := ts.do(t, "GET", fmt.Sprintf("/api/v1/runs/%s/windows/0/result", runID), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "RESULT_NOT_FOUND", errCode(body))
}

// ─── response format ─────────────────────────────────────────────────────────

func TestResponseFormat_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, "GET", "/api/v1/runs/"+uuid.NewString(), nil)

	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, errObj["code"])
	assert.NotEmpty(t, errObj["message"])
	_, hasData := body["data"]
	assert.False(t, hasData)
}
