package loki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/logsweep/internal/retry"
	"github.com/kiranshivaraju/logsweep/pkg/logql"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Sentinel errors for Loki client failures.
var (
	ErrLokiUnreachable = errors.New("loki unreachable")
	ErrLokiQueryError  = errors.New("loki query error")
	ErrLokiTimeout     = errors.New("loki query timeout")
	ErrInvalidToken    = errors.New("invalid continuation token")
)

const (
	// DefaultPageLimit is the page size used when a query names none.
	DefaultPageLimit = 5000
	// DefaultMaxEntries matches Loki's default max_entries_limit_per_query.
	DefaultMaxEntries = 5000
)

// Client is the interface for querying Loki.
type Client interface {
	Query(ctx context.Context, q models.LogQuery) (models.LogPage, error)
	QueryRange(ctx context.Context, req QueryRangeRequest) ([]models.LogEvent, error)
	Labels(ctx context.Context) ([]string, error)
	LabelValues(ctx context.Context, label string) ([]string, error)
	Ready(ctx context.Context) error
}

// QueryRangeRequest defines parameters for a Loki range query.
type QueryRangeRequest struct {
	Query     string
	Start     time.Time
	End       time.Time
	Limit     int
	Direction string
}

// HTTPClient implements Client using Loki's HTTP API.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	orgID    string
	levels   []string
	keyword  string
	policy   retry.Policy
	client   *http.Client

	// maxEntries caps the limit sent on any single request.
	maxEntries int
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithRetry sets the transport retry policy applied to Query.
func WithRetry(p retry.Policy) Option {
	return func(c *HTTPClient) { c.policy = p }
}

// WithFilter restricts window queries to the given levels and line keyword.
func WithFilter(levels []string, keyword string) Option {
	return func(c *HTTPClient) {
		c.levels = levels
		c.keyword = keyword
	}
}

// WithMaxEntries sets the server's max_entries_limit_per_query. No request
// asks Loki for more entries than this.
func WithMaxEntries(n int) Option {
	return func(c *HTTPClient) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// NewHTTPClient creates a new Loki HTTP client.
func NewHTTPClient(baseURL, username, password, orgID string, timeout time.Duration, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		orgID:    orgID,
		policy:   retry.DefaultPolicy(),
		client:   &http.Client{Timeout: timeout},

		maxEntries: DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.Retryable == nil {
		c.policy.Retryable = isTransient
	}
	return c
}

// Query returns one page of events for q.SourceID in [q.Start, q.End).
//
// Loki has no server-side cursor, so pages are read in forward order and the
// continuation token records the timestamp of the last returned entry plus
// how many entries at that exact timestamp were already handed out. The next
// call restarts at that timestamp and skips those entries, so it asks for
// the skipped entries on top of the page, never exceeding maxEntries. A page
// shorter than the request ends the span. If more than maxEntries entries
// share one nanosecond the cursor moves past that timestamp and the excess
// is dropped.
func (c *HTTPClient) Query(ctx context.Context, q models.LogQuery) (models.LogPage, error) {
	cur, err := parseToken(q.Token)
	if err != nil {
		return models.LogPage{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	limit = min(limit, c.maxEntries)

	start := q.Start
	if cur.valid {
		start = time.Unix(0, cur.ts).UTC()
	}
	fetchLimit := min(limit+cur.skip, c.maxEntries)

	query := logql.QueryBuilder{}.BuildSourceQuery(logql.SourceParams{
		Source:  q.SourceID,
		Levels:  c.levels,
		Keyword: c.keyword,
	})

	lines, err := retry.Do(ctx, c.policy, func(ctx context.Context) ([]models.LogEvent, error) {
		return c.QueryRange(ctx, QueryRangeRequest{
			Query:     query,
			Start:     start,
			End:       q.End,
			Limit:     fetchLimit,
			Direction: "forward",
		})
	})
	if err != nil {
		return models.LogPage{}, err
	}

	// Streams arrive grouped; the cursor needs one global time order.
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Timestamp.Before(lines[j].Timestamp)
	})

	events := make([]models.LogEvent, 0, len(lines))
	skipped := 0
	for _, l := range lines {
		if cur.valid && skipped < cur.skip && l.Timestamp.UnixNano() == cur.ts {
			skipped++
			continue
		}
		events = append(events, l)
	}

	page := models.LogPage{Events: events}
	if len(lines) < fetchLimit {
		return page, nil
	}
	if len(events) == 0 {
		// The whole page sat at the cursor timestamp.
		slog.Warn("loki entries at one timestamp exceed max entries per query, skipping the rest",
			"source", q.SourceID, "timestamp", cur.ts, "max_entries", c.maxEntries)
		page.NextToken = formatToken(cur.ts+1, 0)
		return page, nil
	}

	last := events[len(events)-1].Timestamp.UnixNano()
	n := 0
	for i := len(events) - 1; i >= 0 && events[i].Timestamp.UnixNano() == last; i-- {
		n++
	}
	if cur.valid && last == cur.ts {
		n += cur.skip
	}
	page.NextToken = formatToken(last, n)
	return page, nil
}

func (c *HTTPClient) QueryRange(ctx context.Context, req QueryRangeRequest) ([]models.LogEvent, error) {
	direction := req.Direction
	if direction == "" {
		direction = "backward"
	}

	params := url.Values{
		"query":     {req.Query},
		"start":     {strconv.FormatInt(req.Start.UnixNano(), 10)},
		"end":       {strconv.FormatInt(req.End.UnixNano(), 10)},
		"direction": {direction},
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}

	u := fmt.Sprintf("%s/loki/api/v1/query_range?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	var lokiResp lokiQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&lokiResp); err != nil {
		return nil, fmt.Errorf("%w: decoding loki response: %v", ErrLokiQueryError, err)
	}

	return parseStreams(lokiResp.Data.Result), nil
}

func (c *HTTPClient) Labels(ctx context.Context) ([]string, error) {
	return c.getStrings(ctx, fmt.Sprintf("%s/loki/api/v1/labels", c.baseURL), "labels")
}

func (c *HTTPClient) LabelValues(ctx context.Context, label string) ([]string, error) {
	return c.getStrings(ctx, fmt.Sprintf("%s/loki/api/v1/label/%s/values", c.baseURL, url.PathEscape(label)), "label values")
}

func (c *HTTPClient) getStrings(ctx context.Context, u, what string) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrLokiQueryError, resp.StatusCode)
	}

	var labelsResp lokiLabelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&labelsResp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", what, err)
	}

	return labelsResp.Data, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/ready", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLokiUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: loki not ready (status %d)", ErrLokiUnreachable, resp.StatusCode)
	}

	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if c.orgID != "" {
		req.Header.Set("X-Scope-OrgID", c.orgID)
	}
}

// statusError maps a non-200 response. Client errors other than 429 will not
// succeed on a second attempt and are marked permanent.
func statusError(code int) error {
	err := fmt.Errorf("%w: status %d", ErrLokiQueryError, code)
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

// isTransient reports whether a Loki failure is worth retrying.
func isTransient(err error) bool {
	return errors.Is(err, ErrLokiUnreachable) ||
		errors.Is(err, ErrLokiTimeout) ||
		errors.Is(err, ErrLokiQueryError)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrLokiTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrLokiTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrLokiUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrLokiUnreachable, err)
}

// parseStreams converts Loki stream results into LogEvent slices.
func parseStreams(streams []lokiStream) []models.LogEvent {
	var lines []models.LogEvent
	for _, stream := range streams {
		level := stream.Stream["level"]
		for _, v := range stream.Values {
			ts, _ := strconv.ParseInt(v[0], 10, 64)
			lines = append(lines, models.LogEvent{
				Timestamp: time.Unix(0, ts).UTC(),
				Message:   v[1],
				Labels:    stream.Stream,
				Level:     level,
			})
		}
	}
	if lines == nil {
		return []models.LogEvent{}
	}
	return lines
}

// --- continuation tokens ---

type cursor struct {
	valid bool
	ts    int64
	skip  int
}

func formatToken(ts int64, skip int) string {
	return strconv.FormatInt(ts, 10) + ":" + strconv.Itoa(skip)
}

func parseToken(tok string) (cursor, error) {
	if tok == "" {
		return cursor{}, nil
	}
	tsPart, skipPart, ok := strings.Cut(tok, ":")
	if !ok {
		return cursor{}, fmt.Errorf("%w: %q", ErrInvalidToken, tok)
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: %q", ErrInvalidToken, tok)
	}
	skip, err := strconv.Atoi(skipPart)
	if err != nil || skip < 0 {
		return cursor{}, fmt.Errorf("%w: %q", ErrInvalidToken, tok)
	}
	return cursor{valid: true, ts: ts, skip: skip}, nil
}

// --- Loki response types ---

type lokiQueryResponse struct {
	Data lokiData `json:"data"`
}

type lokiData struct {
	ResultType string       `json:"resultType"`
	Result     []lokiStream `json:"result"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiLabelsResponse struct {
	Status string   `json:"status"`
	Data   []string `json:"data"`
}

// Compile-time checks.
var (
	_ Client           = (*HTTPClient)(nil)
	_ models.LogSource = (*HTTPClient)(nil)
)
