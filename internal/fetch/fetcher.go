// Package fetch retrieves every log event of a window from a LogSource,
// splitting the window into sub-chunks no wider than the store's maximum
// queryable span and draining each sub-chunk's continuation tokens.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Config controls how a window is split and paged.
type Config struct {
	// MaxSpan is the widest time range sent in a single query.
	MaxSpan time.Duration
	// PageLimit is the maximum number of events requested per page.
	PageLimit int
	// Concurrency is how many sub-chunks are drained at once. 1 is sequential.
	Concurrency int
}

// DefaultConfig returns a one-day span, 10000 events per page, sequential chunks.
func DefaultConfig() Config {
	return Config{MaxSpan: 24 * time.Hour, PageLimit: 10000, Concurrency: 1}
}

// Chunk is one sub-range [Start, End) of a window.
type Chunk struct {
	Start time.Time
	End   time.Time
}

// Fetcher reads windows of logs. It holds no per-window state and is safe
// for concurrent use.
type Fetcher struct {
	source models.LogSource
	cfg    Config
}

// New creates a Fetcher. Zero fields of cfg take their DefaultConfig values.
func New(source models.LogSource, cfg Config) *Fetcher {
	def := DefaultConfig()
	if cfg.MaxSpan <= 0 {
		cfg.MaxSpan = def.MaxSpan
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = def.PageLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Fetcher{source: source, cfg: cfg}
}

// Fetch returns all events for sourceID in [start, end). Events are
// concatenated in chunk order and, within a chunk, in the order the store
// returned them. Query failures are returned as-is; the caller owns retry
// policy above the transport.
func (f *Fetcher) Fetch(ctx context.Context, sourceID string, start, end time.Time) ([]models.LogEvent, error) {
	chunks := Split(start, end, f.cfg.MaxSpan)
	if len(chunks) == 0 {
		return []models.LogEvent{}, nil
	}

	results := make([][]models.LogEvent, len(chunks))

	if f.cfg.Concurrency == 1 || len(chunks) == 1 {
		for i, c := range chunks {
			events, err := f.drain(ctx, sourceID, c)
			if err != nil {
				return nil, err
			}
			results[i] = events
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.cfg.Concurrency)
		for i, c := range chunks {
			g.Go(func() error {
				events, err := f.drain(gctx, sourceID, c)
				if err != nil {
					return err
				}
				results[i] = events
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	all := make([]models.LogEvent, 0, total)
	for _, r := range results {
		all = append(all, r...)
	}

	slog.Debug("window fetched",
		"log_source", sourceID,
		"chunks", len(chunks),
		"events", len(all),
	)
	return all, nil
}

// drain pages through one chunk. Tokens are only valid for the chunk that
// produced them, so the loop is strictly sequential.
func (f *Fetcher) drain(ctx context.Context, sourceID string, c Chunk) ([]models.LogEvent, error) {
	var events []models.LogEvent
	token := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := f.source.Query(ctx, models.LogQuery{
			SourceID: sourceID,
			Start:    c.Start,
			End:      c.End,
			Token:    token,
			Limit:    f.cfg.PageLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("querying %s [%s, %s) page %d: %w",
				sourceID, c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339), page, err)
		}
		events = append(events, res.Events...)
		if res.NextToken == "" {
			return events, nil
		}
		if res.NextToken == token {
			return nil, fmt.Errorf("querying %s: store repeated continuation token %q", sourceID, token)
		}
		token = res.NextToken
	}
}

// Split partitions [start, end) into consecutive chunks no wider than maxSpan.
// The last chunk ends exactly at end.
func Split(start, end time.Time, maxSpan time.Duration) []Chunk {
	if !end.After(start) || maxSpan <= 0 {
		return nil
	}
	var chunks []Chunk
	for cur := start; cur.Before(end); {
		next := cur.Add(maxSpan)
		if next.After(end) {
			next = end
		}
		chunks = append(chunks, Chunk{Start: cur, End: next})
		cur = next
	}
	return chunks
}
