package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/logsweep/internal/ai"
	"github.com/kiranshivaraju/logsweep/internal/archive"
	"github.com/kiranshivaraju/logsweep/internal/cache"
	"github.com/kiranshivaraju/logsweep/internal/config"
	"github.com/kiranshivaraju/logsweep/internal/fetch"
	"github.com/kiranshivaraju/logsweep/internal/loki"
	"github.com/kiranshivaraju/logsweep/internal/processor"
	"github.com/kiranshivaraju/logsweep/internal/retry"
	"github.com/kiranshivaraju/logsweep/internal/run"
	"github.com/kiranshivaraju/logsweep/internal/store"
	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// app holds the wired components shared by the commands.
type app struct {
	store     store.Store
	cache     cache.Cache
	redis     *cache.RedisCache
	loki      *loki.HTTPClient
	provider  models.AIProvider
	processor *processor.Processor
	runs      *run.Service
}

// newApp connects every dependency named in c. Optional ones (Redis, the
// archive) fall back to no-op implementations when unset.
func newApp(ctx context.Context, c *config.Config) (*app, error) {
	policy := retry.Policy{
		Attempts:  c.Retry.Attempts,
		BaseDelay: c.Retry.BaseDelay,
		MaxDelay:  c.Retry.MaxDelay,
	}

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("store connected", "driver", c.Store.Driver)

	a := &app{store: st, cache: cache.Nop{}}

	if c.Redis.URL != "" {
		rc, err := cache.NewRedisCache(c.Redis.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			a.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.cache, a.redis = rc, rc
		slog.Info("redis connected")
	}

	var arc archive.Archive = archive.Nop{}
	if c.Archive.Enabled() {
		ma, err := archive.New(ctx, archive.Config{
			Endpoint:  c.Archive.Endpoint,
			Bucket:    c.Archive.Bucket,
			AccessKey: c.Archive.AccessKey,
			SecretKey: c.Archive.SecretKey,
			Region:    c.Archive.Region,
			UseSSL:    c.Archive.UseSSL,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create archive: %w", err)
		}
		arc = ma
		slog.Info("archive enabled", "endpoint", c.Archive.Endpoint, "bucket", c.Archive.Bucket)
	}

	a.provider, err = ai.NewProvider(c.AI, policy)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", a.provider.Name(), "model", a.provider.Model())

	a.loki = loki.NewHTTPClient(c.Loki.BaseURL, c.Loki.Username, c.Loki.Password, c.Loki.OrgID, c.Loki.Timeout,
		loki.WithRetry(policy),
		loki.WithFilter(c.Loki.Levels, c.Loki.Keyword),
		loki.WithMaxEntries(c.Loki.MaxEntries),
	)
	fetcher := fetch.New(a.loki, fetch.Config{
		MaxSpan:     c.Fetch.MaxQuerySpan,
		PageLimit:   c.Fetch.PageLimit,
		Concurrency: c.Fetch.Concurrency,
	})

	a.processor = processor.New(st, fetcher, a.provider, processor.Config{
		MaxChars:         c.Condense.MaxChars,
		MaxOutputTokens:  c.AI.MaxOutputTokens,
		InferenceTimeout: c.AI.InferenceTimeout,
	}, processor.WithArchive(arc), processor.WithCache(a.cache))
	a.runs = run.NewService(st, nil)

	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.store.Close()
}
