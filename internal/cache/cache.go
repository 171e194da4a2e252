// Package cache provides a read-through cache in front of a price provider.
//
// The cache holds a single snapshot of the whole price history under one key.
// A miss fetches the maximal window once, stores it for the configured TTL and
// answers every caller by filtering that snapshot. Refresh is lazy: nothing
// happens until a request finds the entry missing or expired.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/johnayoung/go-oilprice-trend/internal/config"
	"github.com/johnayoung/go-oilprice-trend/internal/errors"
	"github.com/johnayoung/go-oilprice-trend/internal/metrics"
	"github.com/johnayoung/go-oilprice-trend/internal/models"
	"github.com/johnayoung/go-oilprice-trend/internal/upstream"
)

// Key is the only key the cache ever uses.
const Key = "OilPriceData"

// Maximal window fetched on population, relative to today.
const (
	windowYearsBack    = 200
	windowYearsForward = 1
)

// Stats counts cache activity since construction.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Populations int64 `json:"populations"`
}

// CachingProvider decorates a PriceProvider with a read-through cache.
type CachingProvider struct {
	inner        upstream.PriceProvider
	store        Store
	group        singleflight.Group
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics

	hits        atomic.Int64
	misses      atomic.Int64
	populations atomic.Int64
}

// Option customizes a CachingProvider.
type Option func(*CachingProvider)

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(c *CachingProvider) { c.store = s }
}

// WithClock sets the time source used for expiry and for the population window.
func WithClock(now func() time.Time) Option {
	return func(c *CachingProvider) { c.now = now }
}

// WithMetrics records cache activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *CachingProvider) { c.metrics = m }
}

// NewCachingProvider wraps inner. cfg must have a positive duration; callers
// use inner directly when caching is disabled.
func NewCachingProvider(inner upstream.PriceProvider, cfg config.CacheConfig, logger *slog.Logger, opts ...Option) (*CachingProvider, error) {
	if inner == nil {
		return nil, errors.New(errors.ErrorTypeConfiguration, "cache", "new", "inner provider is required")
	}
	if !cfg.Enabled() {
		return nil, errors.New(errors.ErrorTypeConfiguration, "cache", "new",
			fmt.Sprintf("cache duration must be positive, got %dms", cfg.DurationMS))
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &CachingProvider{
		inner:        inner,
		ttl:          cfg.TTL(),
		fetchTimeout: cfg.FetchTimeoutDuration(),
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore(c.now)
	}

	return c, nil
}

// FetchPrices implements upstream.PriceProvider.
func (c *CachingProvider) FetchPrices(ctx context.Context, start, end time.Time) (models.PriceSeries, error) {
	if err := upstream.CheckRange("cache", start, end); err != nil {
		return nil, err
	}

	series, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	return series.Between(start, end), nil
}

// Preload populates the cache with the maximal window unless a live entry exists.
func (c *CachingProvider) Preload(ctx context.Context) error {
	_, err := c.populate(ctx)
	return err
}

// Window returns the maximal range fetched on population: today minus 200 years to today plus 1 year.
func (c *CachingProvider) Window() (time.Time, time.Time) {
	today := models.DateOf(c.now())
	return today.AddDate(-windowYearsBack, 0, 0), today.AddDate(windowYearsForward, 0, 0)
}

// Stats returns a copy of the activity counters.
func (c *CachingProvider) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Populations: c.populations.Load(),
	}
}

// snapshot returns the full cached series, populating on a miss.
func (c *CachingProvider) snapshot(ctx context.Context) (models.PriceSeries, error) {
	entry, ok, err := c.store.Get(ctx, Key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("cache read failed, treating as miss", "key", Key, "error", err)
	}

	if ok {
		c.hits.Add(1)
		c.metrics.RecordCacheLookup(true)
		c.logger.Debug("cache hit", "key", Key, "expires_at", entry.ExpiresAt)
		return entry.Series, nil
	}

	c.misses.Add(1)
	c.metrics.RecordCacheLookup(false)
	c.logger.Debug("cache miss", "key", Key)

	return c.populate(ctx)
}

// populate fetches the maximal window at most once per miss. Concurrent callers
// share the in-flight fetch; a caller whose ctx ends stops waiting without
// cancelling the fetch for the others.
func (c *CachingProvider) populate(ctx context.Context) (models.PriceSeries, error) {
	detached := context.WithoutCancel(ctx)

	ch := c.group.DoChan(Key, func() (v interface{}, err error) {
		// singleflight re-panics on its own goroutine, out of reach of any caller's recover.
		defer func() {
			if r := recover(); r != nil {
				err = errors.New(errors.ErrorTypeInternal, "cache", "populate", fmt.Sprintf("price provider panicked: %v", r))
				c.metrics.RecordCachePopulation(0, err)
				c.logger.Error("cache population panicked", "key", Key, "panic", r)
				v = nil
			}
		}()

		// A flight that finished just before this one started may already have stored a fresh entry.
		if entry, ok, err := c.store.Get(detached, Key); err == nil && ok {
			return entry.Series, nil
		}

		fetchCtx, cancel := context.WithTimeout(detached, c.fetchTimeout)
		defer cancel()

		start, end := c.Window()
		started := time.Now()
		series, err := c.inner.FetchPrices(fetchCtx, start, end)
		c.metrics.RecordCachePopulation(len(series), err)
		if err != nil {
			c.logger.Error("cache population failed",
				"key", Key,
				"error", err,
				"duration", time.Since(started))
			return nil, err
		}

		now := c.now()
		entry := Entry{Series: series, StoredAt: now, ExpiresAt: now.Add(c.ttl)}
		if err := c.store.Set(detached, Key, entry); err != nil {
			c.logger.Warn("cache write failed", "key", Key, "error", err)
		}
		c.populations.Add(1)

		attrs := []interface{}{
			"key", Key,
			"duration_ms", c.ttl.Milliseconds(),
			"points", len(series),
			"fetch_duration", time.Since(started),
		}
		if first, last, ok := series.Span(); ok {
			attrs = append(attrs, "first_date", models.FormatDate(first), "last_date", models.FormatDate(last))
		}
		c.logger.Info(fmt.Sprintf("data cached for %d milliseconds", c.ttl.Milliseconds()), attrs...)

		return series, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(models.PriceSeries), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
