package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/johnayoung/go-oilprice-trend/internal/config"
	"github.com/johnayoung/go-oilprice-trend/internal/errors"
	"github.com/johnayoung/go-oilprice-trend/internal/metrics"
	"github.com/johnayoung/go-oilprice-trend/internal/models"
)

const (
	// Upper bound on the upstream body we are willing to buffer
	maxResponseBytes = 32 << 20

	// Health check configuration
	healthCheckTimeout = 5 * time.Second
)

// Fetcher retrieves the price series from the upstream feed with a single GET
// to the configured base URL. It never retries on its own; a retry policy, when
// configured, lives in the HTTP transport.
type Fetcher struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	clientName  string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxBody     int64
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithMaxBodyBytes caps the upstream body size; larger bodies are rejected.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// WithTransport replaces the base HTTP transport. The retry policy still wraps it.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.httpClient.Transport = rt }
}

// NewFetcher creates a fetcher for the configured upstream.
func NewFetcher(cfg config.UpstreamConfig, logger *slog.Logger, opts ...Option) (*Fetcher, error) {
	if cfg.URL == "" {
		return nil, errors.New(errors.ErrorTypeConfiguration, "upstream", "new_fetcher", "upstream URL is required")
	}
	if cfg.ClientName == "" {
		return nil, errors.New(errors.ErrorTypeConfiguration, "upstream", "new_fetcher", "upstream client name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout(),
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: newRateLimiter(cfg.RateLimit),
		baseURL:     cfg.URL,
		clientName:  cfg.ClientName,
		logger:      logger.With(slog.String("client", cfg.ClientName)),
		maxBody:     maxResponseBytes,
	}

	for _, opt := range opts {
		opt(f)
	}
	f.httpClient.Transport = newRetryTransport(f.httpClient.Transport, cfg.RetryPolicy, f.logger)

	return f, nil
}

// newRateLimiter allows perMinute requests per minute; zero or less disables limiting.
func newRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// FetchPrices implements PriceProvider.
func (f *Fetcher) FetchPrices(ctx context.Context, start, end time.Time) (models.PriceSeries, error) {
	if err := CheckRange("upstream", start, end); err != nil {
		return nil, err
	}

	series, err := f.fetchSeries(ctx)
	if err != nil {
		return nil, err
	}

	filtered := series.Between(start, end)
	f.logger.Debug("filtered upstream series",
		"start", models.FormatDate(start),
		"end", models.FormatDate(end),
		"total_points", len(series),
		"matched_points", len(filtered))

	return filtered, nil
}

// HealthCheck implements HealthChecker.
func (f *Fetcher) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if _, err := f.get(healthCtx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	f.logger.Debug("health check passed")
	return nil
}

// fetchSeries downloads and parses the full upstream series.
func (f *Fetcher) fetchSeries(ctx context.Context) (models.PriceSeries, error) {
	started := time.Now()

	body, err := f.get(ctx)
	if err == nil {
		var series models.PriceSeries
		series, err = parseSeries(body)
		if err == nil {
			f.metrics.RecordUpstreamFetch("ok", time.Since(started))
			f.logger.Debug("fetched upstream series",
				"points", len(series),
				"bytes", len(body),
				"duration", time.Since(started))
			return series, nil
		}
	}

	f.metrics.RecordUpstreamFetch(string(errors.GetErrorType(err)), time.Since(started))
	f.logger.Warn("upstream fetch failed",
		"error", err,
		"duration", time.Since(started))
	return nil, err
}

// get performs the single GET against the base URL and returns the body of a 2xx response.
func (f *Fetcher) get(ctx context.Context) ([]byte, error) {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return nil, errors.UpstreamUnavailable("rate_limit_wait", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL, nil)
	if err != nil {
		return nil, errors.UpstreamUnavailable("build_request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.clientName)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errors.UpstreamUnavailable("get", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	// One byte past the cap tells a body that fits exactly from one that was cut off.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, errors.UpstreamUnavailable("read_body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.UpstreamUnavailable("get", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(body)))
	}
	if int64(len(body)) > f.maxBody {
		return nil, errors.MalformedUpstream("read_body", fmt.Errorf("response body exceeds the %d byte limit", f.maxBody))
	}

	return body, nil
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
