package upstream

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/johnayoung/go-oilprice-trend/internal/config"
	"github.com/johnayoung/go-oilprice-trend/internal/errors"
)

// retryTransport retries idempotent requests on transport errors, 429 and 5xx responses.
// When attempts run out on a bad status the last response is returned as-is so the
// caller still sees the upstream status.
type retryTransport struct {
	base    http.RoundTripper
	retrier *errors.Retrier
	logger  *slog.Logger
}

func newRetryTransport(base http.RoundTripper, policy config.RetryPolicyConfig, logger *slog.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	retrier := errors.NewRetrier(policy, logger)
	if retrier.MaxAttempts() <= 1 {
		return base
	}
	return &retryTransport{base: base, retrier: retrier, logger: logger}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return t.base.RoundTrip(req)
	}

	var (
		resp *http.Response
		last *http.Response
	)

	err := t.retrier.Retry(req.Context(), "upstream_round_trip", func() error {
		if last != nil {
			drainAndClose(last.Body)
			last = nil
		}

		r, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err != nil {
			return errors.Retryable(err)
		}

		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= http.StatusInternalServerError {
			last = r
			return errors.Retryable(fmt.Errorf("upstream returned status %d", r.StatusCode))
		}

		resp = r
		return nil
	})

	if err == nil {
		return resp, nil
	}
	if last != nil && req.Context().Err() == nil {
		return last, nil
	}
	if last != nil {
		drainAndClose(last.Body)
	}
	return nil, err
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
