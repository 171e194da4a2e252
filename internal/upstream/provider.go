// Package upstream defines the price provider capability and its HTTP implementation.
//
// A PriceProvider answers inclusive date-range queries over the daily oil price
// series. The Fetcher in this package talks to the configured upstream feed;
// the cache package decorates any PriceProvider with a read-through cache.
package upstream

import (
	"context"
	"time"

	"github.com/johnayoung/go-oilprice-trend/internal/errors"
	"github.com/johnayoung/go-oilprice-trend/internal/models"
)

// PriceProvider retrieves the daily price series for a date range.
//
// Implementations must:
//   - reject start after end, or a zero date, with an invalid_range error before any I/O
//   - return only points whose date is within [start, end], both ends inclusive
//   - preserve the upstream order of points
//   - return an empty series, not an error, when nothing falls in the range
type PriceProvider interface {
	FetchPrices(ctx context.Context, start, end time.Time) (models.PriceSeries, error)
}

// HealthChecker reports whether a provider can currently reach its data source.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckRange enforces the range preconditions shared by every provider.
// Dates are compared as calendar dates.
func CheckRange(component string, start, end time.Time) error {
	if models.DateOf(start).After(models.DateOf(end)) {
		return errors.InvalidRange(component, "start date must be less than or equal to end date")
	}
	if start.IsZero() || end.IsZero() {
		return errors.InvalidRange(component, "start and end dates must be valid dates")
	}
	return nil
}
