package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-oilprice-trend/internal/models"
)

// generateBenchSeries builds one point per day starting at from.
func generateBenchSeries(from time.Time, days int) models.PriceSeries {
	series := make(models.PriceSeries, days)
	for i := range series {
		series[i] = models.NewPricePoint(from.AddDate(0, 0, i), decimal.NewFromFloat(40+float64(i%50)))
	}
	return series
}

// BenchmarkCachingProvider_Hit measures range reads served from a populated cache
// holding a century and a half of daily prices.
func BenchmarkCachingProvider_Hit(b *testing.B) {
	if testing.Short() {
		b.Skip("skipping benchmark in short mode")
	}

	clock := &testClock{now: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)}
	inner := &countingProvider{series: generateBenchSeries(day(1870, 1, 1), 55000)}
	c, err := NewCachingProvider(inner, testCacheConfig(time.Hour), createTestLogger(), WithClock(clock.Now))
	if err != nil {
		b.Fatalf("NewCachingProvider failed: %v", err)
	}

	ctx := context.Background()
	if err := c.Preload(ctx); err != nil {
		b.Fatalf("Preload failed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.FetchPrices(ctx, day(2020, 1, 1), day(2020, 12, 31)); err != nil {
				b.Errorf("FetchPrices failed: %v", err)
				return
			}
		}
	})

	if calls := inner.Calls(); calls != 1 {
		b.Fatalf("expected one upstream fetch, got %d", calls)
	}
}
