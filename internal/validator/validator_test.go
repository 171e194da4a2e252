package validator

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/johnayoung/go-oilprice-trend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time { return &t }

func TestValidateQuery(t *testing.T) {
	midnight := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	afternoon := time.Date(2020, 1, 5, 15, 30, 0, 0, time.UTC)
	fraction := time.Date(2020, 1, 5, 0, 0, 0, 1000, time.UTC)

	tests := []struct {
		name     string
		query    models.PriceQuery
		expected Violations
	}{
		{
			name:     "midnight dates pass",
			query:    models.PriceQuery{StartDate: ptr(midnight), EndDate: ptr(midnight.AddDate(0, 0, 4))},
			expected: nil,
		},
		{
			name:     "reversed range is not this validator's concern",
			query:    models.PriceQuery{StartDate: ptr(midnight.AddDate(0, 0, 4)), EndDate: ptr(midnight)},
			expected: nil,
		},
		{
			name:  "time of day on end date",
			query: models.PriceQuery{StartDate: ptr(midnight), EndDate: ptr(afternoon)},
			expected: Violations{
				{Field: "EndDateISO8601", Message: "EndDateISO8601 must be a valid date with only year, month, and day."},
			},
		},
		{
			name:  "sub-second component",
			query: models.PriceQuery{StartDate: ptr(fraction), EndDate: ptr(midnight)},
			expected: Violations{
				{Field: "StartDateISO8601", Message: "StartDateISO8601 must be a valid date with only year, month, and day."},
			},
		},
		{
			name:  "missing start still checks end",
			query: models.PriceQuery{StartDate: nil, EndDate: ptr(afternoon)},
			expected: Violations{
				{Field: "StartDateISO8601", Message: "StartDateISO8601 is required."},
				{Field: "EndDateISO8601", Message: "EndDateISO8601 must be a valid date with only year, month, and day."},
			},
		},
		{
			name:  "both missing report only required",
			query: models.PriceQuery{},
			expected: Violations{
				{Field: "StartDateISO8601", Message: "StartDateISO8601 is required."},
				{Field: "EndDateISO8601", Message: "EndDateISO8601 is required."},
			},
		},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, v.ValidateQuery(tt.query))
		})
	}
}

func TestValidateQuery_UnreadableDates(t *testing.T) {
	tests := []struct {
		name     string
		params   string
		expected []string
	}{
		{
			name:   "unreadable start and missing end",
			params: `{"startDateISO8601":"yesterday"}`,
			expected: []string{
				"StartDateISO8601 must be a valid date with only year, month, and day.",
				"EndDateISO8601 is required.",
			},
		},
		{
			name:   "both unreadable",
			params: `{"startDateISO8601":"01/02/2020","endDateISO8601":42}`,
			expected: []string{
				"StartDateISO8601 must be a valid date with only year, month, and day.",
				"EndDateISO8601 must be a valid date with only year, month, and day.",
			},
		},
		{
			name:   "unreadable end only",
			params: `{"startDateISO8601":"2020-01-01","endDateISO8601":"soon"}`,
			expected: []string{
				"EndDateISO8601 must be a valid date with only year, month, and day.",
			},
		},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q models.PriceQuery
			require.NoError(t, json.Unmarshal([]byte(tt.params), &q))
			assert.Equal(t, tt.expected, v.ValidateQuery(q).Messages())
		})
	}
}

func TestViolations_Error(t *testing.T) {
	violations := New().ValidateQuery(models.PriceQuery{})
	require.Len(t, violations, 2)
	assert.Equal(t, []string{"StartDateISO8601 is required.", "EndDateISO8601 is required."}, violations.Messages())
	assert.Equal(t, "StartDateISO8601 is required. EndDateISO8601 is required.", violations.Error())
}

func TestValidateQuery_Concurrent(t *testing.T) {
	v := New()
	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := models.PriceQuery{StartDate: ptr(day), EndDate: ptr(day.AddDate(0, 0, i))}
			assert.Nil(t, v.ValidateQuery(q))
		}(i)
	}
	wg.Wait()
}
