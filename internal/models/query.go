package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PriceQuery is the parameter object of a GetOilPriceTrend call.
// A nil field means the caller did not supply it, or supplied something that is not a date;
// Malformed tells the two apart.
type PriceQuery struct {
	StartDate *time.Time `json:"startDateISO8601" validate:"required,dateonly"`
	EndDate   *time.Time `json:"endDateISO8601" validate:"required,dateonly"`

	malformed queryFields
}

type queryFields uint8

const (
	startDateField queryFields = 1 << iota
	endDateField
)

type priceQueryJSON struct {
	StartDate *string `json:"startDateISO8601"`
	EndDate   *string `json:"endDateISO8601"`
}

type rawPriceQuery struct {
	StartDate json.RawMessage `json:"startDateISO8601"`
	EndDate   json.RawMessage `json:"endDateISO8601"`
}

// UnmarshalJSON decodes ISO-8601 strings, keeping any time-of-day so it can be rejected later.
// Null or empty strings leave the field nil. A value that is not a date string also leaves the
// field nil and marks it malformed, so each field is judged on its own; only a params value that
// is not an object is an error.
func (q *PriceQuery) UnmarshalJSON(data []byte) error {
	var raw rawPriceQuery
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("params must be an object: %w", err)
	}

	*q = PriceQuery{}
	var ok bool
	if q.StartDate, ok = decodeOptional(raw.StartDate); !ok {
		q.malformed |= startDateField
	}
	if q.EndDate, ok = decodeOptional(raw.EndDate); !ok {
		q.malformed |= endDateField
	}
	return nil
}

// Malformed reports whether the named field ("StartDate" or "EndDate") held a value
// that could not be read as a date.
func (q PriceQuery) Malformed(field string) bool {
	switch field {
	case "StartDate":
		return q.malformed&startDateField != 0
	case "EndDate":
		return q.malformed&endDateField != 0
	default:
		return false
	}
}

// MarshalJSON encodes present dates as calendar dates, or the full timestamp if a time-of-day is set.
func (q PriceQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(priceQueryJSON{
		StartDate: formatOptional(q.StartDate),
		EndDate:   formatOptional(q.EndDate),
	})
}

// Range returns the query bounds as calendar dates. Callers must validate first.
func (q PriceQuery) Range() (time.Time, time.Time) {
	var start, end time.Time
	if q.StartDate != nil {
		start = DateOf(*q.StartDate)
	}
	if q.EndDate != nil {
		end = DateOf(*q.EndDate)
	}
	return start, end
}

// NewPriceQuery builds a query from two dates.
func NewPriceQuery(start, end time.Time) PriceQuery {
	return PriceQuery{StartDate: &start, EndDate: &end}
}

// decodeOptional returns false when raw is present but not a parseable date string.
func decodeOptional(raw json.RawMessage) (*time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	if s == "" {
		return nil, true
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	var s string
	if IsDateOnly(*t) {
		s = FormatDate(*t)
	} else {
		s = t.Format(time.RFC3339Nano)
	}
	return &s
}
