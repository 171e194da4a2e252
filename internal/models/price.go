package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one daily observation of the oil price.
// Date is normalized to midnight UTC when the point is built and Price may be null.
type PricePoint struct {
	Date  time.Time           `json:"date"`
	Price decimal.NullDecimal `json:"price"`
}

// NewPricePoint builds a point with a known price.
func NewPricePoint(date time.Time, price decimal.Decimal) PricePoint {
	return PricePoint{
		Date:  DateOf(date),
		Price: decimal.NullDecimal{Decimal: price, Valid: true},
	}
}

// NewNullPricePoint builds a point whose price the provider did not report.
func NewNullPricePoint(date time.Time) PricePoint {
	return PricePoint{Date: DateOf(date)}
}

type pricePointJSON struct {
	Date  string          `json:"date"`
	Price json.RawMessage `json:"price"`
}

// MarshalJSON renders the date as YYYY-MM-DD and the price as a bare JSON number or null.
func (p PricePoint) MarshalJSON() ([]byte, error) {
	price := json.RawMessage("null")
	if p.Price.Valid {
		price = json.RawMessage(p.Price.Decimal.String())
	}
	return json.Marshal(pricePointJSON{
		Date:  FormatDate(p.Date),
		Price: price,
	})
}

// UnmarshalJSON accepts the price as a number, a numeric string, or null.
func (p *PricePoint) UnmarshalJSON(data []byte) error {
	var raw pricePointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	date, err := ParseDate(raw.Date)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	var price decimal.NullDecimal
	if len(raw.Price) > 0 {
		if err := price.UnmarshalJSON(raw.Price); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	}

	p.Date = date
	p.Price = price
	return nil
}

// PriceSeries is an ordered list of price points as the provider returned them.
// Order is preserved and duplicates are kept.
type PriceSeries []PricePoint

// Between returns a new series holding the points within [start, end] inclusive,
// in their original order. The receiver is never modified.
func (s PriceSeries) Between(start, end time.Time) PriceSeries {
	lo, hi := DateOf(start), DateOf(end)
	out := make(PriceSeries, 0, len(s))
	for _, p := range s {
		if !p.Date.Before(lo) && !p.Date.After(hi) {
			out = append(out, p)
		}
	}
	return out
}

// Span returns the earliest and latest dates in the series.
func (s PriceSeries) Span() (time.Time, time.Time, bool) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first, last := s[0].Date, s[0].Date
	for _, p := range s[1:] {
		if p.Date.Before(first) {
			first = p.Date
		}
		if p.Date.After(last) {
			last = p.Date
		}
	}
	return first, last, true
}

// PriceTrend is the result payload of a GetOilPriceTrend call.
type PriceTrend struct {
	Prices PriceSeries `json:"prices"`
}

// MarshalJSON always emits an array for prices, never null.
func (t PriceTrend) MarshalJSON() ([]byte, error) {
	prices := t.Prices
	if prices == nil {
		prices = PriceSeries{}
	}
	type alias struct {
		Prices []PricePoint `json:"prices"`
	}
	return json.Marshal(alias{Prices: prices})
}
