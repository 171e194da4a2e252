package upstream

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/johnayoung/go-oilprice-trend/internal/errors"
	"github.com/johnayoung/go-oilprice-trend/internal/models"
)

// parseSeries decodes the upstream body: a JSON array of {"date": string, "price": number|null}.
// Field names are matched as "date"/"Date" and "price"/"Price". A missing price is treated as null.
func parseSeries(body []byte) (models.PriceSeries, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.MalformedUpstream("parse", fmt.Errorf("response is not valid JSON"))
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, errors.MalformedUpstream("parse", fmt.Errorf("expected a JSON array, got %s", root.Type))
	}

	elements := root.Array()
	series := make(models.PriceSeries, 0, len(elements))
	for i, element := range elements {
		point, err := parsePoint(element)
		if err != nil {
			return nil, errors.MalformedUpstream("parse", fmt.Errorf("element %d: %w", i, err))
		}
		series = append(series, point)
	}

	return series, nil
}

func parsePoint(element gjson.Result) (models.PricePoint, error) {
	if !element.IsObject() {
		return models.PricePoint{}, fmt.Errorf("expected an object, got %s", element.Type)
	}

	dateField := field(element, "date", "Date")
	if dateField.Type != gjson.String {
		return models.PricePoint{}, fmt.Errorf("date must be a string")
	}
	date, err := models.ParseDate(dateField.Str)
	if err != nil {
		return models.PricePoint{}, fmt.Errorf("date: %w", err)
	}

	priceField := field(element, "price", "Price")
	switch priceField.Type {
	case gjson.Null:
		return models.NewNullPricePoint(date), nil
	case gjson.Number:
		price, err := decimal.NewFromString(priceField.Raw)
		if err != nil {
			return models.PricePoint{}, fmt.Errorf("price: %w", err)
		}
		return models.NewPricePoint(date, price), nil
	default:
		return models.PricePoint{}, fmt.Errorf("price must be a number or null, got %s", priceField.Type)
	}
}

func field(element gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if value := element.Get(name); value.Exists() {
			return value
		}
	}
	return gjson.Result{}
}
