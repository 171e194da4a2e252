package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/johnayoung/go-oilprice-trend/internal/models"
	"github.com/johnayoung/go-oilprice-trend/internal/rpc"
	"github.com/johnayoung/go-oilprice-trend/internal/validator"
)

// QueryFlags holds the options of the query command
type QueryFlags struct {
	Start  string
	End    string
	Format string
	Help   bool
}

// parseQueryFlags parses command line arguments for the query command
func parseQueryFlags(args []string) (*QueryFlags, error) {
	flags := &QueryFlags{
		Format: "table", // Default format
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--start", "-s":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--start requires a value")
			}
			flags.Start = args[i+1]
			i++
		case "--end", "-e":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--end requires a value")
			}
			flags.End = args[i+1]
			i++
		case "--format", "-f":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--format requires a value")
			}
			format := args[i+1]
			if format != "json" && format != "csv" && format != "table" {
				return nil, fmt.Errorf("invalid format, must be: json, csv, or table")
			}
			flags.Format = format
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

// buildQueryCall turns the flags into the same call a JSON-RPC client would send.
// Time-of-day components are kept so the dispatcher rejects them like it would over HTTP.
func buildQueryCall(flags *QueryFlags) (rpc.CallEnvelope, error) {
	var query models.PriceQuery
	for _, f := range []struct {
		name  string
		value string
		dst   **time.Time
	}{
		{"--start", flags.Start, &query.StartDate},
		{"--end", flags.End, &query.EndDate},
	} {
		if f.value == "" {
			continue
		}
		t, err := models.ParseTimestamp(f.value)
		if err != nil {
			return rpc.CallEnvelope{}, fmt.Errorf("invalid %s date, use YYYY-MM-DD: %w", f.name, err)
		}
		*f.dst = &t
	}

	return rpc.CallEnvelope{
		JSONRPC: rpc.Version,
		Method:  rpc.MethodGetOilPriceTrend,
		Params:  &query,
		ID:      1,
	}, nil
}

// handleQuery runs one dispatch and prints the result to out
func (app *App) handleQuery(ctx context.Context, args []string, out io.Writer) error {
	flags, err := parseQueryFlags(args)
	if err != nil {
		return err
	}

	call, err := buildQueryCall(flags)
	if err != nil {
		return err
	}

	resp := app.dispatcher.Dispatch(ctx, call)
	if resp.Error != nil {
		return describeRPCError(resp.Error)
	}

	return writePrices(out, flags.Format, resp.Result)
}

func describeRPCError(e *rpc.Error) error {
	if violations, ok := e.Data.(validator.Violations); ok && len(violations) > 0 {
		return fmt.Errorf("%s (code %d): %s", e.Message, e.Code, strings.Join(violations.Messages(), " "))
	}
	return fmt.Errorf("%s (code %d)", e.Message, e.Code)
}

func writePrices(out io.Writer, format string, trend *models.PriceTrend) error {
	switch format {
	case "json":
		return outputJSON(out, trend)
	case "csv":
		return outputCSV(out, trend.Prices)
	default:
		return outputTable(out, trend.Prices)
	}
}

// outputJSON writes the result object exactly as the RPC endpoint returns it
func outputJSON(out io.Writer, trend *models.PriceTrend) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(trend)
}

// outputCSV formats prices as CSV; a null price is an empty field
func outputCSV(out io.Writer, prices models.PriceSeries) error {
	if _, err := fmt.Fprintln(out, "date,price"); err != nil {
		return err
	}
	for _, p := range prices {
		if _, err := fmt.Fprintf(out, "%s,%s\n", models.FormatDate(p.Date), priceString(p, "")); err != nil {
			return err
		}
	}
	return nil
}

// outputTable formats prices as an aligned table
func outputTable(out io.Writer, prices models.PriceSeries) error {
	fmt.Fprintf(out, "%-12s %12s\n", "Date", "Price")
	fmt.Fprintln(out, strings.Repeat("-", 25))

	for _, p := range prices {
		fmt.Fprintf(out, "%-12s %12s\n", models.FormatDate(p.Date), priceString(p, "-"))
	}

	_, err := fmt.Fprintf(out, "\n%d prices\n", len(prices))
	return err
}

func priceString(p models.PricePoint, null string) string {
	if !p.Price.Valid {
		return null
	}
	return p.Price.Decimal.String()
}
