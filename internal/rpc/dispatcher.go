package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnayoung/go-oilprice-trend/internal/errors"
	"github.com/johnayoung/go-oilprice-trend/internal/logger"
	"github.com/johnayoung/go-oilprice-trend/internal/metrics"
	"github.com/johnayoung/go-oilprice-trend/internal/models"
	"github.com/johnayoung/go-oilprice-trend/internal/upstream"
	"github.com/johnayoung/go-oilprice-trend/internal/validator"
)

// Dispatcher routes JSON-RPC calls to the price provider.
// It is safe for concurrent use.
type Dispatcher struct {
	provider  upstream.PriceProvider
	validator *validator.Validator
	logger    *logger.ComponentLogger
	metrics   *metrics.Metrics
}

// NewDispatcher wires a dispatcher around provider, which is either the
// caching provider or the upstream fetcher when caching is disabled.
func NewDispatcher(provider upstream.PriceProvider, v *validator.Validator, log *logger.ComponentLogger, m *metrics.Metrics) *Dispatcher {
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = &logger.ComponentLogger{Logger: slog.Default()}
	}
	return &Dispatcher{
		provider:  provider,
		validator: v,
		logger:    log,
		metrics:   m,
	}
}

// Dispatch handles one call and always returns a response envelope echoing the call id.
func (d *Dispatcher) Dispatch(ctx context.Context, call CallEnvelope) (resp ResultEnvelope) {
	ctx = logger.WithRPCCall(ctx, call.Method, call.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := errors.New(errors.ErrorTypeInternal, "rpc", "dispatch", fmt.Sprintf("panic: %v", r))
			resp = NewErrorEnvelope(call.ID, err)
			d.logger.ErrorWithContext(ctx, "rpc call panicked", err)
		}
		d.metrics.RecordRPCCall(methodLabel(call.Method), outcome(resp))
	}()

	prices, err := d.dispatch(ctx, call)
	if err != nil {
		d.logFailure(ctx, err, time.Since(start))
		return NewErrorEnvelope(call.ID, err)
	}

	d.logger.DebugWithContext(ctx, "rpc call completed",
		slog.Int("points", len(prices)),
		slog.Duration("duration", time.Since(start)))
	return NewResultEnvelope(call.ID, prices)
}

func (d *Dispatcher) dispatch(ctx context.Context, call CallEnvelope) (models.PriceSeries, error) {
	if call.Method != MethodGetOilPriceTrend {
		return nil, errors.MethodNotFound(call.Method)
	}
	if call.paramsErr != nil {
		return nil, errors.ValidationFailed(validator.Violations{
			{Field: "params", Message: fmt.Sprintf("Params could not be decoded: %v", call.paramsErr)},
		})
	}
	if call.Params == nil {
		return nil, errors.ParamsRequired()
	}
	if violations := d.validator.ValidateQuery(*call.Params); len(violations) > 0 {
		return nil, errors.ValidationFailed(violations)
	}
	if d.provider == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "rpc", "dispatch", "no price provider configured")
	}

	start, end := call.Params.Range()
	return d.provider.FetchPrices(ctx, start, end)
}

func (d *Dispatcher) logFailure(ctx context.Context, err error, duration time.Duration) {
	errType := errors.GetErrorType(err)
	switch errType {
	case errors.ErrorTypeUpstreamUnavailable, errors.ErrorTypeMalformedUpstream,
		errors.ErrorTypeInternal, errors.ErrorTypeUnknown:
		d.logger.ErrorWithContext(ctx, "rpc call failed", err,
			slog.String("error_type", string(errType)),
			slog.Duration("duration", duration))
	default:
		d.logger.InfoWithContext(ctx, "rpc call rejected",
			slog.String("error_type", string(errType)),
			slog.String("reason", err.Error()))
	}
}

func outcome(resp ResultEnvelope) string {
	if resp.Error == nil {
		return "ok"
	}
	return string(resp.errType)
}

// methodLabel keeps caller-chosen method names out of metric labels.
func methodLabel(method string) string {
	if method == MethodGetOilPriceTrend {
		return method
	}
	return "unknown"
}
