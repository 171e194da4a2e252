// Package rpc implements the JSON-RPC 2.0 request dispatcher of the oil price trend service.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/johnayoung/go-oilprice-trend/internal/errors"
	"github.com/johnayoung/go-oilprice-trend/internal/models"
)

const (
	// Version is the JSON-RPC protocol version echoed in every response.
	Version = "2.0"

	// MethodGetOilPriceTrend is the only supported method.
	MethodGetOilPriceTrend = "GetOilPriceTrend"
)

// CallEnvelope is an inbound JSON-RPC call.
type CallEnvelope struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  *models.PriceQuery `json:"params"`
	ID      int                `json:"id"`

	// paramsErr is set when params were present but not a JSON object.
	paramsErr error
}

// ResultEnvelope is the response to one call. Exactly one of Result and Error is set.
type ResultEnvelope struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      int                `json:"id"`
	Result  *models.PriceTrend `json:"result,omitempty"`
	Error   *Error             `json:"error,omitempty"`

	errType errors.ErrorType
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPStatus is the status an HTTP transport should send with this envelope.
func (r ResultEnvelope) HTTPStatus() int {
	if r.Error == nil {
		return http.StatusOK
	}
	return errors.HTTPStatusFor(r.errType)
}

// ErrorType returns the classification of a failed call, or "" on success.
func (r ResultEnvelope) ErrorType() errors.ErrorType {
	return r.errType
}

// NewErrorEnvelope builds a failure response for id from err.
// Upstream and internal failures get fixed messages so provider details stay in the logs.
func NewErrorEnvelope(id int, err error) ResultEnvelope {
	se := errors.AsServiceError(err)

	message := se.Message()
	switch se.Type {
	case errors.ErrorTypeUpstreamUnavailable:
		message = "Upstream price provider unavailable"
	case errors.ErrorTypeMalformedUpstream:
		message = "Upstream price data is malformed"
	case errors.ErrorTypeInternal, errors.ErrorTypeUnknown, errors.ErrorTypeConfiguration:
		message = "Internal error"
	}

	return ResultEnvelope{
		JSONRPC: Version,
		ID:      id,
		Error: &Error{
			Code:    se.Code(),
			Message: message,
			Data:    se.Data,
		},
		errType: se.Type,
	}
}

// NewResultEnvelope builds a success response for id.
func NewResultEnvelope(id int, series models.PriceSeries) ResultEnvelope {
	return ResultEnvelope{
		JSONRPC: Version,
		ID:      id,
		Result:  &models.PriceTrend{Prices: series},
	}
}

type rawCall struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      int             `json:"id"`
}

// DecodeCall parses a request body. Only malformed JSON is an error here (parse_error).
// Params problems are left for Dispatch, so the method is always checked first and
// each date field is reported on its own.
func DecodeCall(data []byte) (CallEnvelope, error) {
	var raw rawCall
	if err := json.Unmarshal(data, &raw); err != nil {
		se := errors.New(errors.ErrorTypeParse, "rpc", "decode", "Parse error")
		se.Data = err.Error()
		return CallEnvelope{}, se
	}

	call := CallEnvelope{JSONRPC: raw.JSONRPC, Method: raw.Method, ID: raw.ID}

	params := bytes.TrimSpace(raw.Params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		return call, nil
	}

	var query models.PriceQuery
	if err := json.Unmarshal(params, &query); err != nil {
		call.paramsErr = err
		return call, nil
	}
	call.Params = &query
	return call, nil
}
