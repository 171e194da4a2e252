// Package errors provides the error taxonomy of the oil price trend service and
// the retry executor used by the upstream transport.
// Every failure that crosses a component boundary is a *ServiceError carrying
// its ErrorType, which decides the JSON-RPC code and HTTP status reported to callers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	// Caller errors
	ErrorTypeMethodNotFound   ErrorType = "method_not_found"  // Unsupported RPC method
	ErrorTypeParamsRequired   ErrorType = "params_required"   // Params object absent
	ErrorTypeValidation       ErrorType = "validation_failed" // One or more params violations
	ErrorTypeInvalidRange     ErrorType = "invalid_range"     // start > end or unusable date
	ErrorTypeParse            ErrorType = "parse_error"       // Request body is not valid JSON-RPC

	// Upstream errors
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable" // Transport failure or non-2xx
	ErrorTypeMalformedUpstream   ErrorType = "malformed_upstream"   // Body does not match the expected shape

	// Special error types
	ErrorTypeConfiguration ErrorType = "configuration" // Startup configuration errors
	ErrorTypeInternal      ErrorType = "internal"      // Internal application errors
	ErrorTypeUnknown       ErrorType = "unknown"       // Unclassified errors
)

// JSON-RPC error codes. The reserved -32xxx range follows JSON-RPC 2.0;
// -32001..-32003 are server-defined.
const (
	CodeParseError          = -32700
	CodeMethodNotFound      = -32601
	CodeInvalidParams       = -32602
	CodeInternalError       = -32603
	CodeInvalidRange        = -32001
	CodeUpstreamUnavailable = -32002
	CodeMalformedUpstream   = -32003
)

// ServiceError represents an error with the metadata needed to report it
type ServiceError struct {
	Err       error       `json:"error"`
	Type      ErrorType   `json:"type"`
	Component string      `json:"component"`
	Operation string      `json:"operation"`
	Data      interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (se *ServiceError) Error() string {
	if se.Component == "" {
		return fmt.Sprintf("[%s] %s: %v", se.Type, se.Operation, se.Err)
	}
	return fmt.Sprintf("[%s/%s] %s: %v", se.Component, se.Type, se.Operation, se.Err)
}

// Unwrap returns the underlying error
func (se *ServiceError) Unwrap() error {
	return se.Err
}

// Is checks if the error is of the specified type
func (se *ServiceError) Is(target error) bool {
	if t, ok := target.(*ServiceError); ok {
		return se.Type == t.Type
	}
	return errors.Is(se.Err, target)
}

// Message is the caller-facing description, without component prefixes.
func (se *ServiceError) Message() string {
	if se.Err == nil {
		return string(se.Type)
	}
	return se.Err.Error()
}

// Code returns the JSON-RPC error code for the error type
func (se *ServiceError) Code() int {
	return CodeFor(se.Type)
}

// HTTPStatus returns the HTTP status used when the error reaches the transport
func (se *ServiceError) HTTPStatus() int {
	return HTTPStatusFor(se.Type)
}

// Sentinels usable with errors.Is.
var (
	ErrMethodNotFound      = &ServiceError{Type: ErrorTypeMethodNotFound}
	ErrParamsRequired      = &ServiceError{Type: ErrorTypeParamsRequired}
	ErrValidation          = &ServiceError{Type: ErrorTypeValidation}
	ErrInvalidRange        = &ServiceError{Type: ErrorTypeInvalidRange}
	ErrUpstreamUnavailable = &ServiceError{Type: ErrorTypeUpstreamUnavailable}
	ErrMalformedUpstream   = &ServiceError{Type: ErrorTypeMalformedUpstream}
)

// New creates a ServiceError from a message
func New(errType ErrorType, component, operation, message string) *ServiceError {
	return &ServiceError{
		Err:       errors.New(message),
		Type:      errType,
		Component: component,
		Operation: operation,
	}
}

// Wrap classifies an existing error. A nil err yields nil.
func Wrap(err error, errType ErrorType, component, operation string) error {
	if err == nil {
		return nil
	}
	return &ServiceError{
		Err:       err,
		Type:      errType,
		Component: component,
		Operation: operation,
	}
}

// MethodNotFound reports an unsupported RPC method.
func MethodNotFound(method string) *ServiceError {
	return &ServiceError{
		Err:       errors.New("Method not found"),
		Type:      ErrorTypeMethodNotFound,
		Component: "rpc",
		Operation: "dispatch",
		Data:      map[string]string{"method": method},
	}
}

// ParamsRequired reports a call without a params object.
func ParamsRequired() *ServiceError {
	return New(ErrorTypeParamsRequired, "rpc", "dispatch", "Params cannot be null")
}

// ValidationFailed reports every violation found in the params.
func ValidationFailed(violations interface{}) *ServiceError {
	return &ServiceError{
		Err:       errors.New("Invalid params"),
		Type:      ErrorTypeValidation,
		Component: "validator",
		Operation: "validate",
		Data:      violations,
	}
}

// InvalidRange reports a reversed or unusable date range.
func InvalidRange(component, message string) *ServiceError {
	return New(ErrorTypeInvalidRange, component, "check_range", message)
}

// UpstreamUnavailable reports a transport failure or a non-success upstream status.
func UpstreamUnavailable(operation string, err error) *ServiceError {
	return &ServiceError{
		Err:       err,
		Type:      ErrorTypeUpstreamUnavailable,
		Component: "upstream",
		Operation: operation,
	}
}

// MalformedUpstream reports an upstream body that does not match the expected shape.
func MalformedUpstream(operation string, err error) *ServiceError {
	return &ServiceError{
		Err:       err,
		Type:      ErrorTypeMalformedUpstream,
		Component: "upstream",
		Operation: operation,
	}
}

// CodeFor maps an error type to its JSON-RPC error code
func CodeFor(errType ErrorType) int {
	switch errType {
	case ErrorTypeParse:
		return CodeParseError
	case ErrorTypeMethodNotFound:
		return CodeMethodNotFound
	case ErrorTypeParamsRequired, ErrorTypeValidation:
		return CodeInvalidParams
	case ErrorTypeInvalidRange:
		return CodeInvalidRange
	case ErrorTypeUpstreamUnavailable:
		return CodeUpstreamUnavailable
	case ErrorTypeMalformedUpstream:
		return CodeMalformedUpstream
	default:
		return CodeInternalError
	}
}

// HTTPStatusFor maps an error type to the HTTP status of the response carrying it
func HTTPStatusFor(errType ErrorType) int {
	switch errType {
	case ErrorTypeParse, ErrorTypeMethodNotFound, ErrorTypeParamsRequired,
		ErrorTypeValidation, ErrorTypeInvalidRange:
		return http.StatusBadRequest
	case ErrorTypeUpstreamUnavailable, ErrorTypeMalformedUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Utility functions

// GetErrorType extracts the error type from anywhere in the chain
func GetErrorType(err error) ErrorType {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given type
func IsType(err error, errType ErrorType) bool {
	return GetErrorType(err) == errType
}

// AsServiceError returns the ServiceError in err's chain, classifying
// anything else as internal.
func AsServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return &ServiceError{Err: err, Type: ErrorTypeInternal, Operation: "unknown"}
}
