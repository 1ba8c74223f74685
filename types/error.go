package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies every failure the host or client can report.
type ErrorCode string

const (
	// ErrConfiguration: required settings absent or invalid. Fatal before serving.
	ErrConfiguration ErrorCode = "CONFIGURATION"
	// ErrClientInput: empty or unparsable envelope, no user message, no text.
	ErrClientInput ErrorCode = "CLIENT_INPUT"
	// ErrNotReady: the agent runtime is still initializing.
	ErrNotReady ErrorCode = "NOT_READY"
	// ErrRuntimeFailure: runtime, tool or credential call failed.
	ErrRuntimeFailure ErrorCode = "RUNTIME_FAILURE"
	// ErrTransport: the client cannot reach the host.
	ErrTransport ErrorCode = "TRANSPORT"
	// ErrTimeout: the client round trip exceeded its bound.
	ErrTimeout ErrorCode = "TIMEOUT"
)

// httpStatusByCode 是错误码到 HTTP 状态码的唯一映射表.
var httpStatusByCode = map[ErrorCode]int{
	ErrConfiguration:  http.StatusInternalServerError,
	ErrClientInput:    http.StatusBadRequest,
	ErrNotReady:       http.StatusServiceUnavailable,
	ErrRuntimeFailure: http.StatusInternalServerError,
	ErrTransport:      http.StatusBadGateway,
	ErrTimeout:        http.StatusGatewayTimeout,
}

// HTTPStatus returns the HTTP status for code. Unknown codes map to 500.
func HTTPStatus(code ErrorCode) int {
	if s, ok := httpStatusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// CodeForStatus is the inverse used by clients reading a non-2xx reply.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusBadRequest:
		return ErrClientInput
	case status == http.StatusServiceUnavailable:
		return ErrNotReady
	case status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status == http.StatusBadGateway:
		return ErrTransport
	case status >= 500:
		return ErrRuntimeFailure
	default:
		return ErrClientInput
	}
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Status returns the explicit HTTP status if set, otherwise the code's default.
func (e *Error) Status() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return HTTPStatus(e.Code)
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf is NewError with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error, looking through wrapping.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
