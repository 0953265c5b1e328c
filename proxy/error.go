package proxy

import (
	"fmt"
	"net/http"
)

// Stable error codes of the gateway error envelope.
const (
	CodeRouteNotFound      = "ROUTE_NOT_FOUND"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeUnauthorizedAccess = "UNAUTHORIZED_ACCESS"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// proxyError is used to wrap errors during proxying and to indicate
// the envelope code and status for the response sent from the main
// ServeHTTP method.
type proxyError struct {
	code          string
	status        int
	message       string
	err           error
	dialingFailed bool
	breakerOpen   bool
	cancelled     bool
}

func (e *proxyError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("proxy error: %s: %v", e.code, e.err)
	}

	return fmt.Sprintf("proxy error: %s: %s", e.code, e.message)
}

func (e *proxyError) Unwrap() error {
	return e.err
}

// DialError returns true if the error was caused while dialing TCP or
// TLS connections, before HTTP data was sent. It is safe to retry a
// call, if this returns true.
func (e *proxyError) DialError() bool {
	return e.dialingFailed
}

func errRouteNotFound() *proxyError {
	return &proxyError{
		code:    CodeRouteNotFound,
		status:  http.StatusNotFound,
		message: "no route matched the request path",
	}
}

func errInvalidToken(message string) *proxyError {
	return &proxyError{
		code:    CodeInvalidToken,
		status:  http.StatusUnauthorized,
		message: message,
	}
}

func errUnauthorizedAccess() *proxyError {
	return &proxyError{
		code:    CodeUnauthorizedAccess,
		status:  http.StatusForbidden,
		message: "none of the required roles granted",
	}
}

func errServiceUnavailable(message string, cause error) *proxyError {
	return &proxyError{
		code:    CodeServiceUnavailable,
		status:  http.StatusServiceUnavailable,
		message: message,
		err:     cause,
	}
}

func errBreakerOpen() *proxyError {
	return &proxyError{
		code:        CodeServiceUnavailable,
		status:      http.StatusServiceUnavailable,
		message:     "service temporarily unavailable",
		breakerOpen: true,
	}
}

func errGatewayTimeout(cause error) *proxyError {
	return &proxyError{
		code:    CodeGatewayTimeout,
		status:  http.StatusGatewayTimeout,
		message: "upstream did not respond within the request budget",
		err:     cause,
	}
}

func errInternal(message string, cause error) *proxyError {
	return &proxyError{
		code:    CodeInternalError,
		status:  http.StatusInternalServerError,
		message: message,
		err:     cause,
	}
}

func errClientCancelled(cause error) *proxyError {
	return &proxyError{
		code:      CodeInternalError,
		status:    499,
		message:   "client closed the request",
		err:       cause,
		cancelled: true,
	}
}
