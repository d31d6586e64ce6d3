package errors

import "fmt"

// ClassifyHTTPError determines whether an HTTP failure from a push or
// registration backend should be retried:
// - 4xx client errors (except 408 and 429) are irrecoverable
// - 5xx server errors are recoverable
// - anything else is treated as recoverable
func ClassifyHTTPError(op string, statusCode int, body string, underlyingErr error) *Error {
	return &Error{
		Kind:       KindTransport,
		Category:   getHTTPErrorCategory(statusCode),
		Op:         op,
		StatusCode: statusCode,
		Body:       body,
		Underlying: underlyingErr,
	}
}

// getHTTPErrorCategory maps HTTP status codes to error categories.
func getHTTPErrorCategory(statusCode int) ErrorCategory {
	switch {
	case statusCode >= 400 && statusCode < 500:
		switch statusCode {
		case 408, 429:
			return Recoverable
		default:
			return Irrecoverable
		}
	case statusCode >= 500 && statusCode < 600:
		return Recoverable
	default:
		return Recoverable
	}
}

// NewHTTPError creates a classified error for an unexpected HTTP status.
func NewHTTPError(statusCode int, body string, op string) *Error {
	underlyingErr := fmt.Errorf("%s failed: HTTP %d", op, statusCode)
	return ClassifyHTTPError(op, statusCode, body, underlyingErr)
}

// NewNetworkError creates a classified error for network-level failures.
// Network errors are always recoverable as they may be transient.
func NewNetworkError(op string, err error) *Error {
	return &Error{
		Kind:       KindTransport,
		Category:   Recoverable,
		Op:         op,
		Underlying: fmt.Errorf("%s network error: %w", op, err),
	}
}
