// Package errors provides the error taxonomy of the client state layer.
// Every error carries a Kind (what failed) and a Category (whether retrying
// can help), so callers and the executor can pick a policy without string
// matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies which part of the taxonomy an error belongs to.
type Kind int

const (
	// KindPersistence is a durable key/value store I/O failure.
	KindPersistence Kind = iota
	// KindValidation is a malformed login payload.
	KindValidation
	// KindClassification is an unrecognised notification shape. Never fatal.
	KindClassification
	// KindTransport is a failure talking to a push or registration backend.
	KindTransport
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindPersistence:
		return "persistence"
	case KindValidation:
		return "validation"
	case KindClassification:
		return "classification"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrorCategory determines how errors should be handled by retry logic.
type ErrorCategory int

const (
	// Recoverable errors should be retried with exponential backoff.
	// Examples: store I/O hiccups, 5xx responses, dropped connections.
	Recoverable ErrorCategory = iota

	// Irrecoverable errors should fail immediately without retry.
	// Examples: invalid login payloads, 401 Unauthorized, 400 Bad Request.
	Irrecoverable
)

// String returns a human-readable representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case Recoverable:
		return "Recoverable"
	case Irrecoverable:
		return "Irrecoverable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Sentinels for errors.Is checks against a Kind.
var (
	ErrPersistence    = stderrors.New("persistence error")
	ErrValidation     = stderrors.New("validation error")
	ErrClassification = stderrors.New("classification error")
	ErrTransport      = stderrors.New("transport error")
)

// Error wraps an underlying error with taxonomy metadata.
type Error struct {
	Kind       Kind
	Category   ErrorCategory
	Op         string // operation that failed, e.g. "session.login"
	StatusCode int    // HTTP status code (0 for non-HTTP errors)
	Body       string // response body for debugging
	Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s [%s] %s: HTTP %d: %v", e.Kind, e.Category, e.Op, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("%s [%s] %s: %v", e.Kind, e.Category, e.Op, e.Underlying)
}

// Unwrap returns the underlying error for error chain compatibility.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches the sentinel of the error's Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrPersistence:
		return e.Kind == KindPersistence
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrClassification:
		return e.Kind == KindClassification
	case ErrTransport:
		return e.Kind == KindTransport
	}
	return false
}

// Persistence wraps a durable store failure. Store I/O may be transient.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Category: Recoverable, Op: op, Underlying: err}
}

// Validation reports a malformed payload.
func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Category: Irrecoverable, Op: op, Underlying: err}
}

// Classification reports an envelope whose shape could not be recognised.
func Classification(op string, err error) *Error {
	return &Error{Kind: KindClassification, Category: Irrecoverable, Op: op, Underlying: err}
}

// IsIrrecoverable returns true if the error should not be retried.
func IsIrrecoverable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category == Irrecoverable
	}
	return false
}

// IsPersistence reports whether err is a durable store failure.
func IsPersistence(err error) bool { return stderrors.Is(err, ErrPersistence) }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return stderrors.Is(err, ErrValidation) }

// IsClassification reports whether err is a classification failure.
func IsClassification(err error) bool { return stderrors.Is(err, ErrClassification) }
