package fetch

import (
	"errors"
	"fmt"
)

// ErrMaxAttemptsExceeded is returned when retry attempts are exhausted.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Kind classifies a fetch failure. The retry predicate branches on Kind
// exhaustively; error strings and concrete types are never inspected.
type Kind int

const (
	// KindTransient covers connect errors, timeouts and malformed bodies.
	KindTransient Kind = iota
	// KindOverload is the upstream overload status. It feeds the breaker.
	KindOverload
	// KindCircuitOpen means the breaker rejected the call and the internal
	// recovery wait budget ran out.
	KindCircuitOpen
	// KindPermanent covers every other HTTP error status.
	KindPermanent
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindOverload:
		return "overload"
	case KindCircuitOpen:
		return "circuit_open"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable reports whether the HTTP layer retries this kind of failure.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindOverload
}

// FetchError is the failure value for a single URL. Every failure the client
// produces carries an explicit Kind.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error. Non-fetch errors report
// KindPermanent.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindPermanent
}

// IsRetryable reports whether err is a fetch failure the HTTP layer would
// retry. Exposed for job-level retry decisions.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind.Retryable()
	}
	return false
}
