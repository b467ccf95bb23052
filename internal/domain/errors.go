package domain

import "errors"

// Sentinel errors for the failure taxonomy. Callers classify with
// errors.Is after unwrapping, so every layer wraps with %w.
var (
	// ErrStorage indicates the underlying store was unavailable or a write
	// failed. Retryable: callers back off and try again within bounds.
	ErrStorage = errors.New("storage unavailable")

	// ErrTransient indicates a network-level failure talking to the
	// external platform (timeouts, rate limits, 5xx). Retryable.
	ErrTransient = errors.New("transient io error")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidLedgerState indicates replay encountered an impossible
	// state, such as a disposal with no position held. Recorded per point,
	// never fatal to a run.
	ErrInvalidLedgerState = errors.New("invalid ledger state")

	// ErrConfiguration indicates missing credentials or account settings.
	// Fatal for the affected account's sync only.
	ErrConfiguration = errors.New("configuration error")
)

// Retryable reports whether an error is worth retrying with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrTransient)
}
