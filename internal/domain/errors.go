package domain

import "errors"

// Error taxonomy shared by storage, the tracker and the HTTP layer.
var (
	// ErrNotFound reports a missing domain record or static asset.
	ErrNotFound = errors.New("not found")
	// ErrMalformedPatch reports a config body that is not a JSON object fragment.
	ErrMalformedPatch = errors.New("malformed patch")
	// ErrConflict reports contention on a domain record that outlived the retry budget.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrUnavailable reports a storage backend that could not be reached in time.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrOutcomeUnknown reports a write whose acknowledgement was lost. The
	// write may have been applied, so it must not be retried.
	ErrOutcomeUnknown = errors.New("write outcome unknown")
)

// IsTransient reports whether err may succeed when retried.
func IsTransient(err error) bool {
	if errors.Is(err, ErrOutcomeUnknown) {
		return false
	}
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}
