package models

import "errors"

// Error taxonomy shared across packages. Wrap with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrNetwork means the request failed or the provider answered with a non-success status.
	ErrNetwork = errors.New("network error")
	// ErrEmptyResult means no matching place was found.
	ErrEmptyResult = errors.New("empty result")
	// ErrPermissionDenied means geolocation or notification permission was refused.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStaleDataOnly means a fetch failed but a previously cached bundle is still available.
	ErrStaleDataOnly = errors.New("stale data only")
	// ErrDecode means a provider payload was malformed or missing required fields.
	ErrDecode = errors.New("decode error")
	// ErrLengthMismatch means a value axis did not line up with its time axis.
	ErrLengthMismatch = errors.New("axis length mismatch")
)
