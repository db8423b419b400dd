package speech

import "errors"

// Sentinel errors used by the tracker to classify provider failures.
// Implementations wrap these with %w so errors.Is works across packages.
var (
	// ErrAuthDenied indicates the provider refused access (missing or
	// invalid credentials, or recognition permission denied). Fatal for the
	// session; the tracker never retries it.
	ErrAuthDenied = errors.New("speech: authorization denied")

	// ErrBadFormat indicates the provider rejected the audio format, which
	// typically happens transiently while an input device is switching.
	// The tracker retries it after a short fixed delay.
	ErrBadFormat = errors.New("speech: unsupported audio format")
)
