package knowledge

import "errors"

// Sentinel errors for store operations. These are part of the Store's public
// API and should be checked with errors.Is().
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAccessDenied indicates the caller's identity does not match the
	// record owner. Surfaced as a permission failure, not a data error.
	ErrAccessDenied = errors.New("access denied")

	// ErrEmptyContent indicates a lesson was submitted without content.
	ErrEmptyContent = errors.New("empty lesson content")
)
