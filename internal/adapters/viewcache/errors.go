package viewcache

import "errors"

// Sentinel kinds for view cache errors.
var (
	// ErrFetchFailed wraps the recorded error of a failed entry.
	ErrFetchFailed = errors.New("view fetch failed")
)
