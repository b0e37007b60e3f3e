package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNoUpstream       = errors.New("no upstream client configured")
	ErrRoundNotStarted  = errors.New("round has not started")
	ErrSeriesNotFound   = errors.New("series not found in round")
	ErrMissingTimeRange = errors.New("series is missing its time range")
	ErrNoCalculationDay = errors.New("unknown calculation date")
)
