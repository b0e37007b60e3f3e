package upstream

import (
	"errors"
	"fmt"
)

// Sentinel kinds for upstream errors.
var (
	ErrInvalidBaseURL    = errors.New("invalid upstream base url")
	ErrTransport         = errors.New("upstream request failed")
	ErrContractViolation = errors.New("upstream contract violation")
)

// StatusError is returned when the benchmark API answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.Endpoint, e.StatusCode)
}
