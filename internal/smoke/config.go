package smoke

import (
	"time"

	"github.com/okian/tsarena/internal/domain/types"
)

// Config holds configuration for a smoke run.
type Config struct {
	BaseURL     string        // Base URL of the dashboard
	Definitions int           // Number of definitions whose rounds are crawled
	Rounds      int           // Maximum number of round views requested
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	ReportFile  string        // Output file for the JSON report, empty to skip
	Verbose     bool          // Log every checked round
}

// RoundRef is a round found while crawling definitions.
type RoundRef struct {
	DefinitionID int               `json:"definition_id"`
	RoundID      int               `json:"round_id"`
	Status       types.RoundStatus `json:"status"`
}

// Failure is one failed request or check.
type Failure struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// Stats holds run statistics.
type Stats struct {
	Requests      int           `json:"requests"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	Definitions   int           `json:"definitions"`
	RoundsChecked int           `json:"rounds_checked"`
	Failures      []Failure     `json:"failures,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Duration      time.Duration `json:"duration"`
}
