// Package loadtest drives a running service with synthetic evaluations and
// checks that every returned total and tier matches a local recomputation.
package loadtest

import (
	"time"

	service "github.com/okian/certifica/internal/app"
)

// Config holds configuration for a load test run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Evaluations int           // Number of evaluations to submit
	Academies   int           // Number of distinct academies
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	DraftRatio  float64       // Share of submissions sent as drafts, 0-1
	Verbose     bool          // Log every mismatch
}

// Stats holds run statistics.
type Stats struct {
	Generated  int
	Submitted  int
	Written    int
	Queued     int
	Rejected   int
	Failed     int
	Mismatches int
	ByTier     map[string]int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// outcome pairs a submission with what the service answered.
type outcome struct {
	sub    service.Submission
	result service.SubmitResult
	status int
	err    error
}
