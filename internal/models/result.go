package models

import "time"

// Case run status constants
const (
	StatusPassed = "PASSED" // Transcript verified clean
	StatusFailed = "FAILED" // Verification reported failures
	StatusError  = "ERROR"  // Run aborted before verification completed
)

// RunResult represents the outcome of running a single test case
type RunResult struct {
	Case           Case          // The case that was run
	RunID          string        // Unique run identifier
	Status         string        // Status: "PASSED", "FAILED", "ERROR"
	Failures       []string      // Verification failures, in report order
	Error          error         // Error if the run itself broke (not a verification failure)
	Duration       time.Duration // Wall-clock run time
	StartedAt      time.Time     // When the run began
	TranscriptPath string        // Where the raw analyzer transcript was archived
}

// Passed returns true if the case ran and verified clean
func (r *RunResult) Passed() bool {
	return r.Status == StatusPassed
}

// RunSummary represents the aggregate result of running a plan
type RunSummary struct {
	TotalCases int           // Total number of cases selected
	Passed     int           // Cases that verified clean
	Failed     int           // Cases with verification failures
	Errors     int           // Cases that aborted before verification
	Duration   time.Duration // Total wall-clock time
	FailedRuns []RunResult   // Details of failed and errored runs
}
