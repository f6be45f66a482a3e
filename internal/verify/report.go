package verify

import (
	"fmt"
	"strings"
)

// Report collects verification failures for one run, in the order they were
// found. Created fresh per verification call; an empty report means the
// transcript verified clean.
type Report struct {
	failures []string
}

// NewReport returns an empty report
func NewReport() *Report {
	return &Report{}
}

// Add appends one failure to the report
func (r *Report) Add(failure string) {
	r.failures = append(r.failures, failure)
}

// Addf appends one formatted failure to the report
func (r *Report) Addf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

// Failed returns true if any failure was recorded
func (r *Report) Failed() bool {
	return len(r.failures) > 0
}

// Len returns the number of recorded failures
func (r *Report) Len() int {
	return len(r.failures)
}

// Failures returns a copy of the recorded failures, preserving order.
func (r *Report) Failures() []string {
	out := make([]string, len(r.failures))
	copy(out, r.failures)
	return out
}

// String returns every failure joined by newlines, the form run logs and
// case summaries print when a verification fails.
func (r *Report) String() string {
	return strings.Join(r.failures, "\n")
}
