// outcome.go defines the raw subprocess execution outcome.
// It captures everything the bridge needs from one run: both output
// streams (with truncation flags), exit code, duration, and whether
// the process was killed by timeout or cancellation.
package runner

import "time"

// Outcome holds the raw output of one subprocess execution.
type Outcome struct {
	// Stdout contains the captured standard output, up to the byte cap.
	Stdout string `json:"stdout"`

	// Stderr contains the captured standard error, up to the byte cap.
	Stderr string `json:"stderr"`

	// StdoutTruncated is true if stdout exceeded the byte cap and the
	// excess was discarded.
	StdoutTruncated bool `json:"stdout_truncated,omitempty"`

	// StderrTruncated is true if stderr exceeded the byte cap.
	StderrTruncated bool `json:"stderr_truncated,omitempty"`

	// ExitCode is the process exit code. -1 indicates timeout or signal death.
	ExitCode int `json:"exit_code"`

	// TimedOut is true if the process group was killed before the
	// process exited on its own, whether by timeout or cancellation.
	TimedOut bool `json:"timed_out"`

	// Canceled is true if the kill was triggered by the caller's
	// cancellation signal rather than the request's own timeout.
	Canceled bool `json:"canceled,omitempty"`

	// Duration is how long the subprocess ran.
	Duration time.Duration `json:"duration_ms"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// Stats holds sampled resource usage, when collection is enabled.
	Stats *ProcessStats `json:"stats,omitempty"`
}

// DurationMs returns the duration in milliseconds for JSON serialization.
func (o *Outcome) DurationMs() int64 {
	return o.Duration.Milliseconds()
}
