// result.go defines the execution result and its status taxonomy.
// Operational failures (rejected, saturated, timed-out, failed) are
// ordinary results, never errors or panics, so callers handle every
// outcome through one value.
package bridge

import "github.com/m365kit/scriptbridge/runner"

// Status is the terminal state of one execution.
type Status string

// Execution statuses.
const (
	// StatusSucceeded: the script ran, exited zero, and its output
	// decoded in the requested format.
	StatusSucceeded Status = "succeeded"

	// StatusFailed: the script exited non-zero, or its output could not
	// be decoded. The Reason field tells the two apart.
	StatusFailed Status = "failed"

	// StatusTimedOut: the subprocess (or its wait for a slot) exceeded
	// the request's time budget, or the caller canceled. The process
	// group was killed.
	StatusTimedOut Status = "timed-out"

	// StatusRejected: validation failed; no subprocess was spawned.
	StatusRejected Status = "rejected"

	// StatusPoolSaturated: no slot freed up within the request's
	// timeout; the script was not executed late.
	StatusPoolSaturated Status = "pool-saturated"

	// StatusSpawnFailed: the OS could not start the subprocess at all
	// (missing interpreter, non-executable script).
	StatusSpawnFailed Status = "spawn-failed"
)

// Reason codes detailing a non-success status.
const (
	ReasonPathEscape      = "path-escape"
	ReasonUnsafeParameter = "unsafe-parameter"
	ReasonBadParameter    = "unencodable-parameter"
	ReasonInvalidFormat   = "invalid-format"
	ReasonPoolSaturated   = "pool-saturated"
	ReasonSpawnFailed     = "spawn-failed"
	ReasonTimeout         = "timeout"
	ReasonCanceled        = "canceled"
	ReasonNonZeroExit     = "non-zero-exit"
	ReasonUnparseable     = "unparseable-output"
)

// Result is the immutable outcome of one execution. JSON tags exist so
// results can be cached verbatim.
type Result struct {
	// Status is the terminal state.
	Status Status `json:"status"`

	// Reason refines a non-success status.
	Reason string `json:"reason,omitempty"`

	// Detail carries a human-readable diagnostic, already redacted.
	Detail string `json:"detail,omitempty"`

	// Payload is the decoded structure matching the request's output
	// format. Empty on any non-success status.
	Payload any `json:"payload,omitempty"`

	// RawStdout and RawStderr are the captured streams, size-bounded.
	RawStdout string `json:"stdout,omitempty"`
	RawStderr string `json:"stderr,omitempty"`

	// StdoutTruncated / StderrTruncated flag capped capture.
	StdoutTruncated bool `json:"stdout_truncated,omitempty"`
	StderrTruncated bool `json:"stderr_truncated,omitempty"`

	// ExitCode is the process exit code; -1 for kills and non-spawns.
	ExitCode int `json:"exit_code"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// FromCache is true when the result was served from the cache
	// without spawning a subprocess.
	FromCache bool `json:"from_cache,omitempty"`

	// Warnings holds non-fatal decode warnings (dropped rows).
	Warnings []string `json:"warnings,omitempty"`

	// Argv is the argument vector used, with sensitive parameter
	// values redacted. Diagnostic only.
	Argv []string `json:"argv,omitempty"`

	// Stats holds sampled subprocess resource usage, when enabled.
	Stats *runner.ProcessStats `json:"stats,omitempty"`
}
