// runner.go implements subprocess execution with timeout and process group management.
// It ensures all child processes are killed on timeout or cancellation using
// process groups, preventing orphan processes from accumulating.
//
// Scripts are always spawned with a vector of arguments, never through a
// shell string, and inherit only the allow-listed subset of the bridge's
// environment.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Spec describes one subprocess invocation.
type Spec struct {
	// Path is the resolved absolute path of the script to run.
	Path string

	// Interpreter optionally names an allow-listed interpreter to run
	// the script through. Empty means the script is executed directly.
	Interpreter string

	// Args is the encoded argument vector, passed after the script path.
	Args []string

	// Timeout bounds the subprocess lifetime. Must be positive.
	Timeout time.Duration

	// Env lists the environment variable names allowed to pass from the
	// bridge's own environment into the subprocess.
	Env []string

	// MaxOutputBytes caps captured bytes per stream. Zero means no cap.
	MaxOutputBytes int64

	// CollectStats enables memory/CPU sampling of the child while it runs.
	CollectStats bool
}

// Runner spawns subprocesses for the bridge. Safe for concurrent use.
type Runner struct {
	interp *InterpreterCache
	logger *slog.Logger
}

// New creates a Runner. The interpreters list is the allow-list of
// interpreter names requests may select.
func New(interpreters []string, logger *slog.Logger) *Runner {
	return &Runner{
		interp: NewInterpreterCache(interpreters),
		logger: logger,
	}
}

// Run spawns exactly one subprocess for the given Spec and waits for it to
// exit, the timeout to fire, or the context to be canceled, whichever
// is first. On timeout or cancellation the entire process group is
// killed and the outcome reflects it; partial output captured so far is
// preserved.
//
// A returned error means the subprocess could not be started at all
// (missing interpreter, non-executable script). Errors the process
// itself reports are returned inside the Outcome, not as an error.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Outcome, error) {
	argv, err := r.buildArgv(spec)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)

	// Create new process group so we can kill all children
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Strip ambient environment down to the allow-listed subset
	cmd.Env = filterEnv(spec.Env)

	// Capture stdout and stderr separately with independent byte caps.
	// os/exec drains each writer on its own goroutine, so a full buffer
	// on one stream never blocks the other.
	stdout := newCapWriter(spec.MaxOutputBytes)
	stderr := newCapWriter(spec.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Custom cancel function to kill the whole process group
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Kill entire process group (negative PID)
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	// WaitDelay ensures orphaned pipe holders don't block Wait()
	cmd.WaitDelay = 5 * time.Second

	outcome := &Outcome{
		StartedAt: time.Now(),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn failed: %w", err)
	}

	var statsOut chan *ProcessStats
	var stopStats context.CancelFunc
	if spec.CollectStats {
		var statsCtx context.Context
		statsCtx, stopStats = context.WithCancel(context.Background())
		statsOut = make(chan *ProcessStats, 1)
		go func() {
			statsOut <- sampleProcess(statsCtx, int32(cmd.Process.Pid))
		}()
	}

	waitErr := cmd.Wait()

	if stopStats != nil {
		stopStats()
		outcome.Stats = <-statsOut
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	outcome.Stdout = stdout.String()
	outcome.Stderr = stderr.String()
	outcome.StdoutTruncated = stdout.Truncated()
	outcome.StderrTruncated = stderr.Truncated()

	if waitErr != nil {
		// Timeout and caller cancellation both kill the process group;
		// they differ only in which context expired.
		if execCtx.Err() != nil {
			outcome.ExitCode = -1
			outcome.TimedOut = true
			outcome.Canceled = ctx.Err() != nil
			r.logger.Debug("subprocess killed",
				slog.String("script", spec.Path),
				slog.Bool("canceled", outcome.Canceled),
				slog.Int64("duration_ms", outcome.Duration.Milliseconds()),
			)
			return outcome, nil
		}

		// Check for exit error (non-zero exit code)
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, nil
		}

		// Other error (I/O failure collecting output, etc.)
		return nil, fmt.Errorf("execution failed: %w", waitErr)
	}

	outcome.ExitCode = 0
	return outcome, nil
}

// buildArgv assembles the argument vector: interpreter path (if any),
// script path, then the encoded parameters.
func (r *Runner) buildArgv(spec Spec) ([]string, error) {
	if spec.Interpreter == "" {
		return append([]string{spec.Path}, spec.Args...), nil
	}
	interpreterPath, err := r.interp.Verify(spec.Interpreter)
	if err != nil {
		return nil, fmt.Errorf("spawn failed: %w", err)
	}
	return append([]string{interpreterPath, spec.Path}, spec.Args...), nil
}

// filterEnv builds the subprocess environment from the allow-listed
// names. Variables not present in the bridge's own environment are
// simply absent.
func filterEnv(allowed []string) []string {
	env := make([]string, 0, len(allowed))
	for _, name := range allowed {
		if value, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+value)
		}
	}
	return env
}
