// runner_test.go tests subprocess execution against real processes.
// It validates output capture, exit codes, timeout and cancellation
// kills, environment stripping, and per-stream truncation caps.
package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript creates an executable shell script in dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func newTestRunner() *Runner {
	return New([]string{"sh", "bash"}, nopLogger())
}

func TestRun_CapturesStdoutAndStderr(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "both.sh", `echo "to stdout"
echo "to stderr" >&2`)

	out, err := newTestRunner().Run(context.Background(), Spec{
		Path:    script,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", out.ExitCode)
	}
	if strings.TrimSpace(out.Stdout) != "to stdout" {
		t.Errorf("stdout = %q", out.Stdout)
	}
	if strings.TrimSpace(out.Stderr) != "to stderr" {
		t.Errorf("stderr = %q", out.Stderr)
	}
	if out.TimedOut {
		t.Error("unexpected timeout")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "fail.sh", "exit 3")

	out, err := newTestRunner().Run(context.Background(), Spec{
		Path:    script,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", out.ExitCode)
	}
}

func TestRun_ArgumentsPassedAsVector(t *testing.T) {
	dir := t.TempDir()
	// Metacharacters in arguments must arrive literally, not be
	// interpreted by a shell.
	script := writeScript(t, dir, "args.sh", `echo "$1|$2"`)

	out, err := newTestRunner().Run(context.Background(), Spec{
		Path:    script,
		Args:    []string{"-Tenant", "a;b&c"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(out.Stdout) != "-Tenant|a;b&c" {
		t.Errorf("stdout = %q", out.Stdout)
	}
}

func TestRun_TimeoutKillsProcess(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "slow.sh", `echo started
sleep 5
echo finished`)

	start := time.Now()
	out, err := newTestRunner().Run(context.Background(), Spec{
		Path:    script,
		Timeout: 200 * time.Millisecond,
		Env:     []string{"PATH"}, // sleep comes from PATH
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !out.TimedOut {
		t.Fatal("expected TimedOut")
	}
	if out.Canceled {
		t.Error("timeout must not be reported as cancellation")
	}
	if out.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", out.ExitCode)
	}
	if elapsed > 3*time.Second {
		t.Errorf("Run took %v, the kill should be prompt", elapsed)
	}
	// Partial output captured before the kill is preserved.
	if !strings.Contains(out.Stdout, "started") {
		t.Errorf("partial stdout lost: %q", out.Stdout)
	}
	if strings.Contains(out.Stdout, "finished") {
		t.Error("process was not killed")
	}
}

func TestRun_CancellationKillsProcess(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "slow.sh", "sleep 5")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	out, err := newTestRunner().Run(ctx, Spec{
		Path:    script,
		Timeout: time.Minute,
		Env:     []string{"PATH"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.TimedOut {
		t.Fatal("expected TimedOut on cancellation")
	}
	if !out.Canceled {
		t.Error("expected Canceled flag")
	}
}

func TestRun_EnvironmentStripped(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "env.sh", `echo "A=${BRIDGE_TEST_ALLOWED}" "B=${BRIDGE_TEST_BLOCKED}"`)

	t.Setenv("BRIDGE_TEST_ALLOWED", "yes")
	t.Setenv("BRIDGE_TEST_BLOCKED", "leaked")

	out, err := newTestRunner().Run(context.Background(), Spec{
		Path:    script,
		Timeout: 5 * time.Second,
		Env:     []string{"BRIDGE_TEST_ALLOWED"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := strings.TrimSpace(out.Stdout)
	if got != "A=yes B=" {
		t.Errorf("stdout = %q, want %q", got, "A=yes B=")
	}
}

func TestRun_OutputTruncatedAtCap(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "noisy.sh", `i=0
while [ $i -lt 1000 ]; do
  echo 0123456789
  i=$((i+1))
done`)

	out, err := newTestRunner().Run(context.Background(), Spec{
		Path:           script,
		Timeout:        5 * time.Second,
		MaxOutputBytes: 100,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.Stdout) != 100 {
		t.Errorf("stdout length = %d, want 100", len(out.Stdout))
	}
	if !out.StdoutTruncated {
		t.Error("expected StdoutTruncated")
	}
	if out.StderrTruncated {
		t.Error("stderr was silent, must not be flagged")
	}
	if out.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0 (script must run to completion past the cap)", out.ExitCode)
	}
}

func TestRun_SpawnFailure(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), Spec{
		Path:    filepath.Join(t.TempDir(), "does-not-exist.sh"),
		Timeout: time.Second,
	})
	if err == nil {
		t.Fatal("expected spawn error for missing script")
	}
}

func TestRun_WithInterpreter(t *testing.T) {
	dir := t.TempDir()
	// Not executable and no shebang: only runnable via an interpreter.
	path := filepath.Join(dir, "plain.sh")
	if err := os.WriteFile(path, []byte(`echo "via interpreter"`), 0644); err != nil {
		t.Fatalf("writing script: %v", err)
	}

	out, err := newTestRunner().Run(context.Background(), Spec{
		Path:        path,
		Interpreter: "sh",
		Timeout:     5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(out.Stdout) != "via interpreter" {
		t.Errorf("stdout = %q", out.Stdout)
	}
}

func TestRun_UnknownInterpreterRejected(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "x.sh", "echo hi")

	_, err := newTestRunner().Run(context.Background(), Spec{
		Path:        script,
		Interpreter: "ruby",
		Timeout:     time.Second,
	})
	if err == nil {
		t.Fatal("expected error for interpreter outside the allow-list")
	}
	if !strings.Contains(err.Error(), "invalid interpreter") {
		t.Errorf("error = %v, want invalid interpreter", err)
	}
}

func TestRun_CollectStats(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "linger.sh", "sleep 1")

	out, err := newTestRunner().Run(context.Background(), Spec{
		Path:         script,
		Timeout:      5 * time.Second,
		Env:          []string{"PATH"},
		CollectStats: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Stats == nil {
		t.Fatal("expected stats when collection is enabled")
	}
	if out.Stats.Samples == 0 {
		t.Error("expected at least one sample for a 1s process")
	}
}

func TestRun_NoStatsByDefault(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "quick.sh", "echo hi")

	out, err := newTestRunner().Run(context.Background(), Spec{
		Path:    script,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Stats != nil {
		t.Error("stats must be nil when collection is disabled")
	}
}
