package procrunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/sshfsmond/sshfsmond/pkg/log"
	"github.com/sshfsmond/sshfsmond/pkg/metrics"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// killGracePeriod is how long a terminated process group gets to exit on
// its own SIGTERM before being force-killed with SIGKILL.
const killGracePeriod = 600 * time.Millisecond

// Result is the outcome of one Run invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Combined returns stdout and stderr concatenated, the shape
// OperationError.Output expects.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Run executes executable with args in its own process group, applying
// envOverrides on top of the current environment, feeding stdin if
// non-empty, and enforcing timeout via a terminate-then-kill ladder.
func Run(ctx context.Context, executable string, args []string, envOverrides map[string]string, timeout time.Duration, stdin string) (Result, error) {
	logger := log.Logger.With().Str("executable", executable).Logger()

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.Command(executable, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = mergeEnv(envOverrides)

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.ProcessInvocationsTotal.WithLabelValues(executable, "start-error").Inc()
		return Result{}, types.NewProcessFailureError(fmt.Sprintf("failed to start %s: %v", executable, err), "")
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		timedOut = true
		terminateGroup(cmd, logger)
		select {
		case waitErr = <-done:
		case <-time.After(killGracePeriod):
			killGroup(cmd, logger)
			waitErr = <-done
		}
	}
	duration := time.Since(start)

	result := Result{
		Stdout:   drain(&stdout),
		Stderr:   drain(&stderr),
		TimedOut: timedOut,
		Duration: duration,
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	outcome := "ok"
	switch {
	case timedOut:
		outcome = "timeout"
		metrics.ProcessInvocationsTotal.WithLabelValues(executable, outcome).Inc()
		return result, types.NewTimeoutError(fmt.Sprintf("%s timed out after %s", executable, timeout))
	case waitErr != nil:
		outcome = "error"
		metrics.ProcessInvocationsTotal.WithLabelValues(executable, outcome).Inc()
		return result, types.NewProcessFailureError(fmt.Sprintf("%s: %v", executable, waitErr), result.Combined())
	}

	metrics.ProcessInvocationsTotal.WithLabelValues(executable, outcome).Inc()
	return result, nil
}

// terminateGroup sends SIGTERM to the whole process group so helper
// children (e.g. sshfs forking a second process) die with their parent.
func terminateGroup(cmd *exec.Cmd, logger zerolog.Logger) {
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		logger.Warn().Err(err).Msg("getpgid failed, sending SIGTERM to pid only")
		_ = cmd.Process.Signal(unix.SIGTERM)
		return
	}
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		logger.Warn().Err(err).Msg("SIGTERM to process group failed")
	}
}

// killGroup escalates to SIGKILL against the process group.
func killGroup(cmd *exec.Cmd, logger zerolog.Logger) {
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil {
		logger.Warn().Err(err).Msg("SIGKILL to process group failed")
	}
}

func mergeEnv(overrides map[string]string) []string {
	base := os.Environ()
	if len(overrides) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(overrides))
	merged = append(merged, base...)
	for k, v := range overrides {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	return merged
}

// drain reads whatever is left in a buffer without blocking; cmd.Wait has
// already returned by the time this is called so the buffers are settled.
func drain(b *bytes.Buffer) string {
	data, _ := io.ReadAll(b)
	return string(data)
}
