package unmount

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sshfsmond/sshfsmond/pkg/log"
	"github.com/sshfsmond/sshfsmond/pkg/mounttable"
	"github.com/sshfsmond/sshfsmond/pkg/procrunner"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

const (
	// DefaultDeadline bounds the whole ladder, across all rounds.
	DefaultDeadline = 10 * time.Second
	maxRounds        = 4
	maxRungTimeout   = 3 * time.Second
	minRungTimeout   = 500 * time.Millisecond
)

type rung struct {
	bin  string
	args func(path string) []string
}

// ladder is the fixed escalation sequence attempted every round.
var ladder = []rung{
	{bin: "/usr/sbin/diskutil", args: func(p string) []string { return []string{"unmount", p} }},
	{bin: "/sbin/umount", args: func(p string) []string { return []string{p} }},
	{bin: "/usr/sbin/diskutil", args: func(p string) []string { return []string{"unmount", "force", p} }},
	{bin: "/sbin/umount", args: func(p string) []string { return []string{"-f", p} }},
}

// Service executes the unmount ladder for the mount manager and recovery
// controller.
type Service struct {
	inspector *mounttable.Inspector

	psBin   string
	killBin string
	lsofBin string
}

// NewService builds a Service backed by the given mount table inspector.
func NewService(inspector *mounttable.Inspector) *Service {
	return &Service{
		inspector: inspector,
		psBin:     "/bin/ps",
		killBin:   "/bin/kill",
		lsofBin:   "/usr/sbin/lsof",
	}
}

// Unmount drives path (whose mount source is `source`, used to match
// helper processes) through the escalation ladder until the mount
// disappears or the deadline elapses.
func (s *Service) Unmount(ctx context.Context, path, source string) error {
	logger := log.WithRemoteID(path)
	norm := mounttable.Normalize(path)

	rec, err := s.inspector.Find(ctx, norm)
	if err == nil && rec == nil {
		return nil
	}

	deadline := time.Now().Add(DefaultDeadline)
	var lastErr error

	for round := 1; round <= maxRounds; round++ {
	rungs:
		for _, r := range ladder {
			remaining := time.Until(deadline)
			if remaining < minRungTimeout {
				return s.finalError(lastErr)
			}
			cmdTimeout := remaining
			if cmdTimeout > maxRungTimeout {
				cmdTimeout = maxRungTimeout
			}

			res, runErr := procrunner.Run(ctx, r.bin, r.args(path), nil, cmdTimeout, "")
			if runErr == nil {
				if still, findErr := s.inspector.Find(ctx, norm); findErr == nil && still == nil {
					return nil
				}
				continue
			}

			lastErr = runErr
			combined := res.Combined()
			if containsBusy(combined) {
				if blockers, lsofErr := s.nonSSHFSBlockers(ctx, path); lsofErr == nil && len(blockers) > 0 {
					return types.NewBusyError(blockers)
				}
			}
			continue rungs
		}

		switch round {
		case 1:
			logger.Debug().Msg("sending SIGTERM to sshfs helpers")
			s.signalHelpers(ctx, path, source, "-TERM")
		case 2:
			logger.Debug().Msg("sending SIGKILL to sshfs helpers")
			s.signalHelpers(ctx, path, source, "-KILL")
		}

		if still, findErr := s.inspector.Find(ctx, norm); findErr == nil && still == nil {
			return nil
		}
	}

	return s.finalError(lastErr)
}

func (s *Service) finalError(lastErr error) error {
	if lastErr == nil {
		return types.NewTimeoutError("unmount deadline exceeded")
	}
	if _, ok := lastErr.(*types.OperationError); ok {
		return lastErr
	}
	return types.NewProcessFailureError(lastErr.Error(), "")
}

// signalHelpers finds sshfs-like helper processes referencing path or
// source and delivers sig to each, never targeting pid <= 1.
func (s *Service) signalHelpers(ctx context.Context, path, source, sig string) {
	pids := s.findHelperPids(ctx, path, source)
	for _, pid := range pids {
		_, _ = procrunner.Run(ctx, s.killBin, []string{sig, strconv.Itoa(pid)}, nil, 2*time.Second, "")
	}
}

func (s *Service) findHelperPids(ctx context.Context, path, source string) []int {
	res, err := procrunner.Run(ctx, s.psBin, []string{"-axo", "pid=,command="}, nil, 3*time.Second, "")
	if err != nil {
		return nil
	}
	return parsePSHelperPids(res.Stdout, path, source)
}

// parsePSHelperPids extracts pids of sshfs-like processes whose command
// line mentions path or source, excluding pid <= 1.
func parsePSHelperPids(psOutput, path, source string) []int {
	var pids []int
	for _, line := range strings.Split(psOutput, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || pid <= 1 {
			continue
		}
		cmd := strings.ToLower(fields[1])
		if !strings.Contains(cmd, "sshfs") {
			continue
		}
		if !strings.Contains(fields[1], path) && (source == "" || !strings.Contains(fields[1], source)) {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

func (s *Service) nonSSHFSBlockers(ctx context.Context, path string) ([]string, error) {
	res, err := procrunner.Run(ctx, s.lsofBin, []string{"-n", "-w", "-Fpcn", "+D", path}, nil, 3*time.Second, "")
	if err != nil {
		return nil, err
	}
	return parseLsofBlockers(res.Stdout), nil
}

// parseLsofBlockers reads `lsof -Fpcn` field output and returns a
// human-readable entry for every open file whose owning process is not
// itself an sshfs helper.
func parseLsofBlockers(output string) []string {
	var blockers []string
	var curPid, curCmd string
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		tag, rest := line[0], line[1:]
		switch tag {
		case 'p':
			curPid = rest
		case 'c':
			curCmd = rest
		case 'n':
			if !strings.Contains(strings.ToLower(curCmd), "sshfs") {
				blockers = append(blockers, fmt.Sprintf("%s (pid %s): %s", curCmd, curPid, rest))
			}
		}
	}
	return blockers
}

func containsBusy(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "busy") || strings.Contains(lower, "resource busy")
}
