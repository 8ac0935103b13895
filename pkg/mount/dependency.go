package mount

import (
	"fmt"
	"os/exec"
)

// DependencyStatus is the result of checking whether the sshfs binary this
// core depends on is present and usable, per spec.md §6's dependency
// checker contract.
type DependencyStatus struct {
	IsReady        bool
	DiscoveredPath string
	Issues         []string
}

// candidateSSHFSPaths are checked in order before falling back to PATH
// lookup, matching the fixed-absolute-path convention spec.md §6 requires
// for every other invoked executable.
var candidateSSHFSPaths = []string{
	"/usr/local/bin/sshfs",
	"/opt/homebrew/bin/sshfs",
	"/usr/bin/sshfs",
}

// CheckDependencies resolves the sshfs binary's path, trying the fixed
// well-known install locations before a PATH search. The resolved path is
// what callers must pass to NewManager; 4.A/4.C never accept a bare
// command name.
func CheckDependencies() DependencyStatus {
	for _, candidate := range candidateSSHFSPaths {
		if path, err := exec.LookPath(candidate); err == nil {
			return DependencyStatus{IsReady: true, DiscoveredPath: path}
		}
	}
	if path, err := exec.LookPath("sshfs"); err == nil {
		return DependencyStatus{IsReady: true, DiscoveredPath: path}
	}
	return DependencyStatus{
		IsReady: false,
		Issues:  []string{fmt.Sprintf("sshfs not found in %v or PATH", candidateSSHFSPaths)},
	}
}
