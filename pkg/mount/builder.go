package mount

import (
	"fmt"
	"strconv"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// buildSSHFSArgs returns the argument vector for the sshfs invocation
// described by remote, excluding the executable path itself. Secrets are
// never part of this vector; a password is delivered via the askpass
// environment instead.
func buildSSHFSArgs(remote types.RemoteConfig) []string {
	target := fmt.Sprintf("%s@%s:%s", remote.Username, remote.Host, remote.RemoteDirectory)

	args := []string{
		target,
		remote.LocalMountPath,
		"-p", strconv.Itoa(remote.Port),
		"-o", fmt.Sprintf("port=%d", remote.Port),
		"-o", "reconnect,ServerAliveInterval=15,ServerAliveCountMax=3",
		"-o", "StrictHostKeyChecking=accept-new",
	}

	switch remote.AuthMode {
	case types.AuthModePrivateKey:
		args = append(args, "-o", "IdentityFile="+remote.PrivateKeyPath, "-o", "IdentitiesOnly=yes")
	case types.AuthModePassword:
		args = append(args, "-o", "PasswordAuthentication=yes", "-o", "PubkeyAuthentication=no")
	}

	args = append(args, "-o", "defer_permissions", "-o", "noappledouble", "-o", "volname="+volumeName(remote))

	return args
}

func volumeName(remote types.RemoteConfig) string {
	if remote.DisplayName != "" {
		return remote.DisplayName
	}
	return remote.ID
}
