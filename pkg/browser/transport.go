package browser

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// Transport lists directory-only entries of a remote filesystem. The only
// implementation shipped is sftpTransport; tests substitute a fake.
type Transport interface {
	ListDir(ctx context.Context, remotePath string) ([]types.BrowserEntry, error)
	Close() error
}

const dialTimeout = 10 * time.Second

// sftpTransport backs a browser session with a real SFTP connection
// established over the remote's configured SSH credentials.
type sftpTransport struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
}

// DialSFTP opens an SSH connection to remote and wraps it in an SFTP
// client. It is the default Transport constructor used by Manager.Open.
func DialSFTP(ctx context.Context, remote types.RemoteConfig, password string) (Transport, error) {
	authMethods, err := authMethodsFor(remote, password)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            remote.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", remote.Host, remote.Port)
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, types.NewTransientError(fmt.Sprintf("dialing %s: %v", addr, err))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, classifyDialError(err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, types.NewProcessFailureError(fmt.Sprintf("opening sftp session: %v", err), "")
	}

	return &sftpTransport{sshClient: sshClient, sftpClient: sftpClient}, nil
}

func classifyDialError(err error) error {
	msg := err.Error()
	if types.IsPermanent(msg) || strings.Contains(strings.ToLower(msg), "unable to authenticate") {
		return types.NewAuthFailedError("authentication failed: check the configured password or private key")
	}
	return types.NewTransientError(msg)
}

func authMethodsFor(remote types.RemoteConfig, password string) ([]ssh.AuthMethod, error) {
	switch remote.AuthMode {
	case types.AuthModePrivateKey:
		keyBytes, err := os.ReadFile(remote.PrivateKeyPath)
		if err != nil {
			return nil, types.NewPermanentFailureError(fmt.Sprintf("reading private key: %v", err))
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, types.NewPermanentFailureError(fmt.Sprintf("parsing private key: %v", err))
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	default:
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}
}

func (t *sftpTransport) ListDir(ctx context.Context, remotePath string) ([]types.BrowserEntry, error) {
	infos, err := t.sftpClient.ReadDir(remotePath)
	if err != nil {
		return nil, err
	}

	entries := make([]types.BrowserEntry, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		modTime := info.ModTime()
		entries = append(entries, types.BrowserEntry{
			Name:       info.Name(),
			FullPath:   path.Join(remotePath, info.Name()),
			ModifiedAt: &modTime,
		})
	}
	return entries, nil
}

func (t *sftpTransport) Close() error {
	var firstErr error
	if t.sftpClient != nil {
		firstErr = t.sftpClient.Close()
	}
	if t.sshClient != nil {
		if err := t.sshClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
