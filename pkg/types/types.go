package types

import (
	"fmt"
	"time"
)

// AuthMode selects how a remote authenticates to its SSH host.
type AuthMode string

const (
	AuthModePassword   AuthMode = "password"
	AuthModePrivateKey AuthMode = "private-key"
)

// RemoteConfig is the external, read-only-to-the-core description of one
// user-defined SSHFS mount. Its owner is the persistence collaborator;
// the core only ever holds a read-mostly snapshot of it.
type RemoteConfig struct {
	ID               string
	DisplayName      string
	Host             string
	Port             int
	Username         string
	RemoteDirectory  string
	LocalMountPath   string
	AuthMode         AuthMode
	PrivateKeyPath   string
	AutoConnect      bool
	FavoritePaths    []string
	RecentPaths      []string
}

// Validate checks the constraints spec.md §7 classifies as Validation errors.
func (r RemoteConfig) Validate() error {
	if r.ID == "" {
		return NewValidationError("remote id must not be empty")
	}
	if r.Host == "" {
		return NewValidationError("host must not be empty")
	}
	if r.Port < 1 || r.Port > 65535 {
		return NewValidationError(fmt.Sprintf("port %d out of range 1..65535", r.Port))
	}
	if r.LocalMountPath == "" {
		return NewValidationError("local mount path must not be empty")
	}
	if r.LocalMountPath[0] != '/' {
		return NewValidationError("local mount path must be absolute")
	}
	if r.AuthMode == AuthModePrivateKey && r.PrivateKeyPath == "" {
		return NewValidationError("private-key auth mode requires a private key path")
	}
	return nil
}

// ConnectionState is the lifecycle state of one remote's mount.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnecting ConnectionState = "disconnecting"
	StateError        ConnectionState = "error"
)

// RemoteStatus is the observable status of one remote.
//
// Invariants: State==Connected implies MountedPath is non-empty;
// State==Disconnected implies MountedPath is empty;
// State==Error implies LastError is non-empty.
type RemoteStatus struct {
	RemoteID    string
	State       ConnectionState
	MountedPath string
	LastError   string
	UpdatedAt   time.Time
}

// Validate checks the state/field invariants spec.md §3 names.
func (s RemoteStatus) Validate() error {
	switch s.State {
	case StateConnected:
		if s.MountedPath == "" {
			return fmt.Errorf("connected status must carry a mounted path")
		}
	case StateDisconnected:
		if s.MountedPath != "" {
			return fmt.Errorf("disconnected status must not carry a mounted path")
		}
	case StateError:
		if s.LastError == "" {
			return fmt.Errorf("error status must carry a last-error message")
		}
	}
	return nil
}

// MountRecord is one parsed entry from the system mount table or its df fallback.
type MountRecord struct {
	Source         string
	MountPoint     string
	FilesystemType string
}

// OperationIntent is what an operation is trying to accomplish.
type OperationIntent string

const (
	IntentConnect    OperationIntent = "connect"
	IntentDisconnect OperationIntent = "disconnect"
	IntentRefresh    OperationIntent = "refresh"
	IntentTest       OperationIntent = "test"
)

// OperationTrigger is who asked for the operation.
type OperationTrigger string

const (
	TriggerManual      OperationTrigger = "manual"
	TriggerRecovery    OperationTrigger = "recovery"
	TriggerStartup     OperationTrigger = "startup"
	TriggerTermination OperationTrigger = "termination"
)

// ConflictPolicy controls what happens when a new operation is requested
// for a remote that already has one in flight.
type ConflictPolicy string

const (
	PolicyLatestIntentWins ConflictPolicy = "latest-intent-wins"
	PolicySkipIfBusy       ConflictPolicy = "skip-if-busy"
)

// OperationState describes one admitted operation slot.
type OperationState struct {
	OperationID   string
	RemoteID      string
	Intent        OperationIntent
	Trigger       OperationTrigger
	StartedAt     time.Time
	Cancelled     bool
	SupersededBy  string
	AlertSuppressed bool
}

// BrowserEntry is one directory-only entry returned by a browser listing.
type BrowserEntry struct {
	Name       string
	FullPath   string
	ModifiedAt *time.Time
}

// BrowserHealthState is the connection health of one browser session.
type BrowserHealthState string

const (
	BrowserConnecting  BrowserHealthState = "connecting"
	BrowserHealthy     BrowserHealthState = "healthy"
	BrowserDegraded    BrowserHealthState = "degraded"
	BrowserReconnecting BrowserHealthState = "reconnecting"
	BrowserFailed      BrowserHealthState = "failed"
	BrowserClosed      BrowserHealthState = "closed"
)

// BrowserConnectionHealth is the health snapshot of one browser session.
type BrowserConnectionHealth struct {
	State         BrowserHealthState
	LastSuccessAt *time.Time
	LastLatencyMs *int64
	LastError     string
}

// BrowserSnapshot is the result of one list/go-up/retry request.
type BrowserSnapshot struct {
	RequestID       uint64
	NormalizedPath  string
	Entries         []BrowserEntry
	Health          BrowserConnectionHealth
	IsStale         bool
	IsConfirmedEmpty bool
	Message         string
	LatencyMs       int64
	FromCache       bool
}

// RecoveryIndicator is emitted whenever there is active recovery work in progress.
type RecoveryIndicator struct {
	Reason                 string
	StartedAt              time.Time
	PendingRemoteCount     int
	ScheduledReconnectCount int
}

// DiagnosticLevel is the severity of one diagnostic entry.
type DiagnosticLevel string

const (
	LevelDebug DiagnosticLevel = "debug"
	LevelInfo  DiagnosticLevel = "info"
	LevelWarn  DiagnosticLevel = "warning"
	LevelError DiagnosticLevel = "error"
)

// DiagnosticEntry is one redacted, single-line log line retained in the
// diagnostics ring buffer.
type DiagnosticEntry struct {
	Timestamp time.Time
	Level     DiagnosticLevel
	Category  string
	Message   string
}

// ConnectionSummary aggregates RemoteStatus across all known remotes.
type ConnectionSummary struct {
	Total        int
	Connected    int
	Connecting   int
	Disconnected int
	Errored      int
}
