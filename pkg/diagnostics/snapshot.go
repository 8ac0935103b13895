package diagnostics

import (
	"fmt"
	"strings"
	"time"

	"github.com/sshfsmond/sshfsmond/pkg/browser"
	"github.com/sshfsmond/sshfsmond/pkg/mount"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// SnapshotInputs gathers every collaborator's current state the report
// needs. Any field may be left at its zero value when that section isn't
// available (e.g. a caller building a report before the browser manager
// has been constructed).
type SnapshotInputs struct {
	Remotes           []types.RemoteConfig
	Statuses          map[string]types.RemoteStatus
	Dependency        mount.DependencyStatus
	BrowserSummary    browser.Summary
	ActiveOperations  []types.OperationState
	MountRecords      []types.MountRecord
	RecentEntries     []types.DiagnosticEntry
	ExtraSecrets      []string
}

// Snapshot builds spec.md §4.J's multi-section plain-text diagnostics
// report. Every line is independently redacted so a section written by a
// future caller can't bypass the guarantee by skipping the ring's own
// per-append redaction.
func (r *Ring) Snapshot(in SnapshotInputs) string {
	redactor := r.redactor
	if redactor == nil {
		redactor = NewRedactor()
	}
	if len(in.ExtraSecrets) > 0 {
		redactor = redactor.WithExtra(in.ExtraSecrets...)
	}

	var b strings.Builder
	writeSection(&b, "Remotes", remotesSection(in.Remotes, in.Statuses), redactor)
	writeSection(&b, "Dependency", dependencySection(in.Dependency), redactor)
	writeSection(&b, "Browser Sessions", browserSection(in.BrowserSummary), redactor)
	writeSection(&b, "Active Operations", operationsSection(in.ActiveOperations), redactor)
	writeSection(&b, "Mount Table", mountTableSection(in.MountRecords), redactor)
	writeSection(&b, "Recent Events", eventsSection(in.RecentEntries), redactor)
	return b.String()
}

func writeSection(b *strings.Builder, title string, lines []string, redactor *Redactor) {
	fmt.Fprintf(b, "== %s ==\n", title)
	if len(lines) == 0 {
		b.WriteString("(none)\n")
	}
	for _, line := range lines {
		b.WriteString(redactor.Redact(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func remotesSection(remotes []types.RemoteConfig, statuses map[string]types.RemoteStatus) []string {
	lines := make([]string, 0, len(remotes))
	for _, r := range remotes {
		st := statuses[r.ID]
		line := fmt.Sprintf("%s (%s@%s:%d%s) state=%s", r.ID, r.Username, r.Host, r.Port, r.RemoteDirectory, st.State)
		if st.MountedPath != "" {
			line += " mounted=" + st.MountedPath
		}
		if st.LastError != "" {
			line += " last_error=" + st.LastError
		}
		lines = append(lines, line)
	}
	return lines
}

func dependencySection(dep mount.DependencyStatus) []string {
	if dep.IsReady {
		return []string{fmt.Sprintf("sshfs ready at %s", dep.DiscoveredPath)}
	}
	lines := []string{"sshfs not ready"}
	lines = append(lines, dep.Issues...)
	return lines
}

func browserSection(s browser.Summary) []string {
	return []string{fmt.Sprintf(
		"total=%d healthy=%d degraded=%d reconnecting=%d failed=%d connecting=%d",
		s.Total, s.Healthy, s.Degraded, s.Reconnecting, s.Failed, s.Connecting,
	)}
}

func operationsSection(ops []types.OperationState) []string {
	lines := make([]string, 0, len(ops))
	for _, op := range ops {
		lines = append(lines, fmt.Sprintf(
			"remote=%s intent=%s trigger=%s started=%s cancelled=%t",
			op.RemoteID, op.Intent, op.Trigger, op.StartedAt.Format(time.RFC3339), op.Cancelled,
		))
	}
	return lines
}

func mountTableSection(records []types.MountRecord) []string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("%s on %s (%s)", rec.Source, rec.MountPoint, rec.FilesystemType))
	}
	return lines
}

func eventsSection(entries []types.DiagnosticEntry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s %s: %s", e.Timestamp.Format(time.RFC3339), e.Level, e.Category, e.Message))
	}
	return lines
}
