package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sshfsmond/sshfsmond/pkg/browser"
	"github.com/sshfsmond/sshfsmond/pkg/mount"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

func TestSnapshot_RedactsExtraSecretInRemotesSection(t *testing.T) {
	r := NewRing(10, NewRedactor())
	report := r.Snapshot(SnapshotInputs{
		Remotes: []types.RemoteConfig{{ID: "r1", Username: "u", Host: "h", Port: 22, RemoteDirectory: "/r"}},
		Statuses: map[string]types.RemoteStatus{
			"r1": {RemoteID: "r1", State: types.StateError, LastError: "authentication failed for hunter2"},
		},
		ExtraSecrets: []string{"hunter2"},
	})

	assert.NotContains(t, report, "hunter2")
	assert.Contains(t, report, sentinel)
}

func TestSnapshot_ContainsEverySectionHeader(t *testing.T) {
	r := NewRing(10, nil)
	report := r.Snapshot(SnapshotInputs{
		Dependency:     mount.DependencyStatus{IsReady: true, DiscoveredPath: "/usr/local/bin/sshfs"},
		BrowserSummary: browser.Summary{Total: 1, Healthy: 1},
	})

	for _, header := range []string{"Remotes", "Dependency", "Browser Sessions", "Active Operations", "Mount Table", "Recent Events"} {
		assert.Contains(t, report, "== "+header+" ==")
	}
	assert.Contains(t, report, "sshfs ready at /usr/local/bin/sshfs")
}

func TestSnapshot_EmptySectionsReportNone(t *testing.T) {
	r := NewRing(10, nil)
	report := r.Snapshot(SnapshotInputs{})
	assert.Contains(t, report, "(none)")
}

func TestSnapshot_DependencyNotReadyListsIssues(t *testing.T) {
	r := NewRing(10, nil)
	report := r.Snapshot(SnapshotInputs{
		Dependency: mount.DependencyStatus{IsReady: false, Issues: []string{"sshfs not found"}},
	})
	assert.Contains(t, report, "sshfs not ready")
	assert.Contains(t, report, "sshfs not found")
}
