// Package procrunner runs external helper commands (mount, umount, sshfs,
// diskutil, lsof, and the askpass script that stands in for one) in their
// own process group and enforces a bounded teardown: a deadline triggers a
// terminate-then-kill escalation so a hung helper can never hang sshfsmond
// itself.
package procrunner
