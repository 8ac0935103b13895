// Package unmount drives the bounded unmount ladder: escalating diskutil
// and umount attempts under a single deadline, busy-blocker detection via
// lsof, and a terminate-then-kill signal escalation against any
// sshfs-like helper process still holding the mount open.
package unmount
