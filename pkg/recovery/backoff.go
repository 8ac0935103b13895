package recovery

import "time"

// wakeNetworkRestoredTransient/NonTransient and volumeUnmountedTransient/
// NonTransient are spec.md §4.H's backoff shapes (seconds), indexed by
// min(attempt, len-1) and capped at 60s.
var (
	wakeNetworkRestoredTransient    = []int{0, 1, 2, 4, 8, 15, 30, 45, 60}
	wakeNetworkRestoredNonTransient = []int{0, 2, 5, 10, 20, 30, 45, 60}

	volumeUnmountedTransient    = []int{0, 1, 2, 4, 8, 15, 30}
	volumeUnmountedNonTransient = []int{0, 2, 5, 10, 20, 30}
)

// isVolumeOrStatusTrigger classifies a reconnect trigger into one of the two
// backoff-shape families spec.md §4.H names; "periodic/default" uses the
// same shapes as wake/network-restored.
func isVolumeOrStatusTrigger(trigger Trigger) bool {
	return trigger == TriggerVolumeUnmounted || trigger == TriggerStatusChange
}

// backoffDelay returns the delay before the attempt'th (0-indexed)
// reconnect attempt for trigger, classified by whether the last observed
// error was transient.
func backoffDelay(attempt int, trigger Trigger, transient bool) time.Duration {
	var table []int
	switch {
	case isVolumeOrStatusTrigger(trigger) && transient:
		table = volumeUnmountedTransient
	case isVolumeOrStatusTrigger(trigger) && !transient:
		table = volumeUnmountedNonTransient
	case transient:
		table = wakeNetworkRestoredTransient
	default:
		table = wakeNetworkRestoredNonTransient
	}

	idx := attempt
	if idx >= len(table) {
		idx = len(table) - 1
	}
	if idx < 0 {
		idx = 0
	}
	seconds := table[idx]
	if seconds > 60 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// requiredStrikes is spec.md §4.H's table: how many consecutive
// not-connected recovery-pass results are needed before a trigger schedules
// an auto-reconnect.
func requiredStrikes(trigger Trigger) int {
	switch trigger {
	case TriggerWake, TriggerNetworkRestored:
		return 1
	case TriggerPeriodic:
		return 2
	default:
		return 1
	}
}
