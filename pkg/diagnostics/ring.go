package diagnostics

import (
	"sync"
	"time"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// DefaultCapacity is spec.md §4.J's default ring size.
const DefaultCapacity = 400

// Ring is a fixed-size, mutex-guarded ring buffer of DiagnosticEntry. Once
// full, each append discards the oldest entry.
type Ring struct {
	mu       sync.Mutex
	entries  []types.DiagnosticEntry
	capacity int
	next     int
	filled   bool
	redactor *Redactor
}

// NewRing builds a Ring holding at most capacity entries, redacting every
// appended message through redactor (which may be nil, appending
// sanitized-but-unredacted lines).
func NewRing(capacity int, redactor *Redactor) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		entries:  make([]types.DiagnosticEntry, capacity),
		capacity: capacity,
		redactor: redactor,
	}
}

// Append records one entry, sanitizing it to a single line and redacting
// any known secret before it is ever stored.
func (r *Ring) Append(level types.DiagnosticLevel, category, message string) {
	msg := message
	if r.redactor != nil {
		msg = r.redactor.Redact(message)
	} else {
		msg = sanitizeLine(message)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = types.DiagnosticEntry{
		Timestamp: time.Now(),
		Level:     level,
		Category:  category,
		Message:   msg,
	}
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.filled = true
	}
}

// Debug, Info, Warn, and Error append at their respective levels.
func (r *Ring) Debug(category, message string) { r.Append(types.LevelDebug, category, message) }
func (r *Ring) Info(category, message string)  { r.Append(types.LevelInfo, category, message) }
func (r *Ring) Warn(category, message string)  { r.Append(types.LevelWarn, category, message) }
func (r *Ring) Error(category, message string) { r.Append(types.LevelError, category, message) }

// Entries returns every retained entry in chronological order.
func (r *Ring) Entries() []types.DiagnosticEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		out := make([]types.DiagnosticEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}

	out := make([]types.DiagnosticEntry, r.capacity)
	copy(out, r.entries[r.next:])
	copy(out[r.capacity-r.next:], r.entries[:r.next])
	return out
}
