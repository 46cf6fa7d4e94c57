// Package revision decides whether a buffer change needs to reach the backend.
package revision

import "github.com/ThaneAcheron/veonim/session"

// Store holds the last observed revision of the active file.
type Store interface {
	Revision() int
	// ObserveRevision compares and records rev atomically, but only while
	// tok still names the current file context.
	ObserveRevision(tok session.Token, rev int) (due, ok bool)
}

// ShouldSync reports whether newRevision is ahead of current.
func ShouldSync(newRevision, current int) bool {
	return newRevision > current
}

// Tracker gates sync attempts on the editor's monotone change counter.
type Tracker struct {
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Observe compares rev against the stored revision of the file context tok
// was taken in and records it. The stored value is updated whatever the
// outcome of the sync that follows. ok is false when tok is stale; the
// caller must then drop the attempt.
func (t *Tracker) Observe(tok session.Token, rev int) (due, ok bool) {
	return t.store.ObserveRevision(tok, rev)
}

func (t *Tracker) Current() int {
	return t.store.Revision()
}
