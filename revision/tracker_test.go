package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThaneAcheron/veonim/session"
)

func TestShouldSync(t *testing.T) {
	tests := []struct {
		name     string
		next     int
		current  int
		expected bool
	}{
		{"uninitialized", 1, -1, true},
		{"advanced", 8, 7, true},
		{"unchanged", 7, 7, false},
		{"behind", 3, 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldSync(tt.next, tt.current))
		})
	}
}

func observe(t *testing.T, tr *Tracker, s *session.Session, rev int) bool {
	t.Helper()
	due, ok := tr.Observe(s.Token(), rev)
	require.True(t, ok)
	return due
}

func TestTracker_ObserveIsIdempotentPerRevision(t *testing.T) {
	s := session.New()
	s.EnterFile("/proj", "a.go", "go")
	tr := NewTracker(s)

	assert.True(t, observe(t, tr, s, 4))
	assert.False(t, observe(t, tr, s, 4), "same revision twice syncs once")
	assert.Equal(t, 4, tr.Current())
}

func TestTracker_ResetOnFileSwitch(t *testing.T) {
	s := session.New()
	s.EnterFile("/proj", "a.go", "go")
	tr := NewTracker(s)
	assert.True(t, observe(t, tr, s, 40))

	s.EnterFile("/proj", "b.go", "go")
	assert.True(t, observe(t, tr, s, 3), "lower revision in a new file still syncs")
}

func TestTracker_RevisionDoesNotDecrease(t *testing.T) {
	s := session.New()
	tr := NewTracker(s)
	observe(t, tr, s, 10)
	assert.False(t, observe(t, tr, s, 2))
	assert.Equal(t, 10, tr.Current())
}

func TestTracker_StaleTokenAfterSwitch(t *testing.T) {
	s := session.New()
	s.EnterFile("/proj", "a.go", "go")
	tr := NewTracker(s)
	tok := s.Token()

	// the switch lands between taking the token and observing the tick
	s.EnterFile("/proj", "b.go", "go")
	_, ok := tr.Observe(tok, 300)
	assert.False(t, ok)
	assert.Equal(t, session.Uninitialized, tr.Current())
	assert.True(t, observe(t, tr, s, 4), "new file's first edit still syncs")
}
