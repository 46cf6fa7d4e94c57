// Package session holds the single mutable record shared by the sync and
// completion pipelines. Every write goes through a named method; writes that
// carry the result of an asynchronous call take a Token and are dropped when
// the token has gone stale.
package session

import (
	"sync"

	"github.com/ThaneAcheron/veonim/types"
)

// Uninitialized is the revision of a file context that has never been synced.
const Uninitialized = -1

// Session is the process-wide record of the active file context.
type Session struct {
	mu sync.RWMutex

	projectRoot  string
	filePath     string
	languageKind string
	revision     int
	anchorColumn int
	candidates   []string

	// generation is bumped on every file switch and every suppression so that
	// tokens captured earlier stop validating.
	generation uint64
	suppressed int
}

// Token identifies the session state an asynchronous call started from.
type Token struct {
	generation uint64
	filePath   string
}

// Snapshot is an immutable copy of the session.
type Snapshot struct {
	types.FileInfo
	AnchorColumn int
	Candidates   []string
}

func New() *Session {
	return &Session{revision: Uninitialized}
}

// EnterFile switches the file context. Revision resets to Uninitialized and
// candidates are cleared even if the path did not change.
func (s *Session) EnterFile(projectRoot, filePath, languageKind string) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projectRoot = projectRoot
	s.filePath = filePath
	s.languageKind = languageKind
	s.revision = Uninitialized
	s.anchorColumn = 0
	s.candidates = nil
	s.generation++

	return Token{generation: s.generation, filePath: s.filePath}
}

// FileInfo returns the identity attached to backend calls.
func (s *Session) FileInfo() types.FileInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileInfoLocked()
}

func (s *Session) fileInfoLocked() types.FileInfo {
	return types.FileInfo{
		ProjectRoot:  s.projectRoot,
		FilePath:     s.filePath,
		LanguageKind: s.languageKind,
		Revision:     s.revision,
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		FileInfo:     s.fileInfoLocked(),
		AnchorColumn: s.anchorColumn,
		Candidates:   append([]string(nil), s.candidates...),
	}
}

func (s *Session) Revision() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Session) AnchorColumn() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anchorColumn
}

// ResetAnchor moves the query anchor back to the start of the line.
func (s *Session) ResetAnchor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchorColumn = 0
}

func (s *Session) Candidates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.candidates...)
}

// ClearCandidates drops the current candidate list.
func (s *Session) ClearCandidates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = nil
}

// ApplyCandidates replaces the candidate list and anchor if tok is still valid.
func (s *Session) ApplyCandidates(tok Token, candidates []string, anchorColumn int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(tok) {
		return false
	}
	s.candidates = append([]string(nil), candidates...)
	s.anchorColumn = max(0, anchorColumn)
	return true
}

// ObserveRevision records rev as the last observed revision of the file
// context tok was taken in and reports whether rev was ahead of it. Lower
// values are ignored so the revision never decreases within a file context.
// ok is false, and nothing is written, when tok has gone stale.
func (s *Session) ObserveRevision(tok Token, rev int) (due, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(tok) {
		return false, false
	}
	if rev <= s.revision {
		return false, true
	}
	s.revision = rev
	return true, true
}

// Token captures the current file context and suppression generation.
func (s *Session) Token() Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Token{generation: s.generation, filePath: s.filePath}
}

// Valid reports whether results produced under tok may still be applied.
func (s *Session) Valid(tok Token) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked(tok)
}

func (s *Session) validLocked(tok Token) bool {
	return s.suppressed == 0 && tok.generation == s.generation && tok.filePath == s.filePath
}

// Suppressed reports whether synchronization is paused.
func (s *Session) Suppressed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suppressed > 0
}

// Suppress pauses synchronization and invalidates every outstanding token.
// The returned resume func may be called more than once.
func (s *Session) Suppress() (resume func()) {
	s.mu.Lock()
	s.suppressed++
	s.generation++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.suppressed--
			s.mu.Unlock()
		})
	}
}
