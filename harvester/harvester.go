// Package harvester keeps a per-file keyword index fed by full document syncs.
// Updates are incremental: only lines that changed since the previous
// snapshot are re-scanned.
package harvester

import (
	"regexp"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/ThaneAcheron/veonim/logger"
)

// MinWordLength is the shortest token worth offering as a completion.
const MinWordLength = 2

var wordPattern = regexp.MustCompile(`[A-Za-z_$][\w$\-]*`)

type fileKey struct {
	project string
	file    string
}

type fileIndex struct {
	lines  []string
	counts map[string]int
	// pinned words were accepted by the user and survive line removal
	pinned map[string]bool
	words  *btree.BTreeG[string]
}

func newFileIndex() *fileIndex {
	return &fileIndex{
		counts: make(map[string]int),
		pinned: make(map[string]bool),
		words:  btree.NewOrderedG[string](16),
	}
}

// Harvester is safe for concurrent use.
type Harvester struct {
	mu    sync.RWMutex
	files map[fileKey]*fileIndex
	dmp   *diffmatchpatch.DiffMatchPatch
}

func New() *Harvester {
	return &Harvester{
		files: make(map[fileKey]*fileIndex),
		dmp:   diffmatchpatch.New(),
	}
}

// Update indexes lines as the new content of file.
func (h *Harvester) Update(project, file string, lines []string) {
	defer logger.Trace("harvester.Update")()

	h.mu.Lock()
	defer h.mu.Unlock()

	key := fileKey{project, file}
	idx, ok := h.files[key]
	if !ok {
		idx = newFileIndex()
		h.files[key] = idx
	}

	added, removed := h.changedLines(idx.lines, lines)
	for _, line := range removed {
		for _, w := range words(line) {
			idx.remove(w)
		}
	}
	for _, line := range added {
		for _, w := range words(line) {
			idx.add(w)
		}
	}
	idx.lines = append([]string(nil), lines...)
}

// changedLines diffs two snapshots line by line.
func (h *Harvester) changedLines(prev, next []string) (added, removed []string) {
	if len(prev) == 0 {
		return next, nil
	}
	a := strings.Join(prev, "\n") + "\n"
	b := strings.Join(next, "\n") + "\n"
	c1, c2, lineArray := h.dmp.DiffLinesToChars(a, b)
	diffs := h.dmp.DiffCharsToLines(h.dmp.DiffMain(c1, c2, false), lineArray)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added = append(added, splitLines(d.Text)...)
		case diffmatchpatch.DiffDelete:
			removed = append(removed, splitLines(d.Text)...)
		}
	}
	return added, removed
}

// AddWord records an accepted completion so it is offered again.
func (h *Harvester) AddWord(project, file, word string) {
	if len(word) < MinWordLength {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	key := fileKey{project, file}
	idx, ok := h.files[key]
	if !ok {
		idx = newFileIndex()
		h.files[key] = idx
	}
	idx.pinned[word] = true
	idx.words.ReplaceOrInsert(word)
}

// GetKeywords returns the indexed words of file in lexical order, or nil if
// the file was never indexed.
func (h *Harvester) GetKeywords(project, file string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	idx, ok := h.files[fileKey{project, file}]
	if !ok {
		return nil
	}
	out := make([]string, 0, idx.words.Len())
	idx.words.Ascend(func(w string) bool {
		out = append(out, w)
		return true
	})
	return out
}

// Forget drops the index of file.
func (h *Harvester) Forget(project, file string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.files, fileKey{project, file})
}

func (idx *fileIndex) add(w string) {
	idx.counts[w]++
	if idx.counts[w] == 1 {
		idx.words.ReplaceOrInsert(w)
	}
}

func (idx *fileIndex) remove(w string) {
	n, ok := idx.counts[w]
	if !ok {
		return
	}
	if n > 1 {
		idx.counts[w] = n - 1
		return
	}
	delete(idx.counts, w)
	if !idx.pinned[w] {
		idx.words.Delete(w)
	}
}

func words(line string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(line, -1) {
		w = strings.TrimRight(w, "-")
		if len(w) >= MinWordLength {
			out = append(out, w)
		}
	}
	return out
}

func splitLines(text string) []string {
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
