// Package rank filters and orders completion candidates for a typed query.
package rank

import (
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultMaxResults is the popup size used when none is configured.
const DefaultMaxResults = 8

type Ranker struct {
	maxResults int
}

func New(maxResults int) *Ranker {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Ranker{maxResults: maxResults}
}

func (r *Ranker) MaxResults() int { return r.maxResults }

// Rank fuzzy-filters candidates against query, keeps the best MaxResults and
// applies the case tie-break.
func (r *Ranker) Rank(candidates []string, query string) []string {
	if query == "" {
		return nil
	}
	return Order(Filter(candidates, query, r.maxResults), query)
}

type scored struct {
	target   string
	humps    int
	distance int
	index    int
}

// Filter returns the candidates that contain query as a case-insensitive
// subsequence, best matches first. Matches that land on word starts and
// camel-case humps rank higher; ties fall back to edit distance and then to
// the original candidate order.
func Filter(candidates []string, query string, maxResults int) []string {
	upper := strings.ToUpper(query)
	ranks := fuzzy.RankFindFold(upper, candidates)
	if len(ranks) == 0 {
		return nil
	}

	q := []rune(upper)
	matches := make([]scored, 0, len(ranks))
	for _, r := range ranks {
		matches = append(matches, scored{
			target:   r.Target,
			humps:    humpScore(q, []rune(r.Target)),
			distance: r.Distance,
			index:    r.OriginalIndex,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.humps != b.humps {
			return a.humps > b.humps
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.index < b.index
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.target
	}
	return out
}

// Order stable-sorts matches so entries containing an upper-case letter come
// first, and within that, entries starting with query (case-sensitive).
// For "foo", ["fooBar" "FooBaz"] keep that order: both contain an upper-case
// letter and only "fooBar" has the case-sensitive prefix. Earlier releases
// put "FooBaz" first; the change in public ordering is deliberate.
func Order(matches []string, query string) []string {
	out := append([]string(nil), matches...)
	key := func(s string) int {
		k := 0
		if !hasUpper(s) {
			k += 2
		}
		if !strings.HasPrefix(s, query) {
			k++
		}
		return k
	}
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// humpScore counts query runes that can be matched on a word start while
// still leaving a valid match for the rest of the query.
func humpScore(query, target []rune) int {
	pos, score := 0, 0
	for i, q := range query {
		next := indexFold(target, pos, q)
		if next < 0 {
			return 0
		}
		if h := indexHump(target, pos, q); h >= 0 && isSubsequence(query[i+1:], target[h+1:]) {
			pos = h + 1
			score++
			continue
		}
		pos = next + 1
	}
	return score
}

func isHump(target []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev, cur := target[i-1], target[i]
	if unicode.IsUpper(cur) && !unicode.IsUpper(prev) {
		return true
	}
	return !unicode.IsLetter(prev) && !unicode.IsDigit(prev) && unicode.IsLetter(cur)
}

func indexHump(target []rune, from int, q rune) int {
	for i := from; i < len(target); i++ {
		if isHump(target, i) && unicode.ToUpper(target[i]) == q {
			return i
		}
	}
	return -1
}

func indexFold(target []rune, from int, q rune) int {
	for i := from; i < len(target); i++ {
		if unicode.ToUpper(target[i]) == q {
			return i
		}
	}
	return -1
}

func isSubsequence(query, target []rune) bool {
	pos := 0
	for _, q := range query {
		i := indexFold(target, pos, q)
		if i < 0 {
			return false
		}
		pos = i + 1
	}
	return true
}
