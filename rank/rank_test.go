package rank

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRank_FiltersAndOrders(t *testing.T) {
	r := New(8)
	got := r.Rank([]string{"fooBar", "FooBaz", "foobar", "fetchUser"}, "foo")

	assert.Equal(t, []string{"fooBar", "FooBaz", "foobar"}, got)
	assert.NotContains(t, got, "fetchUser")
}

func TestRank_CapsAtMaxResults(t *testing.T) {
	var candidates []string
	for i := 0; i < 20; i++ {
		candidates = append(candidates, fmt.Sprintf("item%d", i))
	}
	got := New(8).Rank(candidates, "item")
	assert.Len(t, got, 8)
}

func TestRank_EmptyQuery(t *testing.T) {
	assert.Nil(t, New(8).Rank([]string{"a", "b"}, ""))
}

func TestRank_NoMatch(t *testing.T) {
	assert.Empty(t, New(8).Rank([]string{"alpha", "beta"}, "zz"))
}

func TestFilter_PrefersCamelHumps(t *testing.T) {
	got := Filter([]string{"suave", "saveUserAccount"}, "sua", 8)
	assert.Equal(t, []string{"saveUserAccount", "suave"}, got)
}

func TestFilter_KeepsOriginalOrderOnTies(t *testing.T) {
	got := Filter([]string{"abc", "abd", "abe"}, "ab", 8)
	assert.Equal(t, []string{"abc", "abd", "abe"}, got)
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name     string
		matches  []string
		query    string
		expected []string
	}{
		{
			name:     "upper case first",
			matches:  []string{"lower", "Upper"},
			query:    "x",
			expected: []string{"Upper", "lower"},
		},
		{
			name:     "case sensitive prefix within group",
			matches:  []string{"FooBaz", "fooBar"},
			query:    "foo",
			expected: []string{"fooBar", "FooBaz"},
		},
		{
			name:     "stable when keys tie",
			matches:  []string{"beta", "alpha", "gamma"},
			query:    "q",
			expected: []string{"beta", "alpha", "gamma"},
		},
		{
			name:     "prefix matters below upper",
			matches:  []string{"xfoo", "foo"},
			query:    "foo",
			expected: []string{"foo", "xfoo"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Order(tt.matches, tt.query))
		})
	}
}

func TestOrder_DoesNotMutateInput(t *testing.T) {
	in := []string{"b", "A"}
	Order(in, "z")
	assert.Equal(t, []string{"b", "A"}, in)
}

func TestHumpScore(t *testing.T) {
	assert.Equal(t, 3, humpScore([]rune("SUA"), []rune("saveUserAccount")))
	assert.Equal(t, 1, humpScore([]rune("SUA"), []rune("suave")))
	assert.Equal(t, 2, humpScore([]rune("GV"), []rune("get_value")))
	assert.Equal(t, 0, humpScore([]rune("ZZ"), []rune("abc")))
}

func TestNew_DefaultMaxResults(t *testing.T) {
	assert.Equal(t, DefaultMaxResults, New(0).MaxResults())
}

func TestRank_PrefixMatchAheadWhenBothHaveUpperCase(t *testing.T) {
	got := New(8).Rank([]string{"fetchUser", "fooBar", "FooBaz"}, "foo")
	assert.Equal(t, []string{"fooBar", "FooBaz"}, got)
}
