package slices2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pair struct {
	k int
	v string
}

func lessPair(a, b pair) bool { return a.k < b.k }

func TestMerge(t *testing.T) {
	a := []pair{{1, "a"}, {3, "a"}, {3, "a2"}, {7, "a"}}
	b := []pair{{0, "b"}, {3, "b"}, {8, "b"}}
	out := Merge(a, b, lessPair)
	require.Equal(t, []pair{
		{0, "b"}, {1, "a"}, {3, "a"}, {3, "a2"}, {3, "b"}, {7, "a"}, {8, "b"},
	}, out)
	require.True(t, IsSorted(out, lessPair))
}

func TestMergeEmpty(t *testing.T) {
	require.Len(t, Merge[pair]([]pair(nil), nil, lessPair), 0)
	require.Equal(t, []pair{{1, "a"}}, Merge([]pair{{1, "a"}}, nil, lessPair))
	require.Equal(t, []pair{{1, "b"}}, Merge(nil, []pair{{1, "b"}}, lessPair))
}

func TestIsSorted(t *testing.T) {
	require.True(t, IsSorted([]pair{}, lessPair))
	require.False(t, IsSorted([]pair{{2, ""}, {1, ""}}, lessPair))
}
