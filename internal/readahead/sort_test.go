//go:build linux

package readahead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSort_None_KeepsOrder(t *testing.T) {
	reqs := []Request{{Path: "/z"}, {Path: "/a"}}
	require.NoError(t, Sort(reqs, SortNone))
	assert.Equal(t, "/z", reqs[0].Path)
}

func TestSort_Path_Lexicographic(t *testing.T) {
	reqs := []Request{{Path: "/z"}, {Path: "/a"}, {Path: "/m"}}
	require.NoError(t, Sort(reqs, SortPath))
	assert.Equal(t, []string{"/a", "/m", "/z"}, []string{reqs[0].Path, reqs[1].Path, reqs[2].Path})
}

func TestSort_Block_UsesExistingKeyWithoutStat(t *testing.T) {
	reqs := []Request{
		{Path: "/nonexistent/a", Key: 5},
		{Path: "/nonexistent/b", Key: 1},
	}
	require.NoError(t, Sort(reqs, SortBlock))
	assert.Equal(t, int64(1), reqs[0].Key)
	assert.Equal(t, int64(5), reqs[1].Key)
}

func TestSort_UnknownStrategy(t *testing.T) {
	err := Sort(nil, SortStrategy(99))
	assert.Error(t, err)
}
