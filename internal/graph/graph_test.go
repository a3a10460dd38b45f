package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRegion_DuplicateFails(t *testing.T) {
	g := New()
	key := RegionKey{Path: "/bin/ls", Offset: 0, Length: 100}

	idx1, err := g.RegisterRegion(key)
	require.NoError(t, err)
	assert.EqualValues(t, 1, g.Region(idx1).Seq)

	_, err = g.RegisterRegion(key)
	assert.ErrorIs(t, err, ErrDuplicateRegion)
}

func TestRegisterRegion_SeqMonotonic(t *testing.T) {
	g := New()
	i1, _ := g.RegisterRegion(RegionKey{Path: "/a", Length: 1})
	i2, _ := g.RegisterRegion(RegionKey{Path: "/b", Length: 1})
	assert.Greater(t, g.Region(i2).Seq, g.Region(i1).Seq)
}

func TestRegisterExe_CreatesPairsWithExisting(t *testing.T) {
	g := New()
	a, _ := g.RegisterExe(&Exe{Path: "/bin/a"}, true, 20)
	b, _ := g.RegisterExe(&Exe{Path: "/bin/b"}, true, 20)

	cidx, ok := g.ChainBetween(a, b)
	require.True(t, ok)
	c := g.Chain(cidx)
	assert.EqualValues(t, 20, c.Cycle)

	// exactly one chain per unordered pair
	c2, _ := g.ChainBetween(b, a)
	assert.Equal(t, cidx, c2)
}

func TestRegisterExe_NoPairsWhenCreatePairsFalse(t *testing.T) {
	g := New()
	a, _ := g.RegisterExe(&Exe{Path: "/bin/a"}, true, 20)
	b, _ := g.RegisterExe(&Exe{Path: "/bin/b"}, false, 20)

	_, ok := g.ChainBetween(a, b)
	assert.False(t, ok)
}

func TestRegisterExe_DuplicateFails(t *testing.T) {
	g := New()
	_, err := g.RegisterExe(&Exe{Path: "/bin/a"}, false, 20)
	require.NoError(t, err)
	_, err = g.RegisterExe(&Exe{Path: "/bin/a"}, false, 20)
	assert.ErrorIs(t, err, ErrDuplicateExe)
}

func TestRemoveExe_UnlinksChainsFromPartners(t *testing.T) {
	g := New()
	a, _ := g.RegisterExe(&Exe{Path: "/bin/a"}, true, 20)
	b, _ := g.RegisterExe(&Exe{Path: "/bin/b"}, true, 20)
	c, _ := g.RegisterExe(&Exe{Path: "/bin/c"}, true, 20)

	require.Len(t, g.Exe(a).Chains, 2)
	require.Len(t, g.Exe(b).Chains, 2)
	require.Len(t, g.Exe(c).Chains, 2)

	g.RemoveExe(a)

	assert.Len(t, g.Exe(b).Chains, 1, "b should have lost its chain to a")
	assert.Len(t, g.Exe(c).Chains, 1, "c should have lost its chain to a")
	_, ok := g.ChainBetween(b, c)
	assert.True(t, ok, "b-c chain must survive a's removal")

	_, ok = g.ChainBetween(a, b)
	assert.False(t, ok)
}

func TestForEachChain_VisitsEachChainOnce(t *testing.T) {
	g := New()
	a, _ := g.RegisterExe(&Exe{Path: "/bin/a"}, true, 20)
	b, _ := g.RegisterExe(&Exe{Path: "/bin/b"}, true, 20)
	_, _ = g.RegisterExe(&Exe{Path: "/bin/c"}, true, 20)

	visitedFromA := 0
	g.ForEachChain(a, func(idx int, c *Chain) { visitedFromA++ })
	assert.Equal(t, 2, visitedFromA)

	// b is the canonical ('a') side only for chains formed against exes
	// registered after it -- here, just the b-c chain.
	visitedFromB := 0
	g.ForEachChain(b, func(idx int, c *Chain) { visitedFromB++ })
	assert.Equal(t, 1, visitedFromB)
}

func TestResyncChainStates_SetsStateFromRunningBitsWithoutTouchingWeight(t *testing.T) {
	g := New()
	a, _ := g.RegisterExe(&Exe{Path: "/bin/a", Running: true}, true, 20)
	b, _ := g.RegisterExe(&Exe{Path: "/bin/b", Running: false}, true, 20)

	cidx, ok := g.ChainBetween(a, b)
	require.True(t, ok)
	c := g.Chain(cidx)
	c.Weight[0][0] = 5 // simulate restored stats that must survive untouched

	g.Time = 1000
	g.StateChangedExes = []int{a, b}

	g.ResyncChainStates()

	assert.Equal(t, StateA, c.State)
	assert.InDelta(t, 1000, c.ChangeTimestamp, 1e-9)
	assert.EqualValues(t, 5, c.Weight[0][0], "resync must not record a transition")
	assert.Empty(t, g.StateChangedExes)
}

func TestAddExeMap_IncrementsRefcountAndRemoveExeUnregistersAtZero(t *testing.T) {
	g := New()
	ridx, err := g.RegisterRegion(RegionKey{Path: "/lib/libc.so", Length: 100})
	require.NoError(t, err)

	a, _ := g.RegisterExe(&Exe{Path: "/bin/a"}, false, 20)
	b, _ := g.RegisterExe(&Exe{Path: "/bin/b"}, false, 20)
	g.AddExeMap(a, ridx, 1.0)
	g.AddExeMap(b, ridx, 1.0)

	g.RemoveExe(a)
	_, ok := g.RegionIndex(RegionKey{Path: "/lib/libc.so", Length: 100})
	assert.True(t, ok, "region must survive while b still references it")

	g.RemoveExe(b)
	_, ok = g.RegionIndex(RegionKey{Path: "/lib/libc.so", Length: 100})
	assert.False(t, ok, "region must be unregistered once its last reference is gone")
}

func TestUnregisterRegion(t *testing.T) {
	g := New()
	key := RegionKey{Path: "/bin/ls", Length: 10}
	idx, _ := g.RegisterRegion(key)
	g.UnregisterRegion(idx)
	assert.Nil(t, g.Region(idx))
	_, ok := g.RegionIndex(key)
	assert.False(t, ok)
}
