package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/prefetchd/internal/graph"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTemp(t)

	var count int
	row := s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN
		('states','exes','maps','badexes','exemaps','markovstates')`)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 6, count)
}

func TestSaveThenLoad_RoundTripsGraphContents(t *testing.T) {
	s := openTemp(t)

	g := graph.New()
	g.Time = 42.5

	regionIdx, err := g.RegisterRegion(graph.RegionKey{Path: "/usr/lib/libc.so", Offset: 0, Length: 4096})
	require.NoError(t, err)

	aIdx, err := g.RegisterExe(&graph.Exe{Path: "/usr/bin/a", Time: 10}, false, 20)
	require.NoError(t, err)
	bIdx, err := g.RegisterExe(&graph.Exe{Path: "/usr/bin/b", Time: 5}, true, 20)
	require.NoError(t, err)

	g.Exe(aIdx).Maps = append(g.Exe(aIdx).Maps, graph.ExeMap{RegionIdx: regionIdx, Prob: 0.75})
	g.BadExes["/tmp/tooshort"] = 99

	chainIdx, ok := g.ChainBetween(aIdx, bIdx)
	require.True(t, ok)
	chain := g.Chain(chainIdx)
	chain.Weight[1][1] = 7
	chain.Weight[1][3] = 2
	chain.TimeToLeave[1] = 12.5
	chain.Time = 3.0

	require.NoError(t, Save(s, g))
	assert.False(t, g.Dirty)
	assert.Empty(t, g.BadExes)

	loaded, err := Load(s)
	require.NoError(t, err)

	assert.InDelta(t, 42.5, loaded.Time, 1e-9)

	loadedA, ok := loaded.ExeIndex("/usr/bin/a")
	require.True(t, ok)
	loadedB, ok := loaded.ExeIndex("/usr/bin/b")
	require.True(t, ok)
	assert.InDelta(t, 10, loaded.Exe(loadedA).Time, 1e-9)
	assert.InDelta(t, 5, loaded.Exe(loadedB).Time, 1e-9)

	require.Len(t, loaded.Exe(loadedA).Maps, 1)
	loadedRegionIdx := loaded.Exe(loadedA).Maps[0].RegionIdx
	assert.Equal(t, "/usr/lib/libc.so", loaded.Region(loadedRegionIdx).Path)
	assert.InDelta(t, 0.75, loaded.Exe(loadedA).Maps[0].Prob, 1e-9)

	loadedChainIdx, ok := loaded.ChainBetween(loadedA, loadedB)
	require.True(t, ok)
	loadedChain := loaded.Chain(loadedChainIdx)
	assert.Equal(t, int32(7), loadedChain.Weight[1][1])
	assert.Equal(t, int32(2), loadedChain.Weight[1][3])
	assert.InDelta(t, 12.5, loadedChain.TimeToLeave[1], 1e-9)
	assert.InDelta(t, 3.0, loadedChain.Time, 1e-9)

	_, stillBad := loaded.BadExes["/tmp/tooshort"]
	assert.False(t, stillBad, "save flushes bad_exes after a successful commit")
}

func TestLoad_EmptyDatabaseYieldsEmptyGraph(t *testing.T) {
	s := openTemp(t)

	g, err := Load(s)
	require.NoError(t, err)
	assert.Zero(t, g.Time)
	assert.Empty(t, g.Exes())
	assert.Empty(t, g.Regions())
}

func TestLoad_SkipsExeMapRowsWithJoinMiss(t *testing.T) {
	s := openTemp(t)

	_, err := s.db.Exec(`INSERT INTO exes (seq, update_time, time, uri) VALUES (1, 0, 0, 'file:///bin/a')`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO exemaps (seq, map_seq, prob) VALUES (1, 999, 0.5)`)
	require.NoError(t, err)

	g, err := Load(s)
	require.NoError(t, err)

	idx, ok := g.ExeIndex("/bin/a")
	require.True(t, ok)
	assert.Empty(t, g.Exe(idx).Maps)
}

func TestMajorMismatch(t *testing.T) {
	newer, mismatch := majorMismatch("2.0.0", "1.4.0")
	assert.True(t, mismatch)
	assert.True(t, newer)

	newer, mismatch = majorMismatch("1.0.0", "2.0.0")
	assert.True(t, mismatch)
	assert.False(t, newer)

	_, mismatch = majorMismatch("1.2.0", "1.9.0")
	assert.False(t, mismatch)
}
