package graph

import (
	"log/slog"

	"github.com/ja7ad/prefetchd/internal/meminfo"
)

// Graph is the singleton in-memory state: the entity arenas plus the
// transient bookkeeping the training loop needs between scans.
type Graph struct {
	Time float64 // logical time, monotonic, advanced by half-cycle ticks

	regions    map[int]*Region
	regionKey  map[RegionKey]int
	regionSeq  int64
	nextRegion int

	exes      map[int]*Exe
	exePath   map[string]int
	exeSeq    int64
	nextExe   int

	chains    map[int]*Chain
	pairChain map[pairKey]int
	nextChain int

	BadExes map[string]int64 // path -> logical time it was recorded (persisted as update_time)

	// transient, rebuilt each cycle by the scanner / model-update tick
	NewExes          map[string]int // path -> pid, seen running but not yet registered
	StateChangedExes []int          // exe indices whose running bit flipped this scan
	NewRunningExes   []int          // exe indices newly seen running this scan

	LastRunningTimestamp    float64
	LastAccountingTimestamp float64

	MemInfo meminfo.Snapshot

	Dirty      bool
	ModelDirty bool
}

type pairKey struct{ lo, hi int }

func makePairKey(a, b int) pairKey {
	if a < b {
		return pairKey{a, b}
	}
	return pairKey{b, a}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		regions:   map[int]*Region{},
		regionKey: map[RegionKey]int{},
		exes:      map[int]*Exe{},
		exePath:   map[string]int{},
		chains:    map[int]*Chain{},
		pairChain: map[pairKey]int{},
		BadExes:   map[string]int64{},
		NewExes:   map[string]int{},
	}
}

// RegisterRegion assigns the region its seq and inserts it. Fails with
// ErrDuplicateRegion if an equal (path, offset, length) region is already
// present.
func (g *Graph) RegisterRegion(key RegionKey) (int, error) {
	if _, ok := g.regionKey[key]; ok {
		return 0, ErrDuplicateRegion
	}
	g.regionSeq++
	idx := g.nextRegion
	g.nextRegion++
	g.regions[idx] = &Region{
		RegionKey: key,
		Seq:       g.regionSeq,
		Block:     -1,
	}
	g.regionKey[key] = idx
	return idx, nil
}

// Region returns the region at idx, or nil if unknown.
func (g *Graph) Region(idx int) *Region { return g.regions[idx] }

// RegionIndex looks up a region by its identity key.
func (g *Graph) RegionIndex(key RegionKey) (int, bool) {
	idx, ok := g.regionKey[key]
	return idx, ok
}

// Regions returns every registered region index.
func (g *Graph) Regions() []int {
	out := make([]int, 0, len(g.regions))
	for idx := range g.regions {
		out = append(out, idx)
	}
	return out
}

// UnregisterRegion removes a region from the registry. Called once the
// last ExeMap referencing it is dropped.
func (g *Graph) UnregisterRegion(idx int) {
	r, ok := g.regions[idx]
	if !ok {
		return
	}
	delete(g.regionKey, r.RegionKey)
	delete(g.regions, idx)
}

// AddExeMap records that exeIdx's process maps regionIdx with the given
// usage probability: it appends the ExeMap and increments the region's
// reference count, so that RemoveExe can tell when a region has no more
// referencing exes left and should be dropped from the arena.
func (g *Graph) AddExeMap(exeIdx, regionIdx int, prob float64) {
	e, ok := g.exes[exeIdx]
	if !ok {
		return
	}
	r, ok := g.regions[regionIdx]
	if !ok {
		return
	}
	e.Maps = append(e.Maps, ExeMap{RegionIdx: regionIdx, Prob: prob})
	r.refcount++
}

// RegisterExe assigns the exe its seq and inserts it. When createPairs is
// true, a new Chain is created pairing this exe with every other existing
// exe, seeded with the given cycle length. Fails with ErrDuplicateExe if
// the path is already known.
func (g *Graph) RegisterExe(e *Exe, createPairs bool, cycle uint32) (int, error) {
	if _, ok := g.exePath[e.Path]; ok {
		return 0, ErrDuplicateExe
	}
	g.exeSeq++
	e.Seq = g.exeSeq
	idx := g.nextExe
	g.nextExe++
	g.exes[idx] = e
	g.exePath[e.Path] = idx

	if createPairs {
		for other := range g.exes {
			if other == idx {
				continue
			}
			g.newChain(other, idx, cycle)
		}
	}
	return idx, nil
}

// Exe returns the exe at idx, or nil if unknown.
func (g *Graph) Exe(idx int) *Exe { return g.exes[idx] }

// ExeIndex looks up an exe by path.
func (g *Graph) ExeIndex(path string) (int, bool) {
	idx, ok := g.exePath[path]
	return idx, ok
}

// Exes returns every registered exe index.
func (g *Graph) Exes() []int {
	out := make([]int, 0, len(g.exes))
	for idx := range g.exes {
		out = append(out, idx)
	}
	return out
}

// newChain creates and indexes a chain between exe indices a and b,
// appending it to both exes' Chains lists in sorted order. Returns the
// existing chain index if the pair is already paired (defensive; normal
// callers only invoke this for genuinely new exes).
func (g *Graph) newChain(a, b int, cycle uint32) int {
	pk := makePairKey(a, b)
	if idx, ok := g.pairChain[pk]; ok {
		return idx
	}

	idx := g.nextChain
	g.nextChain++
	c := &Chain{A: a, B: b, Cycle: cycle}
	g.chains[idx] = c
	g.pairChain[pk] = idx

	g.exes[a].Chains = insertSorted(g.exes[a].Chains, idx)
	g.exes[b].Chains = insertSorted(g.exes[b].Chains, idx)
	return idx
}

func insertSorted(s []int, v int) []int {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeValue(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// RestoreChain recreates a chain between exe indices a and b with
// previously-persisted time/dwell/weight state, used by the store when
// loading a saved graph. The chain's State and ChangeTimestamp are left
// at their zero values; neither running state nor current state is
// persisted, so the caller must resolve both from a fresh scan via
// ResyncChainStates before the chain takes part in any real transition.
func (g *Graph) RestoreChain(a, b int, time float64, ttl [4]float64, weight [4][4]int32) int {
	idx := g.newChain(a, b, 0)
	c := g.chains[idx]
	c.Time = time
	c.TimeToLeave = ttl
	c.Weight = weight
	return idx
}

// SetAllCycles stamps every chain's Cycle field, used once after a load
// to apply the running configuration's cycle length (not itself
// persisted, since it is a configuration value rather than model state).
func (g *Graph) SetAllCycles(cycle uint32) {
	for _, c := range g.chains {
		c.Cycle = cycle
	}
}

// ResyncChainStates sets every chain's State directly from its two
// endpoints' current Running bits and stamps ChangeTimestamp to the
// graph's current logical time. This is a plain assignment, not a
// weighted markov transition: chain state is never persisted (only the
// dwell-time and transition-count statistics are), so after a load -- or
// at daemon start -- every chain's state is unknown until the first
// process scan observes it. Routing that resolution through
// markov.Transition would record a bogus transition between whatever
// state a restored chain defaults to and the first state actually
// observed, corrupting its weight and dwell-time statistics. Any
// StateChangedExes/NewRunningExes queued by the scan that produced the
// running bits being resynced from are cleared, since this resync
// already accounts for them.
func (g *Graph) ResyncChainStates() {
	for _, c := range g.chains {
		a := g.exes[c.A]
		b := g.exes[c.B]
		if a == nil || b == nil {
			continue
		}
		c.State = ChainStateFor(a.Running, b.Running)
		c.ChangeTimestamp = g.Time
	}
	g.StateChangedExes = nil
	g.NewRunningExes = nil
}

// Chains returns every registered chain index.
func (g *Graph) Chains() []int {
	out := make([]int, 0, len(g.chains))
	for idx := range g.chains {
		out = append(out, idx)
	}
	return out
}

// Chain returns the chain at idx, or nil if unknown.
func (g *Graph) Chain(idx int) *Chain { return g.chains[idx] }

// ChainBetween returns the chain index pairing a and b, if any.
func (g *Graph) ChainBetween(a, b int) (int, bool) {
	idx, ok := g.pairChain[makePairKey(a, b)]
	return idx, ok
}

// RemoveExe drops the exe at idx, unlinking it from every chain it
// participates in: each chain is removed from the partner's Chains list,
// then from the chain arena, before the exe itself is removed. Every
// region the exe mapped has its reference count decremented, and is
// itself unregistered once that count reaches zero. Satisfies invariant 3.
func (g *Graph) RemoveExe(idx int) {
	e, ok := g.exes[idx]
	if !ok {
		return
	}

	for _, em := range e.Maps {
		r, ok := g.regions[em.RegionIdx]
		if !ok {
			continue
		}
		r.refcount--
		if r.refcount <= 0 {
			g.UnregisterRegion(em.RegionIdx)
		}
	}

	for _, cidx := range append([]int(nil), e.Chains...) {
		c, ok := g.chains[cidx]
		if !ok {
			continue
		}
		partner := c.A
		if partner == idx {
			partner = c.B
		}
		if pe, ok := g.exes[partner]; ok {
			pe.Chains = removeValue(pe.Chains, cidx)
		}
		delete(g.pairChain, makePairKey(c.A, c.B))
		delete(g.chains, cidx)
	}

	delete(g.exePath, e.Path)
	delete(g.exes, idx)
}

// ForEachChain visits each chain exactly once, invoking fn with the chain
// index only when the given exe index matches the chain's 'a' endpoint
// (the canonical side) -- this is preload's "markov_foreach".
func (g *Graph) ForEachChain(exeIdx int, fn func(chainIdx int, c *Chain)) {
	e := g.exes[exeIdx]
	if e == nil {
		return
	}
	for _, cidx := range e.Chains {
		c := g.chains[cidx]
		if c == nil || c.A != exeIdx {
			continue
		}
		fn(cidx, c)
	}
}

// DumpLog emits entity counts for diagnostics, wired to SIGUSR1 in the
// event loop.
func (g *Graph) DumpLog() {
	slog.Info("graph state",
		"exes", len(g.exes),
		"regions", len(g.regions),
		"chains", len(g.chains),
		"bad_exes", len(g.BadExes),
		"time", g.Time,
	)
}
