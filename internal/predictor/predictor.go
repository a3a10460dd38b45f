// Package predictor runs the per-cycle inference pass (C5): it resets
// probabilities, drives every Markov chain's bid, folds exe probabilities
// into their mapped regions, and selects a working set under a memory
// budget for the read-ahead executor.
package predictor

import (
	"sort"

	"github.com/ja7ad/prefetchd/internal/graph"
	"github.com/ja7ad/prefetchd/internal/markov"
	"github.com/ja7ad/prefetchd/internal/meminfo"
	"github.com/ja7ad/prefetchd/pkg/types"
)

// Config mirrors the "model" section of the configuration file that
// governs one prediction pass.
type Config struct {
	UseCorrelation bool
	MemTotalPct    int32 // clamped to [-100, 100]
	MemFreePct     int32
	MemCachedPct   int32
}

// Selection is one region chosen for read-ahead, in most-needed-first
// order.
type Selection struct {
	RegionIdx int
	Key       graph.RegionKey
}

func clampPct(p int32) int32 {
	if p < -100 {
		return -100
	}
	if p > 100 {
		return 100
	}
	return p
}

// Budget computes the KiB budget available for prefetching, given a
// MemInfo snapshot and the configured percentages. Each percentage is
// clamped to [-100, 100] before use.
//
// budget = max(0, total*memtotal/100 + free*memfree/100) + cached*memcached/100
func Budget(mem meminfo.Snapshot, cfg Config) float64 {
	total := clampPct(cfg.MemTotalPct)
	free := clampPct(cfg.MemFreePct)
	cached := clampPct(cfg.MemCachedPct)

	core := float64(mem.Total)*float64(total)/100 + float64(mem.Free)*float64(free)/100
	if core < 0 {
		core = 0
	}
	return core + float64(mem.Cached)*float64(cached)/100
}

// Predict runs one full inference pass over g and returns the selected
// regions, preserving most-needed-first order, under the memory budget
// derived from mem and cfg.
func Predict(g *graph.Graph, cfg Config, mem meminfo.Snapshot) []Selection {
	// Step 1: zero every region's lnprob.
	for _, idx := range g.Regions() {
		g.Region(idx).Lnprob = 0
	}

	// Step 2: zero every exe's lnprob, then run every chain's bid. These
	// must be two complete passes over all exes before any folding
	// happens: ForEachChain visits a chain only from its canonical 'a'
	// side, so a chain C(A=x, B=y) bids into y during x's iteration. If
	// zeroing, bidding, and folding were fused into one per-exe loop, y's
	// bid would either be wiped out by y's own zero-lnprob step (if y is
	// visited after x) or folded into its regions before the bid ever
	// landed (if visited before x), depending on Go's unspecified map
	// iteration order over g.Exes().
	for _, idx := range g.Exes() {
		g.Exe(idx).Lnprob = 0
	}
	for _, idx := range g.Exes() {
		g.ForEachChain(idx, func(_ int, c *graph.Chain) {
			a := g.Exe(c.A)
			b := g.Exe(c.B)
			markov.BidInExes(c, a, b, g.Time, cfg.UseCorrelation)
		})
	}

	// Step 3: fold every exe's now-final lnprob into its mapped regions.
	for _, idx := range g.Exes() {
		e := g.Exe(idx)
		for _, em := range e.Maps {
			r := g.Region(em.RegionIdx)
			if r == nil {
				continue
			}
			if e.Running {
				r.Lnprob = 1.0
			} else {
				r.Lnprob += e.Lnprob
			}
		}
	}

	// Step 4: sort all regions by lnprob ascending (most needed first).
	regionIdxs := g.Regions()
	sort.SliceStable(regionIdxs, func(i, j int) bool {
		return g.Region(regionIdxs[i]).Lnprob < g.Region(regionIdxs[j]).Lnprob
	})

	// Step 5: compute the KiB budget.
	budget := Budget(mem, cfg)

	// Step 6: walk the sorted list, selecting while it fits the budget.
	selected := make([]Selection, 0, len(regionIdxs))
	for _, idx := range regionIdxs {
		r := g.Region(idx)
		if r.Lnprob >= 0 {
			continue
		}
		sizeKB := types.Bytes(r.Length).KB()
		if sizeKB > budget {
			continue
		}
		budget -= sizeKB
		selected = append(selected, Selection{RegionIdx: idx, Key: r.RegionKey})
	}

	return selected
}
