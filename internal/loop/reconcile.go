//go:build linux

package loop

import (
	"log/slog"

	"github.com/ja7ad/prefetchd/internal/graph"
	"github.com/ja7ad/prefetchd/internal/markov"
	"github.com/ja7ad/prefetchd/internal/procscan"
)

// reconcileNewExes re-probes every exe path queued in g.NewExes against
// the pid it was last seen running under. An exe whose total mapped size
// meets minsize is registered (with pairing against every existing exe)
// and its accepted regions become its initial ExeMap set; one below
// minsize is recorded into BadExes instead. A path whose pid has since
// exited is left queued for the next tick's reconciliation.
func reconcileNewExes(g *graph.Graph, mapFilter *procscan.PrefixFilter, minsize uint64, cycle uint32) {
	for path, pid := range g.NewExes {
		regions, totalSize, err := procscan.EnumerateRegions(pid, mapFilter)
		if err != nil {
			slog.Debug("loop: new exe vanished before reconciliation", "path", path, "pid", pid)
			continue
		}
		delete(g.NewExes, path)

		if uint64(totalSize) < minsize {
			g.BadExes[path] = int64(g.Time)
			continue
		}

		e := &graph.Exe{Path: path, RunningTimestamp: g.Time, Running: true}
		idx, err := g.RegisterExe(e, true, cycle)
		if err != nil {
			slog.Warn("loop: failed to register reconciled exe", "path", path, "err", err)
			continue
		}

		for _, r := range regions {
			key := graph.RegionKey{Path: r.Path, Offset: r.Offset, Length: r.Length}
			regionIdx, ok := g.RegionIndex(key)
			if !ok {
				regionIdx, err = g.RegisterRegion(key)
				if err != nil {
					continue
				}
			}
			g.AddExeMap(idx, regionIdx, 1.0)
		}
	}
}

// changed stamps ChangeTimestamp on every exe queued in StateChangedExes
// and invokes the Markov state transition on each chain it participates
// in, deduplicated so a chain whose both endpoints changed this tick is
// transitioned once. The queue is drained afterward.
func changed(g *graph.Graph, now float64) {
	visited := make(map[int]bool)
	for _, idx := range g.StateChangedExes {
		e := g.Exe(idx)
		if e == nil {
			continue
		}
		e.ChangeTimestamp = now

		for _, cidx := range e.Chains {
			if visited[cidx] {
				continue
			}
			visited[cidx] = true

			c := g.Chain(cidx)
			a, b := g.Exe(c.A), g.Exe(c.B)
			if a == nil || b == nil {
				continue
			}
			markov.Transition(c, a.Running, b.Running, now)
		}
	}
	g.StateChangedExes = nil
}

// accounting adds the elapsed period since the last accounting pass to
// every currently-running exe's cumulative time, and to every chain
// currently in the "both running" state.
func accounting(g *graph.Graph) {
	period := g.Time - g.LastAccountingTimestamp

	for _, idx := range g.Exes() {
		e := g.Exe(idx)
		if e.Running {
			e.Time += period
		}
	}
	for _, cidx := range g.Chains() {
		c := g.Chain(cidx)
		if c.State == graph.StateBoth {
			c.Time += period
		}
	}

	g.LastAccountingTimestamp = g.Time
}
