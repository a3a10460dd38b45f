//go:build linux

package loop

import (
	"log/slog"

	"github.com/ja7ad/prefetchd/internal/graph"
	"github.com/ja7ad/prefetchd/internal/procscan"
)

// scan walks the process table once, updating the graph's running-state
// bookkeeping: known exes seen running have their timestamp refreshed and
// are queued onto StateChangedExes/NewRunningExes the moment they flip
// from not-running to running; exes whose path isn't registered yet (and
// isn't already rejected in BadExes) are recorded into NewExes together
// with a pid the model-update tick can re-probe. Known exes not seen this
// scan are marked not-running, also queuing a state change.
func scan(g *graph.Graph, self int, exeFilter *procscan.PrefixFilter) error {
	seenRunning := make(map[int]bool, len(g.Exes()))

	err := procscan.EnumerateProcesses(self, exeFilter, func(pid int, exePath string) error {
		idx, ok := g.ExeIndex(exePath)
		if !ok {
			if _, bad := g.BadExes[exePath]; bad {
				return nil
			}
			g.NewExes[exePath] = pid
			return nil
		}

		seenRunning[idx] = true
		e := g.Exe(idx)
		e.RunningTimestamp = g.Time
		if !e.Running {
			e.Running = true
			g.StateChangedExes = append(g.StateChangedExes, idx)
			g.NewRunningExes = append(g.NewRunningExes, idx)
		}
		return nil
	})
	if err != nil {
		slog.Warn("loop: process scan failed", "err", err)
		return err
	}

	for _, idx := range g.Exes() {
		if seenRunning[idx] {
			continue
		}
		e := g.Exe(idx)
		if e.Running {
			e.Running = false
			g.StateChangedExes = append(g.StateChangedExes, idx)
		}
	}
	return nil
}
