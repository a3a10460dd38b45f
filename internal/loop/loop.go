//go:build linux

// Package loop implements the single-threaded cooperative event scheduler
// (C8): three self-rescheduling one-shot timers (autosave, scan/predict,
// model-update) merged with OS signal delivery in one select, so every
// graph mutation is serialized onto one goroutine with no interior locks.
package loop

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ja7ad/prefetchd/internal/config"
	"github.com/ja7ad/prefetchd/internal/graph"
	"github.com/ja7ad/prefetchd/internal/meminfo"
	"github.com/ja7ad/prefetchd/internal/predictor"
	"github.com/ja7ad/prefetchd/internal/procscan"
	"github.com/ja7ad/prefetchd/internal/readahead"
	"github.com/ja7ad/prefetchd/internal/store"
)

// Loop owns the shared context the event handlers mutate: the graph, the
// active configuration, the persistence connection, and the self pid
// excluded from process scans.
type Loop struct {
	Graph    *graph.Graph
	Store    *store.Store
	Cfg      *config.Config
	ConfPath string
	Self     int

	exeFilter *procscan.PrefixFilter
	mapFilter *procscan.PrefixFilter
}

// New builds a Loop from its shared dependencies, compiling the initial
// prefix filters from cfg.
func New(g *graph.Graph, s *store.Store, cfg *config.Config, confPath string, self int) *Loop {
	l := &Loop{Graph: g, Store: s, Cfg: cfg, ConfPath: confPath, Self: self}
	l.rebuildFilters()
	return l
}

func (l *Loop) rebuildFilters() {
	l.exeFilter = procscan.NewPrefixFilter(l.Cfg.System.ExePrefix)
	l.mapFilter = procscan.NewPrefixFilter(l.Cfg.System.MapPrefix)
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// Run drives the event loop until ctx is cancelled or a terminal signal,
// a save error during autosave, or SIGUSR2 (save-then-stop) ends it.
func (l *Loop) Run(ctx context.Context) error {
	// A loaded (or freshly created) graph doesn't know which chains are
	// currently running -- only dwell-time/weight statistics persist, not
	// running bits or chain state -- so resolve it once, directly, before
	// any tick runs a real markov transition against it.
	if l.Cfg.System.DoScan {
		if err := scan(l.Graph, l.Self, l.exeFilter); err != nil {
			slog.Warn("loop: initial scan failed", "err", err)
		}
	}
	l.Graph.ResyncChainStates()

	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2,
		syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	autosaveTimer := time.NewTimer(time.Duration(l.Cfg.System.Autosave) * time.Second)
	defer autosaveTimer.Stop()

	scanTimer := time.NewTimer(0)
	defer scanTimer.Stop()

	modelTimer := time.NewTimer(0)
	defer modelTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case sig := <-sigCh:
			stop, err := l.handleSignal(sig)
			if err != nil {
				return err
			}
			if stop {
				return stopErrorFor(sig)
			}

		case <-autosaveTimer.C:
			if err := store.Save(l.Store, l.Graph); err != nil {
				slog.Error("loop: autosave failed, stopping", "err", err)
				return ErrSave
			}
			autosaveTimer.Reset(time.Duration(l.Cfg.System.Autosave) * time.Second)

		case <-scanTimer.C:
			l.scanPredictTick()
			scanTimer.Reset(time.Duration(ceilDiv(l.Cfg.Model.Cycle+1, 2)) * time.Second)

		case <-modelTimer.C:
			l.modelUpdateTick()
			modelTimer.Reset(time.Duration(l.Cfg.Model.Cycle/2) * time.Second)
		}
	}
}

// scanPredictTick implements spec step 2 of the event loop: scan (if
// enabled), predict and issue read-ahead (if enabled), then advance
// logical time by ceil(cycle/2).
func (l *Loop) scanPredictTick() {
	g := l.Graph
	cfg := l.Cfg

	if cfg.System.DoScan {
		slog.Debug("loop: scan begin")
		if err := scan(g, l.Self, l.exeFilter); err != nil {
			slog.Warn("loop: scan failed", "err", err)
		}
		g.DumpLog()
		g.Dirty = true
		g.ModelDirty = true
		slog.Debug("loop: scan end")
	}

	if cfg.System.DoPredict {
		l.predict()
	}

	g.Time += float64(ceilDiv(cfg.Model.Cycle, 2))
}

func (l *Loop) predict() {
	g := l.Graph
	cfg := l.Cfg

	if snap, err := meminfo.Probe(); err != nil {
		slog.Warn("loop: meminfo probe failed, reusing last snapshot", "err", err)
	} else {
		g.MemInfo = snap
	}

	predictCfg := predictor.Config{
		UseCorrelation: cfg.Model.UseCorrelation,
		MemTotalPct:    cfg.Model.MemTotal,
		MemFreePct:     cfg.Model.MemFree,
		MemCachedPct:   cfg.Model.MemCached,
	}

	selections := predictor.Predict(g, predictCfg, g.MemInfo)
	if len(selections) == 0 {
		return
	}

	reqs := make([]readahead.Request, 0, len(selections))
	for _, sel := range selections {
		reqs = append(reqs, readahead.Request{
			Path:      sel.Key.Path,
			Offset:    sel.Key.Offset,
			Length:    sel.Key.Length,
			RegionIdx: sel.RegionIdx,
			Key:       g.Region(sel.RegionIdx).Block,
		})
	}

	strategy := readahead.SortStrategy(cfg.System.SortStrategy)
	if err := readahead.Sort(reqs, strategy); err != nil {
		slog.Warn("loop: readahead sort failed", "err", err)
	}
	if strategy == readahead.SortInode || strategy == readahead.SortBlock {
		for _, r := range reqs {
			g.Region(r.RegionIdx).Block = r.Key
		}
	}
	reqs = readahead.Coalesce(reqs)

	workers := int(cfg.System.Processes)
	n := readahead.Execute(context.Background(), reqs, workers)
	slog.Debug("loop: readahead issued", "requested", len(reqs), "succeeded", n)
}

// modelUpdateTick implements spec step 3 of the event loop: new-exe
// reconciliation, the changed callback, and accounting, then advances
// logical time by floor(cycle/2).
func (l *Loop) modelUpdateTick() {
	g := l.Graph
	cfg := l.Cfg

	if g.ModelDirty {
		reconcileNewExes(g, l.mapFilter, uint64(cfg.Model.MinSize), cfg.Model.Cycle)
		changed(g, g.Time)
		accounting(g)
		g.ModelDirty = false
	}

	g.Time += float64(cfg.Model.Cycle / 2)
}

// handleSignal translates a delivered signal into a loop action. The
// return stop is true when Run should exit.
func (l *Loop) handleSignal(sig os.Signal) (stop bool, err error) {
	switch sig {
	case syscall.SIGHUP:
		next, loadErr := config.Reload(l.ConfPath)
		if loadErr != nil {
			slog.Warn("loop: config reload failed, keeping previous configuration", "err", loadErr)
			return false, nil
		}
		l.Cfg = next
		l.rebuildFilters()
		slog.Info("loop: configuration reloaded")
		return false, nil

	case syscall.SIGUSR1:
		l.Graph.DumpLog()
		return false, nil

	case syscall.SIGUSR2:
		if saveErr := store.Save(l.Store, l.Graph); saveErr != nil {
			slog.Error("loop: save-before-stop failed", "err", saveErr)
		}
		return true, nil

	case syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT:
		return true, nil
	}
	return false, nil
}
