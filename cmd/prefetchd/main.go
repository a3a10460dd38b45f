//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ja7ad/prefetchd/internal/config"
	"github.com/ja7ad/prefetchd/internal/loop"
	"github.com/ja7ad/prefetchd/internal/store"
	"github.com/ja7ad/prefetchd/internal/sysutil"
)

type opts struct {
	confFile   string
	stateFile  string
	logFile    string
	foreground bool
	nice       int
	verbosity  int
	quiet      bool
	debug      bool
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "prefetchd",
		Short: "Adaptive prefetch daemon",
		Long: `prefetchd watches which executables tend to run together, learns a
pairwise co-occurrence model of their mapped files, and issues advisory
read-ahead for the files it predicts the next cycle will need.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o)
		},
	}

	root.Flags().StringVar(&o.confFile, "conffile", "/etc/prefetchd.conf", "configuration file path (empty disables file config)")
	root.Flags().StringVar(&o.stateFile, "statefile", "/var/lib/prefetchd/prefetchd.state", "persisted model state path")
	root.Flags().StringVar(&o.logFile, "logfile", "/var/log/prefetchd.log", "log file path (empty logs to stderr)")
	root.Flags().BoolVar(&o.foreground, "foreground", false, "do not daemonize")
	root.Flags().IntVar(&o.nice, "nice", 15, "process niceness")
	root.Flags().IntVar(&o.verbosity, "verbosity", 2, "log verbosity 0..5 (off/error/warn/info/debug/trace)")
	root.Flags().BoolVar(&o.quiet, "quiet", false, "equivalent to --verbosity 0")
	root.Flags().BoolVar(&o.debug, "debug", false, "foreground, stderr logging, trace verbosity")

	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error(err.Error())
		var termSig *loop.TerminalSignal
		if errors.As(err, &termSig) {
			os.Exit(int(termSig.Signal))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	if o.quiet && (o.verbosity != 2 || o.debug) {
		return fmt.Errorf("--quiet is mutually exclusive with --verbosity and --debug")
	}
	if o.debug && o.verbosity != 2 {
		return fmt.Errorf("--debug is mutually exclusive with --verbosity")
	}
	if o.quiet {
		o.verbosity = 0
	}
	if o.debug {
		o.foreground = true
		o.logFile = ""
		o.verbosity = 5
	}

	cfg, err := config.Load(o.confFile)
	if err != nil {
		return err
	}

	if !o.foreground {
		if err := sysutil.Daemonize(o.logFile); err != nil {
			return err
		}
	}

	setupLogging(o.logFile, o.verbosity)

	if err := sysutil.SetNice(o.nice); err != nil {
		slog.Warn("failed to set niceness, continuing", "err", err)
	}

	st, err := store.Open(o.stateFile)
	if err != nil {
		return err
	}
	defer st.Close()

	g, err := store.Load(st)
	if err != nil {
		return err
	}
	g.SetAllCycles(cfg.Model.Cycle)

	l := loop.New(g, st, cfg, o.confFile, os.Getpid())

	return l.Run(ctx)
}

// verbosityToLevel maps the 0..5+ CLI scale (off/error/warn/info/debug/trace)
// onto slog's four levels; trace collapses onto debug since slog has no
// finer level below it.
func verbosityToLevel(v int) (slog.Level, bool) {
	switch {
	case v <= 0:
		return slog.LevelError, false // "off" approximated as error-only
	case v == 1:
		return slog.LevelError, true
	case v == 2:
		return slog.LevelWarn, true
	case v == 3:
		return slog.LevelInfo, true
	default:
		return slog.LevelDebug, true
	}
}

func setupLogging(logFile string, verbosity int) {
	level, _ := verbosityToLevel(verbosity)

	var w io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = f
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
