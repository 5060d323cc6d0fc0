package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"foobartory.ai/internal/logging"
	"foobartory.ai/internal/persistence/indexdb"
	persistlog "foobartory.ai/internal/persistence/log"
	"foobartory.ai/internal/persistence/snapshot"
	"foobartory.ai/internal/replay"
	"foobartory.ai/internal/sim/factory"
	"foobartory.ai/internal/sim/tuning"
)

type options struct {
	runDir     string
	eventsDir  string
	snapPath   string
	tuningPath string
	seed       int64
	fromTick   uint64
	toTick     uint64
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		if errors.Is(err, replay.ErrDigestMismatch) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-simulate a recorded run and verify its digests",
		Long: `Re-simulate a recorded run and verify every tick digest.

The run starts fresh, or from --snapshot, and is stepped through the ticks of
the events log. Tuning comes from --tuning, else from the run index, else the
defaults.

Exit codes:
  0 - every checked digest matched
  1 - digest mismatch
  2 - command error

Examples:
  replay --run_dir ./data/runs/run_a
  replay --run_dir ./data/runs/run_a --snapshot ./data/runs/run_a/snapshots/5000.snap.zst --to_tick 6000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.runDir, "run_dir", "", "run directory written by the server (required)")
	_ = cmd.MarkFlagRequired("run_dir")
	f.StringVar(&opts.eventsDir, "events", "", "events dir (default: <run_dir>/events)")
	f.StringVar(&opts.snapPath, "snapshot", "", "path to .snap.zst to start from (optional)")
	f.StringVar(&opts.tuningPath, "tuning", "", "path to tuning.yaml (optional)")
	f.Int64Var(&opts.seed, "seed", 0, "override the recorded seed")
	f.Uint64Var(&opts.fromTick, "from_tick", 0, "start verifying from tick (inclusive, optional)")
	f.Uint64Var(&opts.toTick, "to_tick", 0, "stop at tick (inclusive, optional)")
	f.StringVar(&opts.logLevel, "log_level", "warn", "log level (debug|info|warn|error)")
	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	logger, err := logging.New(cmd.ErrOrStderr(), "replay", opts.logLevel)
	if err != nil {
		return err
	}

	runDir := filepath.Clean(opts.runDir)
	runID := filepath.Base(runDir)
	eventsDir := strings.TrimSpace(opts.eventsDir)
	if eventsDir == "" {
		eventsDir = persistlog.EventsDir(runDir)
	}

	tune, err := loadTuning(opts.tuningPath, runDir, runID, logger)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		tune.Seed = opts.seed
	}

	var snap *snapshot.SnapshotV1
	if p := strings.TrimSpace(opts.snapPath); p != "" {
		s, err := snapshot.ReadSnapshot(p)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if s.Header.RunID != "" {
			runID = s.Header.RunID
		}
		tune.Seed = s.Seed
		snap = &s
	}

	f := factory.New(factory.ConfigFromTuning(runID, tune), nil, logger.WithPrefix("factory"))
	if snap != nil {
		if err := f.ImportSnapshot(*snap); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
	}

	res, err := replay.Verify(f, eventsDir, replay.Options{FromTick: opts.fromTick, ToTick: opts.toTick})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "replay ok: run=%s checked=%d ticks (from tick=%d to tick=%d) final=%v\n",
		runID, res.Checked, res.StartTick, res.LastTick, res.FinalChecked)
	return nil
}

func loadTuning(path, runDir, runID string, logger *log.Logger) (tuning.Tuning, error) {
	if p := strings.TrimSpace(path); p != "" {
		t, err := tuning.Load(p)
		if err != nil {
			return t, fmt.Errorf("load tuning: %w", err)
		}
		return t, nil
	}

	dbPath := filepath.Join(runDir, "index.sqlite")
	if _, err := os.Stat(dbPath); err == nil {
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return tuning.Tuning{}, fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		t, ok, err := idx.Tuning(runID)
		if err != nil {
			return tuning.Tuning{}, fmt.Errorf("read recorded tuning: %w", err)
		}
		if ok {
			return t, nil
		}
	}
	logger.Warn("no recorded tuning; using defaults", "run", runID)
	return tuning.Defaults(), nil
}
