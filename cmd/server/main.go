package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"foobartory.ai/internal/logging"
	"foobartory.ai/internal/metrics"
	"foobartory.ai/internal/persistence/archive"
	"foobartory.ai/internal/persistence/indexdb"
	persistlog "foobartory.ai/internal/persistence/log"
	"foobartory.ai/internal/persistence/snapshot"
	"foobartory.ai/internal/sim/factory"
	"foobartory.ai/internal/sim/tuning"
	"foobartory.ai/internal/transport/observer"
)

type options struct {
	configDir   string
	tuningPath  string
	dataDir     string
	runID       string
	seed        int64
	realtime    bool
	addr        string
	allowRemote bool
	disableDB   bool
	snapPath    string
	loadLatest  bool
	logLevel    string
	reportEvery uint64
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "foobartory",
		Short: "Run the foobar factory until the fleet reaches its target size",
		Long: `Run a factory simulation.

Robots mine foo and bar, assemble foobars, sell them and buy more robots.
Every tick is appended to <data>/runs/<run>/events, indexed in
<data>/runs/<run>/index.sqlite and optionally streamed to observers.

Examples:
  foobartory --seed 42
  foobartory --realtime --addr 127.0.0.1:8080
  foobartory --run run_a --load_latest_snapshot`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configDir, "configs", "./configs", "config directory")
	f.StringVar(&opts.tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	f.StringVar(&opts.dataDir, "data", "./data", "runtime data directory")
	f.StringVar(&opts.runID, "run", "", "run id (default: random)")
	f.Int64Var(&opts.seed, "seed", 0, "override the tuning seed")
	f.BoolVar(&opts.realtime, "realtime", false, "pace ticks at tick_duration_ms instead of running flat out")
	f.StringVar(&opts.addr, "addr", "", "http listen address for observers and metrics (empty to disable)")
	f.BoolVar(&opts.allowRemote, "allow_remote", false, "accept non-loopback observers")
	f.BoolVar(&opts.disableDB, "disable_db", false, "disable the sqlite run index")
	f.StringVar(&opts.snapPath, "snapshot", "", "path to snapshot to resume from (optional)")
	f.BoolVar(&opts.loadLatest, "load_latest_snapshot", false, "resume from the latest snapshot of --run if present (when --snapshot is empty)")
	f.StringVar(&opts.logLevel, "log_level", "info", "log level (debug|info|warn|error)")
	f.Uint64Var(&opts.reportEvery, "report_every", 1000, "log the tick report every n ticks (0 disables)")
	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	logger, err := logging.New(cmd.ErrOrStderr(), "server", opts.logLevel)
	if err != nil {
		return err
	}

	runID := strings.TrimSpace(opts.runID)
	if runID == "" {
		runID = "run_" + uuid.NewString()[:8]
	}
	runDir := filepath.Join(opts.dataDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}

	tp := strings.TrimSpace(opts.tuningPath)
	if tp == "" {
		tp = filepath.Join(opts.configDir, "tuning.yaml")
	}
	snapshotToLoad := strings.TrimSpace(opts.snapPath)
	if snapshotToLoad == "" && opts.loadLatest {
		snapshotToLoad = latestSnapshot(runDir)
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.Warn("tuning not found; using defaults", "path", tp)
		tune = tuning.Defaults()
	}
	if cmd.Flags().Changed("seed") {
		tune.Seed = opts.seed
	}

	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if s.Header.RunID != "" && s.Header.RunID != runID {
			return fmt.Errorf("snapshot run id mismatch: flag=%s snap=%s", runID, s.Header.RunID)
		}
		if cmd.Flags().Changed("seed") && opts.seed != s.Seed {
			logger.Warn("seed flag ignored; resuming with snapshot seed", "flag", opts.seed, "snapshot", s.Seed)
		}
		tune.Seed = s.Seed
		snap = &s
	}

	cfg := factory.ConfigFromTuning(runID, tune)
	f := factory.New(cfg, nil, logger.WithPrefix("factory"))
	if snap != nil {
		if err := f.ImportSnapshot(*snap); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info("resumed", "snapshot", filepath.Base(snapshotToLoad), "tick", f.CurrentTick())
	}

	// Entries past the starting tick belong to an abandoned timeline.
	if n, err := persistlog.TruncateAfter(persistlog.EventsDir(runDir), f.CurrentTick()); err != nil {
		return fmt.Errorf("truncate events: %w", err)
	} else if n > 0 {
		logger.Info("events truncated", "after_tick", f.CurrentTick(), "dropped", n)
	}

	// Optional read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !opts.disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(runDir, "index.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(runID, tune); err != nil {
			logger.Warn("index tuning", "err", err)
		}
		f.AddTickLogger(idx)
	}

	tickLog := persistlog.NewTickLogger(runDir)
	defer tickLog.Close()
	f.AddTickLogger(tickLog)

	m := metrics.New(runID)
	f.AddTickLogger(m)
	f.AddTickLogger(logging.Reporter{Log: logger, Every: opts.reportEvery})

	obs := observer.NewServer(cfg, logger.WithPrefix("observer"), observer.Options{AllowRemote: opts.allowRemote})
	f.AddTickLogger(obs)
	defer obs.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	f.SetSnapshotSink(snapCh)
	var snapWG sync.WaitGroup
	snapWG.Add(1)
	go func() {
		defer snapWG.Done()
		for snap := range snapCh {
			_, _ = writeSnapshot(logger, runDir, idx, snap)
		}
	}()

	var srv *http.Server
	if opts.addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusOK)
			_, _ = rw.Write([]byte("ok"))
		})
		mux.Handle("/metrics", m.Handler())
		mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
		srv = &http.Server{
			Addr:              opts.addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("listening", "addr", opts.addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", "err", err)
			}
		}()
	}

	var pacer factory.Pacer = factory.NoPacer{}
	if opts.realtime && tune.TickDurationMs > 0 {
		ticker := factory.NewTickerPacer(time.Duration(tune.TickDurationMs) * time.Millisecond)
		defer ticker.Stop()
		pacer = ticker
	}

	logger.Info("starting run", "run", runID, "seed", cfg.Seed, "robots", len(f.Robots()), "target", cfg.TargetRobots)
	_, runErr := f.Run(ctx, pacer)

	close(snapCh)
	snapWG.Wait()
	final := f.ExportSnapshot()
	if path, ok := writeSnapshot(logger, runDir, idx, final); ok {
		if archived, ok, err := archive.ArchiveCompletedRun(opts.dataDir, path, final); err != nil {
			logger.Error("archive run", "err", err)
		} else if ok {
			logger.Info("run archived", "path", archived)
		}
	}

	obs.Close()
	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}

	if errors.Is(runErr, context.Canceled) {
		logger.Warn("interrupted", "tick", f.CurrentTick())
		return nil
	}
	return runErr
}

func writeSnapshot(logger *log.Logger, runDir string, idx *indexdb.SQLiteIndex, snap snapshot.SnapshotV1) (string, bool) {
	path := filepath.Join(runDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Error("snapshot write", "err", err)
		return "", false
	}
	logger.Debug("snapshot written", "tick", snap.Header.Tick, "path", path)
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}
	return path, true
}

func latestSnapshot(runDir string) string {
	dir := filepath.Join(runDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
