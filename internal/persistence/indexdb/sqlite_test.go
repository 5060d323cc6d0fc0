package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"foobartory.ai/internal/persistence/snapshot"
	"foobartory.ai/internal/sim/factory"
	"foobartory.ai/internal/sim/tuning"
)

func TestSQLiteIndex_IndexesFactoryRun(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "run.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	cfg := factory.DefaultConfig()
	cfg.RunID = "run_a"
	cfg.Seed = 4
	cfg.MaxTicks = 1_000_000
	f := factory.New(cfg, nil, nil)
	f.AddTickLogger(idx)
	rep, err := f.Run(context.Background(), factory.NoPacer{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := idx.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if idx.Dropped() != 0 {
		t.Skipf("indexer dropped %d writes", idx.Dropped())
	}

	n, err := idx.TickCount("run_a")
	if err != nil {
		t.Fatalf("tick count: %v", err)
	}
	if uint64(n) != rep.Tick {
		t.Fatalf("ticks=%d want=%d", n, rep.Tick)
	}

	run, ok, err := idx.Run("run_a")
	if err != nil || !ok {
		t.Fatalf("run row: ok=%v err=%v", ok, err)
	}
	if run.FinalTick != rep.Tick || run.Money != rep.Money || run.Robots != 6 || run.Digest != f.Digest() {
		t.Fatalf("run row mismatch: %+v report=%+v", run, rep)
	}

	evs, err := idx.RobotEvents("run_a", 5)
	if err != nil {
		t.Fatalf("robot events: %v", err)
	}
	if evs["COMMISSIONED"] != 1 {
		t.Fatalf("robot 5 events=%v", evs)
	}
}

func TestSQLiteIndex_RecordSnapshot(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "run.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	for _, tick := range []uint64{100, 300, 200} {
		idx.RecordSnapshot("/snaps/"+string(rune('a'+tick/100))+".snap.zst", snapshot.SnapshotV1{
			Header: snapshot.Header{Version: snapshot.Version, RunID: "r", Tick: tick},
			Stock:  snapshot.StockV1{Money: 7},
		})
	}
	if err := idx.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	path, ok, err := idx.LatestSnapshot("r")
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if path != "/snaps/d.snap.zst" {
		t.Fatalf("latest=%s", path)
	}
	if _, ok, _ := idx.LatestSnapshot("other"); ok {
		t.Fatalf("unexpected snapshot for unknown run")
	}
}

func TestSQLiteIndex_UpsertTuningAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.UpsertTuning("r", tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, err := idx.Tuning("r")
	if err != nil || !ok {
		t.Fatalf("tuning: ok=%v err=%v", ok, err)
	}
	if got != tuning.Defaults() {
		t.Fatalf("tuning round trip: %+v", got)
	}
	if _, ok, _ := idx.Tuning("missing"); ok {
		t.Fatalf("unexpected tuning for unknown run")
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var digest, js string
	if err := db.QueryRow(`SELECT digest, json FROM tuning WHERE run_id = 'r'`).Scan(&digest, &js); err != nil {
		t.Fatalf("query tuning: %v", err)
	}
	if len(digest) != 64 || js == "" {
		t.Fatalf("tuning row digest=%q json=%q", digest, js)
	}
}

func TestSQLiteIndex_QueueDrops(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: factory.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(factory.TickLogEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	if got := s.Dropped(); got != 2 {
		t.Fatalf("dropped=%d want=2", got)
	}
}
