package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"foobartory.ai/internal/persistence/snapshot"
	"foobartory.ai/internal/sim/factory"
	"foobartory.ai/internal/sim/tuning"
)

// SQLiteIndex is a read-model of a run. Writes are queued and applied by a
// single writer goroutine; the simulation never waits on the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	tick     factory.TickLogEntry
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	RunID   string
	Tick    uint64
	Path    string
	Seed    int64
	Robots  int
	Money   int
	FooBars int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			run_id TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			total_ore INTEGER NOT NULL,
			foo INTEGER NOT NULL,
			bar INTEGER NOT NULL,
			foobars INTEGER NOT NULL,
			money INTEGER NOT NULL,
			robots INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			robot INTEGER NOT NULL,
			type TEXT NOT NULL,
			action TEXT,
			detail TEXT,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_robot_tick ON events(run_id, robot, tick);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			final_tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			money INTEGER NOT NULL,
			robots INTEGER NOT NULL,
			finished_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			robots INTEGER NOT NULL,
			money INTEGER NOT NULL,
			foobars INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped is the number of writes discarded because the queue was full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) WriteTick(entry factory.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropped.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		RunID:   snap.Header.RunID,
		Tick:    snap.Header.Tick,
		Path:    path,
		Seed:    snap.Seed,
		Robots:  len(snap.Robots),
		Money:   snap.Stock.Money,
		FooBars: len(snap.Stock.Assembly),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropped.Add(1)
	}
}

// Sync blocks until every write queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertTuning stores the tuning a run was started with, as canonical JSON.
func (s *SQLiteIndex) UpsertTuning(runID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO tuning(run_id,digest,json,updated_at) VALUES(?,?,?,?)`,
		runID, hex.EncodeToString(sum[:]), string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,digest,total_ore,foo,bar,foobars,money,robots,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(run_id,tick,seq,robot,type,action,detail) VALUES(?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,final_tick,digest,money,robots,finished_at) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,tick,path,seed,robots,money,foobars) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEvent, insertRun, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			if e.Final {
				if insertRun != nil {
					if _, err := tx.Stmt(insertRun).Exec(
						e.RunID,
						int64(e.Tick),
						e.Digest,
						e.Report.Money,
						e.Report.Robots,
						time.Now().UTC().Format(time.RFC3339Nano),
					); err != nil {
						rollback()
						continue
					}
					opCount++
				}
				break
			}
			b, _ := json.Marshal(e)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					e.RunID,
					int64(e.Tick),
					e.Digest,
					e.Report.TotalOre,
					e.Report.Foo,
					e.Report.Bar,
					e.Report.FooBars,
					e.Report.Money,
					e.Report.Robots,
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for i, ev := range e.Events {
				if insertEvent == nil {
					break
				}
				if _, err := tx.Stmt(insertEvent).Exec(e.RunID, int64(e.Tick), i, ev.Robot, ev.Type, ev.Action, ev.Detail); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.RunID,
					int64(sn.Tick),
					sn.Path,
					sn.Seed,
					sn.Robots,
					sn.Money,
					sn.FooBars,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
