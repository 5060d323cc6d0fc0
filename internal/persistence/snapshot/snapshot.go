package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 captures a factory completely enough to resume it and keep
// producing the same digests as an uninterrupted run.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed         int64  `json:"seed"`
	TickQuantum  string `json:"tick_quantum"`
	TargetRobots int    `json:"target_robots"`

	// Rand is the marshalled state of the run's random source.
	Rand []byte `json:"rand,omitempty"`

	Stock    StockV1    `json:"stock"`
	Robots   []RobotV1  `json:"robots"`
	Counters CountersV1 `json:"counters"`
}

type StockV1 struct {
	Namespace     string     `json:"namespace"`
	Foo           []OreV1    `json:"foo"`
	Bar           []OreV1    `json:"bar"`
	Assembly      []FooBarV1 `json:"assembly"`
	Money         int        `json:"money"`
	PendingRobots int        `json:"pending_robots"`
}

type CountersV1 struct {
	NextOre   uint64 `json:"next_ore"`
	NextRobot int    `json:"next_robot"`
}

type OreV1 struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type FooBarV1 struct {
	Foo OreV1 `json:"foo"`
	Bar OreV1 `json:"bar"`
}

type ActionV1 struct {
	Kind     string    `json:"kind"`
	Duration string    `json:"duration"`
	Next     *ActionV1 `json:"next,omitempty"`
	Foo      *OreV1    `json:"foo,omitempty"`
	Bar      *OreV1    `json:"bar,omitempty"`
	Foos     []OreV1   `json:"foos,omitempty"`
	Money    int       `json:"money,omitempty"`
}

type RobotV1 struct {
	Index     int       `json:"index"`
	Action    *ActionV1 `json:"action,omitempty"`
	Last      ActionV1  `json:"last"`
	Remaining string    `json:"remaining"`
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded
// snapshot, zstd compressed.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is informational; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
