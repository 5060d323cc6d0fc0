package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"foobartory.ai/internal/sim/factory"
)

// DefaultSegmentTicks is the number of ticks stored per compressed segment.
const DefaultSegmentTicks = 100_000

// JSONLZstdWriter appends JSON lines to zstd-compressed segment files named
// <prefix>-<segment>.jsonl.zst. Segment numbers are zero padded so that a
// lexical sort of the directory is also a tick-order sort.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu     sync.Mutex
	curSeg int64
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		curSeg:  -1,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends v to segment seg, rotating files when seg changes.
func (w *JSONLZstdWriter) Write(seg int64, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seg != w.curSeg {
		if err := w.rotateLocked(seg); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(seg int64) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForSegment(seg), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = seg
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curSeg = -1
	return err1
}

func (w *JSONLZstdWriter) pathForSegment(seg int64) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%08d.jsonl.zst", w.prefix, seg))
}

// TickLogger writes one JSONL entry per tick (compressed) under
// <runDir>/events.
type TickLogger struct {
	w            *JSONLZstdWriter
	segmentTicks uint64
}

func NewTickLogger(runDir string) *TickLogger {
	return NewTickLoggerWithSegment(runDir, DefaultSegmentTicks)
}

func NewTickLoggerWithSegment(runDir string, segmentTicks uint64) *TickLogger {
	if segmentTicks == 0 {
		segmentTicks = DefaultSegmentTicks
	}
	return &TickLogger{
		w:            NewJSONLZstdWriter(EventsDir(runDir), "events"),
		segmentTicks: segmentTicks,
	}
}

func EventsDir(runDir string) string { return filepath.Join(runDir, "events") }

func (l *TickLogger) WriteTick(e factory.TickLogEntry) error {
	return l.w.Write(int64(e.Tick/l.segmentTicks), e)
}

func (l *TickLogger) Close() error { return l.w.Close() }

// ListEventFiles returns the events segments in dir in tick order.
func ListEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadTicks calls fn for every entry of every segment in dir, in order.
// Returning an error from fn stops the walk.
func ReadTicks(dir string, fn func(factory.TickLogEntry) error) error {
	files, err := ListEventFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no events files found in %s", dir)
	}
	for _, path := range files {
		if err := readFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

// TruncateAfter drops every entry past tick, plus every final summary, from
// the segments in dir, so a run resumed at tick continues a clean log. It
// returns the number of entries dropped. A missing dir is not an error.
func TruncateAfter(dir string, tick uint64) (int, error) {
	files, err := ListEventFiles(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	total := 0
	for _, path := range files {
		n, err := truncateFile(path, tick)
		if err != nil {
			return total, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		total += n
	}
	return total, nil
}

func truncateFile(path string, tick uint64) (int, error) {
	var kept [][]byte
	dropped := 0
	err := scanLines(path, func(line []byte) error {
		var head struct {
			Tick  uint64 `json:"tick"`
			Final bool   `json:"final"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if head.Final || head.Tick > tick {
			dropped++
			return nil
		}
		kept = append(kept, append([]byte(nil), line...))
		return nil
	})
	if err != nil || dropped == 0 {
		return 0, err
	}
	if len(kept) == 0 {
		return dropped, os.Remove(path)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	w := bufio.NewWriterSize(enc, 128*1024)
	for _, line := range kept {
		_, _ = w.Write(line)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return dropped, os.Rename(tmp, path)
}

func readFile(path string, fn func(factory.TickLogEntry) error) error {
	return scanLines(path, func(line []byte) error {
		var entry factory.TickLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		return fn(entry)
	})
}

func scanLines(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
