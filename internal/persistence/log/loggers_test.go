package log

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foobartory.ai/internal/sim/factory"
)

func TestTickLogger_RoundTripAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLoggerWithSegment(dir, 10)
	for tick := uint64(1); tick <= 25; tick++ {
		require.NoError(t, l.WriteTick(factory.TickLogEntry{RunID: "r", Tick: tick, Digest: "d"}))
	}
	require.NoError(t, l.Close())

	files, err := ListEventFiles(EventsDir(dir))
	require.NoError(t, err)
	assert.Len(t, files, 3)

	var ticks []uint64
	require.NoError(t, ReadTicks(EventsDir(dir), func(e factory.TickLogEntry) error {
		ticks = append(ticks, e.Tick)
		return nil
	}))
	require.Len(t, ticks, 25)
	for i, tick := range ticks {
		assert.Equal(t, uint64(i+1), tick)
	}
}

func TestTickLogger_ReopenAppends(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	require.NoError(t, l.WriteTick(factory.TickLogEntry{Tick: 1}))
	require.NoError(t, l.Close())

	l = NewTickLogger(dir)
	require.NoError(t, l.WriteTick(factory.TickLogEntry{Tick: 2}))
	require.NoError(t, l.Close())

	n := 0
	require.NoError(t, ReadTicks(EventsDir(dir), func(factory.TickLogEntry) error {
		n++
		return nil
	}))
	assert.Equal(t, 2, n)
}

func TestTickLogger_FactoryRun(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)

	cfg := factory.DefaultConfig()
	cfg.Seed = 9
	cfg.MaxTicks = 1_000_000
	f := factory.New(cfg, nil, nil)
	f.AddTickLogger(l)
	rep, err := f.Run(context.Background(), factory.NoPacer{})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	var last factory.TickLogEntry
	require.NoError(t, ReadTicks(EventsDir(dir), func(e factory.TickLogEntry) error {
		last = e
		return nil
	}))
	assert.True(t, last.Final)
	assert.Equal(t, rep, last.Report)
	assert.Equal(t, f.Digest(), last.Digest)
}

func TestReadTicks_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for tick := uint64(1); tick <= 3; tick++ {
		require.NoError(t, l.WriteTick(factory.TickLogEntry{Tick: tick}))
	}
	require.NoError(t, l.Close())

	stop := errors.New("stop")
	seen := 0
	err := ReadTicks(EventsDir(dir), func(factory.TickLogEntry) error {
		seen++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestReadTicks_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(EventsDir(dir), 0o755))
	require.Error(t, ReadTicks(EventsDir(dir), func(factory.TickLogEntry) error { return nil }))
}

func TestTruncateAfter_DropsLaterTicksAndFinal(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLoggerWithSegment(dir, 10)
	for tick := uint64(1); tick <= 25; tick++ {
		require.NoError(t, l.WriteTick(factory.TickLogEntry{Tick: tick}))
	}
	require.NoError(t, l.WriteTick(factory.TickLogEntry{Tick: 25, Final: true}))
	require.NoError(t, l.Close())

	n, err := TruncateAfter(EventsDir(dir), 7)
	require.NoError(t, err)
	assert.Equal(t, 19, n)

	files, err := ListEventFiles(EventsDir(dir))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	// A resumed run continues the log without gaps or duplicates.
	l = NewTickLoggerWithSegment(dir, 10)
	for tick := uint64(8); tick <= 12; tick++ {
		require.NoError(t, l.WriteTick(factory.TickLogEntry{Tick: tick}))
	}
	require.NoError(t, l.Close())

	var ticks []uint64
	require.NoError(t, ReadTicks(EventsDir(dir), func(e factory.TickLogEntry) error {
		assert.False(t, e.Final)
		ticks = append(ticks, e.Tick)
		return nil
	}))
	require.Len(t, ticks, 12)
	for i, tick := range ticks {
		assert.Equal(t, uint64(i+1), tick)
	}
}

func TestTruncateAfter_MissingDir(t *testing.T) {
	n, err := TruncateAfter(EventsDir(t.TempDir()), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
