package replay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	persistlog "foobartory.ai/internal/persistence/log"
	"foobartory.ai/internal/persistence/snapshot"
	"foobartory.ai/internal/sim/factory"
)

func config() factory.Config {
	cfg := factory.DefaultConfig()
	cfg.Seed = 21
	cfg.MaxTicks = 1_000_000
	return cfg
}

func record(t *testing.T, dir string, cfg factory.Config) factory.Report {
	t.Helper()
	l := persistlog.NewTickLogger(dir)
	f := factory.New(cfg, nil, nil)
	f.AddTickLogger(l)
	rep, err := f.Run(context.Background(), factory.NoPacer{})
	require.NoError(t, err)
	require.NoError(t, l.Close())
	return rep
}

func TestVerify_FullLog(t *testing.T) {
	dir := t.TempDir()
	rep := record(t, dir, config())

	res, err := Verify(factory.New(config(), nil, nil), persistlog.EventsDir(dir), Options{})
	require.NoError(t, err)
	assert.Equal(t, rep.Tick, res.Checked)
	assert.Equal(t, rep.Tick, res.LastTick)
	assert.True(t, res.FinalChecked)
}

func TestVerify_WrongSeedMismatches(t *testing.T) {
	dir := t.TempDir()
	record(t, dir, config())

	other := config()
	other.Seed = 22
	_, err := Verify(factory.New(other, nil, nil), persistlog.EventsDir(dir), Options{})
	require.ErrorIs(t, err, ErrDigestMismatch)
}

func TestVerify_TamperedDigest(t *testing.T) {
	src := t.TempDir()
	record(t, src, config())

	dst := t.TempDir()
	l := persistlog.NewTickLogger(dst)
	require.NoError(t, persistlog.ReadTicks(persistlog.EventsDir(src), func(e factory.TickLogEntry) error {
		if e.Tick == 50 && !e.Final {
			e.Digest = "00"
		}
		return l.WriteTick(e)
	}))
	require.NoError(t, l.Close())

	res, err := Verify(factory.New(config(), nil, nil), persistlog.EventsDir(dst), Options{})
	require.ErrorIs(t, err, ErrDigestMismatch)
	assert.Equal(t, uint64(50), res.LastTick)
	assert.Equal(t, uint64(50), res.Checked)
}

func TestVerify_FromSnapshotWindow(t *testing.T) {
	dir := t.TempDir()
	cfg := config()

	l := persistlog.NewTickLogger(dir)
	f := factory.New(cfg, nil, nil)
	f.AddTickLogger(l)
	for i := 0; i < 400; i++ {
		_, err := f.Step()
		require.NoError(t, err)
	}
	snapPath := filepath.Join(dir, "snapshots", "400.snap.zst")
	require.NoError(t, snapshot.WriteSnapshot(snapPath, f.ExportSnapshot()))
	for i := 0; i < 200; i++ {
		_, err := f.Step()
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	snap, err := snapshot.ReadSnapshot(snapPath)
	require.NoError(t, err)
	g := factory.New(cfg, nil, nil)
	require.NoError(t, g.ImportSnapshot(snap))

	res, err := Verify(g, persistlog.EventsDir(dir), Options{FromTick: 450, ToTick: 550})
	require.NoError(t, err)
	assert.Equal(t, uint64(400), res.StartTick)
	assert.Equal(t, uint64(550), res.LastTick)
	assert.Equal(t, uint64(101), res.Checked)
	assert.False(t, res.FinalChecked)
}
