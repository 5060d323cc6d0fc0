package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Validate(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Tuning){
		"zero quantum":      func(t *Tuning) { t.TickQuantum = 0 },
		"no robots":         func(t *Tuning) { t.InitialRobots = 0 },
		"percent over 100":  func(t *Tuning) { t.AssemblySuccessPercent = 101 },
		"empty sell batch":  func(t *Tuning) { t.SellBatchMax = 0 },
		"wrong protocol":    func(t *Tuning) { t.ProtocolVersion = "0.9" },
		"inverted bar span": func(t *Tuning) { t.Durations.MineBarMin, t.Durations.MineBarMax = 2, 1 },
		"target below init": func(t *Tuning) { t.InitialRobots, t.TargetRobots = 4, 3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tn := Defaults()
			mutate(&tn)
			assert.Error(t, Validate(tn))
		})
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 99\ntarget_robots: 10\ndurations:\n  sell: 8.5\n"), 0o644))

	tn, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(99), tn.Seed)
	assert.Equal(t, 10, tn.TargetRobots)
	assert.Equal(t, 8.5, tn.Durations.Sell)
	assert.Equal(t, 1.0, tn.Durations.MineFoo, "unset nested keys keep their default")
	assert.Equal(t, 2, tn.InitialRobots)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assembly_success_percent: 150\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RepoConfig(t *testing.T) {
	tn, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 6, tn.TargetRobots)
}
