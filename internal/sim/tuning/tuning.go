package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	Seed           int64   `yaml:"seed" json:"seed"`
	TickQuantum    float64 `yaml:"tick_quantum" json:"tick_quantum"`
	TickDurationMs int     `yaml:"tick_duration_ms" json:"tick_duration_ms"`
	MaxTicks       uint64  `yaml:"max_ticks" json:"max_ticks"`

	InitialRobots int `yaml:"initial_robots" json:"initial_robots"`
	TargetRobots  int `yaml:"target_robots" json:"target_robots"`

	RetoolDuration float64   `yaml:"retool_duration" json:"retool_duration"`
	Durations      Durations `yaml:"durations" json:"durations"`

	AssemblySuccessPercent int        `yaml:"assembly_success_percent" json:"assembly_success_percent"`
	SellBatchMax           int        `yaml:"sell_batch_max" json:"sell_batch_max"`
	FooBarPrice            int        `yaml:"foobar_price" json:"foobar_price"`
	RobotPrice             RobotPrice `yaml:"robot_price" json:"robot_price"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
}

type Durations struct {
	MineFoo    float64 `yaml:"mine_foo" json:"mine_foo"`
	MineBarMin float64 `yaml:"mine_bar_min" json:"mine_bar_min"`
	MineBarMax float64 `yaml:"mine_bar_max" json:"mine_bar_max"`
	Assemble   float64 `yaml:"assemble" json:"assemble"`
	Sell       float64 `yaml:"sell" json:"sell"`
	BuyRobot   float64 `yaml:"buy_robot" json:"buy_robot"`
}

type RobotPrice struct {
	Money int `yaml:"money" json:"money"`
	Foo   int `yaml:"foo" json:"foo"`
}

const ProtocolVersion = "1.0"

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: ProtocolVersion,
		Seed:            1337,
		TickQuantum:     0.1,
		TickDurationMs:  100,
		InitialRobots:   2,
		TargetRobots:    6,
		RetoolDuration:  5.0,
		Durations: Durations{
			MineFoo:    1.0,
			MineBarMin: 0.5,
			MineBarMax: 2.0,
			Assemble:   2.0,
			Sell:       10.0,
			BuyRobot:   0,
		},
		AssemblySuccessPercent: 60,
		SellBatchMax:           5,
		FooBarPrice:            1,
		RobotPrice:             RobotPrice{Money: 3, Foo: 6},
	}
}

// Load reads a tuning file on top of Defaults, so a file may set only the
// keys it wants to change. The result is validated.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := Validate(t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
