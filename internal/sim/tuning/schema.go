package tuning

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["protocol_version", "tick_quantum", "initial_robots", "target_robots", "durations", "robot_price"],
  "properties": {
    "protocol_version": {"const": "1.0"},
    "seed": {"type": "integer"},
    "tick_quantum": {"type": "number", "exclusiveMinimum": 0},
    "tick_duration_ms": {"type": "integer", "minimum": 0},
    "max_ticks": {"type": "integer", "minimum": 0},
    "initial_robots": {"type": "integer", "minimum": 1},
    "target_robots": {"type": "integer", "minimum": 1},
    "retool_duration": {"type": "number", "minimum": 0},
    "durations": {
      "type": "object",
      "required": ["mine_foo", "mine_bar_min", "mine_bar_max", "assemble", "sell", "buy_robot"],
      "properties": {
        "mine_foo": {"type": "number", "minimum": 0},
        "mine_bar_min": {"type": "number", "minimum": 0},
        "mine_bar_max": {"type": "number", "minimum": 0},
        "assemble": {"type": "number", "minimum": 0},
        "sell": {"type": "number", "minimum": 0},
        "buy_robot": {"type": "number", "minimum": 0}
      }
    },
    "assembly_success_percent": {"type": "integer", "minimum": 0, "maximum": 100},
    "sell_batch_max": {"type": "integer", "minimum": 1},
    "foobar_price": {"type": "integer", "minimum": 0},
    "robot_price": {
      "type": "object",
      "required": ["money", "foo"],
      "properties": {
        "money": {"type": "integer", "minimum": 0},
        "foo": {"type": "integer", "minimum": 0}
      }
    },
    "snapshot_every_ticks": {"type": "integer", "minimum": 0}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("tuning.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Validate checks t against the tuning schema and the cross-field rules the
// schema cannot express.
func Validate(t Tuning) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("compile tuning schema: %w", err)
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return err
	}
	if t.Durations.MineBarMax < t.Durations.MineBarMin {
		return fmt.Errorf("durations.mine_bar_max (%v) < durations.mine_bar_min (%v)", t.Durations.MineBarMax, t.Durations.MineBarMin)
	}
	if t.TargetRobots < t.InitialRobots {
		return fmt.Errorf("target_robots (%d) < initial_robots (%d)", t.TargetRobots, t.InitialRobots)
	}
	return nil
}
