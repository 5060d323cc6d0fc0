package observerproto

import "foobartory.ai/internal/sim/factory"

// Version is the observer protocol version.
const Version = "1.0"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// EveryTicks samples the stream: only every n-th tick is sent. Final
	// summaries are always sent.
	EveryTicks int `json:"every_ticks,omitempty"`
	// Events includes per-robot events in TICK messages.
	Events bool `json:"events,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string         `json:"protocol_version"`
	RunID           string         `json:"run_id"`
	Tick            uint64         `json:"tick"`
	RunParams       RunParams      `json:"run_params"`
	Report          factory.Report `json:"report"`
	Finished        bool           `json:"finished"`
}

type RunParams struct {
	Seed          int64  `json:"seed"`
	TickQuantum   string `json:"tick_quantum"`
	InitialRobots int    `json:"initial_robots"`
	TargetRobots  int    `json:"target_robots"`
}

// Server -> Client. Sent once after a valid SUBSCRIBE.
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	RunID           string `json:"run_id"`
	Tick            uint64 `json:"tick"`
}

// Server -> Client. Sent per sampled tick, and once with Final set when the
// run terminates.
type TickMsg struct {
	Type            string                  `json:"type"`
	ProtocolVersion string                  `json:"protocol_version"`
	Tick            uint64                  `json:"tick"`
	Report          factory.Report          `json:"report"`
	Digest          string                  `json:"digest"`
	Events          []factory.RecordedEvent `json:"events,omitempty"`
	Final           bool                    `json:"final,omitempty"`
}
