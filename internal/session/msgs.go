package session

import (
	"github.com/herodraft/draft-server/internal/engine"
	"github.com/herodraft/draft-server/internal/presence"
)

type Msg interface{ isSessionMsg() }

// Join subscribes a connection under its claimed role. The actor grants the
// effective role (duplicate captains become viewers) and immediately
// broadcasts a presence-bearing view, which doubles as the joiner's initial
// state.
type Join struct {
	ConnID string
	Role   engine.Role
	Outbox chan View
}

func (Join) isSessionMsg() {}

type Leave struct{ ConnID string }

func (Leave) isSessionMsg() {}

// FromClient carries a mutating client command. Reply receives the
// validation result; only the originating connection ever sees it.
type FromClient struct {
	ConnID string
	Cmd    engine.Command
	Reply  chan error
}

func (FromClient) isSessionMsg() {}

// Stop is the admin termination request.
type Stop struct {
	Reason string
	Reply  chan error
}

func (Stop) isSessionMsg() {}

// GetState reflects internal state without data races (tests, HTTP reads).
type GetState struct {
	Reply chan DebugView
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// Delayed self-events. Each carries the generation that scheduled it so a
// stale fire (outpaced by a real action or a reschedule) is dropped.
type coinOpenDue struct{ gen int }

func (coinOpenDue) isSessionMsg() {}

type flipDue struct{ gen int }

func (flipDue) isSessionMsg() {}

type turnTimeout struct{ gen int }

func (turnTimeout) isSessionMsg() {}

// View is the projection published to every subscriber after each applied
// event. Version increases monotonically so clients can discard stale or
// duplicate deliveries.
type View struct {
	DraftID         string            `json:"draft_id"`
	Version         int               `json:"version"`
	Status          engine.Status     `json:"status"`
	Coin            engine.CoinState  `json:"coin"`
	TurnOrder       []engine.TurnStep `json:"turn_order,omitempty"`
	Entries         []engine.Entry    `json:"entries"`
	ActiveTurnIndex int               `json:"active_turn_index"`
	TurnDeadlineMs  int64             `json:"turn_deadline_ms,omitempty"`
	RemainingMs     int64             `json:"remaining_ms,omitempty"`
	Presence        presence.Snapshot `json:"presence"`
	Degraded        bool              `json:"degraded,omitempty"`
	StopReason      string            `json:"stop_reason,omitempty"`
	Events          []engine.Event    `json:"events,omitempty"`
}

// DebugView mirrors actor internals for tests and the HTTP read path.
type DebugView struct {
	Version     int
	NumClients  int
	State       engine.State
	Presence    presence.Snapshot
	Degraded    bool
	RemainingMs int64
}
