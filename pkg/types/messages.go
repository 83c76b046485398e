// Package types defines the wire messages exchanged with draft clients.
package types

import (
	"errors"

	"github.com/herodraft/draft-server/internal/engine"
	"github.com/herodraft/draft-server/internal/session"
)

// ClientMessage is one command frame from a connected client.
type ClientMessage struct {
	Type   string `json:"type"` // "ChooseSide" | "SubmitAction"
	Side   string `json:"side,omitempty"`   // "heads" | "tails"
	Action string `json:"action,omitempty"` // "ban" | "pick"
	HeroID int    `json:"hero_id,omitempty"`
}

// ServerMessage frames everything pushed to a client: either a full state
// view (at-least-once, deduplicated by View.Version) or an error addressed
// to this connection alone.
type ServerMessage struct {
	Type  string        `json:"type"` // "StateView" | "Error"
	View  *session.View `json:"view,omitempty"`
	Code  string        `json:"code,omitempty"`
	Error string        `json:"error,omitempty"`
}

// ToCommand translates a client frame into an engine command. The role is
// left blank; the session actor stamps the connection's granted role.
func ToCommand(m ClientMessage) (engine.Command, bool) {
	switch m.Type {
	case "ChooseSide":
		side := engine.Side(m.Side)
		if side != engine.SideHeads && side != engine.SideTails {
			return engine.Command{}, false
		}
		return engine.Command{Type: engine.CmdChooseSide, Side: side}, true
	case "SubmitAction":
		action := engine.Action(m.Action)
		if action != engine.ActionBan && action != engine.ActionPick {
			return engine.Command{}, false
		}
		return engine.Command{Type: engine.CmdSubmitAction, Action: action, HeroID: m.HeroID}, true
	default:
		return engine.Command{}, false
	}
}

// ErrorCode maps validation errors onto stable wire codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, engine.ErrNotYourTurn):
		return "NotYourTurn"
	case errors.Is(err, engine.ErrSideTaken):
		return "SideTaken"
	case errors.Is(err, engine.ErrInvalidHero):
		return "InvalidHero"
	case errors.Is(err, engine.ErrHeroAlreadyUsed):
		return "HeroAlreadyUsed"
	case errors.Is(err, engine.ErrSessionAlreadyTerminal):
		return "SessionAlreadyTerminal"
	default:
		return "Internal"
	}
}
