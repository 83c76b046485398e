package engine

import (
	"fmt"
	"strings"
)

// PatternStep is one slot of the configured draft pattern, expressed
// relative to the coin-toss result: the winner's side or the loser's.
type PatternStep struct {
	Winner bool
	Action Action
}

// DefaultPattern is the standard tournament order: three alternating bans
// each, a 1-2-2-1 pick round, two more bans each, then a 1-2-1 pick round.
// The coin-toss winner takes the first ban.
const DefaultPattern = "Wb Lb Wb Lb Wb Lb Wp Lp Lp Wp Wp Lp Lb Wb Lb Wb Lp Wp Wp Lp"

// ParsePattern reads a whitespace-separated token list: each token is W or L
// (coin winner / loser) followed by b or p (ban / pick).
func ParsePattern(raw string) ([]PatternStep, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("turn pattern is empty")
	}
	steps := make([]PatternStep, 0, len(fields))
	for i, tok := range fields {
		if len(tok) != 2 {
			return nil, fmt.Errorf("turn pattern token %d: %q", i, tok)
		}
		var step PatternStep
		switch tok[0] {
		case 'W', 'w':
			step.Winner = true
		case 'L', 'l':
		default:
			return nil, fmt.Errorf("turn pattern token %d: %q", i, tok)
		}
		switch tok[1] {
		case 'b', 'B':
			step.Action = ActionBan
		case 'p', 'P':
			step.Action = ActionPick
		default:
			return nil, fmt.Errorf("turn pattern token %d: %q", i, tok)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// BuildTurnOrder resolves the pattern against the coin-toss winner. Fixed
// once; never rebuilt.
func BuildTurnOrder(pattern []PatternStep, winner Team) []TurnStep {
	order := make([]TurnStep, len(pattern))
	for i, p := range pattern {
		team := winner.Other()
		if p.Winner {
			team = winner
		}
		order[i] = TurnStep{Team: team, Action: p.Action, Slot: i}
	}
	return order
}

// PhaseAt labels the step at cursor by counting contiguous action runs from
// the front of the order: the first ban run is BanPhase1, the first pick run
// PickPhase1, and so on. Any runs past the fourth keep the last label.
func PhaseAt(order []TurnStep, cursor int) Status {
	if cursor < 0 || cursor >= len(order) {
		return StatusComplete
	}
	banRuns, pickRuns := 0, 0
	var prev Action
	for i := 0; i <= cursor; i++ {
		a := order[i].Action
		if i == 0 || a != prev {
			if a == ActionBan {
				banRuns++
			} else {
				pickRuns++
			}
		}
		prev = a
	}
	if order[cursor].Action == ActionBan {
		if banRuns <= 1 {
			return StatusBanPhase1
		}
		return StatusBanPhase2
	}
	if pickRuns <= 1 {
		return StatusPickPhase1
	}
	return StatusPickPhase2
}
