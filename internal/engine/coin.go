package engine

import (
	"crypto/rand"
)

type Side string

const (
	SideHeads Side = "heads"
	SideTails Side = "tails"
)

// CoinPhase is the sub-machine nested inside StatusCoinToss.
type CoinPhase string

const (
	CoinAwaitingChoices CoinPhase = "awaiting_choices"
	CoinBothChosen      CoinPhase = "both_chosen"
	CoinFlipped         CoinPhase = "flipped"
)

type CoinState struct {
	Phase   CoinPhase     `json:"phase"`
	Choices map[Team]Side `json:"choices"`
	Outcome Side          `json:"outcome,omitempty"`
	Winner  Team          `json:"winner,omitempty"`
}

func newCoinState() CoinState {
	return CoinState{Phase: CoinAwaitingChoices, Choices: map[Team]Side{}}
}

func (c CoinState) clone() CoinState {
	choices := make(map[Team]Side, len(c.Choices))
	for t, side := range c.Choices {
		choices[t] = side
	}
	c.Choices = choices
	return c
}

// flipOutcome produces the server-side uniform flip. Package var so tests
// can pin the outcome.
var flipOutcome = func() Side {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the process is in much deeper trouble;
		// heads keeps the flip total.
		return SideHeads
	}
	if b[0]&1 == 0 {
		return SideHeads
	}
	return SideTails
}

func applyOpenCoinToss(s State) ([]Event, State, error) {
	if s.Status != StatusWaiting {
		return nil, s, ErrInvalidState
	}
	next := s
	next.Status = StatusCoinToss
	next.Coin = newCoinState()
	return []Event{{Type: EvtCoinTossOpened}}, next, nil
}

func applyChooseSide(s State, cmd Command) ([]Event, State, error) {
	team, isCaptain := cmd.Role.CaptainTeam()
	if !isCaptain {
		return nil, s, ErrNotYourTurn
	}
	if cmd.Side != SideHeads && cmd.Side != SideTails {
		return nil, s, ErrInvalidState
	}
	if s.Status != StatusCoinToss {
		return nil, s, ErrInvalidState
	}

	// Repeating one's own recorded choice is acknowledged without events,
	// even after both sides are in.
	if prior, ok := s.Coin.Choices[team]; ok && prior == cmd.Side {
		return nil, s, nil
	}
	if s.Coin.Phase != CoinAwaitingChoices {
		return nil, s, ErrInvalidState
	}

	// Sides are exclusive: the two captains must choose differently, which
	// is what makes a tie structurally impossible.
	if other, ok := s.Coin.Choices[team.Other()]; ok && other == cmd.Side {
		return nil, s, ErrSideTaken
	}

	next := s
	next.Coin = s.Coin.clone()
	next.Coin.Choices[team] = cmd.Side
	if len(next.Coin.Choices) == 2 {
		next.Coin.Phase = CoinBothChosen
	}
	return []Event{{Type: EvtCoinChoiceMade, Team: team, Side: cmd.Side}}, next, nil
}

func applyFlipCoin(s State) ([]Event, State, error) {
	if s.Status != StatusCoinToss || s.Coin.Phase != CoinBothChosen {
		return nil, s, ErrInvalidState
	}

	outcome := flipOutcome()
	winner := Team1
	if s.Coin.Choices[Team2] == outcome {
		winner = Team2
	}

	next := s
	next.Coin = s.Coin.clone()
	next.Coin.Phase = CoinFlipped
	next.Coin.Outcome = outcome
	next.Coin.Winner = winner
	next.TurnOrder = BuildTurnOrder(s.Pattern, winner)
	next.Cursor = 0
	next.Status = PhaseAt(next.TurnOrder, 0)

	events := []Event{
		{Type: EvtCoinFlipped, Outcome: outcome, Winner: winner},
		{Type: EvtTurnStarted, Team: next.TurnOrder[0].Team},
	}
	return events, next, nil
}
