package engine

import (
	"errors"
	"fmt"

	"github.com/herodraft/draft-server/internal/catalog"
)

var ErrInvalidState = errors.New("command not legal in current phase")
var ErrNotYourTurn = errors.New("not your turn")
var ErrSideTaken = errors.New("side already taken")
var ErrInvalidHero = errors.New("unknown hero")
var ErrHeroAlreadyUsed = errors.New("hero already picked or banned")
var ErrSessionAlreadyTerminal = errors.New("session already terminal")

type Team string

const (
	Team1 Team = "team1"
	Team2 Team = "team2"
)

func (t Team) Other() Team {
	if t == Team1 {
		return Team2
	}
	return Team1
}

type Role string

const (
	RoleCaptain1  Role = "captain1"
	RoleCaptain2  Role = "captain2"
	RoleSpectator Role = "spectator"
)

// CaptainTeam maps a captain role to its team. Spectators have no team.
func (r Role) CaptainTeam() (Team, bool) {
	switch r {
	case RoleCaptain1:
		return Team1, true
	case RoleCaptain2:
		return Team2, true
	default:
		return "", false
	}
}

type Action string

const (
	ActionBan  Action = "ban"
	ActionPick Action = "pick"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusCoinToss   Status = "coin_toss"
	StatusBanPhase1  Status = "ban_phase_1"
	StatusPickPhase1 Status = "pick_phase_1"
	StatusBanPhase2  Status = "ban_phase_2"
	StatusPickPhase2 Status = "pick_phase_2"
	StatusComplete   Status = "complete"
	StatusStopped    Status = "stopped"
)

func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusStopped
}

func (s Status) InTurnPhase() bool {
	switch s {
	case StatusBanPhase1, StatusPickPhase1, StatusBanPhase2, StatusPickPhase2:
		return true
	}
	return false
}

// TurnStep is one slot of the fixed turn order.
type TurnStep struct {
	Team   Team   `json:"team"`
	Action Action `json:"action"`
	Slot   int    `json:"slot_index"`
}

// Entry records one resolved turn. HeroID 0 means a timed-out ban that was
// skipped: the slot is consumed but no hero is spent.
type Entry struct {
	Team        Team   `json:"team"`
	Action      Action `json:"action"`
	HeroID      int    `json:"hero_id"`
	TurnIndex   int    `json:"turn_index"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func (e Entry) Skipped() bool { return e.HeroID == 0 }

// State is the full in-memory draft state. It is owned by exactly one
// session actor; Apply never mutates its input.
type State struct {
	Status     Status        `json:"status"`
	Coin       CoinState     `json:"coin"`
	Pattern    []PatternStep `json:"-"`
	TurnOrder  []TurnStep    `json:"turn_order"`
	Entries    []Entry       `json:"entries"`
	Cursor     int           `json:"-"`
	StopReason string        `json:"stop_reason,omitempty"`
}

// NewState builds a fresh Waiting draft with the given turn pattern.
func NewState(pattern []PatternStep) State {
	return State{
		Status:  StatusWaiting,
		Coin:    newCoinState(),
		Pattern: pattern,
	}
}

// ActiveTurnIndex is the externally visible cursor: -1 whenever no turn is
// active (waiting, coin toss, terminal).
func (s State) ActiveTurnIndex() int {
	if !s.Status.InTurnPhase() {
		return -1
	}
	return s.Cursor
}

// ActiveStep returns the step awaiting resolution, if any.
func (s State) ActiveStep() (TurnStep, bool) {
	if !s.Status.InTurnPhase() || s.Cursor >= len(s.TurnOrder) {
		return TurnStep{}, false
	}
	return s.TurnOrder[s.Cursor], true
}

// UsedHeroes is the set of hero ids consumed so far. Skipped bans spend
// nothing.
func (s State) UsedHeroes() map[int]bool {
	used := make(map[int]bool, len(s.Entries))
	for _, e := range s.Entries {
		if !e.Skipped() {
			used[e.HeroID] = true
		}
	}
	return used
}

// CheckInvariants verifies the structural invariants every applied event
// must preserve. A non-nil return is a programmer error; the session actor
// aborts the draft into Stopped rather than continue with corrupt state.
func (s State) CheckInvariants() error {
	if len(s.Entries) != s.Cursor {
		return fmt.Errorf("entries/cursor mismatch: %d entries, cursor %d", len(s.Entries), s.Cursor)
	}
	seen := map[int]bool{}
	for _, e := range s.Entries {
		if e.Skipped() {
			continue
		}
		if seen[e.HeroID] {
			return fmt.Errorf("hero %d appears twice in entries", e.HeroID)
		}
		seen[e.HeroID] = true
	}
	return nil
}

type CommandType string

const (
	// CmdOpenCoinToss and CmdFlipCoin are internal: the session actor
	// enqueues them as delayed self-events (ready grace delay, flip
	// animation delay). Clients cannot send them.
	CmdOpenCoinToss   CommandType = "OpenCoinToss"
	CmdChooseSide     CommandType = "ChooseSide"
	CmdFlipCoin       CommandType = "FlipCoin"
	CmdSubmitAction   CommandType = "SubmitAction"
	CmdTimeoutAdvance CommandType = "TimeoutAdvance"
	CmdStop           CommandType = "Stop"
)

type Command struct {
	Type   CommandType
	Role   Role
	Side   Side
	Action Action
	HeroID int
	Reason string
	NowMs  int64
}

type EventType string

const (
	EvtCoinTossOpened EventType = "CoinTossOpened"
	EvtCoinChoiceMade EventType = "CoinChoiceMade"
	EvtCoinFlipped    EventType = "CoinFlipped"
	EvtTurnResolved   EventType = "TurnResolved"
	EvtTurnStarted    EventType = "TurnStarted"
	EvtDraftComplete  EventType = "DraftComplete"
	EvtDraftStopped   EventType = "DraftStopped"
	// EvtPresenceChanged is emitted by the session actor, not by Apply; it
	// shares this enum so the wire layer has a single event type.
	EvtPresenceChanged EventType = "PresenceChanged"
)

type Event struct {
	Type    EventType `json:"type"`
	Team    Team      `json:"team,omitempty"`
	Side    Side      `json:"side,omitempty"`
	Outcome Side      `json:"outcome,omitempty"`
	Winner  Team      `json:"winner,omitempty"`
	Entry   *Entry    `json:"entry,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// Apply validates cmd against s and returns the events it produced plus the
// successor state. On error the returned state is s unchanged. An empty
// event list with a nil error is an idempotent no-op (duplicate resubmit):
// the caller acknowledges it without broadcasting.
func Apply(s State, cmd Command, cat *catalog.Catalog) ([]Event, State, error) {
	if s.Status.Terminal() && cmd.Type != CmdStop {
		return nil, s, ErrSessionAlreadyTerminal
	}

	switch cmd.Type {
	case CmdOpenCoinToss:
		return applyOpenCoinToss(s)
	case CmdChooseSide:
		return applyChooseSide(s, cmd)
	case CmdFlipCoin:
		return applyFlipCoin(s)
	case CmdSubmitAction:
		return applySubmitAction(s, cmd, cat)
	case CmdTimeoutAdvance:
		return applyTimeoutAdvance(s, cmd, cat)
	case CmdStop:
		return applyStop(s, cmd)
	default:
		return nil, s, ErrInvalidState
	}
}

func applySubmitAction(s State, cmd Command, cat *catalog.Catalog) ([]Event, State, error) {
	team, isCaptain := cmd.Role.CaptainTeam()
	if !isCaptain {
		return nil, s, ErrNotYourTurn
	}

	// Resubmit of the entry that just resolved: acknowledge, change nothing.
	if prev := lastEntry(s); prev != nil &&
		prev.Team == team && prev.Action == cmd.Action && prev.HeroID == cmd.HeroID {
		return nil, s, nil
	}

	step, ok := s.ActiveStep()
	if !ok {
		return nil, s, ErrInvalidState
	}
	if step.Team != team {
		return nil, s, ErrNotYourTurn
	}
	if step.Action != cmd.Action {
		return nil, s, ErrInvalidState
	}
	if !cat.Exists(cmd.HeroID) {
		return nil, s, ErrInvalidHero
	}
	if s.UsedHeroes()[cmd.HeroID] {
		return nil, s, ErrHeroAlreadyUsed
	}

	entry := Entry{
		Team:        team,
		Action:      step.Action,
		HeroID:      cmd.HeroID,
		TurnIndex:   s.Cursor,
		TimestampMs: cmd.NowMs,
	}
	return advance(s, entry)
}

func applyTimeoutAdvance(s State, cmd Command, cat *catalog.Catalog) ([]Event, State, error) {
	step, ok := s.ActiveStep()
	if !ok {
		return nil, s, ErrInvalidState
	}

	entry := Entry{
		Team:        step.Team,
		Action:      step.Action,
		TurnIndex:   s.Cursor,
		TimestampMs: cmd.NowMs,
	}
	if step.Action == ActionPick {
		// Deterministic fallback: lowest unused hero id. A ban timeout
		// leaves HeroID 0, consuming the slot with no hero spent.
		if id, ok := cat.LowestUnused(s.UsedHeroes()); ok {
			entry.HeroID = id
		}
	}
	return advance(s, entry)
}

// advance appends entry, moves the cursor, and derives the next status.
func advance(s State, entry Entry) ([]Event, State, error) {
	next := s
	next.Entries = append(append([]Entry{}, s.Entries...), entry)
	next.Cursor = s.Cursor + 1

	events := []Event{{Type: EvtTurnResolved, Team: entry.Team, Entry: &entry}}

	if next.Cursor >= len(next.TurnOrder) {
		next.Status = StatusComplete
		events = append(events, Event{Type: EvtDraftComplete})
		return events, next, nil
	}

	next.Status = PhaseAt(next.TurnOrder, next.Cursor)
	events = append(events, Event{Type: EvtTurnStarted, Team: next.TurnOrder[next.Cursor].Team})
	return events, next, nil
}

func applyStop(s State, cmd Command) ([]Event, State, error) {
	if s.Status.Terminal() {
		return nil, s, ErrSessionAlreadyTerminal
	}
	next := s
	next.Status = StatusStopped
	next.StopReason = cmd.Reason
	return []Event{{Type: EvtDraftStopped, Reason: cmd.Reason}}, next, nil
}

func lastEntry(s State) *Entry {
	if len(s.Entries) == 0 {
		return nil
	}
	return &s.Entries[len(s.Entries)-1]
}
