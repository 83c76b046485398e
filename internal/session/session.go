// Package session implements the per-draft actor: a single goroutine owning
// one draft's state, draining an ordered inbox of client commands, presence
// events, and delayed self-events. All mutation happens inside the loop, so
// two captains clicking at once simply become two inbox items and exactly
// one wins the race.
package session

import (
	"context"
	"time"

	"github.com/itbasis/go-clock"
	"go.uber.org/zap"

	"github.com/herodraft/draft-server/internal/catalog"
	"github.com/herodraft/draft-server/internal/engine"
	"github.com/herodraft/draft-server/internal/presence"
	"github.com/herodraft/draft-server/internal/store"
	"github.com/herodraft/draft-server/internal/timer"
)

// Meta is the immutable identity handed in by the tournament subsystem at
// creation time.
type Meta struct {
	ID             string
	TournamentID   string
	Team1ID        string
	Team2ID        string
	Team1CaptainID string
	Team2CaptainID string
}

// Rules are the per-session timing knobs.
type Rules struct {
	BanTimer   time.Duration
	PickTimer  time.Duration
	GraceDelay time.Duration // both captains ready -> coin window opens
	FlipDelay  time.Duration // both sides chosen -> flip (animation window)
}

// Recorder is the slice of the store the actor needs: the terminal write.
type Recorder interface {
	Finalize(ctx context.Context, rec *store.DraftRecord) error
}

// Deps bundles the shared collaborators a session borrows from the hub.
type Deps struct {
	Catalog  *catalog.Catalog
	Recorder Recorder
	Clock    clock.Clock
	Log      *zap.Logger
	// OnTerminal is called once, after the final view is broadcast and the
	// record persisted, so the hub can drop its reference.
	OnTerminal func(draftID string)
}

type Session struct {
	inbox chan Msg
	meta  Meta
	rules Rules

	state   engine.State
	version int
	clients map[string]chan View
	pres    *presence.Tracker
	turn    *timer.Timer

	// delayGen guards coinOpenDue/flipDue the way the turn timer's own
	// generation guards turnTimeout.
	delayGen  int
	coinArmed bool
	degraded  bool

	deps   Deps
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func New(parent context.Context, meta Meta, rules Rules, pattern []engine.PatternStep, deps Deps) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:   make(chan Msg, 64),
		meta:    meta,
		rules:   rules,
		state:   engine.NewState(pattern),
		clients: make(map[string]chan View),
		pres:    presence.NewTracker(),
		turn:    timer.New(deps.Clock),
		deps:    deps,
		log:     deps.Log.With(zap.String("draft_id", meta.ID)),
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.loop()
	return s
}

// Inbox is the only way in. Tests and the transport layer send messages;
// the loop is the sole reader.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) Meta() Meta { return s.meta }

// Done closes when the actor has shut down; transports use it to avoid
// waiting on replies from a dead loop.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Send delivers msg to the actor, reporting false if the actor has already
// shut down. The loop stops draining its inbox once it exits, so a bare
// channel send could block forever.
func (s *Session) Send(msg Msg) bool {
	select {
	case s.inbox <- msg:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)
			case Leave:
				s.handleLeave(msg)
			case FromClient:
				s.handleClient(msg)
			case Stop:
				_, err := s.applyCommand(engine.Command{Type: engine.CmdStop, Reason: msg.Reason})
				reply(msg.Reply, err)
			case coinOpenDue:
				if msg.gen == s.delayGen {
					s.applyInternal(engine.Command{Type: engine.CmdOpenCoinToss})
				}
			case flipDue:
				if msg.gen == s.delayGen {
					s.applyInternal(engine.Command{Type: engine.CmdFlipCoin})
				}
			case turnTimeout:
				s.handleTimeout(msg)
			case GetState:
				msg.Reply <- DebugView{
					Version:     s.version,
					NumClients:  len(s.clients),
					State:       s.state,
					Presence:    s.pres.Snapshot(),
					Degraded:    s.degraded,
					RemainingMs: s.turn.Remaining().Milliseconds(),
				}
			case Shutdown:
				s.shutdown()
				return
			}
			if s.closed {
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	change := s.pres.Join(msg.ConnID, msg.Role, s.deps.Clock.Now())
	s.clients[msg.ConnID] = msg.Outbox
	s.log.Info("connection joined",
		zap.String("conn_id", msg.ConnID),
		zap.String("claimed_role", string(msg.Role)),
		zap.String("granted_role", string(change.Granted)))

	if change.BothCaptainsReady && s.state.Status == engine.StatusWaiting && !s.coinArmed {
		// Arm the coin-toss window once, after a short grace delay so both
		// UIs settle before the choice prompt appears.
		s.coinArmed = true
		s.scheduleDelayed(s.rules.GraceDelay, func(gen int) Msg { return coinOpenDue{gen: gen} })
	}

	if r := change.CaptainReturned; r != "" && s.degraded && change.Snapshot.BothCaptains() {
		// Reconnect ends the outage: the deadline extends by however long
		// the clock was paused.
		s.degraded = false
		s.turn.Resume()
		s.log.Info("captain reconnected, clock resumed", zap.String("role", string(r)))
	}

	s.publish([]engine.Event{{Type: engine.EvtPresenceChanged}})
}

func (s *Session) handleLeave(msg Leave) {
	change := s.pres.Leave(msg.ConnID, s.deps.Clock.Now())
	delete(s.clients, msg.ConnID)

	if dropped := change.CaptainDropped; dropped != "" &&
		(s.state.Status == engine.StatusCoinToss || s.state.Status.InTurnPhase()) {
		// A network blip must not cost a team its pick: mark degraded and
		// freeze the active turn's clock until the captain returns.
		s.degraded = true
		s.turn.Pause()
		s.log.Warn("captain disconnected mid-draft", zap.String("role", string(dropped)))
	}

	s.publish([]engine.Event{{Type: engine.EvtPresenceChanged}})
}

func (s *Session) handleClient(msg FromClient) {
	// Claimed roles are resolved upstream, but the granted presence role is
	// what counts for mutating commands.
	role, joined := s.pres.Role(msg.ConnID)
	if !joined {
		reply(msg.Reply, engine.ErrInvalidState)
		return
	}

	cmd := msg.Cmd
	cmd.Role = role
	switch cmd.Type {
	case engine.CmdChooseSide, engine.CmdSubmitAction:
	default:
		reply(msg.Reply, engine.ErrInvalidState)
		return
	}

	_, err := s.applyCommand(cmd)
	reply(msg.Reply, err)
}

func (s *Session) handleTimeout(msg turnTimeout) {
	if msg.gen != s.turn.Gen() || s.turn.Paused() {
		return // stale fire, or a pause raced the expiry
	}
	if _, ok := s.state.ActiveStep(); !ok {
		return
	}
	s.applyInternal(engine.Command{Type: engine.CmdTimeoutAdvance})
}

// applyCommand validates and applies one command, publishing on success.
// The returned error goes to the originating connection only; rejected
// commands leave state untouched and trigger no broadcast. A nil error with
// nil events is an acknowledged idempotent resubmit.
func (s *Session) applyCommand(cmd engine.Command) ([]engine.Event, error) {
	cmd.NowMs = s.deps.Clock.Now().UnixMilli()
	events, next, err := engine.Apply(s.state, cmd, s.deps.Catalog)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	if ierr := next.CheckInvariants(); ierr != nil {
		// Programmer-error safety net: abort rather than corrupt. The Stop
		// below runs against the previous (consistent) state.
		s.log.Error("invariant violation, aborting draft", zap.Error(ierr))
		stopEvents, stopped, _ := engine.Apply(s.state, engine.Command{
			Type:   engine.CmdStop,
			Reason: "internal error: " + ierr.Error(),
		}, s.deps.Catalog)
		s.state = stopped
		s.afterApply(stopEvents)
		s.publish(stopEvents)
		return nil, nil
	}

	s.state = next
	s.afterApply(events)
	s.publish(events)
	return events, nil
}

// applyInternal handles self-events; their errors are never user-visible.
func (s *Session) applyInternal(cmd engine.Command) {
	if _, err := s.applyCommand(cmd); err != nil {
		s.log.Debug("internal event ignored", zap.String("cmd", string(cmd.Type)), zap.Error(err))
	}
}

// afterApply reacts to the events of one applied command: timers and
// delayed follow-ups. Broadcast happens separately in publish.
func (s *Session) afterApply(events []engine.Event) {
	for _, e := range events {
		switch e.Type {
		case engine.EvtCoinChoiceMade:
			if s.state.Coin.Phase == engine.CoinBothChosen {
				// Visible animation window before the flip.
				s.scheduleDelayed(s.rules.FlipDelay, func(gen int) Msg { return flipDue{gen: gen} })
			}
		case engine.EvtTurnStarted:
			s.armTurnTimer()
		case engine.EvtDraftComplete, engine.EvtDraftStopped:
			s.turn.Cancel()
			s.persistFinal()
		}
	}
}

func (s *Session) armTurnTimer() {
	step, ok := s.state.ActiveStep()
	if !ok {
		return
	}
	d := s.rules.PickTimer
	if step.Action == engine.ActionBan {
		d = s.rules.BanTimer
	}
	s.turn.Arm(d, func(gen int) { s.deliver(turnTimeout{gen: gen}) })
	if s.degraded {
		// New turn while a captain is still gone: clock starts frozen.
		s.turn.Pause()
	}
}

func (s *Session) scheduleDelayed(d time.Duration, build func(gen int) Msg) {
	s.delayGen++
	gen := s.delayGen
	s.deps.Clock.AfterFunc(d, func() { s.deliver(build(gen)) })
}

// deliver is the timer-callback side of Send: callbacks run off the loop
// goroutine and must not block once the actor is gone.
func (s *Session) deliver(msg Msg) {
	select {
	case s.inbox <- msg:
	case <-s.ctx.Done():
	}
}

// publish broadcasts the post-event view to every subscriber and, on
// terminal transitions, tears the actor down.
func (s *Session) publish(events []engine.Event) {
	s.version++
	base := s.view(events)
	for id, ch := range s.clients {
		select {
		case ch <- s.viewFor(id, base):
		default:
			// Too far behind: drop the connection. It must resubscribe,
			// which replays the current view.
			s.log.Warn("dropping slow subscriber", zap.String("conn_id", id))
			close(ch)
			delete(s.clients, id)
		}
	}
	if s.state.Status.Terminal() {
		s.log.Info("draft terminal", zap.String("status", string(s.state.Status)))
		if s.deps.OnTerminal != nil {
			s.deps.OnTerminal(s.meta.ID)
		}
		s.shutdown()
	}
}

func (s *Session) view(events []engine.Event) View {
	return View{
		DraftID:         s.meta.ID,
		Version:         s.version,
		Status:          s.state.Status,
		Coin:            s.state.Coin,
		TurnOrder:       s.state.TurnOrder,
		Entries:         s.state.Entries,
		ActiveTurnIndex: s.state.ActiveTurnIndex(),
		TurnDeadlineMs:  s.turn.DeadlineMs(),
		RemainingMs:     s.turn.Remaining().Milliseconds(),
		Presence:        s.pres.Snapshot(),
		Degraded:        s.degraded,
		StopReason:      s.state.StopReason,
		Events:          events,
	}
}

// viewFor is the redaction seam. There is no hidden information in this
// design, so it is identity; a blind-ban variant would project here.
func (s *Session) viewFor(connID string, base View) View {
	return base
}

func (s *Session) persistFinal() {
	rec := &store.DraftRecord{
		ID:             s.meta.ID,
		TournamentID:   s.meta.TournamentID,
		Team1ID:        s.meta.Team1ID,
		Team2ID:        s.meta.Team2ID,
		Team1CaptainID: s.meta.Team1CaptainID,
		Team2CaptainID: s.meta.Team2CaptainID,
		Status:         string(s.state.Status),
		CoinOutcome:    string(s.state.Coin.Outcome),
		CoinWinner:     string(s.state.Coin.Winner),
		TurnOrder:      s.state.TurnOrder,
		Entries:        s.state.Entries,
		StopReason:     s.state.StopReason,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Recorder.Finalize(ctx, rec); err != nil {
		s.log.Error("finalize failed", zap.Error(err))
	}
}

func (s *Session) shutdown() {
	if s.closed {
		return
	}
	s.closed = true
	s.turn.Cancel()
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.cancel()
}

func reply(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
