package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/itbasis/go-clock"
	"go.uber.org/zap"

	"github.com/herodraft/draft-server/internal/catalog"
	"github.com/herodraft/draft-server/internal/engine"
	"github.com/herodraft/draft-server/internal/store"
)

var testRules = Rules{
	BanTimer:   30 * time.Second,
	PickTimer:  30 * time.Second,
	GraceDelay: 2 * time.Second,
	FlipDelay:  1500 * time.Millisecond,
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []*store.DraftRecord
}

func (f *fakeRecorder) Finalize(_ context.Context, rec *store.DraftRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeRecorder) last() *store.DraftRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recs) == 0 {
		return nil
	}
	return f.recs[len(f.recs)-1]
}

type fixture struct {
	sess  *Session
	mock  *clock.Mock
	rec   *fakeRecorder
	ctx   context.Context
	close func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pattern, err := engine.ParsePattern(engine.DefaultPattern)
	if err != nil {
		t.Fatalf("pattern: %v", err)
	}
	cat, err := catalog.New(catalog.Defaults)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	mock := clock.NewMock()
	rec := &fakeRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	meta := Meta{
		ID: "draft-1", TournamentID: "t-1",
		Team1ID: "team-a", Team2ID: "team-b",
		Team1CaptainID: "cap-a", Team2CaptainID: "cap-b",
	}
	sess := New(ctx, meta, testRules, pattern, Deps{
		Catalog:  cat,
		Recorder: rec,
		Clock:    mock,
		Log:      zap.NewNop(),
	})
	return &fixture{sess: sess, mock: mock, rec: rec, ctx: ctx, close: cancel}
}

// recvView receives one view with a timeout so tests never hang.
func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func recvNoView(t *testing.T, ch <-chan View, within time.Duration) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no view within %v, got version %d (%v)", within, v.Version, v.Status)
	case <-time.After(within):
	}
}

func sendCmd(t *testing.T, s *Session, connID string, cmd engine.Command) error {
	t.Helper()
	reply := make(chan error, 1)
	s.Inbox() <- FromClient{ConnID: connID, Cmd: cmd, Reply: reply}
	select {
	case err := <-reply:
		return err
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for command reply")
		return nil
	}
}

func join(t *testing.T, s *Session, connID string, role engine.Role) chan View {
	t.Helper()
	out := make(chan View, 16)
	s.Inbox() <- Join{ConnID: connID, Role: role, Outbox: out}
	return out
}

// drainUntil pulls views until pred holds, failing after a few deliveries.
func drainUntil(t *testing.T, ch <-chan View, pred func(View) bool) View {
	t.Helper()
	for i := 0; i < 16; i++ {
		v := recvView(t, ch, time.Second)
		if pred(v) {
			return v
		}
	}
	t.Fatalf("predicate never satisfied")
	return View{}
}

func statusIs(status engine.Status) func(View) bool {
	return func(v View) bool { return v.Status == status }
}

// startDraft walks a fixture through joins, grace delay, side choices, and
// the flip, returning the two captain outboxes at BanPhase1.
func startDraft(t *testing.T, f *fixture) (c1, c2 chan View) {
	t.Helper()
	c1 = join(t, f.sess, "conn-1", engine.RoleCaptain1)
	c2 = join(t, f.sess, "conn-2", engine.RoleCaptain2)

	drainUntil(t, c2, func(v View) bool { return v.Presence.BothCaptains() })

	f.mock.Add(testRules.GraceDelay + time.Millisecond)
	drainUntil(t, c2, statusIs(engine.StatusCoinToss))

	if err := sendCmd(t, f.sess, "conn-1", engine.Command{Type: engine.CmdChooseSide, Side: engine.SideHeads}); err != nil {
		t.Fatalf("captain1 heads: %v", err)
	}
	if err := sendCmd(t, f.sess, "conn-2", engine.Command{Type: engine.CmdChooseSide, Side: engine.SideTails}); err != nil {
		t.Fatalf("captain2 tails: %v", err)
	}

	f.mock.Add(testRules.FlipDelay + time.Millisecond)
	v := drainUntil(t, c2, statusIs(engine.StatusBanPhase1))
	if v.Coin.Winner == "" {
		t.Fatalf("flip produced no winner")
	}
	if v.TurnOrder[0].Team != v.Coin.Winner {
		t.Fatalf("winner must act first: order[0]=%v winner=%v", v.TurnOrder[0].Team, v.Coin.Winner)
	}
	drainUntil(t, c1, statusIs(engine.StatusBanPhase1))
	return c1, c2
}

func connFor(team engine.Team) string {
	if team == engine.Team1 {
		return "conn-1"
	}
	return "conn-2"
}

func TestJoin_BroadcastsPresenceView(t *testing.T) {
	f := newFixture(t)
	c1 := join(t, f.sess, "conn-1", engine.RoleCaptain1)

	v := recvView(t, c1, time.Second)
	if v.Version != 1 {
		t.Fatalf("want version 1 on first join, got %d", v.Version)
	}
	if v.Status != engine.StatusWaiting || !v.Presence.Captain1 {
		t.Fatalf("unexpected view: %+v", v)
	}
	if v.ActiveTurnIndex != -1 {
		t.Fatalf("want active index -1 while waiting, got %d", v.ActiveTurnIndex)
	}
}

func TestCoinTossWindow_OpensAfterGraceDelay(t *testing.T) {
	f := newFixture(t)
	c1 := join(t, f.sess, "conn-1", engine.RoleCaptain1)
	join(t, f.sess, "conn-2", engine.RoleCaptain2)

	drainUntil(t, c1, func(v View) bool { return v.Presence.BothCaptains() })

	// Choice window must not open before the grace delay elapses.
	f.mock.Add(time.Second)
	recvNoView(t, c1, 50*time.Millisecond)

	f.mock.Add(testRules.GraceDelay)
	v := drainUntil(t, c1, statusIs(engine.StatusCoinToss))
	if v.Coin.Phase != engine.CoinAwaitingChoices {
		t.Fatalf("want AwaitingChoices, got %v", v.Coin.Phase)
	}
}

func TestChooseSide_TakenSideRejectedOnlyToSender(t *testing.T) {
	f := newFixture(t)
	c1 := join(t, f.sess, "conn-1", engine.RoleCaptain1)
	c2 := join(t, f.sess, "conn-2", engine.RoleCaptain2)
	drainUntil(t, c2, func(v View) bool { return v.Presence.BothCaptains() })
	f.mock.Add(testRules.GraceDelay + time.Millisecond)
	drainUntil(t, c2, statusIs(engine.StatusCoinToss))
	drainUntil(t, c1, statusIs(engine.StatusCoinToss))

	if err := sendCmd(t, f.sess, "conn-1", engine.Command{Type: engine.CmdChooseSide, Side: engine.SideHeads}); err != nil {
		t.Fatalf("captain1 heads: %v", err)
	}
	drainUntil(t, c1, func(v View) bool { return v.Coin.Choices[engine.Team1] == engine.SideHeads })

	err := sendCmd(t, f.sess, "conn-2", engine.Command{Type: engine.CmdChooseSide, Side: engine.SideHeads})
	if !errors.Is(err, engine.ErrSideTaken) {
		t.Fatalf("want ErrSideTaken, got %v", err)
	}
	// Rejection is local: no broadcast for it.
	recvNoView(t, c1, 50*time.Millisecond)

	if err := sendCmd(t, f.sess, "conn-2", engine.Command{Type: engine.CmdChooseSide, Side: engine.SideTails}); err != nil {
		t.Fatalf("captain2 tails after rejection: %v", err)
	}
}

func TestSubmitAction_RaceLoserGetsCleanError(t *testing.T) {
	f := newFixture(t)
	startDraft(t, f)

	actor := connFor(drainLatestTurnTeam(t, f))
	other := "conn-1"
	if actor == "conn-1" {
		other = "conn-2"
	}

	// Active captain bans hero 5.
	if err := sendCmd(t, f.sess, actor, engine.Command{Type: engine.CmdSubmitAction, Action: engine.ActionBan, HeroID: 5}); err != nil {
		t.Fatalf("ban: %v", err)
	}

	// The other captain is now on turn; trying the same hero loses cleanly.
	err := sendCmd(t, f.sess, other, engine.Command{Type: engine.CmdSubmitAction, Action: engine.ActionBan, HeroID: 5})
	if !errors.Is(err, engine.ErrHeroAlreadyUsed) {
		t.Fatalf("want ErrHeroAlreadyUsed, got %v", err)
	}

	// Out-of-turn submit from the first captain is NotYourTurn.
	err = sendCmd(t, f.sess, actor, engine.Command{Type: engine.CmdSubmitAction, Action: engine.ActionBan, HeroID: 6})
	if !errors.Is(err, engine.ErrNotYourTurn) {
		t.Fatalf("want ErrNotYourTurn, got %v", err)
	}
}

// drainLatestTurnTeam asks the actor whose turn it is right now.
func drainLatestTurnTeam(t *testing.T, f *fixture) engine.Team {
	t.Helper()
	reply := make(chan DebugView, 1)
	f.sess.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		step, ok := v.State.ActiveStep()
		if !ok {
			t.Fatalf("no active step")
		}
		return step.Team
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for state")
		return ""
	}
}

func TestTimeout_BanSkippedAndBroadcast(t *testing.T) {
	f := newFixture(t)
	c1, _ := startDraft(t, f)

	f.mock.Add(testRules.BanTimer + time.Millisecond)

	v := drainUntil(t, c1, func(v View) bool { return len(v.Entries) == 1 })
	e := v.Entries[0]
	if !e.Skipped() || e.Action != engine.ActionBan {
		t.Fatalf("want skipped ban, got %+v", e)
	}
	if v.ActiveTurnIndex != 1 {
		t.Fatalf("want cursor advanced to 1, got %d", v.ActiveTurnIndex)
	}
	if !hasEvent(v, engine.EvtTurnResolved) {
		t.Fatalf("want TurnResolved broadcast, got %+v", v.Events)
	}
}

func TestTimeout_PickAutoAssignsLowestUnused(t *testing.T) {
	f := newFixture(t)
	c1, _ := startDraft(t, f)

	// Let all six ban-phase-1 turns time out, then the first pick turn.
	// Drain after each expiry so the next timer is armed before the clock
	// moves again.
	var v View
	for i := 0; i < 6; i++ {
		f.mock.Add(testRules.BanTimer + time.Millisecond)
		want := i + 1
		v = drainUntil(t, c1, func(v View) bool { return len(v.Entries) == want })
	}
	if v.Status != engine.StatusPickPhase1 {
		t.Fatalf("want PickPhase1 after six bans, got %v", v.Status)
	}

	f.mock.Add(testRules.PickTimer + time.Millisecond)
	v = drainUntil(t, c1, func(v View) bool { return len(v.Entries) == 7 })
	if got := v.Entries[6].HeroID; got != 1 {
		t.Fatalf("want auto-pick of hero 1 (lowest unused), got %d", got)
	}
}

func TestDisconnect_PausesDeadlineUntilReconnect(t *testing.T) {
	f := newFixture(t)
	_, c2 := startDraft(t, f)

	// 10 seconds in, the active captain's counterpart network blips; any
	// captain drop pauses the clock.
	f.mock.Add(10 * time.Second)
	f.sess.Inbox() <- Leave{ConnID: "conn-1"}
	v := drainUntil(t, c2, func(v View) bool { return v.Degraded })
	if v.Presence.Captain1 {
		t.Fatalf("captain1 still present after leave")
	}

	// An outage longer than the whole timer must not expire the turn.
	f.mock.Add(testRules.BanTimer * 2)
	recvNoView(t, c2, 50*time.Millisecond)

	// Reconnect: clock resumes with ~20s banked.
	c1b := join(t, f.sess, "conn-1b", engine.RoleCaptain1)
	v = drainUntil(t, c1b, func(v View) bool { return !v.Degraded })
	remaining := time.Duration(v.RemainingMs) * time.Millisecond
	if remaining < 19*time.Second || remaining > 21*time.Second {
		t.Fatalf("want ~20s banked, got %v", remaining)
	}

	f.mock.Add(19 * time.Second)
	recvNoView(t, c2, 50*time.Millisecond)

	f.mock.Add(2 * time.Second)
	v = drainUntil(t, c2, func(v View) bool { return len(v.Entries) == 1 })
	if !v.Entries[0].Skipped() {
		t.Fatalf("want skipped ban after resumed expiry, got %+v", v.Entries[0])
	}
}

func TestDuplicateCaptainConnection_IsViewerNotVote(t *testing.T) {
	f := newFixture(t)
	_, _ = startDraft(t, f)

	dup := join(t, f.sess, "conn-1-dup", engine.RoleCaptain1)
	v := recvView(t, dup, time.Second)
	if v.Presence.Spectators != 1 {
		t.Fatalf("duplicate captain should count as spectator, got %+v", v.Presence)
	}

	// Granted role, not claimed role, is what submits are judged by: the
	// demoted duplicate can never act for its claimed team.
	err := sendCmd(t, f.sess, "conn-1-dup", engine.Command{Type: engine.CmdSubmitAction, Action: engine.ActionBan, HeroID: 9})
	if !errors.Is(err, engine.ErrNotYourTurn) {
		t.Fatalf("want ErrNotYourTurn for duplicate, got %v", err)
	}
}

func TestStop_FinalizesAndRefusesFurtherCommands(t *testing.T) {
	f := newFixture(t)
	c1, _ := startDraft(t, f)

	reply := make(chan error, 1)
	f.sess.Inbox() <- Stop{Reason: "admin abort", Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("stop: %v", err)
	}

	v := drainUntil(t, c1, statusIs(engine.StatusStopped))
	if v.StopReason != "admin abort" || !hasEvent(v, engine.EvtDraftStopped) {
		t.Fatalf("unexpected terminal view: %+v", v)
	}

	rec := f.rec.last()
	if rec == nil || rec.Status != string(engine.StatusStopped) || rec.ID != "draft-1" {
		t.Fatalf("stop not persisted: %+v", rec)
	}

	// Timer must be dead: nothing fires after termination.
	f.mock.Add(testRules.BanTimer * 3)
	recvNoView(t, c1, 50*time.Millisecond)
}

func TestCompletion_PersistsFullDraft(t *testing.T) {
	f := newFixture(t)
	c1, _ := startDraft(t, f)

	// Drive the whole draft by timeouts: deterministic and exercises both
	// fallbacks. Drain per expiry so each successor timer exists before
	// the clock advances.
	var last View
	for i := 0; i < 20; i++ {
		f.mock.Add(testRules.PickTimer + time.Millisecond)
		want := i + 1
		last = drainUntil(t, c1, func(v View) bool { return len(v.Entries) == want })
	}
	if last.Status != engine.StatusComplete {
		t.Fatalf("want Complete, got %v", last.Status)
	}
	if !hasEvent(last, engine.EvtDraftComplete) {
		t.Fatalf("want DraftComplete event, got %+v", last.Events)
	}
	if len(last.Entries) != 20 {
		t.Fatalf("want 20 entries, got %d", len(last.Entries))
	}

	rec := f.rec.last()
	if rec == nil || rec.Status != string(engine.StatusComplete) {
		t.Fatalf("completion not persisted: %+v", rec)
	}
	if len(rec.Entries) != 20 {
		t.Fatalf("persisted %d entries", len(rec.Entries))
	}
}

func TestSlowSubscriber_IsDroppedNotBlocking(t *testing.T) {
	f := newFixture(t)

	full := make(chan View) // unbuffered and never read
	f.sess.Inbox() <- Join{ConnID: "slow", Role: engine.RoleSpectator, Outbox: full}

	c1 := join(t, f.sess, "conn-1", engine.RoleCaptain1)
	recvView(t, c1, time.Second)

	reply := make(chan DebugView, 1)
	f.sess.Inbox() <- GetState{Reply: reply}
	v := <-reply
	if v.NumClients != 1 {
		t.Fatalf("slow subscriber not dropped: %d clients", v.NumClients)
	}
}

func hasEvent(v View, et engine.EventType) bool {
	for _, e := range v.Events {
		if e.Type == et {
			return true
		}
	}
	return false
}
