// Package timer implements the per-session turn countdown. A Timer is owned
// by a single session actor: every method is called from that actor's loop,
// so there is no locking. Expiry never touches session state; it invokes the
// fire callback, which enqueues a timeout event into the owning actor's
// inbox tagged with the generation that armed it. The actor drops fires
// whose generation is stale, so a turn resolved just before expiry can never
// be double-resolved.
package timer

import (
	"time"

	"github.com/itbasis/go-clock"
)

type Timer struct {
	clk      clock.Clock
	gen      int
	handle   *clock.Timer
	fire     func(gen int)
	deadline time.Time
	paused   bool
	// remaining is meaningful only while paused.
	remaining time.Duration
}

func New(clk clock.Clock) *Timer {
	return &Timer{clk: clk}
}

// Arm starts a fresh countdown, invalidating any previous one, and returns
// the new generation.
func (t *Timer) Arm(d time.Duration, fire func(gen int)) int {
	t.Cancel()
	t.gen++
	t.fire = fire
	t.deadline = t.clk.Now().Add(d)
	t.paused = false
	gen := t.gen
	t.handle = t.clk.AfterFunc(d, func() { fire(gen) })
	return gen
}

// Cancel stops the countdown. Any in-flight fire keeps its old generation
// and will be dropped by the owner.
func (t *Timer) Cancel() {
	if t.handle != nil {
		t.handle.Stop()
		t.handle = nil
	}
	t.paused = false
	t.fire = nil
}

// Pause freezes the countdown, banking the time left. No-op unless armed
// and running.
func (t *Timer) Pause() {
	if t.handle == nil || t.paused {
		return
	}
	t.handle.Stop()
	if d := t.deadline.Sub(t.clk.Now()); d > 0 {
		t.remaining = d
	} else {
		t.remaining = 0
	}
	t.paused = true
}

// Resume restarts the countdown with the banked remainder; the deadline
// moves out by however long the pause lasted. The generation is unchanged.
func (t *Timer) Resume() {
	if t.handle == nil || !t.paused {
		return
	}
	t.deadline = t.clk.Now().Add(t.remaining)
	t.paused = false
	gen := t.gen
	fire := t.fire
	t.handle = t.clk.AfterFunc(t.remaining, func() { fire(gen) })
}

// Gen is the generation of the current countdown; fires carrying anything
// older are stale.
func (t *Timer) Gen() int { return t.gen }

func (t *Timer) Active() bool { return t.handle != nil }

func (t *Timer) Paused() bool { return t.paused }

// Remaining reports the time left on the countdown, frozen while paused.
func (t *Timer) Remaining() time.Duration {
	if t.handle == nil {
		return 0
	}
	if t.paused {
		return t.remaining
	}
	if d := t.deadline.Sub(t.clk.Now()); d > 0 {
		return d
	}
	return 0
}

// DeadlineMs is the absolute expiry in unix milliseconds, or 0 when idle.
// While paused it reports the projected deadline as of now.
func (t *Timer) DeadlineMs() int64 {
	if t.handle == nil {
		return 0
	}
	if t.paused {
		return t.clk.Now().Add(t.remaining).UnixMilli()
	}
	return t.deadline.UnixMilli()
}
