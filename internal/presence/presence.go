// Package presence tracks which roles hold open connections for one draft.
// A Tracker is plain data owned by the session actor; all mutation happens
// inside that actor's loop.
package presence

import (
	"time"

	"github.com/herodraft/draft-server/internal/engine"
)

type Conn struct {
	ID          string
	Role        engine.Role
	ConnectedAt time.Time
	LastSeenAt  time.Time
}

// Snapshot reports, per role, whether at least one connection is present.
type Snapshot struct {
	Captain1   bool `json:"captain1"`
	Captain2   bool `json:"captain2"`
	Spectators int  `json:"spectators"`
}

func (s Snapshot) BothCaptains() bool { return s.Captain1 && s.Captain2 }

// Change is the result of one join/leave: the new snapshot plus the edges
// the session actor reacts to.
type Change struct {
	Snapshot Snapshot
	// Role actually granted to the joining connection (a duplicate captain
	// connection is demoted to spectator).
	Granted engine.Role
	// BothCaptainsReady is true on the transition from "not both present"
	// to "both present".
	BothCaptainsReady bool
	// CaptainDropped / CaptainReturned report a captain role losing its
	// last connection or regaining one.
	CaptainDropped  engine.Role
	CaptainReturned engine.Role
}

type Tracker struct {
	conns map[string]*Conn
	// Authoritative connection per captain role. At most one connection per
	// captain role counts; extras are viewers.
	captains map[engine.Role]string
}

func NewTracker() *Tracker {
	return &Tracker{
		conns:    make(map[string]*Conn),
		captains: make(map[engine.Role]string),
	}
}

func (t *Tracker) Snapshot() Snapshot {
	snap := Snapshot{}
	for _, c := range t.conns {
		switch c.Role {
		case engine.RoleCaptain1:
			snap.Captain1 = true
		case engine.RoleCaptain2:
			snap.Captain2 = true
		default:
			snap.Spectators++
		}
	}
	return snap
}

// Join registers a connection under its claimed role. The second concurrent
// connection for a captain role is a duplicate viewer, not a second vote:
// it is granted spectator.
func (t *Tracker) Join(connID string, claimed engine.Role, now time.Time) Change {
	before := t.Snapshot()

	granted := claimed
	if _, isCaptain := claimed.CaptainTeam(); isCaptain {
		if _, taken := t.captains[claimed]; taken {
			granted = engine.RoleSpectator
		} else {
			t.captains[claimed] = connID
		}
	} else {
		granted = engine.RoleSpectator
	}

	t.conns[connID] = &Conn{
		ID:          connID,
		Role:        granted,
		ConnectedAt: now,
		LastSeenAt:  now,
	}

	after := t.Snapshot()
	change := Change{Snapshot: after, Granted: granted}
	if !before.BothCaptains() && after.BothCaptains() {
		change.BothCaptainsReady = true
	}
	if _, isCaptain := granted.CaptainTeam(); isCaptain {
		change.CaptainReturned = granted
	}
	return change
}

// Leave removes a connection. Dropping a captain's authoritative connection
// reports CaptainDropped so the actor can pause the turn clock.
func (t *Tracker) Leave(connID string, now time.Time) Change {
	c, ok := t.conns[connID]
	if !ok {
		return Change{Snapshot: t.Snapshot()}
	}
	delete(t.conns, connID)

	change := Change{}
	if t.captains[c.Role] == connID {
		delete(t.captains, c.Role)
		change.CaptainDropped = c.Role
	}
	change.Snapshot = t.Snapshot()
	return change
}

// Touch refreshes a connection's liveness stamp.
func (t *Tracker) Touch(connID string, now time.Time) {
	if c, ok := t.conns[connID]; ok {
		c.LastSeenAt = now
	}
}

// Role reports the granted role of a connection.
func (t *Tracker) Role(connID string) (engine.Role, bool) {
	c, ok := t.conns[connID]
	if !ok {
		return "", false
	}
	return c.Role, true
}

func (t *Tracker) Len() int { return len(t.conns) }
