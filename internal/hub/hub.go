// Package hub routes draft ids to their session actors. The hub is itself a
// small actor so registry mutation is serialized the same way session state
// is.
package hub

import (
	"context"
	"errors"

	"github.com/itbasis/go-clock"
	"go.uber.org/zap"

	"github.com/herodraft/draft-server/internal/catalog"
	"github.com/herodraft/draft-server/internal/engine"
	"github.com/herodraft/draft-server/internal/session"
)

var ErrSessionNotFound = errors.New("session not found")

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Meta  session.Meta
	Reply chan *session.Session
}

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

type RemoveSession struct {
	ID string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Config is everything a new session borrows from the process.
type Config struct {
	Rules    session.Rules
	Pattern  []engine.PatternStep
	Catalog  *catalog.Catalog
	Recorder session.Recorder
	Clock    clock.Clock
	Log      *zap.Logger
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	cfg      Config
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if sess := h.sessions[msg.Meta.ID]; sess != nil {
					msg.Reply <- sess
					break
				}
				deps := session.Deps{
					Catalog:  h.cfg.Catalog,
					Recorder: h.cfg.Recorder,
					Clock:    h.cfg.Clock,
					Log:      h.cfg.Log,
					// Terminal sessions remove themselves; the send is
					// async because the actor calls this from its own loop.
					OnTerminal: func(id string) {
						select {
						case h.inbox <- RemoveSession{ID: id}:
						default:
						}
					},
				}
				sess := session.New(h.ctx, msg.Meta, h.cfg.Rules, h.cfg.Pattern, deps)
				h.sessions[msg.Meta.ID] = sess
				h.cfg.Log.Info("session created", zap.String("draft_id", msg.Meta.ID))
				msg.Reply <- sess

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // may be nil

			case RemoveSession:
				delete(h.sessions, msg.ID)

			case ShutdownHub:
				for _, sess := range h.sessions {
					sess.Inbox() <- session.Shutdown{}
				}
				clear(h.sessions)
				h.cancel()
				return
			}
		}
	}
}

// Lookup is request/reply sugar over the inbox.
func (h *Hub) Lookup(id string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	h.Inbox() <- GetSession{ID: id, Reply: reply}
	sess := <-reply
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Create registers (or returns) the session for meta.
func (h *Hub) Create(meta session.Meta) *session.Session {
	reply := make(chan *session.Session, 1)
	h.Inbox() <- CreateSession{Meta: meta, Reply: reply}
	return <-reply
}
