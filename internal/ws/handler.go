package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/herodraft/draft-server/internal/engine"
	"github.com/herodraft/draft-server/internal/hub"
	"github.com/herodraft/draft-server/internal/session"
	"github.com/herodraft/draft-server/pkg/types"
)

// Handler upgrades /ws?draft=...&role=...&actor=... connections and bridges
// them onto the draft's session actor. The auth layer upstream resolves the
// actor id; the claimed captain role is re-validated against the session's
// captain ids here, and again against the turn order on every mutating
// command inside the actor.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draftID := r.URL.Query().Get("draft")
		if draftID == "" {
			http.Error(w, "missing draft", http.StatusBadRequest)
			return
		}

		sess, err := h.Lookup(draftID)
		if err != nil {
			http.Error(w, "draft not found", http.StatusNotFound)
			return
		}

		role := resolveRole(sess.Meta(),
			engine.Role(r.URL.Query().Get("role")),
			r.URL.Query().Get("actor"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		out := make(chan session.View, 8)
		if !sess.Send(session.Join{ConnID: connID, Role: role, Outbox: out}) {
			conn.Close(websocket.StatusNormalClosure, "session closed")
			return
		}
		defer sess.Send(session.Leave{ConnID: connID})

		log.Info("ws connected",
			zap.String("draft_id", draftID),
			zap.String("conn_id", connID),
			zap.String("role", string(role)))

		// Writer: views are fanned out by the actor; a closed outbox means
		// the session ended or we fell too far behind.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for view := range out {
				v := view
				payload, _ := json.Marshal(types.ServerMessage{Type: "StateView", View: &v})
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}()

		// Reader loop.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "BadRequest", "bad json")
				continue
			}
			cmd, ok := types.ToCommand(cm)
			if !ok {
				writeError(r.Context(), conn, "BadRequest", "unknown message type")
				continue
			}

			reply := make(chan error, 1)
			if !sess.Send(session.FromClient{ConnID: connID, Cmd: cmd, Reply: reply}) {
				writeError(r.Context(), conn, types.ErrorCode(engine.ErrSessionAlreadyTerminal),
					engine.ErrSessionAlreadyTerminal.Error())
				continue
			}
			select {
			case err = <-reply:
			case <-sess.Done():
				err = engine.ErrSessionAlreadyTerminal
			}
			if err != nil {
				// Rejections are local to this connection; nobody else
				// hears about them.
				writeError(r.Context(), conn, types.ErrorCode(err), err.Error())
			}
		}
	}
}

// resolveRole grants a captain role only when the authenticated actor id
// matches the captain registered at creation; everything else spectates.
func resolveRole(meta session.Meta, claimed engine.Role, actorID string) engine.Role {
	switch claimed {
	case engine.RoleCaptain1:
		if actorID == meta.Team1CaptainID {
			return engine.RoleCaptain1
		}
	case engine.RoleCaptain2:
		if actorID == meta.Team2CaptainID {
			return engine.RoleCaptain2
		}
	}
	return engine.RoleSpectator
}

func writeError(ctx context.Context, conn *websocket.Conn, code, msg string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "Error", Code: code, Error: msg})
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
