package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/itbasis/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/herodraft/draft-server/internal/catalog"
	"github.com/herodraft/draft-server/internal/engine"
	"github.com/herodraft/draft-server/internal/hub"
	"github.com/herodraft/draft-server/internal/session"
	"github.com/herodraft/draft-server/internal/store"
	"github.com/herodraft/draft-server/pkg/types"
)

type nopRecorder struct{}

func (nopRecorder) Finalize(context.Context, *store.DraftRecord) error { return nil }

func newServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	cat, err := catalog.New(catalog.Defaults)
	require.NoError(t, err)
	pattern, err := engine.ParsePattern(engine.DefaultPattern)
	require.NoError(t, err)

	h := hub.NewHub(context.Background(), hub.Config{
		Rules: session.Rules{
			BanTimer:   30 * time.Second,
			PickTimer:  30 * time.Second,
			GraceDelay: 2 * time.Second,
			FlipDelay:  time.Second,
		},
		Pattern:  pattern,
		Catalog:  cat,
		Recorder: nopRecorder{},
		Clock:    clock.NewMock(),
		Log:      zap.NewNop(),
	})
	t.Cleanup(func() { h.Inbox() <- hub.ShutdownHub{} })

	srv := httptest.NewServer(Handler(h, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "/?" + query
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandler_UnknownDraftRejected(t *testing.T) {
	srv, _ := newServer(t)

	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "/?draft=missing&role=spectator&actor=x"
	_, resp, err := websocket.Dial(context.Background(), url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 404, resp.StatusCode)
	}
}

func TestHandler_JoinSendsStateView(t *testing.T) {
	srv, h := newServer(t)
	h.Create(session.Meta{ID: "d1", Team1CaptainID: "cap-a", Team2CaptainID: "cap-b"})

	conn := dial(t, srv, "draft=d1&role=captain1&actor=cap-a")

	msg := readMsg(t, conn)
	require.Equal(t, "StateView", msg.Type)
	require.NotNil(t, msg.View)
	assert.Equal(t, "d1", msg.View.DraftID)
	assert.Equal(t, engine.StatusWaiting, msg.View.Status)
	assert.Equal(t, 1, msg.View.Version)
}

func TestHandler_BadPayloadGetsLocalError(t *testing.T) {
	srv, h := newServer(t)
	h.Create(session.Meta{ID: "d2", Team1CaptainID: "cap-a", Team2CaptainID: "cap-b"})

	conn := dial(t, srv, "draft=d2&role=captain1&actor=cap-a")
	readMsg(t, conn) // initial view

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText,
		[]byte(`{"type":"Nonsense"}`)))

	msg := readMsg(t, conn)
	assert.Equal(t, "Error", msg.Type)
	assert.Equal(t, "BadRequest", msg.Code)
}

func TestHandler_WrongActorDemotedToSpectator(t *testing.T) {
	srv, h := newServer(t)
	h.Create(session.Meta{ID: "d3", Team1CaptainID: "cap-a", Team2CaptainID: "cap-b"})

	// Claims captain1 but authenticates as someone else.
	conn := dial(t, srv, "draft=d3&role=captain1&actor=imposter")
	readMsg(t, conn)

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText,
		[]byte(`{"type":"ChooseSide","side":"heads"}`)))

	msg := readMsg(t, conn)
	require.Equal(t, "Error", msg.Type)
	// Spectators cannot act; the exact code depends on draft phase.
	assert.NotEmpty(t, msg.Code)
}

func TestResolveRole(t *testing.T) {
	meta := session.Meta{Team1CaptainID: "cap-a", Team2CaptainID: "cap-b"}

	assert.Equal(t, engine.RoleCaptain1, resolveRole(meta, engine.RoleCaptain1, "cap-a"))
	assert.Equal(t, engine.RoleCaptain2, resolveRole(meta, engine.RoleCaptain2, "cap-b"))
	assert.Equal(t, engine.RoleSpectator, resolveRole(meta, engine.RoleCaptain1, "cap-b"))
	assert.Equal(t, engine.RoleSpectator, resolveRole(meta, engine.RoleSpectator, "cap-a"))
	assert.Equal(t, engine.RoleSpectator, resolveRole(meta, engine.Role("bogus"), "cap-a"))
}
