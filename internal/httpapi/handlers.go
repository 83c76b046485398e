package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/herodraft/draft-server/internal/catalog"
	"github.com/herodraft/draft-server/internal/engine"
	"github.com/herodraft/draft-server/internal/hub"
	"github.com/herodraft/draft-server/internal/session"
	"github.com/herodraft/draft-server/internal/store"
)

// Store is the slice of persistence the HTTP layer needs.
type Store interface {
	Create(ctx context.Context, rec *store.DraftRecord) error
	Get(ctx context.Context, id string) (*store.DraftRecord, error)
}

type API struct {
	hub   *hub.Hub
	store Store
	cat   *catalog.Catalog
	log   *zap.Logger
}

func NewAPI(h *hub.Hub, st Store, cat *catalog.Catalog, log *zap.Logger) *API {
	return &API{hub: h, store: st, cat: cat, log: log}
}

type createDraftRequest struct {
	TournamentID   string `json:"tournament_id"`
	Team1ID        string `json:"team1_id"`
	Team2ID        string `json:"team2_id"`
	Team1CaptainID string `json:"team1_captain_id"`
	Team2CaptainID string `json:"team2_captain_id"`
}

func (r createDraftRequest) validate() error {
	if r.TournamentID == "" || r.Team1ID == "" || r.Team2ID == "" ||
		r.Team1CaptainID == "" || r.Team2CaptainID == "" {
		return errors.New("all of tournament_id, team1_id, team2_id, team1_captain_id, team2_captain_id are required")
	}
	if r.Team1ID == r.Team2ID {
		return errors.New("team1_id and team2_id must differ")
	}
	return nil
}

// CreateDraft registers a new draft session. Called by the admin-facing
// tournament subsystem, which supplies team and captain identities.
func (a *API) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := req.validate(); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := uuid.NewString()
	rec := &store.DraftRecord{
		ID:             id,
		TournamentID:   req.TournamentID,
		Team1ID:        req.Team1ID,
		Team2ID:        req.Team2ID,
		Team1CaptainID: req.Team1CaptainID,
		Team2CaptainID: req.Team2CaptainID,
		Status:         string(engine.StatusWaiting),
	}
	if err := a.store.Create(r.Context(), rec); err != nil {
		a.log.Error("create draft", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "failed to create draft")
		return
	}

	a.hub.Create(session.Meta{
		ID:             id,
		TournamentID:   req.TournamentID,
		Team1ID:        req.Team1ID,
		Team2ID:        req.Team2ID,
		Team1CaptainID: req.Team1CaptainID,
		Team2CaptainID: req.Team2CaptainID,
	})

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type draftResponse struct {
	ID              string            `json:"id"`
	Status          engine.Status     `json:"status"`
	Coin            *engine.CoinState `json:"coin,omitempty"`
	TurnOrder       []engine.TurnStep `json:"turn_order,omitempty"`
	Entries         []engine.Entry    `json:"entries"`
	ActiveTurnIndex int               `json:"active_turn_index"`
	StopReason      string            `json:"stop_reason,omitempty"`
	Live            bool              `json:"live"`
}

// GetDraft reads the live session if its actor is running, falling back to
// the persisted record for terminal drafts.
func (a *API) GetDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if sess, err := a.hub.Lookup(id); err == nil {
		v, ok, err := liveState(sess)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "session busy")
			return
		}
		if ok {
			st := v.State
			writeJSON(w, http.StatusOK, draftResponse{
				ID:              id,
				Status:          st.Status,
				Coin:            &st.Coin,
				TurnOrder:       st.TurnOrder,
				Entries:         st.Entries,
				ActiveTurnIndex: st.ActiveTurnIndex(),
				StopReason:      st.StopReason,
				Live:            true,
			})
			return
		}
		// Actor finished between lookup and reply; fall through to the
		// record.
	}

	rec, err := a.store.Get(r.Context(), id)
	if err != nil {
		a.log.Error("get draft", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if rec == nil {
		httpError(w, http.StatusNotFound, "draft not found")
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{
		ID:              rec.ID,
		Status:          engine.Status(rec.Status),
		TurnOrder:       rec.TurnOrder,
		Entries:         rec.Entries,
		ActiveTurnIndex: -1,
		StopReason:      rec.StopReason,
	})
}

type stopDraftRequest struct {
	Reason string `json:"reason"`
}

// StopDraft is the admin termination endpoint.
func (a *API) StopDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req stopDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Reason == "" {
		req.Reason = "stopped by admin"
	}

	sess, err := a.hub.Lookup(id)
	if err != nil {
		rec, gerr := a.store.Get(r.Context(), id)
		if gerr == nil && rec != nil {
			httpError(w, http.StatusConflict, "draft already terminal")
			return
		}
		httpError(w, http.StatusNotFound, "draft not found")
		return
	}

	reply := make(chan error, 1)
	if !sess.Send(session.Stop{Reason: req.Reason, Reply: reply}) {
		httpError(w, http.StatusConflict, "draft already terminal")
		return
	}
	select {
	case err = <-reply:
	case <-sess.Done():
		err = engine.ErrSessionAlreadyTerminal
	case <-time.After(2 * time.Second):
		httpError(w, http.StatusServiceUnavailable, "session busy")
		return
	}
	if errors.Is(err, engine.ErrSessionAlreadyTerminal) {
		httpError(w, http.StatusConflict, "draft already terminal")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(engine.StatusStopped)})
}

// ListHeroes serves the catalog to clients building pick grids.
func (a *API) ListHeroes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.cat.Heroes())
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// liveState asks a session actor for its current state. ok is false when the
// actor shut down before answering; err is non-nil when it exists but is not
// keeping up.
func liveState(sess *session.Session) (session.DebugView, bool, error) {
	reply := make(chan session.DebugView, 1)
	if !sess.Send(session.GetState{Reply: reply}) {
		return session.DebugView{}, false, nil
	}
	select {
	case v := <-reply:
		return v, true, nil
	case <-sess.Done():
		return session.DebugView{}, false, nil
	case <-time.After(2 * time.Second):
		return session.DebugView{}, false, errors.New("timeout")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
