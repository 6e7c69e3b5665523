package operator_http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/charleschow/live-scoring/internal/adapters/outbound/backend_http"
	"github.com/charleschow/live-scoring/internal/core/completion"
	"github.com/charleschow/live-scoring/internal/core/dispatch"
	"github.com/charleschow/live-scoring/internal/core/reconciler"
	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

// Session is the read and selection side of the reconciler.
type Session interface {
	View(ctx context.Context) (reconciler.View, error)
	LiveMatches(ctx context.Context) ([]match.Summary, error)
	Select(ctx context.Context, matchID int64) error
	Deselect(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Commands is the operator command set.
type Commands interface {
	Score(ctx context.Context, side match.Side, actorID int64, pointWonBy string) error
	AddPoint(ctx context.Context, side match.Side, actorID int64, pointWonBy string) error
	AddGoal(ctx context.Context, side match.Side, actorID int64) error
	AddCard(ctx context.Context, color dispatch.CardColor, side match.Side, actorID int64) error
	AddSubstitution(ctx context.Context, side match.Side, actorID int64) error
	UndoLast(ctx context.Context) error
	CompleteMatch(ctx context.Context) error
	AbandonMatch(ctx context.Context, reason string) error
}

// Notifications lists recent completion notices.
type Notifications interface {
	Recent() []completion.Notification
}

// ActionRequest is the body of POST /actions/{action}. Unused fields are
// ignored by actions that do not need them.
type ActionRequest struct {
	Side       match.Side `json:"side"`
	PlayerID   int64      `json:"playerId"`
	PointWonBy string     `json:"pointWonBy,omitempty"`
	Color      string     `json:"color,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Handler serves the local operator API.
//
// Routes:
//
//	GET  /healthz
//	GET  /matches/live
//	POST /select/{matchID}   (0 deselects)
//	POST /refresh
//	GET  /state
//	POST /actions/{action}
//	GET  /notifications
//	GET  /metrics
//	GET  /ws                 (live feed, when configured)
type Handler struct {
	session  Session
	commands Commands
	notes    Notifications
	feed     http.HandlerFunc
	timeout  time.Duration
}

type Option func(*Handler)

// WithFeed mounts a websocket live feed at /ws.
func WithFeed(feed http.HandlerFunc) Option { return func(h *Handler) { h.feed = feed } }

func NewHandler(session Session, commands Commands, notes Notifications, opts ...Option) *Handler {
	h := &Handler{session: session, commands: commands, notes: notes, timeout: 15 * time.Second}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/matches/live", h.liveMatches)
	r.Post("/select/{matchID}", h.selectMatch)
	r.Post("/refresh", h.refresh)
	r.Get("/state", h.state)
	r.Post("/actions/{action}", h.action)
	r.Get("/notifications", h.notifications)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())
	if h.feed != nil {
		r.Get("/ws", h.feed)
	}
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) liveMatches(w http.ResponseWriter, r *http.Request) {
	list, err := h.session.LiveMatches(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []match.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) selectMatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "matchID"), 10, 64)
	if err != nil || id < 0 {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if id == 0 {
		err = h.session.Deselect(ctx)
	} else {
		// a failed snapshot still leaves the match selected
		if err = h.session.Select(ctx, id); err != nil {
			var fe *backend_http.FetchError
			if errors.As(err, &fe) {
				telemetry.Warnf("operator: select %d: %v", id, err)
				err = nil
			}
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	h.state(w, r)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.session.Refresh(ctx); err != nil {
		writeError(w, err)
		return
	}
	h.state(w, r)
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	v, err := h.session.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var err error
	switch name := chi.URLParam(r, "action"); name {
	case "score":
		err = h.commands.Score(ctx, req.Side, req.PlayerID, req.PointWonBy)
	case "point":
		err = h.commands.AddPoint(ctx, req.Side, req.PlayerID, req.PointWonBy)
	case "goal":
		err = h.commands.AddGoal(ctx, req.Side, req.PlayerID)
	case "card":
		err = h.commands.AddCard(ctx, dispatch.CardColor(req.Color), req.Side, req.PlayerID)
	case "yellow_card":
		err = h.commands.AddCard(ctx, dispatch.CardYellow, req.Side, req.PlayerID)
	case "red_card":
		err = h.commands.AddCard(ctx, dispatch.CardRed, req.Side, req.PlayerID)
	case "substitution":
		err = h.commands.AddSubstitution(ctx, req.Side, req.PlayerID)
	case "undo":
		err = h.commands.UndoLast(ctx)
	case "complete":
		err = h.commands.CompleteMatch(ctx)
	case "abandon":
		err = h.commands.AbandonMatch(ctx, req.Reason)
	default:
		http.Error(w, "unknown action "+name, http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	h.state(w, r)
}

func (h *Handler) notifications(w http.ResponseWriter, _ *http.Request) {
	notes := h.notes.Recent()
	if notes == nil {
		notes = []completion.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

type errorBody struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
}

// statusFor maps typed errors onto HTTP statuses. Backend rejections (4xx)
// surface as 409 so the operator UI can show the backend's message.
func statusFor(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var ve *dispatch.ValidationError
	var ae *backend_http.ActionError
	var fe *backend_http.FetchError
	switch {
	case errors.As(err, &ve):
		body.Action = ve.Action
		return http.StatusBadRequest, body
	case errors.As(err, &ae):
		body.Action = ae.Action
		if ae.Message != "" {
			body.Error = ae.Message
		}
		if ae.Status >= 400 && ae.Status < 500 {
			return http.StatusConflict, body
		}
		return http.StatusBadGateway, body
	case errors.As(err, &fe):
		return http.StatusBadGateway, body
	case errors.Is(err, reconciler.ErrNoSelection):
		return http.StatusConflict, body
	case errors.Is(err, reconciler.ErrClosed):
		return http.StatusServiceUnavailable, body
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, body
	}
	return http.StatusInternalServerError, body
}

func writeError(w http.ResponseWriter, err error) {
	status, body := statusFor(err)
	if status >= 500 {
		telemetry.Warnf("operator: %v", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
