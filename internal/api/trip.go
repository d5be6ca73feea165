package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"birdtrip/pkg/ebird"
	"birdtrip/pkg/model"
	"birdtrip/pkg/pipeline"
	"birdtrip/pkg/store"
)

// Planner runs the trip planning pipeline.
type Planner interface {
	Run(ctx context.Context, req pipeline.Request, obs pipeline.Observer) (*model.TripPlan, error)
}

// maxPlanBodyBytes bounds the request body; a plan request is a species
// list plus constraints, so anything near this is garbage.
const maxPlanBodyBytes = 1 << 20

// lastRunStateKey holds a one-line summary of the most recent
// successful run, for operators poking at the database.
const lastRunStateKey = "trip.last_run"

// TripHandler serves the planning endpoints.
type TripHandler struct {
	planner  Planner
	state    store.StateStore // nil disables last-run recording
	upgrader websocket.Upgrader
}

// NewTripHandler creates a TripHandler around a pipeline runner.
func NewTripHandler(p Planner, st store.StateStore) *TripHandler {
	return &TripHandler{
		planner: p,
		state:   st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local planning tool; the UI and scripts hit it from
			// arbitrary origins on the same machine.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandlePlan runs the full pipeline and returns the assembled plan.
// POST /api/trip/plan
func (h *TripHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	body := http.MaxBytesReader(w, r.Body, maxPlanBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed plan request: "+err.Error())
		return
	}

	plan, err := h.planner.Run(r.Context(), req, nil)
	switch {
	case err == nil:
		h.recordLastRun(r.Context(), plan)
		writeJSON(w, http.StatusOK, plan)
	case isValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case ebird.IsAuthError(err):
		// The partial plan goes out with the 502 so the client can show
		// how far the run got.
		writeJSON(w, http.StatusBadGateway, plan)
	default:
		writeJSON(w, http.StatusInternalServerError, plan)
	}
}

func isValidation(err error) bool {
	var ve *pipeline.ValidationError
	return errors.As(err, &ve)
}

// stageFrame is a progress message on the stream socket.
type stageFrame struct {
	Type string `json:"type"`
	pipeline.StageEvent
}

// resultFrame is the final message on the stream socket.
type resultFrame struct {
	Type  string          `json:"type"`
	Plan  *model.TripPlan `json:"plan,omitempty"`
	Error string          `json:"error,omitempty"`
}

// HandleStream upgrades to a websocket, reads one plan request, and
// streams stage progress frames followed by a result frame.
// GET /api/trip/stream
func (h *TripHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req pipeline.Request
	if err := conn.ReadJSON(&req); err != nil {
		h.writeResult(conn, resultFrame{Type: "error", Error: "malformed plan request: " + err.Error()})
		return
	}

	// Stages run sequentially on this goroutine, so the observer can
	// write to the socket without locking.
	obs := func(ev pipeline.StageEvent) {
		if err := conn.WriteJSON(stageFrame{Type: "stage", StageEvent: ev}); err != nil {
			slog.Debug("Stage frame write failed", "error", err)
		}
	}

	plan, err := h.planner.Run(r.Context(), req, obs)
	if err != nil && plan == nil {
		h.writeResult(conn, resultFrame{Type: "error", Error: err.Error()})
		return
	}
	if err == nil {
		h.recordLastRun(r.Context(), plan)
	}

	final := resultFrame{Type: "result", Plan: plan}
	if err != nil {
		final.Error = err.Error()
	}
	h.writeResult(conn, final)
}

// recordLastRun persists a compact summary of a successful run to the
// state table. Purely diagnostic, so failures never surface.
func (h *TripHandler) recordLastRun(ctx context.Context, plan *model.TripPlan) {
	if h.state == nil || plan == nil || !plan.Success {
		return
	}
	summary, err := json.Marshal(map[string]any{
		"runId":       plan.RunID,
		"generatedAt": plan.GeneratedAt.Format(time.RFC3339),
		"species":     len(plan.Species),
		"stops":       len(plan.Clusters),
		"warnings":    len(plan.Warnings),
	})
	if err != nil {
		return
	}
	if err := h.state.SetState(ctx, lastRunStateKey, string(summary)); err != nil {
		slog.Debug("Last run summary not recorded", "error", err)
	}
}

func (h *TripHandler) writeResult(conn *websocket.Conn, frame resultFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		slog.Debug("Result frame write failed", "error", err)
		return
	}
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
