package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger is the slice of the database the health endpoint needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness plus per-component state. The endpoint
// always answers 200 while the process is up; degradation shows in the
// body.
type HealthHandler struct {
	ebirdReady bool
	llmPresent bool
	db         Pinger
}

// NewHealthHandler creates the health endpoint. llmPresent reflects
// whether an LLM chain was configured; planning works without one.
func NewHealthHandler(ebirdReady, llmPresent bool, db Pinger) *HealthHandler {
	return &HealthHandler{ebirdReady: ebirdReady, llmPresent: llmPresent, db: db}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	comps := make(map[string]string, 3)
	degraded := false

	if h.ebirdReady {
		comps["ebird"] = "ok"
	} else {
		comps["ebird"] = "unconfigured"
		degraded = true
	}

	if h.llmPresent {
		comps["llm"] = "ok"
	} else {
		comps["llm"] = "absent"
	}

	if h.db == nil {
		comps["db"] = "absent"
		degraded = true
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			comps["db"] = "error: " + err.Error()
			degraded = true
		} else {
			comps["db"] = "ok"
		}
	}

	status := "ok"
	if degraded {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: status, Components: comps})
}
