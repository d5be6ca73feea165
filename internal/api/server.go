// Package api is the HTTP and websocket transport for the planning
// service.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"birdtrip/pkg/version"
)

// NewServer wires the API routes and returns a configured http.Server.
// shutdown triggers a graceful stop; it is called from the shutdown
// endpoint.
func NewServer(addr string, trip *TripHandler, health *HealthHandler, stats *StatsHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("GET /health", health)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.Handle("GET /api/stats", stats)

	mux.HandleFunc("POST /api/trip/plan", trip.HandlePlan)
	mux.HandleFunc("GET /api/trip/stream", trip.HandleStream)

	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow the response to flush.
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:    addr,
		Handler: withMiddleware(mux),
		// A plan run blocks the response on eBird paging and LLM calls,
		// so the write timeout has to cover a full pipeline run. The
		// stream endpoint is exempt once hijacked.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
