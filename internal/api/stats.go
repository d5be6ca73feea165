package api

import (
	"net/http"
	"time"

	"birdtrip/pkg/tracker"
)

// StatsHandler exposes per-provider usage counters, the species cache
// size, and process uptime.
type StatsHandler struct {
	tracker     *tracker.Tracker
	cacheSize   func() int
	llmFallback []string
	started     time.Time
}

// NewStatsHandler creates the stats endpoint. cacheSize reports the
// species validation cache; llmFallback names the provider chain in
// failover order.
func NewStatsHandler(t *tracker.Tracker, cacheSize func() int, llmFallback []string) *StatsHandler {
	return &StatsHandler{
		tracker:     t,
		cacheSize:   cacheSize,
		llmFallback: llmFallback,
		started:     time.Now(),
	}
}

// ProviderStatsDTO is the wire form of one provider's counters.
type ProviderStatsDTO struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIZeroResult int64 `json:"api_zero"`
	APIFailures   int64 `json:"api_errors"`
	Retries       int64 `json:"retries"`
	RateLimited   int64 `json:"rate_limited"`
	BreakerOpens  int64 `json:"breaker_opens"`
	HitRate       int64 `json:"hit_rate"`
}

// StatsResponse is the GET /api/stats body.
type StatsResponse struct {
	UptimeSeconds    int64                       `json:"uptime_seconds"`
	SpeciesCacheSize int                         `json:"species_cache_size"`
	Providers        map[string]ProviderStatsDTO `json:"providers"`
	LLMFallback      []string                    `json:"llm_fallback"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Providers:     make(map[string]ProviderStatsDTO),
		LLMFallback:   h.llmFallback,
	}
	if h.cacheSize != nil {
		resp.SpeciesCacheSize = h.cacheSize()
	}

	for provider, stats := range h.tracker.Snapshot() {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:     stats.CacheHits,
			CacheMisses:   stats.CacheMisses,
			APISuccess:    stats.APISuccess,
			APIZeroResult: stats.APIZeroResult,
			APIFailures:   stats.APIFailures,
			Retries:       stats.Retries,
			RateLimited:   stats.RateLimited,
			BreakerOpens:  stats.BreakerOpens,
			HitRate:       hitRate,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
