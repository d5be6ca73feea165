// Package sightings fetches recent observations for validated species
// and enriches them against the trip constraints.
package sightings

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"birdtrip/pkg/ebird"
	"birdtrip/pkg/model"
)

// ObservationSource is the slice of the eBird client the fetcher uses.
type ObservationSource interface {
	RecentNearbySpeciesObservations(ctx context.Context, speciesCode string, lat, lng float64, distKm float64, back int) ([]ebird.Observation, error)
	SpeciesObservations(ctx context.Context, regionCode, speciesCode string, back int) ([]ebird.Observation, error)
}

// Fetcher retrieves recent observations for every validated species
// with a bounded worker pool. Request pacing and retries live in the
// HTTP layer; the pool only bounds in-flight work.
type Fetcher struct {
	source  ObservationSource
	workers int
	now     func() time.Time
	logger  *slog.Logger
}

// NewFetcher creates a fetcher with the given worker count (default 5).
func NewFetcher(source ObservationSource, workers int) *Fetcher {
	if workers <= 0 {
		workers = 5
	}
	return &Fetcher{
		source:  source,
		workers: workers,
		now:     time.Now,
		logger:  slog.With("component", "sightings_fetcher"),
	}
}

type fetchResult struct {
	target model.TargetSpecies
	method string
	obs    []ebird.Observation
	err    error
}

// Fetch retrieves observations for all targets concurrently. Per-species
// failures are isolated and counted; only an authentication failure is
// returned as an error, since every remaining call would fail the same way.
func (f *Fetcher) Fetch(ctx context.Context, targets []model.TargetSpecies, c model.Constraints) ([]model.Sighting, model.FetchStats, error) {
	stats := model.FetchStats{
		TotalSpecies: len(targets),
		MethodCounts: make(map[string]int),
	}

	// Species without a taxonomy code cannot be queried.
	fetchable := make([]model.TargetSpecies, 0, len(targets))
	for _, t := range targets {
		if t.SpeciesCode == "" || t.SpeciesCode == model.SpeciesCodeUnknown {
			stats.SkippedUnknown++
			f.logger.Debug("Skipping uncoded species", "name", t.CommonName)
			continue
		}
		fetchable = append(fetchable, t)
	}
	if len(fetchable) == 0 {
		return nil, stats, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan model.TargetSpecies)
	results := make(chan fetchResult, len(fetchable))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				obs, method, err := f.fetchOne(ctx, t, c)
				results <- fetchResult{target: t, method: method, obs: obs, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range fetchable {
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Aggregate in completion order; downstream stages never depend on it.
	var sightings []model.Sighting
	var fatal error
	for res := range results {
		stats.MethodCounts[res.method]++

		if res.err != nil {
			if ctx.Err() != nil && fatal != nil {
				continue // cancelled sibling of the fatal failure
			}
			if ebird.IsAuthError(res.err) {
				fatal = res.err
				cancel()
				continue
			}
			stats.APIErrors++
			if ebird.IsRateLimited(res.err) {
				f.logger.Warn("Species fetch rate limited, skipping", "species", res.target.SpeciesCode)
			} else {
				f.logger.Warn("Species fetch failed", "species", res.target.SpeciesCode, "error", res.err)
			}
			continue
		}
		if len(res.obs) == 0 {
			stats.EmptyResults++
			f.logger.Debug("No recent sightings", "species", res.target.SpeciesCode)
			continue
		}

		stats.SuccessfulFetches++
		sightings = append(sightings, f.enrich(res.target, res.method, res.obs)...)
	}

	if fatal != nil {
		return nil, stats, fatal
	}

	stats.TotalObservations = len(sightings)
	stats.UniqueLocations = countLocations(sightings)
	f.logger.Info("Sightings fetched",
		"species", stats.TotalSpecies,
		"observations", stats.TotalObservations,
		"locations", stats.UniqueLocations,
		"errors", stats.APIErrors)
	return sightings, stats, nil
}

// fetchOne picks the query strategy for a species. A start location
// narrows the search to a circle reachable in half a day's driving; a
// bare region code searches the whole region.
func (f *Fetcher) fetchOne(ctx context.Context, t model.TargetSpecies, c model.Constraints) ([]ebird.Observation, string, error) {
	back := c.DaysBack
	if back > ebird.MaxBackDays {
		back = ebird.MaxBackDays
	}

	if c.HasStart() {
		dist := math.Min(c.MaxDailyDistanceKm/2, ebird.MaxDistanceKm)
		obs, err := f.source.RecentNearbySpeciesObservations(ctx, t.SpeciesCode, c.StartLocation.Lat, c.StartLocation.Lng, dist, back)
		return obs, model.FetchNearbyObservations, err
	}

	obs, err := f.source.SpeciesObservations(ctx, c.RegionCode, t.SpeciesCode, back)
	return obs, model.FetchSpeciesObservations, err
}

// enrich converts wire observations into Sightings carrying the fetch
// and validation provenance of their species.
func (f *Fetcher) enrich(t model.TargetSpecies, method string, obs []ebird.Observation) []model.Sighting {
	fetched := f.now()
	out := make([]model.Sighting, 0, len(obs))
	for _, o := range obs {
		out = append(out, model.Sighting{
			SpeciesCode:     o.SpeciesCode,
			ComName:         o.ComName,
			SciName:         o.SciName,
			LocID:           o.LocID,
			LocName:         o.LocName,
			ObsDt:           o.ObsDt,
			HowMany:         o.HowMany,
			Lat:             o.Lat,
			Lng:             o.Lng,
			ObsValid:        o.Valid(),
			ObsReviewed:     o.Reviewed(),
			LocationPrivate: o.LocationPrivate,

			FetchMethod:          method,
			FetchTimestamp:       fetched,
			ValidationMethod:     t.ValidationMethod,
			ValidationConfidence: t.Confidence,
			OriginalSpeciesName:  t.OriginalName,
			SeasonalNotes:        t.SeasonalNotes,
			BehavioralNotes:      t.BehavioralNotes,
		})
	}
	return out
}

func countLocations(sightings []model.Sighting) int {
	seen := make(map[string]struct{}, len(sightings))
	for i := range sightings {
		seen[sightings[i].LocID] = struct{}{}
	}
	return len(seen)
}
