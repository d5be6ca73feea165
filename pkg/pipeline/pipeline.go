// Package pipeline runs the seven stage trip planning flow: species
// validation, sightings fetch, constraint filtering, clustering,
// scoring, route optimization, and itinerary rendering.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"birdtrip/pkg/config"
	"birdtrip/pkg/model"
)

// Request is a trip planning request as received from the transport.
type Request struct {
	Species     []string          `json:"species"`
	Constraints model.Constraints `json:"constraints"`
}

// StageEvent reports one completed stage to a progress observer.
type StageEvent struct {
	RunID      string  `json:"runId"`
	Stage      string  `json:"stage"`
	Index      int     `json:"index"`
	Total      int     `json:"total"`
	DurationMs float64 `json:"durationMs"`
	OK         bool    `json:"ok"`
}

// Observer receives a StageEvent after each stage finishes. It is
// invoked on the pipeline goroutine and must not block for long.
type Observer func(StageEvent)

// Stage implementations, one per pipeline stage. The interfaces are
// satisfied by the concrete types in pkg/species, pkg/sightings,
// pkg/cluster, pkg/scorer, pkg/route, and pkg/itinerary.
type (
	SpeciesValidator interface {
		ValidateAll(ctx context.Context, names []string) ([]model.TargetSpecies, model.ValidationStats)
	}
	SightingsFetcher interface {
		Fetch(ctx context.Context, targets []model.TargetSpecies, cons model.Constraints) ([]model.Sighting, model.FetchStats, error)
	}
	SightingsFilter interface {
		Apply(sightings []model.Sighting, cons model.Constraints) ([]model.EnrichedSighting, model.FilterStats)
	}
	Clusterer interface {
		Cluster(ctx context.Context, sightings []model.EnrichedSighting, cons model.Constraints) ([]model.HotspotCluster, model.ClusterStats)
	}
	ClusterScorer interface {
		Score(ctx context.Context, clusters []model.HotspotCluster, targets []model.TargetSpecies, cons model.Constraints) ([]model.ScoredCluster, model.ScoreStats)
	}
	RouteOptimizer interface {
		Optimize(clusters []model.ScoredCluster, cons model.Constraints) (*model.Route, model.RouteStats)
	}
	ItineraryRenderer interface {
		Render(ctx context.Context, route *model.Route, targets []model.TargetSpecies, cons model.Constraints, stats *model.PipelineStats) (string, model.ItineraryStats)
	}
)

// Deps bundles the stage implementations for a Runner.
type Deps struct {
	Validator SpeciesValidator
	Fetcher   SightingsFetcher
	Filter    SightingsFilter
	Clusterer Clusterer
	Scorer    ClusterScorer
	Optimizer RouteOptimizer
	Renderer  ItineraryRenderer
}

// Runner executes planning runs. Safe for concurrent use; each run
// carries its own store.
type Runner struct {
	deps     Deps
	defaults config.TripConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewRunner creates a runner with the given stage implementations and
// constraint defaults.
func NewRunner(deps Deps, defaults config.TripConfig) *Runner {
	return &Runner{
		deps:     deps,
		defaults: defaults,
		now:      time.Now,
		logger:   slog.With("component", "pipeline"),
	}
}

// run carries the mutable state of one pipeline execution.
type run struct {
	id       string
	cons     model.Constraints
	store    *Store
	stats    model.PipelineStats
	warnings []string
}

func (r *run) warnf(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *run) targets() []model.TargetSpecies {
	if v, ok := r.store.Get(KeySpecies); ok {
		if t, ok := v.([]model.TargetSpecies); ok {
			return t
		}
	}
	return nil
}

type stage struct {
	name string
	key  string
	fn   func(context.Context, *run) error
}

// Run validates the request and executes all stages. The returned error
// is non-nil only for invalid input (*ValidationError) or a fatal eBird
// failure; in the latter case the returned plan carries the partial
// results. obs may be nil.
func (p *Runner) Run(ctx context.Context, req Request, obs Observer) (*model.TripPlan, error) {
	names, cons, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	rn := &run{
		id:    uuid.NewString(),
		cons:  cons,
		store: NewStore(),
	}
	rn.store.Put(KeyInputSpecies, names)
	rn.store.Put(KeyInputConstraints, cons)

	started := p.now()
	p.logger.Info("Pipeline run starting",
		"runId", rn.id,
		"species", len(names),
		"region", cons.RegionCode,
		"hasStart", cons.HasStart())

	stages := []stage{
		{"speciesValidation", KeySpecies, p.stageValidate},
		{"sightingsFetch", KeySightings, p.stageFetch},
		{"constraintFilter", KeyEnriched, p.stageFilter},
		{"clustering", KeyClusters, p.stageCluster},
		{"scoring", KeyScored, p.stageScore},
		{"routeOptimization", KeyRoute, p.stageRoute},
		{"itineraryRendering", KeyItinerary, p.stageItinerary},
	}

	for i, st := range stages {
		warnsBefore := len(rn.warnings)
		stageStart := time.Now()
		err := st.fn(ctx, rn)
		elapsed := time.Since(stageStart)

		if err == nil && !rn.store.Has(st.key) {
			err = fmt.Errorf("stage %s produced no %q output", st.name, st.key)
		}

		rn.stats.Timings = append(rn.stats.Timings, model.StageTiming{
			Stage:      st.name,
			DurationMs: float64(elapsed) / float64(time.Millisecond),
			Warnings:   len(rn.warnings) - warnsBefore,
		})
		if obs != nil {
			obs(StageEvent{
				RunID:      rn.id,
				Stage:      st.name,
				Index:      i + 1,
				Total:      len(stages),
				DurationMs: float64(elapsed) / float64(time.Millisecond),
				OK:         err == nil,
			})
		}

		if err != nil {
			p.logger.Error("Pipeline run aborted",
				"runId", rn.id, "stage", st.name, "error", err)
			return p.assemble(rn, false, err.Error()), err
		}
	}

	plan := p.assemble(rn, true, "")
	p.logger.Info("Pipeline run complete",
		"runId", rn.id,
		"durationMs", float64(p.now().Sub(started))/float64(time.Millisecond),
		"clusters", len(plan.Clusters),
		"warnings", len(plan.Warnings))
	return plan, nil
}

func (p *Runner) stageValidate(ctx context.Context, rn *run) error {
	names, _ := rn.store.Get(KeyInputSpecies)
	targets, stats := p.deps.Validator.ValidateAll(ctx, names.([]string))
	rn.store.Put(KeySpecies, targets)
	rn.stats.Validation = stats

	if stats.FailedValidations > 0 {
		rn.warnf("%d of %d species could not be validated", stats.FailedValidations, stats.TotalInput)
	}
	return nil
}

func (p *Runner) stageFetch(ctx context.Context, rn *run) error {
	sightings, stats, err := p.deps.Fetcher.Fetch(ctx, rn.targets(), rn.cons)
	rn.stats.Fetch = stats
	rn.store.Put(KeySightings, sightings)
	if err != nil {
		return err
	}

	if stats.APIErrors > 0 {
		rn.warnf("%d species lookups failed against eBird", stats.APIErrors)
	}
	if stats.SkippedUnknown > 0 {
		rn.warnf("%d species had no eBird code and were not searched", stats.SkippedUnknown)
	}
	return nil
}

func (p *Runner) stageFilter(ctx context.Context, rn *run) error {
	var sightings []model.Sighting
	if v, ok := rn.store.Get(KeySightings); ok {
		sightings, _ = v.([]model.Sighting)
	}
	enriched, stats := p.deps.Filter.Apply(sightings, rn.cons)
	rn.store.Put(KeyEnriched, enriched)
	rn.stats.Filter = stats

	if stats.TotalSightings > 0 && stats.FullyCompliant == 0 {
		rn.warnf("no sightings met all trip constraints")
	}
	return nil
}

func (p *Runner) stageCluster(ctx context.Context, rn *run) error {
	var enriched []model.EnrichedSighting
	if v, ok := rn.store.Get(KeyEnriched); ok {
		enriched, _ = v.([]model.EnrichedSighting)
	}
	clusters, stats := p.deps.Clusterer.Cluster(ctx, enriched, rn.cons)
	rn.store.Put(KeyClusters, clusters)
	rn.stats.Cluster = stats

	if stats.InputSightings > 0 && stats.ClusterCount == 0 {
		rn.warnf("no birding areas could be formed from the compliant sightings")
	}
	return nil
}

func (p *Runner) stageScore(ctx context.Context, rn *run) error {
	var clusters []model.HotspotCluster
	if v, ok := rn.store.Get(KeyClusters); ok {
		clusters, _ = v.([]model.HotspotCluster)
	}
	scored, stats := p.deps.Scorer.Score(ctx, clusters, rn.targets(), rn.cons)
	rn.store.Put(KeyScored, scored)
	rn.stats.Score = stats

	if stats.LLMFailed > 0 {
		rn.warnf("habitat assessment unavailable for %d areas, used algorithmic scores", stats.LLMFailed)
	}
	return nil
}

func (p *Runner) stageRoute(ctx context.Context, rn *run) error {
	var scored []model.ScoredCluster
	if v, ok := rn.store.Get(KeyScored); ok {
		scored, _ = v.([]model.ScoredCluster)
	}
	route, stats := p.deps.Optimizer.Optimize(scored, rn.cons)
	rn.store.Put(KeyRoute, route)
	rn.stats.Route = stats

	if stats.Method == model.RouteFallbackScoreOrder {
		rn.warnf("route optimization failed, stops are in score order")
	}
	if stats.TotalDistanceKm > 1000 {
		rn.warnf("route covers %.0f km, beyond a comfortable single day", stats.TotalDistanceKm)
	}
	return nil
}

func (p *Runner) stageItinerary(ctx context.Context, rn *run) error {
	var route *model.Route
	if v, ok := rn.store.Get(KeyRoute); ok {
		route, _ = v.(*model.Route)
	}
	md, stats := p.deps.Renderer.Render(ctx, route, rn.targets(), rn.cons, &rn.stats)
	rn.store.Put(KeyItinerary, md)
	rn.stats.Itinerary = stats

	if stats.Method == model.ItineraryTemplateFallback && stats.LLMAttempts > 0 {
		rn.warnf("language model itinerary was rejected after %d attempts, used the template", stats.LLMAttempts)
	}
	return nil
}

// assemble builds the result record from whatever the store holds.
func (p *Runner) assemble(rn *run, success bool, errMsg string) *model.TripPlan {
	plan := &model.TripPlan{
		Success:     success,
		RunID:       rn.id,
		Warnings:    rn.warnings,
		Stats:       rn.stats,
		GeneratedAt: p.now(),
	}
	if v, ok := rn.store.Get(KeySpecies); ok {
		plan.Species, _ = v.([]model.TargetSpecies)
	}
	if v, ok := rn.store.Get(KeyEnriched); ok {
		plan.Sightings, _ = v.([]model.EnrichedSighting)
	}
	if v, ok := rn.store.Get(KeyScored); ok {
		plan.Clusters, _ = v.([]model.ScoredCluster)
	}
	if v, ok := rn.store.Get(KeyRoute); ok {
		plan.Route, _ = v.(*model.Route)
	}
	if v, ok := rn.store.Get(KeyItinerary); ok {
		plan.ItineraryMarkdown, _ = v.(string)
	}
	if !success && plan.ItineraryMarkdown == "" {
		plan.ItineraryMarkdown = fmt.Sprintf(
			"# Trip Planning Failed\n\nThe run stopped before an itinerary could be produced: %s\n", errMsg)
	}
	return plan
}
