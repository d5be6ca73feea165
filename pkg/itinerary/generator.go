// Package itinerary renders a planned route into field-ready markdown,
// preferring an LLM draft and falling back to a deterministic template.
package itinerary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"birdtrip/pkg/llm"
	"birdtrip/pkg/llm/prompts"
	"birdtrip/pkg/model"
)

const (
	defaultMaxAttempts = 3
	minDraftChars      = 500
	maxPromptSpecies   = 10
	maxStopSpecies     = 8

	// Rough on-site birding time per stop, added to drive time for the
	// trip duration estimate.
	hoursPerStop = 1.5
)

// Generator turns a route into itinerary markdown.
type Generator struct {
	llm         llm.Provider
	prompts     *prompts.Manager
	san         *llm.Sanitizer
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a generator. The provider may be nil; rendering then
// always uses the deterministic template.
func New(provider llm.Provider, pm *prompts.Manager, maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Generator{
		llm:         provider,
		prompts:     pm,
		san:         llm.NewSanitizer(200),
		maxAttempts: maxAttempts,
		now:         time.Now,
		logger:      slog.With("component", "itinerary_renderer"),
	}
}

// Render produces the itinerary markdown plus generation stats. The
// pipeline stats feed the metadata header; pass the blocks accumulated
// so far.
func (g *Generator) Render(ctx context.Context, route *model.Route, targets []model.TargetSpecies, cons model.Constraints, pstats *model.PipelineStats) (string, model.ItineraryStats) {
	stats := model.ItineraryStats{
		TotalSpecies: len(targets),
	}
	if route != nil {
		stats.TotalLocations = len(route.Clusters)
		stats.EstimatedTripHours = tripHours(route)
	}

	if route == nil || len(route.Clusters) == 0 {
		stats.Method = model.ItineraryNone
		md := g.noRoute(targets, cons)
		stats.Sections = countSections(md)
		return md, stats
	}

	md, attempts, ok := g.tryLLM(ctx, route, targets, cons, pstats)
	stats.LLMAttempts = attempts
	if ok {
		stats.Method = model.ItineraryLLMEnhanced
		stats.Sections = countSections(md)
		g.logger.Info("Itinerary generated", "method", stats.Method, "attempts", attempts)
		return md, stats
	}

	stats.Method = model.ItineraryTemplateFallback
	md = g.fallback(route, targets, cons, pstats)
	stats.Sections = countSections(md)
	g.logger.Info("Itinerary generated", "method", stats.Method, "attempts", stats.LLMAttempts)
	return md, stats
}

// tryLLM asks the provider for a draft, retrying until one passes
// validation or the attempt budget runs out.
func (g *Generator) tryLLM(ctx context.Context, route *model.Route, targets []model.TargetSpecies, cons model.Constraints, pstats *model.PipelineStats) (string, int, bool) {
	if g.llm == nil || g.prompts == nil || !g.llm.HasProfile(llm.ProfileItinerary) {
		return "", 0, false
	}

	prompt, err := g.prompts.Render("itinerary.tmpl", g.promptData(route, targets, cons))
	if err != nil {
		g.logger.Warn("Itinerary prompt render failed", "error", err)
		return "", 0, false
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		draft, err := g.llm.GenerateText(ctx, llm.ProfileItinerary, prompt)
		if err != nil {
			g.logger.Warn("Itinerary generation failed", "attempt", attempt, "error", err)
			continue
		}
		if !validDraft(draft) {
			g.logger.Warn("Itinerary draft rejected", "attempt", attempt, "chars", len(draft))
			continue
		}
		return g.wrap(draft, route, pstats), attempt, true
	}
	return "", g.maxAttempts, false
}

// validDraft checks that a draft is long enough to be useful and talks
// about the things an itinerary must cover.
func validDraft(draft string) bool {
	if len(draft) < minDraftChars || !strings.Contains(draft, "##") {
		return false
	}
	lower := strings.ToLower(draft)
	return strings.Contains(lower, "species") &&
		strings.Contains(lower, "location") &&
		strings.Contains(lower, "time")
}

// promptData assembles the itinerary template input.
func (g *Generator) promptData(route *model.Route, targets []model.TargetSpecies, cons model.Constraints) itineraryData {
	data := itineraryData{
		RegionCode: g.san.Clean(cons.RegionCode),
		TotalKm:    route.TotalDistanceKm,
		TotalHours: driveHours(route),
	}
	if cons.HasStart() {
		data.StartName = fmt.Sprintf("%.4f, %.4f", cons.StartLocation.Lat, cons.StartLocation.Lng)
	}

	for _, t := range targets {
		if len(data.Species) == maxPromptSpecies {
			data.MoreSpecies = len(targets) - maxPromptSpecies
			break
		}
		data.Species = append(data.Species, g.san.Clean(t.CommonName))
	}

	names := commonNamesByCode(targets)
	for i := range route.Clusters {
		c := &route.Clusters[i]
		stop := stopData{
			Name:       g.san.Clean(c.ClusterName),
			Lat:        c.CenterLat,
			Lng:        c.CenterLng,
			Score:      c.FinalScore,
			RecentDate: c.Statistics.MostRecentObservation,
			Species:    stopSpecies(c, names, maxStopSpecies),
			LegKm:      legDistance(route, i, cons.HasStart()),
		}
		if c.LLMEvaluation != nil {
			stop.BestTime = g.san.Clean(c.LLMEvaluation.BestTimeOfDay)
			stop.Habitat = g.san.Clean(c.LLMEvaluation.Reasoning)
		}
		data.Stops = append(data.Stops, stop)
	}
	return data
}

type itineraryData struct {
	RegionCode  string
	StartName   string
	Stops       []stopData
	TotalKm     float64
	TotalHours  float64
	Species     []string
	MoreSpecies int
}

type stopData struct {
	Name       string
	Lat        float64
	Lng        float64
	Score      float64
	RecentDate string
	Species    []string
	BestTime   string
	Habitat    string
	LegKm      float64
}

// wrap brackets an accepted LLM draft with the metadata header and the
// standing disclaimer footer.
func (g *Generator) wrap(draft string, route *model.Route, pstats *model.PipelineStats) string {
	var b strings.Builder
	g.writeHeader(&b, route, pstats)
	b.WriteString(strings.TrimSpace(draft))
	b.WriteString("\n\n")
	writeFooter(&b)
	return b.String()
}

func (g *Generator) writeHeader(b *strings.Builder, route *model.Route, pstats *model.PipelineStats) {
	fmt.Fprintf(b, "# Birding Road Trip Itinerary\n\n")
	fmt.Fprintf(b, "*Generated %s*\n\n", g.now().UTC().Format("2006-01-02 15:04 UTC"))
	b.WriteString("**Trip at a glance**\n\n")
	if pstats != nil {
		fmt.Fprintf(b, "- Target species: %d validated of %d requested\n",
			pstats.Validation.DirectMatches+pstats.Validation.FuzzyMatches, pstats.Validation.TotalInput)
		fmt.Fprintf(b, "- Sightings: %d fetched from eBird, %d after constraint checks\n",
			pstats.Fetch.TotalObservations, pstats.Filter.FullyCompliant)
		fmt.Fprintf(b, "- Stops: %d selected from %d candidate areas\n",
			pstats.Route.SelectedClusters, pstats.Route.CandidateClusters)
	}
	fmt.Fprintf(b, "- Driving: %.0f km total, about %.1f hours\n", route.TotalDistanceKm, driveHours(route))
	b.WriteString("\n---\n\n")
}

func writeFooter(b *strings.Builder) {
	b.WriteString("---\n\n")
	b.WriteString("**Before you go**\n\n")
	b.WriteString("- Pack binoculars, a field guide or birding app, water, and weather-appropriate layers.\n")
	b.WriteString("- Observation data comes from eBird (Cornell Lab of Ornithology) and reflects recent reports, not guarantees.\n")
	b.WriteString("- Verify site access, hours, and parking before visiting; respect private property and seasonal closures.\n")
}

// stopSpecies resolves a cluster's species codes to common names where
// a validated target provides one, keeping code order and the cap.
func stopSpecies(c *model.ScoredCluster, names map[string]string, limit int) []string {
	var out []string
	for _, code := range c.Statistics.SpeciesCodes {
		name := names[code]
		if name == "" {
			name = code
		}
		out = append(out, name)
		if len(out) == limit {
			break
		}
	}
	return out
}

func commonNamesByCode(targets []model.TargetSpecies) map[string]string {
	names := make(map[string]string, len(targets))
	for _, t := range targets {
		if t.SpeciesCode != model.SpeciesCodeUnknown {
			names[t.SpeciesCode] = t.CommonName
		}
	}
	return names
}

// legDistance returns the drive from stop i to the next waypoint. With
// a start location segment 0 is the approach leg, so stop legs shift by
// one; without one the segments align with the stops.
func legDistance(route *model.Route, i int, hasStart bool) float64 {
	idx := i
	if hasStart {
		idx = i + 1
	}
	if idx < 0 || idx >= len(route.Segments) {
		return 0
	}
	return route.Segments[idx].DistanceKm
}

func driveHours(route *model.Route) float64 {
	total := 0.0
	for _, s := range route.Segments {
		total += s.EstimatedDriveTimeHours
	}
	return total
}

func tripHours(route *model.Route) float64 {
	return driveHours(route) + hoursPerStop*float64(len(route.Clusters))
}

// countSections counts markdown H2 headings, the unit the stats report
// as content sections.
func countSections(md string) int {
	n := 0
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "## ") {
			n++
		}
	}
	return n
}
