package itinerary

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"birdtrip/pkg/llm/prompts"
	"birdtrip/pkg/model"
)

type mockProvider struct {
	responses []string
	errors    []error
	profiles  map[string]bool
	calls     int
	prompts   []string
}

func (m *mockProvider) GenerateText(ctx context.Context, name, prompt string) (string, error) {
	idx := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if idx >= len(m.responses) {
		return "", fmt.Errorf("out of responses")
	}
	return m.responses[idx], m.errors[idx]
}

func (m *mockProvider) HealthCheck(ctx context.Context) error { return nil }

func (m *mockProvider) HasProfile(name string) bool {
	if m.profiles == nil {
		return true
	}
	return m.profiles[name]
}

var itineraryNow = time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T, provider *mockProvider) *Generator {
	t.Helper()
	pm, err := prompts.New()
	if err != nil {
		t.Fatalf("prompts.New: %v", err)
	}
	g := New(nil, pm, 0)
	if provider != nil {
		g.llm = provider
	}
	g.now = func() time.Time { return itineraryNow }
	return g
}

func testRoute() *model.Route {
	a := model.ScoredCluster{
		HotspotCluster: model.HotspotCluster{
			ClusterName: "Mount Auburn",
			CenterLat:   42.37,
			CenterLng:   -71.14,
			Statistics: model.ClusterStatistics{
				SightingCount:         12,
				SpeciesDiversity:      2,
				SpeciesCodes:          []string{"norcar", "blujay"},
				MostRecentObservation: "2025-05-11",
			},
			Accessibility: model.ClusterAccessibility{HasHotspot: true},
		},
		FinalScore:    0.82,
		ScoringMethod: model.ScoringLLMEnhanced,
		LLMEvaluation: &model.LLMEvaluation{HabitatScore: 0.9, BestTimeOfDay: "Early morning"},
	}
	b := model.ScoredCluster{
		HotspotCluster: model.HotspotCluster{
			ClusterName: "Fresh Pond",
			CenterLat:   42.38,
			CenterLng:   -71.15,
			Statistics: model.ClusterStatistics{
				SightingCount:    3,
				SpeciesDiversity: 1,
				SpeciesCodes:     []string{"amerob"},
			},
		},
		FinalScore: 0.65,
	}

	seg := func(from, to string, km, cum float64) model.RouteSegment {
		return model.RouteSegment{
			FromName:                from,
			ToName:                  to,
			DistanceKm:              km,
			EstimatedDriveTimeHours: km / 60,
			CumulativeDistanceKm:    cum,
		}
	}
	return &model.Route{
		Clusters: []model.ScoredCluster{a, b},
		Segments: []model.RouteSegment{
			seg("Start", "Mount Auburn", 10, 10),
			seg("Mount Auburn", "Fresh Pond", 20, 30),
			seg("Fresh Pond", "Start", 15, 45),
		},
		TotalDistanceKm:    45,
		OptimizationMethod: model.RouteTwoOpt,
	}
}

func testTargets() []model.TargetSpecies {
	return []model.TargetSpecies{
		{
			CommonName:     "Northern Cardinal",
			ScientificName: "Cardinalis cardinalis",
			SpeciesCode:    "norcar",
			SeasonalNotes:  "Year-round resident",
		},
		{CommonName: "Blue Jay", ScientificName: "Cyanocitta cristata", SpeciesCode: "blujay"},
		{CommonName: "Mystery Bird", SpeciesCode: model.SpeciesCodeUnknown},
	}
}

func testConstraints() model.Constraints {
	return model.Constraints{
		RegionCode:    "US-MA",
		StartLocation: &model.GeoPoint{Lat: 42.36, Lng: -71.06},
	}
}

var validDraftBody = "## The Plan\n" +
	strings.Repeat("Watch for target species at each location during the morning time window. ", 10)

func TestRender_EmptyRoute(t *testing.T) {
	g := newTestGenerator(t, nil)

	md, stats := g.Render(context.Background(), &model.Route{}, testTargets(), model.Constraints{}, nil)

	if stats.Method != model.ItineraryNone {
		t.Errorf("method = %s, want none", stats.Method)
	}
	if !strings.Contains(md, "No route available") {
		t.Errorf("missing explainer:\n%s", md)
	}
	if stats.TotalLocations != 0 {
		t.Errorf("locations = %d", stats.TotalLocations)
	}

	// No validated species at all gets its own explanation.
	md, _ = g.Render(context.Background(), nil, nil, model.Constraints{}, nil)
	if !strings.Contains(md, "could be validated") {
		t.Errorf("missing empty species explainer:\n%s", md)
	}
}

func TestRender_TemplateFallback(t *testing.T) {
	g := newTestGenerator(t, nil) // no provider forces the template path

	pstats := &model.PipelineStats{
		Validation: model.ValidationStats{TotalInput: 3, DirectMatches: 2, FuzzyMatches: 1},
		Fetch:      model.FetchStats{TotalObservations: 40},
		Filter:     model.FilterStats{FullyCompliant: 25},
		Route:      model.RouteStats{SelectedClusters: 2, CandidateClusters: 5},
	}
	md, stats := g.Render(context.Background(), testRoute(), testTargets(), testConstraints(), pstats)

	if stats.Method != model.ItineraryTemplateFallback {
		t.Fatalf("method = %s, want templateFallback", stats.Method)
	}
	if stats.LLMAttempts != 0 {
		t.Errorf("attempts = %d, want 0", stats.LLMAttempts)
	}

	for _, want := range []string{
		"# Birding Road Trip Itinerary",
		"*Generated 2025-05-12 09:00 UTC*",
		"- Stops: 2 selected from 5 candidate areas",
		"## Target Species",
		"**Northern Cardinal** (*Cardinalis cardinalis*) — Year-round resident",
		"## Stop 1: Mount Auburn",
		"- Coordinates: 42.3700, -71.1400",
		"- Score: 0.82 (includes an official eBird hotspot)",
		"- Getting there: 10 km from Start, about 0.2 hours",
		"- Species reported: Northern Cardinal (norcar), Blue Jay (blujay)",
		"- Best time: Early morning",
		"## Stop 2: Fresh Pond",
		"- Getting there: 20 km from Mount Auburn",
		"## Trip Summary",
		"## Tips & Equipment",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("missing %q in:\n%s", want, md)
		}
	}

	// The fallback must clear the same bar an LLM draft would.
	if !validDraft(md) {
		t.Errorf("fallback fails draft validation (%d chars)", len(md))
	}

	if stats.TotalLocations != 2 || stats.TotalSpecies != 3 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	wantHours := 45.0/60 + 2*hoursPerStop
	if diff := stats.EstimatedTripHours - wantHours; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("trip hours = %v, want %v", stats.EstimatedTripHours, wantHours)
	}
}

func TestRender_FallbackDeterministic(t *testing.T) {
	g := newTestGenerator(t, nil)

	first, _ := g.Render(context.Background(), testRoute(), testTargets(), testConstraints(), nil)
	second, _ := g.Render(context.Background(), testRoute(), testTargets(), testConstraints(), nil)
	if first != second {
		t.Error("fallback output changed between identical runs")
	}
}

func TestRender_LLMPath(t *testing.T) {
	provider := &mockProvider{responses: []string{validDraftBody}, errors: []error{nil}}
	g := newTestGenerator(t, provider)

	md, stats := g.Render(context.Background(), testRoute(), testTargets(), testConstraints(), nil)

	if stats.Method != model.ItineraryLLMEnhanced {
		t.Fatalf("method = %s, want llmEnhanced", stats.Method)
	}
	if stats.LLMAttempts != 1 {
		t.Errorf("attempts = %d, want 1", stats.LLMAttempts)
	}
	if !strings.HasPrefix(md, "# Birding Road Trip Itinerary") {
		t.Error("wrapped draft missing metadata header")
	}
	if !strings.Contains(md, "## The Plan") {
		t.Error("draft body missing from wrapped output")
	}
	if !strings.Contains(md, "**Before you go**") {
		t.Error("missing disclaimer footer")
	}

	prompt := provider.prompts[0]
	for _, want := range []string{
		"Region: US-MA",
		"Starting point: 42.3600, -71.0600",
		"Route: 2 stops, 45 km",
		"Target species: Northern Cardinal, Blue Jay, Mystery Bird",
		"Stop 1: Mount Auburn",
		"Species reported: Northern Cardinal, Blue Jay",
		"Drive to next stop: 20 km",
		"Best time: Early morning",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRender_RetryThenAccept(t *testing.T) {
	provider := &mockProvider{
		responses: []string{"too short", validDraftBody},
		errors:    []error{nil, nil},
	}
	g := newTestGenerator(t, provider)

	_, stats := g.Render(context.Background(), testRoute(), testTargets(), testConstraints(), nil)

	if stats.Method != model.ItineraryLLMEnhanced {
		t.Fatalf("method = %s, want llmEnhanced", stats.Method)
	}
	if stats.LLMAttempts != 2 {
		t.Errorf("attempts = %d, want 2", stats.LLMAttempts)
	}
}

func TestRender_ExhaustedAttemptsFallBack(t *testing.T) {
	provider := &mockProvider{
		responses: []string{"junk", "junk", "junk"},
		errors:    []error{nil, nil, nil},
	}
	g := newTestGenerator(t, provider)

	md, stats := g.Render(context.Background(), testRoute(), testTargets(), testConstraints(), nil)

	if stats.Method != model.ItineraryTemplateFallback {
		t.Fatalf("method = %s, want templateFallback", stats.Method)
	}
	if stats.LLMAttempts != 3 {
		t.Errorf("attempts = %d, want 3", stats.LLMAttempts)
	}
	if provider.calls != 3 {
		t.Errorf("calls = %d, want 3", provider.calls)
	}
	if !strings.Contains(md, "## Stop 1: Mount Auburn") {
		t.Error("fallback content missing")
	}
}

func TestRender_ProviderErrorsCountAsAttempts(t *testing.T) {
	provider := &mockProvider{
		responses: []string{"", validDraftBody},
		errors:    []error{fmt.Errorf("429 too many requests"), nil},
	}
	g := newTestGenerator(t, provider)

	_, stats := g.Render(context.Background(), testRoute(), testTargets(), testConstraints(), nil)

	if stats.Method != model.ItineraryLLMEnhanced || stats.LLMAttempts != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestValidDraft(t *testing.T) {
	long := strings.Repeat("x", minDraftChars)

	tests := []struct {
		name  string
		draft string
		want  bool
	}{
		{"good", "## Plan\nspecies location time " + long, true},
		{"too short", "## species location time", false},
		{"no heading", "species location time " + long, false},
		{"missing keyword", "## Plan\nspecies location " + long, false},
		{"case insensitive", "## Plan\nSPECIES Location TIME " + long, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validDraft(tt.draft); got != tt.want {
				t.Errorf("validDraft = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCountSections(t *testing.T) {
	md := "# Title\n\n## One\ntext\n## Two\n\n  ## Indented\nnot ## inline"
	if got := countSections(md); got != 3 {
		t.Errorf("sections = %d, want 3", got)
	}
}
