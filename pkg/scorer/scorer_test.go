package scorer

import (
	"context"
	"math"
	"testing"
	"time"

	"birdtrip/pkg/llm"
	"birdtrip/pkg/llm/prompts"
	"birdtrip/pkg/model"
)

// scorerNow pins recency buckets for the tests below.
var scorerNow = time.Date(2025, 5, 12, 12, 0, 0, 0, time.UTC)

func newTestScorer(t *testing.T, provider *mockProvider) *Scorer {
	t.Helper()
	pm, err := prompts.New()
	if err != nil {
		t.Fatalf("prompts.New: %v", err)
	}
	var p llm.Provider
	if provider != nil {
		p = provider
	}
	s := New(p, pm, 0)
	s.now = func() time.Time { return scorerNow }
	return s
}

func floatPtr(v float64) *float64 { return &v }

func testCluster(name string, sightings, species int, mostRecent string) model.HotspotCluster {
	codes := []string{"norcar", "blujay", "amerob", "dowwoo", "carwre"}
	if species > len(codes) {
		species = len(codes)
	}
	return model.HotspotCluster{
		ClusterID:   "cluster_001",
		ClusterName: name,
		CenterLat:   42.38,
		CenterLng:   -71.15,
		Locations: []model.Location{
			{CoordKey: "42.3800,-71.1500", Lat: 42.38, Lng: -71.15, LocName: name},
		},
		Statistics: model.ClusterStatistics{
			LocationCount:         1,
			SightingCount:         sightings,
			SpeciesDiversity:      species,
			SpeciesCodes:          codes[:species],
			MostRecentObservation: mostRecent,
		},
		Accessibility: model.ClusterAccessibility{
			CoordinateQuality: model.CoordQualityMedium,
		},
	}
}

func TestDiversityScore(t *testing.T) {
	targets := []model.TargetSpecies{
		{SpeciesCode: "norcar", CommonName: "Northern Cardinal"},
		{SpeciesCode: "blujay", CommonName: "Blue Jay"},
		{SpeciesCode: "pilwoo", CommonName: "Pileated Woodpecker"},
	}

	tests := []struct {
		name    string
		cluster model.HotspotCluster
		targets []model.TargetSpecies
		want    float64
	}{
		{
			name:    "no targets uses raw diversity",
			cluster: testCluster("A", 10, 5, ""),
			targets: nil,
			want:    0.1, // 5/50
		},
		{
			name:    "no targets caps at one",
			cluster: model.HotspotCluster{Statistics: model.ClusterStatistics{SpeciesDiversity: 80}},
			targets: nil,
			want:    1.0,
		},
		{
			name:    "coverage plus diversity bonus",
			cluster: testCluster("B", 10, 3, ""),
			targets: targets,
			want:    2.0/3.0 + 0.1, // covers norcar+blujay, bonus 3/30
		},
		{
			name:    "full coverage caps at one",
			cluster: model.HotspotCluster{Statistics: model.ClusterStatistics{SpeciesDiversity: 40, SpeciesCodes: []string{"norcar", "blujay", "pilwoo"}}},
			targets: targets,
			want:    1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := diversityScore(&tt.cluster, tt.targets)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("diversityScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecencyScore(t *testing.T) {
	s := newTestScorer(t, nil)

	tests := []struct {
		obsDt string
		want  float64
	}{
		{"2025-05-11 08:00", 1.0}, // 1 day
		{"2025-05-06 09:00", 0.8}, // 6 days
		{"2025-05-01", 0.6},       // 11 days
		{"2025-04-20", 0.4},       // 22 days
		{"2025-02-01", 0.2},       // stale
		{"", 0.3},                 // undated
		{"garbage", 0.3},
	}

	for _, tt := range tests {
		c := testCluster("A", 1, 1, tt.obsDt)
		if got := s.recencyScore(&c); got != tt.want {
			t.Errorf("recencyScore(%q) = %v, want %v", tt.obsDt, got, tt.want)
		}
	}
}

func TestHotspotScore(t *testing.T) {
	hotspotCluster := func(numSpecies int, exact bool) model.HotspotCluster {
		c := testCluster("A", 5, 2, "")
		c.Accessibility.HasHotspot = true
		c.Locations[0].IsHotspot = true
		c.Locations[0].Hotspot = &model.HotspotMeta{
			LocID:             "L123",
			Name:              "Test Hotspot",
			NumSpeciesAllTime: numSpecies,
			ExactCoordMatch:   exact,
		}
		return c
	}

	tests := []struct {
		name    string
		cluster model.HotspotCluster
		want    float64
	}{
		{"no hotspot", testCluster("A", 5, 2, ""), 0.2},
		{"small list", hotspotCluster(10, false), 0.6},
		{"over 50", hotspotCluster(60, false), 0.7},
		{"over 100", hotspotCluster(150, false), 0.8},
		{"over 200", hotspotCluster(300, false), 0.9},
		{"exact match bonus", hotspotCluster(300, true), 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hotspotScore(&tt.cluster); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("hotspotScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccessibilityScore(t *testing.T) {
	base := func() model.HotspotCluster { return testCluster("A", 2, 1, "") }

	t.Run("medium quality baseline", func(t *testing.T) {
		c := base()
		if got := accessibilityScore(&c); got != 0.5 {
			t.Errorf("got %v, want 0.5", got)
		}
	})

	t.Run("high quality", func(t *testing.T) {
		c := base()
		c.Accessibility.CoordinateQuality = model.CoordQualityHigh
		if got := accessibilityScore(&c); got != 0.7 {
			t.Errorf("got %v, want 0.7", got)
		}
	})

	t.Run("close travel bonus", func(t *testing.T) {
		c := base()
		c.Accessibility.AvgTravelTimeHours = floatPtr(0.5)
		if got := accessibilityScore(&c); math.Abs(got-0.7) > 1e-9 {
			t.Errorf("got %v, want 0.7", got)
		}
	})

	t.Run("moderate travel bonus", func(t *testing.T) {
		c := base()
		c.Accessibility.AvgTravelTimeHours = floatPtr(1.5)
		if got := accessibilityScore(&c); math.Abs(got-0.6) > 1e-9 {
			t.Errorf("got %v, want 0.6", got)
		}
	})

	t.Run("far travel penalty", func(t *testing.T) {
		c := base()
		c.Accessibility.AvgTravelTimeHours = floatPtr(5)
		if got := accessibilityScore(&c); math.Abs(got-0.3) > 1e-9 {
			t.Errorf("got %v, want 0.3", got)
		}
	})

	t.Run("activity bonus", func(t *testing.T) {
		c := base()
		c.Statistics.LocationCount = 3
		c.Statistics.SightingCount = 9
		if got := accessibilityScore(&c); math.Abs(got-0.6) > 1e-9 {
			t.Errorf("got %v, want 0.6", got)
		}
	})

	t.Run("clamped to one", func(t *testing.T) {
		c := base()
		c.Accessibility.CoordinateQuality = model.CoordQualityHigh
		c.Accessibility.AvgTravelTimeHours = floatPtr(0.25)
		c.Statistics.LocationCount = 4
		c.Statistics.SightingCount = 20
		if got := accessibilityScore(&c); got != 1.0 {
			t.Errorf("got %v, want 1.0", got)
		}
	})
}

func TestScore_AlgorithmicWithoutLLM(t *testing.T) {
	s := newTestScorer(t, nil)

	clusters := []model.HotspotCluster{
		testCluster("Quiet Pond", 2, 1, "2025-02-01"),
		testCluster("Busy Marsh", 30, 5, "2025-05-11"),
	}

	scored, stats := s.Score(context.Background(), clusters, nil, model.Constraints{})
	if len(scored) != 2 {
		t.Fatalf("expected 2 scored clusters, got %d", len(scored))
	}

	// The active, recent cluster must outrank the stale one.
	if scored[0].ClusterName != "Busy Marsh" {
		t.Errorf("expected Busy Marsh first, got %s", scored[0].ClusterName)
	}
	if scored[0].FinalScore <= scored[1].FinalScore {
		t.Errorf("scores not descending: %v then %v", scored[0].FinalScore, scored[1].FinalScore)
	}

	for _, sc := range scored {
		if sc.ScoringMethod != model.ScoringAlgorithmic {
			t.Errorf("%s: method = %s, want algorithmic", sc.ClusterName, sc.ScoringMethod)
		}
		if sc.FinalScore != sc.BaseScore {
			t.Errorf("%s: final %v != base %v without LLM", sc.ClusterName, sc.FinalScore, sc.BaseScore)
		}
		if sc.LLMEvaluation != nil {
			t.Errorf("%s: unexpected LLM evaluation", sc.ClusterName)
		}
		if sc.BaseScore < 0 || sc.BaseScore > 1 {
			t.Errorf("%s: base score %v out of range", sc.ClusterName, sc.BaseScore)
		}
	}

	if stats.ClustersScored != 2 || stats.Algorithmic != 2 || stats.LLMEnhanced != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LLMAttempted != 0 {
		t.Errorf("no LLM attempts expected, got %d", stats.LLMAttempted)
	}
	if stats.TopScore != scored[0].FinalScore {
		t.Errorf("top score %v != first cluster %v", stats.TopScore, scored[0].FinalScore)
	}
}

func TestScore_BaseWeights(t *testing.T) {
	s := newTestScorer(t, nil)

	// Fully deterministic cluster: diversity 5/50=0.1, recency 1 day=1.0,
	// no hotspot=0.2, accessibility medium=0.5.
	c := testCluster("Known", 3, 5, "2025-05-11 08:00")
	scored, _ := s.Score(context.Background(), []model.HotspotCluster{c}, nil, model.Constraints{})

	want := 0.40*0.1 + 0.25*1.0 + 0.20*0.2 + 0.15*0.5
	if math.Abs(scored[0].BaseScore-want) > 1e-9 {
		t.Errorf("base score = %v, want %v", scored[0].BaseScore, want)
	}
}

func TestScore_Empty(t *testing.T) {
	s := newTestScorer(t, nil)
	scored, stats := s.Score(context.Background(), nil, nil, model.Constraints{})
	if scored != nil {
		t.Errorf("expected nil result, got %v", scored)
	}
	if stats.ClustersScored != 0 {
		t.Errorf("expected zero scored, got %d", stats.ClustersScored)
	}
}
