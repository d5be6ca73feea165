// Package scorer ranks hotspot clusters by how promising they are for
// a birding visit, blending algorithmic signals with an optional LLM
// habitat assessment.
package scorer

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"birdtrip/pkg/llm"
	"birdtrip/pkg/llm/prompts"
	"birdtrip/pkg/model"
)

// Base score weights. They sum to 1.0 so the base score stays in [0,1].
const (
	weightDiversity     = 0.40
	weightRecency       = 0.25
	weightHotspot       = 0.20
	weightAccessibility = 0.15
)

// Blend factors for LLM-refined clusters.
const (
	blendBase    = 0.7
	blendHabitat = 0.3
)

// Scorer computes cluster scores. The LLM provider is optional; without
// one every cluster keeps its algorithmic base score.
type Scorer struct {
	llm     llm.Provider
	prompts *prompts.Manager
	san     *llm.Sanitizer
	topN    int
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a scorer that refines the top topN clusters (default 10)
// with the LLM when a provider is available.
func New(provider llm.Provider, pm *prompts.Manager, topN int) *Scorer {
	if topN <= 0 {
		topN = 10
	}
	return &Scorer{
		llm:     provider,
		prompts: pm,
		san:     llm.NewSanitizer(200),
		topN:    topN,
		now:     time.Now,
		logger:  slog.With("component", "location_scorer"),
	}
}

// Score computes base scores for all clusters, refines the most
// promising ones with the LLM, and returns the result sorted by
// descending final score.
func (s *Scorer) Score(ctx context.Context, clusters []model.HotspotCluster, targets []model.TargetSpecies, cons model.Constraints) ([]model.ScoredCluster, model.ScoreStats) {
	stats := model.ScoreStats{ClustersScored: len(clusters)}
	if len(clusters) == 0 {
		return nil, stats
	}

	scored := make([]model.ScoredCluster, len(clusters))
	for i := range clusters {
		scored[i] = s.scoreOne(&clusters[i], targets)
	}

	s.refineTop(ctx, scored, targets, &stats)

	for i := range scored {
		if scored[i].ScoringMethod == model.ScoringLLMEnhanced {
			stats.LLMEnhanced++
		} else {
			stats.Algorithmic++
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})
	stats.TopScore = scored[0].FinalScore

	s.logger.Info("Clusters scored",
		"clusters", stats.ClustersScored,
		"llmEnhanced", stats.LLMEnhanced,
		"topScore", stats.TopScore)
	return scored, stats
}

func (s *Scorer) scoreOne(c *model.HotspotCluster, targets []model.TargetSpecies) model.ScoredCluster {
	sc := model.ScoredCluster{HotspotCluster: *c}
	sc.DiversityScore = diversityScore(c, targets)
	sc.RecencyScore = s.recencyScore(c)
	sc.HotspotScore = hotspotScore(c)
	sc.AccessibilityScore = accessibilityScore(c)

	sc.BaseScore = weightDiversity*sc.DiversityScore +
		weightRecency*sc.RecencyScore +
		weightHotspot*sc.HotspotScore +
		weightAccessibility*sc.AccessibilityScore

	sc.FinalScore = sc.BaseScore
	sc.ScoringMethod = model.ScoringAlgorithmic

	s.logger.Debug("Cluster base score",
		"cluster", c.ClusterName,
		"diversity", sc.DiversityScore,
		"recency", sc.RecencyScore,
		"hotspot", sc.HotspotScore,
		"accessibility", sc.AccessibilityScore,
		"base", sc.BaseScore)
	return sc
}

// diversityScore rewards clusters covering the requested species. With
// no target list, raw species variety is the only signal.
func diversityScore(c *model.HotspotCluster, targets []model.TargetSpecies) float64 {
	diversity := float64(c.Statistics.SpeciesDiversity)
	if len(targets) == 0 {
		return math.Min(diversity/50, 1.0)
	}

	inCluster := make(map[string]struct{}, len(c.Statistics.SpeciesCodes))
	for _, code := range c.Statistics.SpeciesCodes {
		inCluster[code] = struct{}{}
	}
	covered := 0
	for _, t := range targets {
		if _, ok := inCluster[t.SpeciesCode]; ok {
			covered++
		}
	}
	coverage := float64(covered) / float64(len(targets))
	bonus := math.Min(diversity/30, 0.5)
	return math.Min(coverage+bonus, 1.0)
}

// recencyScore buckets by days since the latest observation in the
// cluster. Stale or undated clusters still score, just low.
func (s *Scorer) recencyScore(c *model.HotspotCluster) float64 {
	t, err := model.ParseObsDt(c.Statistics.MostRecentObservation)
	if err != nil {
		return 0.3
	}
	days := s.now().Sub(t).Hours() / 24
	switch {
	case days <= 3:
		return 1.0
	case days <= 7:
		return 0.8
	case days <= 14:
		return 0.6
	case days <= 30:
		return 0.4
	default:
		return 0.2
	}
}

// hotspotScore rewards official hotspot backing, scaled by the site's
// all-time species list and coordinate fidelity.
func hotspotScore(c *model.HotspotCluster) float64 {
	if !c.Accessibility.HasHotspot {
		return 0.2
	}

	maxSpecies := 0
	exact := false
	for i := range c.Locations {
		h := c.Locations[i].Hotspot
		if h == nil {
			continue
		}
		if h.NumSpeciesAllTime > maxSpecies {
			maxSpecies = h.NumSpeciesAllTime
		}
		if h.ExactCoordMatch {
			exact = true
		}
	}

	score := 0.6
	switch {
	case maxSpecies > 200:
		score += 0.3
	case maxSpecies > 100:
		score += 0.2
	case maxSpecies > 50:
		score += 0.1
	}
	if exact {
		score += 0.1
	}
	return math.Min(score, 1.0)
}

// accessibilityScore reflects coordinate trust and travel effort.
func accessibilityScore(c *model.HotspotCluster) float64 {
	score := 0.5
	if c.Accessibility.CoordinateQuality == model.CoordQualityHigh {
		score = 0.7
	}

	if t := c.Accessibility.AvgTravelTimeHours; t != nil {
		switch {
		case *t <= 1:
			score += 0.2
		case *t <= 2:
			score += 0.1
		case *t > 4:
			score -= 0.2
		}
	}
	if c.Statistics.LocationCount > 1 && c.Statistics.SightingCount > 5 {
		score += 0.1
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
