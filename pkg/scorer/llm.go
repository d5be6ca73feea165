package scorer

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"birdtrip/pkg/llm"
	"birdtrip/pkg/model"
)

// habitatData feeds the habitat prompt template.
type habitatData struct {
	Name          string
	Lat           float64
	Lng           float64
	SightingCount int
	SpeciesCount  int
	TargetSpecies []string
	IsHotspot     bool
	RecentDate    string
}

// maxPromptTargets caps how many target species the prompt lists.
const maxPromptTargets = 5

// refineTop asks the LLM for a habitat assessment of the highest base
// scoring clusters and blends the answer into their final scores.
// Refinement failures leave the algorithmic score untouched.
func (s *Scorer) refineTop(ctx context.Context, scored []model.ScoredCluster, targets []model.TargetSpecies, stats *model.ScoreStats) {
	if s.llm == nil || s.prompts == nil || !s.llm.HasProfile(llm.ProfileHabitat) {
		return
	}

	order := make([]int, len(scored))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scored[order[a]].BaseScore > scored[order[b]].BaseScore
	})
	if len(order) > s.topN {
		order = order[:s.topN]
	}

	stats.LLMAttempted = len(order)
	evals := make([]*model.LLMEvaluation, len(order))

	var wg sync.WaitGroup
	for slot, idx := range order {
		wg.Add(1)
		go func(slot, idx int) {
			defer wg.Done()
			eval, err := s.evaluateHabitat(ctx, &scored[idx], targets)
			if err != nil {
				s.logger.Warn("Habitat evaluation failed",
					"cluster", scored[idx].ClusterName, "error", err)
				return
			}
			evals[slot] = eval
		}(slot, idx)
	}
	wg.Wait()

	for slot, idx := range order {
		eval := evals[slot]
		if eval == nil {
			stats.LLMFailed++
			continue
		}
		stats.LLMSucceeded++
		sc := &scored[idx]
		sc.LLMEvaluation = eval
		sc.FinalScore = blendBase*sc.BaseScore + blendHabitat*eval.HabitatScore
		sc.ScoringMethod = model.ScoringLLMEnhanced
	}
}

func (s *Scorer) evaluateHabitat(ctx context.Context, sc *model.ScoredCluster, targets []model.TargetSpecies) (*model.LLMEvaluation, error) {
	prompt, err := s.prompts.Render("habitat.tmpl", s.habitatData(sc, targets))
	if err != nil {
		return nil, err
	}
	answer, err := s.llm.GenerateText(ctx, llm.ProfileHabitat, prompt)
	if err != nil {
		return nil, err
	}
	eval := parseHabitat(answer)
	return &eval, nil
}

func (s *Scorer) habitatData(sc *model.ScoredCluster, targets []model.TargetSpecies) habitatData {
	inCluster := make(map[string]struct{}, len(sc.Statistics.SpeciesCodes))
	for _, code := range sc.Statistics.SpeciesCodes {
		inCluster[code] = struct{}{}
	}
	var seen []string
	for _, t := range targets {
		if _, ok := inCluster[t.SpeciesCode]; !ok {
			continue
		}
		seen = append(seen, s.san.Clean(t.CommonName))
		if len(seen) == maxPromptTargets {
			break
		}
	}

	return habitatData{
		Name:          s.san.Clean(sc.ClusterName),
		Lat:           sc.CenterLat,
		Lng:           sc.CenterLng,
		SightingCount: sc.Statistics.SightingCount,
		SpeciesCount:  sc.Statistics.SpeciesDiversity,
		TargetSpecies: seen,
		IsHotspot:     sc.Accessibility.HasHotspot,
		RecentDate:    sc.Statistics.MostRecentObservation,
	}
}

// parseHabitat extracts the labeled lines from an LLM habitat answer.
// The format drifts in practice, so parsing is forgiving: labels match
// case-insensitively, markdown bold is stripped, and a missing or
// unusable SCORE falls back to a neutral 0.5.
func parseHabitat(answer string) model.LLMEvaluation {
	eval := model.LLMEvaluation{HabitatScore: 0.5}
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "SCORE":
			if v, err := strconv.ParseFloat(value, 64); err == nil && v >= 0 && v <= 1 {
				eval.HabitatScore = v
			}
		case "REASONING":
			eval.Reasoning = value
		case "BEST_TIME":
			eval.BestTimeOfDay = value
		case "TIPS":
			eval.Tips = value
		}
	}
	return eval
}
