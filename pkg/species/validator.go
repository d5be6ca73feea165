package species

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"birdtrip/pkg/ebird"
	"birdtrip/pkg/llm"
	"birdtrip/pkg/llm/prompts"
	"birdtrip/pkg/model"
)

// Confidence assigned per validation tier.
const (
	confidenceExact    = 1.0
	confidencePartial  = 0.8
	confidenceFuzzy    = 0.7
	confidenceFallback = 0.5
)

// maxFuzzyCandidates caps the number of taxonomy names handed to the
// LLM for fuzzy matching.
const maxFuzzyCandidates = 50

// TaxonomySource provides the species taxonomy. Satisfied by
// *ebird.Client.
type TaxonomySource interface {
	Taxonomy(ctx context.Context, locale string) ([]ebird.TaxonEntry, error)
}

// Validator resolves user-supplied species names against the eBird
// taxonomy, falling back to LLM fuzzy matching for names the direct
// tiers cannot place.
type Validator struct {
	source  TaxonomySource
	llm     llm.Provider // nil when no provider is configured
	prompts *prompts.Manager
	san     *llm.Sanitizer
	cache   *Cache
	logger  *slog.Logger

	mu  sync.Mutex
	idx *taxonomyIndex // built on first use, kept for the process lifetime
}

// NewValidator creates a species validator. provider may be nil; the
// LLM tiers are skipped then.
func NewValidator(source TaxonomySource, provider llm.Provider, pm *prompts.Manager, cache *Cache) *Validator {
	if cache == nil {
		cache = NewCache()
	}
	return &Validator{
		source:  source,
		llm:     provider,
		prompts: pm,
		san:     llm.NewSanitizer(100),
		cache:   cache,
		logger:  slog.With("component", "species_validator"),
	}
}

// ValidateAll resolves every name in the list. Per-name failures are
// counted, never raised; the result may be shorter than the input.
func (v *Validator) ValidateAll(ctx context.Context, names []string) ([]model.TargetSpecies, model.ValidationStats) {
	stats := model.ValidationStats{TotalInput: len(names)}
	out := make([]model.TargetSpecies, 0, len(names))

	idx, err := v.ensureIndex(ctx)
	if err != nil {
		// Without a taxonomy there is nothing to match against. Emit
		// uncoded stubs so downstream stages still see the trip targets.
		v.logger.Warn("Taxonomy unavailable, emitting uncoded species stubs", "error", err)
		for _, name := range names {
			if ts, ok := v.cache.Get(name); ok {
				stats.CacheHits++
				out = append(out, ts)
				continue
			}
			out = append(out, v.fallbackStub(ctx, name))
			stats.FuzzyMatches++
		}
		return out, stats
	}

	for _, name := range names {
		if ts, ok := v.cache.Get(name); ok {
			stats.CacheHits++
			out = append(out, ts)
			continue
		}

		ts, ok := v.validateOne(ctx, idx, name)
		if !ok {
			stats.FailedValidations++
			v.logger.Info("Species validation failed", "name", name)
			continue
		}

		if ts.Confidence >= confidenceExact {
			stats.DirectMatches++
		} else {
			stats.FuzzyMatches++
		}
		v.cache.Put(name, ts)
		out = append(out, ts)
	}

	if stats.TotalInput > 0 && len(out)*2 < stats.TotalInput {
		v.logger.Warn("Species validation success rate below 50%",
			"input", stats.TotalInput, "validated", len(out))
	}
	return out, stats
}

// CacheSize reports the number of cached validations.
func (v *Validator) CacheSize() int {
	return v.cache.Len()
}

func (v *Validator) ensureIndex(ctx context.Context) (*taxonomyIndex, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.idx != nil {
		return v.idx, nil
	}
	entries, err := v.source.Taxonomy(ctx, "en")
	if err != nil {
		return nil, fmt.Errorf("taxonomy fetch: %w", err)
	}
	v.idx = buildIndex(entries)
	v.logger.Debug("Taxonomy index built", "entries", len(entries), "species", len(v.idx.species))
	return v.idx, nil
}

// validateOne walks the match tiers from most to least confident.
func (v *Validator) validateOne(ctx context.Context, idx *taxonomyIndex, name string) (model.TargetSpecies, bool) {
	norm := normalizeName(name)
	if norm == "" {
		return model.TargetSpecies{}, false
	}

	if i, ok := idx.byCommon[norm]; ok {
		return v.fromEntry(name, idx.entries[i], model.ValidationDirectCommonName, confidenceExact), true
	}
	if i, ok := idx.bySci[norm]; ok {
		return v.fromEntry(name, idx.entries[i], model.ValidationDirectScientificName, confidenceExact), true
	}
	if i, ok := idx.byCode[norm]; ok {
		return v.fromEntry(name, idx.entries[i], model.ValidationDirectSpeciesCode, confidenceExact), true
	}

	// Substring tier. Too-short fragments match half the taxonomy, so
	// require more than three characters. First hit in taxonomic order.
	if len(norm) > 3 {
		for _, i := range idx.species {
			if strings.Contains(strings.ToLower(idx.entries[i].ComName), norm) {
				return v.fromEntry(name, idx.entries[i], model.ValidationPartialCommonName, confidencePartial), true
			}
		}
	}

	if entry, ok := v.fuzzyMatch(ctx, idx, name, norm); ok {
		return v.fromEntry(name, entry, model.ValidationLLMFuzzyMatch, confidenceFuzzy), true
	}

	return model.TargetSpecies{}, false
}

// fuzzyMatch asks the LLM to pick the intended species from a short
// candidate list. Only an answer that exactly matches a candidate
// counts; anything else is a miss.
func (v *Validator) fuzzyMatch(ctx context.Context, idx *taxonomyIndex, raw, norm string) (ebird.TaxonEntry, bool) {
	if v.llm == nil || v.prompts == nil || !v.llm.HasProfile(llm.ProfileSpeciesMatch) {
		return ebird.TaxonEntry{}, false
	}

	candidates := idx.fuzzyCandidates(norm, maxFuzzyCandidates)
	if len(candidates) == 0 {
		return ebird.TaxonEntry{}, false
	}

	prompt, err := v.prompts.Render("species_match.tmpl", struct {
		Query      string
		Candidates []string
	}{
		Query:      v.san.Clean(raw),
		Candidates: candidates,
	})
	if err != nil {
		v.logger.Error("Failed to render species match prompt", "error", err)
		return ebird.TaxonEntry{}, false
	}

	answer, err := v.llm.GenerateText(ctx, llm.ProfileSpeciesMatch, prompt)
	if err != nil {
		v.logger.Warn("LLM fuzzy match failed", "name", raw, "error", err)
		return ebird.TaxonEntry{}, false
	}

	answer = strings.TrimSpace(answer)
	if answer == "" || strings.EqualFold(answer, "NO_MATCH") {
		return ebird.TaxonEntry{}, false
	}
	if i, ok := idx.byCommon[normalizeName(answer)]; ok {
		return idx.entries[i], true
	}
	v.logger.Debug("LLM answered outside the candidate list", "name", raw, "answer", answer)
	return ebird.TaxonEntry{}, false
}

// fallbackStub canonicalizes a name without taxonomy support. The LLM
// tidies the name when available; otherwise the cleaned input stands.
func (v *Validator) fallbackStub(ctx context.Context, name string) model.TargetSpecies {
	canonical := titleCase(normalizeName(name))

	if v.llm != nil && v.prompts != nil && v.llm.HasProfile(llm.ProfileSpeciesMatch) {
		prompt, err := v.prompts.Render("species_match.tmpl", struct {
			Query      string
			Candidates []string
		}{
			Query:      v.san.Clean(name),
			Candidates: []string{canonical},
		})
		if err == nil {
			if answer, err := v.llm.GenerateText(ctx, llm.ProfileSpeciesMatch, prompt); err == nil {
				answer = strings.TrimSpace(answer)
				if answer != "" && !strings.EqualFold(answer, "NO_MATCH") {
					canonical = answer
				}
			}
		}
	}

	ts := model.TargetSpecies{
		OriginalName:     name,
		CommonName:       canonical,
		SpeciesCode:      model.SpeciesCodeUnknown,
		ValidationMethod: model.ValidationLLMOnlyFallback,
		Confidence:       confidenceFallback,
	}
	ts.SeasonalNotes, ts.BehavioralNotes = fieldNotes(canonical)
	return ts
}

func (v *Validator) fromEntry(raw string, e ebird.TaxonEntry, method string, confidence float64) model.TargetSpecies {
	ts := model.TargetSpecies{
		OriginalName:         raw,
		CommonName:           e.ComName,
		ScientificName:       e.SciName,
		SpeciesCode:          e.SpeciesCode,
		ValidationMethod:     method,
		Confidence:           confidence,
		TaxonomicOrder:       e.TaxonOrder,
		FamilyCommonName:     e.FamilyComName,
		FamilyScientificName: e.FamilySciName,
	}
	ts.SeasonalNotes, ts.BehavioralNotes = fieldNotes(e.ComName)
	return ts
}

// taxonomyIndex holds lookup maps over the taxonomy. All keys are
// normalized (lowercased, whitespace collapsed).
type taxonomyIndex struct {
	entries  []ebird.TaxonEntry
	species  []int // indexes of category=="species", taxonomic order
	byCommon map[string]int
	bySci    map[string]int
	byCode   map[string]int
}

func buildIndex(entries []ebird.TaxonEntry) *taxonomyIndex {
	idx := &taxonomyIndex{
		entries:  entries,
		byCommon: make(map[string]int, len(entries)),
		bySci:    make(map[string]int, len(entries)),
		byCode:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		// First writer wins so earlier (more canonical) taxonomy rows
		// beat later duplicates.
		setIfAbsent(idx.byCommon, normalizeName(e.ComName), i)
		setIfAbsent(idx.bySci, normalizeName(e.SciName), i)
		setIfAbsent(idx.byCode, normalizeName(e.SpeciesCode), i)
		if e.Category == ebird.CategorySpecies {
			idx.species = append(idx.species, i)
		}
	}
	return idx
}

func setIfAbsent(m map[string]int, key string, i int) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = i
	}
}

// fuzzyCandidates picks the species-category common names most similar
// to the query by character-bigram overlap. Bigrams survive the sort of
// misspellings the direct tiers choke on ("cardnal", "chickadee spp").
func (idx *taxonomyIndex) fuzzyCandidates(norm string, limit int) []string {
	qgrams := bigrams(norm)
	if len(qgrams) == 0 {
		return nil
	}

	type scored struct {
		pos   int // taxonomic order, tie break
		score int
	}
	var ranked []scored
	for _, i := range idx.species {
		score := overlap(qgrams, bigrams(strings.ToLower(idx.entries[i].ComName)))
		if score > 0 {
			ranked = append(ranked, scored{pos: i, score: score})
		}
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].pos < ranked[b].pos
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = idx.entries[r.pos].ComName
	}
	return names
}

func bigrams(s string) map[string]struct{} {
	runes := []rune(strings.Join(strings.Fields(s), " "))
	grams := make(map[string]struct{})
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])] = struct{}{}
	}
	return grams
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for g := range a {
		if _, ok := b[g]; ok {
			n++
		}
	}
	return n
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
		}
	}
	return strings.Join(words, " ")
}
