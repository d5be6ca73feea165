package itinerary

import (
	"fmt"
	"strings"

	"birdtrip/pkg/model"
)

// fallback renders the deterministic itinerary used when no LLM draft
// was accepted. Same input, same output, except the timestamp line.
func (g *Generator) fallback(route *model.Route, targets []model.TargetSpecies, cons model.Constraints, pstats *model.PipelineStats) string {
	var b strings.Builder
	g.writeHeader(&b, route, pstats)

	writeTargetSection(&b, targets)

	names := commonNamesByCode(targets)
	for i := range route.Clusters {
		writeStopSection(&b, route, i, names, cons.HasStart())
	}

	b.WriteString("## Trip Summary\n\n")
	fmt.Fprintf(&b, "- %d stops, %.0f km of driving (about %.1f hours on the road)\n",
		len(route.Clusters), route.TotalDistanceKm, driveHours(route))
	fmt.Fprintf(&b, "- Plan for roughly %.1f hours door to door with birding time included\n", tripHours(route))
	if len(route.Segments) > 0 {
		last := route.Segments[len(route.Segments)-1]
		fmt.Fprintf(&b, "- The route closes back at %s\n", last.ToName)
	}
	b.WriteString("\n")

	writeChecklist(&b)
	return b.String()
}

func writeTargetSection(b *strings.Builder, targets []model.TargetSpecies) {
	if len(targets) == 0 {
		return
	}
	b.WriteString("## Target Species\n\n")
	for _, t := range targets {
		if t.ScientificName != "" {
			fmt.Fprintf(b, "- **%s** (*%s*)", t.CommonName, t.ScientificName)
		} else {
			fmt.Fprintf(b, "- **%s**", t.CommonName)
		}
		if t.SeasonalNotes != "" {
			fmt.Fprintf(b, " — %s", t.SeasonalNotes)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeStopSection(b *strings.Builder, route *model.Route, i int, names map[string]string, hasStart bool) {
	c := &route.Clusters[i]
	fmt.Fprintf(b, "## Stop %d: %s\n\n", i+1, c.ClusterName)
	fmt.Fprintf(b, "- Coordinates: %.4f, %.4f\n", c.CenterLat, c.CenterLng)

	if c.Accessibility.HasHotspot {
		fmt.Fprintf(b, "- Score: %.2f (includes an official eBird hotspot)\n", c.FinalScore)
	} else {
		fmt.Fprintf(b, "- Score: %.2f\n", c.FinalScore)
	}

	if leg := arrivingLeg(route, i, hasStart); leg != nil {
		fmt.Fprintf(b, "- Getting there: %.0f km from %s, about %.1f hours\n",
			leg.DistanceKm, leg.FromName, leg.EstimatedDriveTimeHours)
	}

	if len(c.Statistics.SpeciesCodes) > 0 {
		labels := make([]string, 0, maxStopSpecies)
		for _, code := range c.Statistics.SpeciesCodes {
			if name := names[code]; name != "" {
				labels = append(labels, fmt.Sprintf("%s (%s)", name, code))
			} else {
				labels = append(labels, code)
			}
			if len(labels) == maxStopSpecies {
				break
			}
		}
		fmt.Fprintf(b, "- Species reported: %s\n", strings.Join(labels, ", "))
	}
	if c.Statistics.MostRecentObservation != "" {
		fmt.Fprintf(b, "- Most recent observation: %s\n", c.Statistics.MostRecentObservation)
	}
	if c.LLMEvaluation != nil && c.LLMEvaluation.BestTimeOfDay != "" {
		fmt.Fprintf(b, "- Best time: %s\n", c.LLMEvaluation.BestTimeOfDay)
	}
	b.WriteString("\n")
}

// arrivingLeg returns the segment that ends at stop i, nil when the
// stop is the tour origin.
func arrivingLeg(route *model.Route, i int, hasStart bool) *model.RouteSegment {
	idx := i - 1
	if hasStart {
		idx = i
	}
	if idx < 0 || idx >= len(route.Segments) {
		return nil
	}
	return &route.Segments[idx]
}

func writeChecklist(b *strings.Builder) {
	b.WriteString("## Tips & Equipment\n\n")
	b.WriteString("- Binoculars, field guide or birding app, notebook or checklist\n")
	b.WriteString("- Water, snacks, sun protection, and weather-appropriate layers\n")
	b.WriteString("- Arrive early: the first hours after sunrise are the most active time for songbirds\n")
	b.WriteString("- Location pins are eBird coordinates; parking and trailheads may sit elsewhere, so check a map before driving\n")
	b.WriteString("- Observation data comes from eBird (Cornell Lab of Ornithology) and reflects recent reports, not guarantees\n")
	b.WriteString("- Respect private property, stay on trails, and mind seasonal closures\n")
}

// noRoute explains an empty plan and how to widen the search.
func (g *Generator) noRoute(targets []model.TargetSpecies, cons model.Constraints) string {
	var b strings.Builder
	b.WriteString("# Birding Road Trip Itinerary\n\n")
	fmt.Fprintf(&b, "*Generated %s*\n\n", g.now().UTC().Format("2006-01-02 15:04 UTC"))
	b.WriteString("**No route available.**\n\n")

	if len(targets) == 0 {
		b.WriteString("None of the requested species could be validated, so there was nothing to search for.\n\n")
	} else {
		b.WriteString("No birding locations survived the trip constraints. This usually means one of:\n\n")
		b.WriteString("- no recent observations of the requested species in the region,\n")
		b.WriteString("- every sighting was filtered out by the travel radius, date window, or quality requirements, or\n")
		b.WriteString("- the reported observations lacked usable coordinates.\n\n")
	}

	b.WriteString("Things to try:\n\n")
	fmt.Fprintf(&b, "- widen the observation window (daysBack is %s)\n", orDefault(cons.DaysBack, "currently the default"))
	b.WriteString("- raise maxTravelRadiusKm or move the start location closer to the region\n")
	b.WriteString("- relax minObservationQuality to \"any\"\n")
	b.WriteString("- double-check species spelling, or use scientific names\n")
	return b.String()
}

func orDefault(v int, def string) string {
	if v <= 0 {
		return def
	}
	return fmt.Sprintf("%d days", v)
}
