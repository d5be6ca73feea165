package cluster

import (
	"birdtrip/pkg/geo"
	"birdtrip/pkg/model"
)

// dedupLocations groups compliant sightings into Locations keyed by
// truncated coordinates. First-seen order is preserved end to end; the
// greedy clustering pass depends on it for reproducibility.
//
// Sighting indexes refer into the full enriched slice, so callers can
// recover the original records from a Location regardless of how many
// rows the compliance filter knocked out.
func dedupLocations(sightings []model.EnrichedSighting) []model.Location {
	byKey := make(map[string]int)
	var locs []model.Location

	for i := range sightings {
		s := &sightings[i]
		if !s.MeetsAllConstraints || !s.HasCoordinates() {
			continue
		}
		key := geo.CoordKey(*s.Lat, *s.Lng)

		li, ok := byKey[key]
		if !ok {
			byKey[key] = len(locs)
			locs = append(locs, model.Location{
				CoordKey: key,
				Lat:      *s.Lat,
				Lng:      *s.Lng,
				LocID:    s.LocID,
				LocName:  s.LocName,
			})
			li = len(locs) - 1
		}

		loc := &locs[li]
		loc.SightingIndexes = append(loc.SightingIndexes, i)
		if !contains(loc.Species, s.SpeciesCode) {
			loc.Species = append(loc.Species, s.SpeciesCode)
		}
		if s.ObsDt != "" && !contains(loc.ObservationDates, s.ObsDt) {
			loc.ObservationDates = append(loc.ObservationDates, s.ObsDt)
		}
		// Distinct eBird locations can collapse onto one coordinate key;
		// the first keeps the primary slot, the rest become alternates.
		if s.LocID != loc.LocID && !contains(loc.AltLocIDs, s.LocID) {
			loc.AltLocIDs = append(loc.AltLocIDs, s.LocID)
			if s.LocName != "" && s.LocName != loc.LocName {
				loc.AltLocNames = append(loc.AltLocNames, s.LocName)
			}
		}
	}
	return locs
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
