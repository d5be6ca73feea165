package cluster

import (
	"context"
	"math"

	h3 "github.com/uber/h3-go/v4"

	"birdtrip/pkg/ebird"
	"birdtrip/pkg/geo"
	"birdtrip/pkg/logging"
	"birdtrip/pkg/model"
)

// h3Res is the indexing resolution for the hotspot proximity lookup.
// Resolution 7 cells are roughly 2.4 km across, so one neighbor ring
// always covers the 0.5 km merge radius; the exact Haversine check
// afterwards does the real filtering.
const h3Res = 7

// discoverHotspots issues up to two hotspot queries and deduplicates
// the union by locId. Failures degrade to fewer hotspots, never errors;
// clusters without hotspot backing just score lower later.
func (c *Clusterer) discoverHotspots(ctx context.Context, cons model.Constraints) []ebird.Hotspot {
	var all []ebird.Hotspot

	if cons.RegionCode != "" {
		spots, err := c.source.RegionalHotspots(ctx, cons.RegionCode)
		switch {
		case ebird.IsNotFound(err):
			c.logger.Warn("Region unknown to the hotspot directory", "region", cons.RegionCode)
		case err != nil:
			c.logger.Warn("Regional hotspot lookup failed", "region", cons.RegionCode, "error", err)
		default:
			all = append(all, spots...)
		}
	}

	if cons.HasStart() {
		dist := math.Min(cons.MaxDailyDistanceKm/2, ebird.MaxDistanceKm)
		spots, err := c.source.NearbyHotspots(ctx, cons.StartLocation.Lat, cons.StartLocation.Lng, dist)
		if err != nil {
			c.logger.Warn("Nearby hotspot lookup failed", "error", err)
		} else {
			all = append(all, spots...)
		}
	}

	seen := make(map[string]struct{}, len(all))
	deduped := all[:0]
	for _, h := range all {
		if _, ok := seen[h.LocID]; ok {
			continue
		}
		seen[h.LocID] = struct{}{}
		deduped = append(deduped, h)
	}
	return deduped
}

// mergeHotspots attaches hotspot metadata to locations and appends
// unmatched hotspots as zero-sighting locations. Matching prefers an
// identical coordinate key, then the nearest hotspot within the merge
// radius. Returns the merged list and the number of matched locations.
func (c *Clusterer) mergeHotspots(locs []model.Location, hotspots []ebird.Hotspot) ([]model.Location, int) {
	if len(hotspots) == 0 {
		return locs, 0
	}

	byKey := make(map[string]int, len(hotspots))
	for i, h := range hotspots {
		key := geo.CoordKey(h.Lat, h.Lng)
		if _, ok := byKey[key]; !ok {
			byKey[key] = i
		}
	}
	idx := newHotspotIndex(hotspots)

	matched := 0
	claimed := make(map[string]struct{}, len(hotspots))
	for i := range locs {
		loc := &locs[i]

		if hi, ok := byKey[loc.CoordKey]; ok {
			attachHotspot(loc, hotspots[hi], 0, true)
			matched++
			claimed[hotspots[hi].LocID] = struct{}{}
			continue
		}
		hi, distKm, found := idx.nearest(loc.Lat, loc.Lng, c.mergeKm)
		if !found {
			continue
		}
		logging.Trace(c.logger, "Hotspot proximity match",
			"loc", loc.LocID, "hotspot", hotspots[hi].LocID, "distKm", distKm)
		attachHotspot(loc, hotspots[hi], distKm, false)
		matched++
		claimed[hotspots[hi].LocID] = struct{}{}
	}

	// Hotspots nothing matched become locations in their own right, so
	// clustering can route a trip through known sites that simply had no
	// recent target sightings.
	for _, h := range hotspots {
		if _, ok := claimed[h.LocID]; ok {
			continue
		}
		locs = append(locs, model.Location{
			CoordKey:  geo.CoordKey(h.Lat, h.Lng),
			Lat:       h.Lat,
			Lng:       h.Lng,
			LocID:     h.LocID,
			LocName:   h.LocName,
			IsHotspot: true,
			Hotspot: &model.HotspotMeta{
				LocID:             h.LocID,
				Name:              h.LocName,
				NumSpeciesAllTime: h.NumSpeciesAllTime,
				LatestObsDate:     h.LatestObsDt,
				ExactCoordMatch:   true,
			},
		})
	}
	return locs, matched
}

func attachHotspot(loc *model.Location, h ebird.Hotspot, distKm float64, exact bool) {
	loc.IsHotspot = true
	loc.Hotspot = &model.HotspotMeta{
		LocID:               h.LocID,
		Name:                h.LocName,
		NumSpeciesAllTime:   h.NumSpeciesAllTime,
		LatestObsDate:       h.LatestObsDt,
		DistanceToHotspotKm: distKm,
		ExactCoordMatch:     exact,
	}
}

// hotspotIndex buckets hotspots by H3 cell for nearest-neighbor lookups.
// A lookup examines only the query's cell and its immediate ring instead
// of every hotspot in the region.
type hotspotIndex struct {
	spots []ebird.Hotspot
	cells map[h3.Cell][]int
}

func newHotspotIndex(spots []ebird.Hotspot) *hotspotIndex {
	idx := &hotspotIndex{
		spots: spots,
		cells: make(map[h3.Cell][]int, len(spots)),
	}
	for i, h := range spots {
		cell, err := h3.LatLngToCell(h3.NewLatLng(h.Lat, h.Lng), h3Res)
		if err != nil {
			continue
		}
		idx.cells[cell] = append(idx.cells[cell], i)
	}
	return idx
}

// nearest returns the closest hotspot within maxKm of the point, by
// exact Haversine over the H3-prefiltered candidates.
func (idx *hotspotIndex) nearest(lat, lng float64, maxKm float64) (int, float64, bool) {
	candidates := idx.candidates(lat, lng)

	best, bestDist := -1, math.MaxFloat64
	p := geo.Point{Lat: lat, Lng: lng}
	for _, i := range candidates {
		d := geo.DistanceKm(p, geo.Point{Lat: idx.spots[i].Lat, Lng: idx.spots[i].Lng})
		if d <= maxKm && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, bestDist, true
}

func (idx *hotspotIndex) candidates(lat, lng float64) []int {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), h3Res)
	if err != nil {
		return idx.all()
	}
	ring, err := h3.GridDisk(cell, 1)
	if err != nil {
		return idx.all()
	}
	var out []int
	for _, c := range ring {
		out = append(out, idx.cells[c]...)
	}
	return out
}

func (idx *hotspotIndex) all() []int {
	out := make([]int, len(idx.spots))
	for i := range out {
		out[i] = i
	}
	return out
}
