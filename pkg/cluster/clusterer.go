// Package cluster reconciles sighting locations with official eBird
// hotspots and groups nearby sites into trip stops.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"birdtrip/pkg/ebird"
	"birdtrip/pkg/geo"
	"birdtrip/pkg/model"
)

// HotspotSource is the slice of the eBird client the clusterer uses.
type HotspotSource interface {
	RegionalHotspots(ctx context.Context, regionCode string) ([]ebird.Hotspot, error)
	NearbyHotspots(ctx context.Context, lat, lng float64, distKm float64) ([]ebird.Hotspot, error)
}

// Clusterer builds hotspot clusters from enriched sightings.
type Clusterer struct {
	source   HotspotSource
	radiusKm float64 // greedy clustering radius
	mergeKm  float64 // sighting-to-hotspot match radius
	logger   *slog.Logger
}

// New creates a clusterer. Zero radii fall back to 15 km clustering and
// 0.5 km hotspot matching.
func New(source HotspotSource, radiusKm, mergeKm float64) *Clusterer {
	if radiusKm <= 0 {
		radiusKm = 15
	}
	if mergeKm <= 0 {
		mergeKm = 0.5
	}
	return &Clusterer{
		source:   source,
		radiusKm: radiusKm,
		mergeKm:  mergeKm,
		logger:   slog.With("component", "hotspot_clusterer"),
	}
}

// Cluster groups the fully-compliant sightings into clusters of nearby
// locations, enriched with hotspot metadata. Hotspot lookups are best
// effort; the stage degrades rather than fails.
func (c *Clusterer) Cluster(ctx context.Context, sightings []model.EnrichedSighting, cons model.Constraints) ([]model.HotspotCluster, model.ClusterStats) {
	stats := model.ClusterStats{InputSightings: len(sightings)}

	locs := dedupLocations(sightings)
	stats.UniqueLocations = len(locs)
	if len(locs) == 0 {
		c.logger.Warn("No usable sighting locations to cluster")
		return nil, stats
	}

	hotspots := c.discoverHotspots(ctx, cons)
	stats.HotspotsFetched = len(hotspots)

	before := len(locs)
	locs, matched := c.mergeHotspots(locs, hotspots)
	stats.HotspotsMatched = matched
	stats.HotspotOnlyLocations = len(locs) - before

	groups := greedyCluster(locs, c.radiusKm)

	clusters := make([]model.HotspotCluster, 0, len(groups))
	for _, members := range groups {
		clusters = append(clusters, buildCluster(members, locs, sightings))
	}

	// Busiest clusters first. Stable sort keeps the build order for ties
	// so identical input yields identical output.
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Statistics.SightingCount > clusters[j].Statistics.SightingCount
	})
	for i := range clusters {
		clusters[i].ClusterID = fmt.Sprintf("cluster_%03d", i+1)
		if n := clusters[i].Statistics.LocationCount; n > stats.LargestClusterSize {
			stats.LargestClusterSize = n
		}
	}
	stats.ClusterCount = len(clusters)

	c.logger.Info("Clustering complete",
		"locations", stats.UniqueLocations,
		"hotspots", stats.HotspotsFetched,
		"matched", stats.HotspotsMatched,
		"clusters", stats.ClusterCount)
	return clusters, stats
}

// greedyCluster groups location indexes: the first unassigned location
// seeds a cluster, then repeated passes absorb every location within
// radiusKm of any current member until a pass adds nothing. The result
// depends on input order, which dedupLocations keeps stable.
func greedyCluster(locs []model.Location, radiusKm float64) [][]int {
	assigned := make([]bool, len(locs))
	var groups [][]int

	for seed := range locs {
		if assigned[seed] {
			continue
		}
		members := []int{seed}
		assigned[seed] = true

		for grew := true; grew; {
			grew = false
			for i := range locs {
				if assigned[i] {
					continue
				}
				if withinAny(locs, members, i, radiusKm) {
					members = append(members, i)
					assigned[i] = true
					grew = true
				}
			}
		}
		groups = append(groups, members)
	}
	return groups
}

func withinAny(locs []model.Location, members []int, i int, radiusKm float64) bool {
	p := geo.Point{Lat: locs[i].Lat, Lng: locs[i].Lng}
	for _, m := range members {
		if geo.DistanceKm(p, geo.Point{Lat: locs[m].Lat, Lng: locs[m].Lng}) <= radiusKm {
			return true
		}
	}
	return false
}

// buildCluster assembles one HotspotCluster from its member locations.
func buildCluster(members []int, locs []model.Location, sightings []model.EnrichedSighting) model.HotspotCluster {
	lats := make([]float64, len(members))
	lngs := make([]float64, len(members))
	for i, m := range members {
		lats[i] = locs[m].Lat
		lngs[i] = locs[m].Lng
	}
	centLat := stat.Mean(lats, nil)
	centLng := stat.Mean(lngs, nil)
	center := geo.Point{Lat: centLat, Lng: centLng}

	cluster := model.HotspotCluster{
		CenterLat: centLat,
		CenterLng: centLng,
		Locations: make([]model.Location, 0, len(members)),
	}

	speciesSet := make(map[string]struct{})
	var speciesCodes []string
	var mostRecent string
	var travelSum float64
	var travelN int

	for _, m := range members {
		loc := locs[m]
		cluster.Locations = append(cluster.Locations, loc)

		if d := geo.DistanceKm(center, geo.Point{Lat: loc.Lat, Lng: loc.Lng}); d > cluster.Statistics.ClusterRadiusKm {
			cluster.Statistics.ClusterRadiusKm = d
		}
		if loc.IsHotspot {
			cluster.Statistics.HotspotCount++
		}
		for _, code := range loc.Species {
			if _, ok := speciesSet[code]; !ok {
				speciesSet[code] = struct{}{}
				speciesCodes = append(speciesCodes, code)
			}
		}
		cluster.Statistics.SightingCount += loc.SightingCount()

		for _, si := range loc.SightingIndexes {
			s := &sightings[si]
			if laterObs(s.ObsDt, mostRecent) {
				mostRecent = s.ObsDt
			}
			if s.EstimatedTravelTimeHours != nil {
				travelSum += *s.EstimatedTravelTimeHours
				travelN++
			}
		}
	}

	cluster.Statistics.LocationCount = len(members)
	cluster.Statistics.SpeciesDiversity = len(speciesCodes)
	cluster.Statistics.SpeciesCodes = speciesCodes
	cluster.Statistics.MostRecentObservation = mostRecent

	cluster.Accessibility.HasHotspot = cluster.Statistics.HotspotCount > 0
	if travelN > 0 {
		avg := travelSum / float64(travelN)
		cluster.Accessibility.AvgTravelTimeHours = &avg
	}
	if cluster.Accessibility.HasHotspot {
		cluster.Accessibility.CoordinateQuality = model.CoordQualityHigh
	} else {
		cluster.Accessibility.CoordinateQuality = model.CoordQualityMedium
	}

	cluster.ClusterName = clusterName(cluster.Locations)
	return cluster
}

// clusterName picks the most species-diverse hotspot's name. Ties break
// by diversity then lexicographic locName. Clusters without a hotspot
// are named after their busiest location.
func clusterName(locations []model.Location) string {
	best := -1
	for i := range locations {
		if !locations[i].IsHotspot {
			continue
		}
		if best < 0 || hotspotRank(&locations[i], &locations[best]) {
			best = i
		}
	}
	if best >= 0 {
		return locations[best].DisplayName()
	}

	busiest := 0
	for i := range locations {
		if locations[i].SightingCount() > locations[busiest].SightingCount() {
			busiest = i
		}
	}
	return "Birding area near " + locations[busiest].DisplayName()
}

// hotspotRank reports whether candidate should replace current as the
// naming hotspot.
func hotspotRank(candidate, current *model.Location) bool {
	cd, xd := len(candidate.Species), len(current.Species)
	if cd != xd {
		return cd > xd
	}
	return candidate.LocName < current.LocName
}

// laterObs reports whether a is a later observation timestamp than b.
// Unparseable timestamps never win.
func laterObs(a, b string) bool {
	ta, err := model.ParseObsDt(a)
	if err != nil {
		return false
	}
	if b == "" {
		return true
	}
	tb, err := model.ParseObsDt(b)
	if err != nil {
		return true
	}
	return ta.After(tb)
}
