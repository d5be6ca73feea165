// Package route orders scored clusters into a drivable closed tour.
package route

import (
	"log/slog"
	"math"
	"sort"

	"birdtrip/pkg/geo"
	"birdtrip/pkg/model"
)

const (
	defaultMinScore  = 0.3
	defaultMaxPerDay = 8
	maxTwoOptPasses  = 100
	longRouteWarnKm  = 1000.0
)

// Optimizer plans the visit order over scored clusters.
type Optimizer struct {
	speedKmh float64
	maxStops int
	cutover  int
	logger   *slog.Logger
}

// New creates an optimizer. Non-positive arguments fall back to
// 60 km/h, 12 stops, and a 2-opt cutover of 8 clusters.
func New(avgSpeedKmh float64, maxStops, twoOptCutover int) *Optimizer {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = 60
	}
	if maxStops <= 0 {
		maxStops = 12
	}
	if twoOptCutover <= 0 {
		twoOptCutover = 8
	}
	return &Optimizer{
		speedKmh: avgSpeedKmh,
		maxStops: maxStops,
		cutover:  twoOptCutover,
		logger:   slog.With("component", "route_optimizer"),
	}
}

// Optimize selects the best clusters and orders them into a closed
// tour. Clusters are expected in descending final score order; the
// optimizer re-sorts defensively since only the order of equals matters.
func (o *Optimizer) Optimize(clusters []model.ScoredCluster, cons model.Constraints) (*model.Route, model.RouteStats) {
	var stats model.RouteStats

	selected := o.selectCandidates(clusters, cons, &stats)
	stats.SelectedClusters = len(selected)

	switch len(selected) {
	case 0:
		stats.Method = model.RouteEmpty
		return &model.Route{OptimizationMethod: model.RouteEmpty}, stats
	case 1:
		return o.singleLocation(selected[0], cons, stats)
	}

	route := o.tour(selected, cons, &stats)
	stats.TotalDistanceKm = route.TotalDistanceKm

	if route.TotalDistanceKm > longRouteWarnKm {
		o.logger.Warn("Route exceeds a comfortable day trip",
			"totalKm", route.TotalDistanceKm)
	}
	o.logger.Info("Route optimized",
		"method", stats.Method,
		"stops", stats.SelectedClusters,
		"totalKm", stats.TotalDistanceKm,
		"baselineKm", stats.BaselineDistanceKm,
		"passes", stats.ImprovementPasses)
	return route, stats
}

// selectCandidates applies the score threshold and the per-day stop cap.
func (o *Optimizer) selectCandidates(clusters []model.ScoredCluster, cons model.Constraints, stats *model.RouteStats) []model.ScoredCluster {
	minScore := cons.MinLocationScore
	if minScore <= 0 {
		minScore = defaultMinScore
	}

	var candidates []model.ScoredCluster
	for _, c := range clusters {
		if c.FinalScore >= minScore {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 && len(clusters) > 0 {
		o.logger.Warn("No clusters meet the minimum score, keeping all",
			"minScore", minScore, "clusters", len(clusters))
		candidates = append(candidates, clusters...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FinalScore > candidates[j].FinalScore
	})
	stats.CandidateClusters = len(candidates)

	maxPerDay := cons.MaxLocationsPerDay
	if maxPerDay <= 0 {
		maxPerDay = defaultMaxPerDay
	}
	k := len(candidates)
	if k > maxPerDay {
		k = maxPerDay
	}
	if k > o.maxStops {
		k = o.maxStops
	}
	return candidates[:k]
}

// singleLocation builds the degenerate one-stop route: out and back
// when a start exists, a standalone visit otherwise.
func (o *Optimizer) singleLocation(c model.ScoredCluster, cons model.Constraints, stats model.RouteStats) (*model.Route, model.RouteStats) {
	stats.Method = model.RouteSingleLocation
	route := &model.Route{
		Clusters:           []model.ScoredCluster{c},
		OptimizationMethod: model.RouteSingleLocation,
	}
	if cons.HasStart() {
		start := startWaypoint(cons)
		route.Segments, route.TotalDistanceKm = o.buildSegments([]waypoint{start, clusterWaypoint(&c), start})
	}
	stats.TotalDistanceKm = route.TotalDistanceKm
	stats.BaselineDistanceKm = route.TotalDistanceKm
	return route, stats
}

func (o *Optimizer) tour(selected []model.ScoredCluster, cons model.Constraints, stats *model.RouteStats) *model.Route {
	var origin waypoint
	var prefix []model.ScoredCluster
	var stops []model.ScoredCluster

	if cons.HasStart() {
		origin = startWaypoint(cons)
		stops = selected
	} else {
		// No start: the tour originates at the top scored cluster.
		origin = clusterWaypoint(&selected[0])
		prefix = selected[:1]
		stops = selected[1:]
	}

	pts := make([]geo.Point, len(stops))
	for i := range stops {
		pts[i] = geo.Point{Lat: stops[i].CenterLat, Lng: stops[i].CenterLng}
	}

	seed := nearestNeighbor(origin.pt, pts, -1)
	stats.BaselineDistanceKm = tourLength(origin.pt, pts, seed)

	order, method, passes := o.improve(origin.pt, pts, seed, len(selected))
	stats.Method = method
	stats.ImprovementPasses = passes

	ordered := append([]model.ScoredCluster{}, prefix...)
	for _, idx := range order {
		ordered = append(ordered, stops[idx])
	}

	path := make([]waypoint, 0, len(ordered)+2)
	path = append(path, origin)
	for i := range ordered {
		if len(prefix) > 0 && i == 0 {
			continue // origin already is the first cluster
		}
		path = append(path, clusterWaypoint(&ordered[i]))
	}
	path = append(path, origin)

	segments, total := o.buildSegments(path)
	return &model.Route{
		Clusters:           ordered,
		Segments:           segments,
		TotalDistanceKm:    total,
		OptimizationMethod: method,
	}
}

// improve refines the seed order. A panic in the heuristics falls back
// to the incoming score order so a planning run never dies here.
func (o *Optimizer) improve(origin geo.Point, pts []geo.Point, seed []int, k int) (order []int, method string, passes int) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Route optimization failed, using score order", "panic", r)
			order = make([]int, len(pts))
			for i := range order {
				order[i] = i
			}
			method = model.RouteFallbackScoreOrder
			passes = 0
		}
	}()

	if k > o.cutover {
		return o.restartNearestNeighbor(origin, pts, seed)
	}
	order, passes = twoOpt(origin, pts, seed)
	return order, model.RouteTwoOpt, passes
}

// restartNearestNeighbor reruns the greedy construction forcing each of
// the three highest scored stops to be visited first and keeps the
// shortest tour. 2-opt gets quadratic past the cutover; restarts stay
// cheap and fix most of the bad greedy starts.
func (o *Optimizer) restartNearestNeighbor(origin geo.Point, pts []geo.Point, seed []int) ([]int, string, int) {
	best := seed
	bestLen := tourLength(origin, pts, seed)

	restarts := 3
	if restarts > len(pts) {
		restarts = len(pts)
	}
	for first := 0; first < restarts; first++ {
		order := nearestNeighbor(origin, pts, first)
		if l := tourLength(origin, pts, order); l < bestLen {
			best, bestLen = order, l
		}
	}
	return best, model.RouteEnhancedNearestNeighbor, 0
}

// nearestNeighbor builds a visit order greedily from origin. A
// non-negative first index pins that stop to the front.
func nearestNeighbor(origin geo.Point, pts []geo.Point, first int) []int {
	n := len(pts)
	order := make([]int, 0, n)
	visited := make([]bool, n)
	cur := origin
	if first >= 0 && first < n {
		order = append(order, first)
		visited[first] = true
		cur = pts[first]
	}
	for len(order) < n {
		best, bestDist := -1, math.MaxFloat64
		for i := 0; i < n; i++ {
			if visited[i] {
				continue
			}
			if d := geo.DistanceKm(cur, pts[i]); d < bestDist {
				best, bestDist = i, d
			}
		}
		order = append(order, best)
		visited[best] = true
		cur = pts[best]
	}
	return order
}

// twoOpt removes route crossings by reversing sub-sequences while that
// shortens the closed tour, up to maxTwoOptPasses sweeps.
func twoOpt(origin geo.Point, pts []geo.Point, seed []int) ([]int, int) {
	order := append([]int(nil), seed...)
	passes := 0
	for improved := true; improved && passes < maxTwoOptPasses; {
		improved = false
		passes++
		for i := 0; i < len(order)-1; i++ {
			for j := i + 1; j < len(order); j++ {
				prev := origin
				if i > 0 {
					prev = pts[order[i-1]]
				}
				next := origin
				if j < len(order)-1 {
					next = pts[order[j+1]]
				}
				cur := geo.DistanceKm(prev, pts[order[i]]) + geo.DistanceKm(pts[order[j]], next)
				alt := geo.DistanceKm(prev, pts[order[j]]) + geo.DistanceKm(pts[order[i]], next)
				if alt+1e-9 < cur {
					reverse(order[i : j+1])
					improved = true
				}
			}
		}
	}
	return order, passes
}

func reverse(s []int) {
	for a, b := 0, len(s)-1; a < b; a, b = a+1, b-1 {
		s[a], s[b] = s[b], s[a]
	}
}

// tourLength measures the closed tour origin -> stops -> origin.
func tourLength(origin geo.Point, pts []geo.Point, order []int) float64 {
	total := 0.0
	cur := origin
	for _, idx := range order {
		total += geo.DistanceKm(cur, pts[idx])
		cur = pts[idx]
	}
	return total + geo.DistanceKm(cur, origin)
}

// waypoint pairs a path point with the segment metadata of the cluster
// it represents. Score and diversity stay zero for the start point.
type waypoint struct {
	name      string
	pt        geo.Point
	score     float64
	diversity int
}

func startWaypoint(cons model.Constraints) waypoint {
	return waypoint{name: "Start", pt: geo.Point{Lat: cons.StartLocation.Lat, Lng: cons.StartLocation.Lng}}
}

func clusterWaypoint(c *model.ScoredCluster) waypoint {
	return waypoint{
		name:      c.ClusterName,
		pt:        geo.Point{Lat: c.CenterLat, Lng: c.CenterLng},
		score:     c.FinalScore,
		diversity: c.Statistics.SpeciesDiversity,
	}
}

// buildSegments turns a waypoint path into legs with drive times and a
// monotonic cumulative distance.
func (o *Optimizer) buildSegments(path []waypoint) ([]model.RouteSegment, float64) {
	if len(path) < 2 {
		return nil, 0
	}
	segments := make([]model.RouteSegment, 0, len(path)-1)
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		from, to := path[i], path[i+1]
		d := geo.DistanceKm(from.pt, to.pt)
		total += d
		segments = append(segments, model.RouteSegment{
			SegmentNumber:           i + 1,
			FromName:                from.name,
			ToName:                  to.name,
			FromLat:                 from.pt.Lat,
			FromLng:                 from.pt.Lng,
			ToLat:                   to.pt.Lat,
			ToLng:                   to.pt.Lng,
			DistanceKm:              d,
			EstimatedDriveTimeHours: d / o.speedKmh,
			CumulativeDistanceKm:    total,
			LocationScore:           to.score,
			SpeciesDiversity:        to.diversity,
		})
	}
	return segments, total
}
