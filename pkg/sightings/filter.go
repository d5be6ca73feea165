package sightings

import (
	"log/slog"
	"time"

	"birdtrip/pkg/geo"
	"birdtrip/pkg/logging"
	"birdtrip/pkg/model"
)

// maxDailyDriveHours is the one-way travel budget a sighting may cost
// before it stops being a realistic day-trip target.
const maxDailyDriveHours = 8.0

// Filter enriches sightings with constraint-compliance flags. Nothing
// is discarded here; every input row comes back with its flags so
// downstream stages and the API response can explain what was excluded.
type Filter struct {
	speedKmh float64
	now      func() time.Time
	logger   *slog.Logger
}

// NewFilter creates a filter assuming the given average driving speed.
func NewFilter(avgSpeedKmh float64) *Filter {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = 60
	}
	return &Filter{
		speedKmh: avgSpeedKmh,
		now:      time.Now,
		logger:   slog.With("component", "constraint_filter"),
	}
}

// Apply derives the compliance flags for every sighting. It never
// fails; an empty input yields an empty output with zeroed stats.
func (f *Filter) Apply(sightings []model.Sighting, c model.Constraints) ([]model.EnrichedSighting, model.FilterStats) {
	stats := model.FilterStats{
		TotalSightings:    len(sightings),
		ComplianceSummary: make(map[string]float64),
	}
	if len(sightings) == 0 {
		return nil, stats
	}

	radiusKm := c.MaxTravelRadiusKm
	if radiusKm <= 0 {
		radiusKm = c.MaxDailyDistanceKm
	}

	// Duplicate detection is first-wins over the input sequence, so the
	// same input always yields the same survivor.
	seen := make(map[string]struct{}, len(sightings))

	out := make([]model.EnrichedSighting, 0, len(sightings))
	for i := range sightings {
		s := sightings[i]
		e := model.EnrichedSighting{Sighting: s}

		var point geo.Point
		if s.HasCoordinates() {
			point = geo.Point{Lat: *s.Lat, Lng: *s.Lng}
			e.HasValidGps = point.Valid()
		}

		e.WithinTravelRadius = true
		e.DailyDistanceCompliant = true
		if e.HasValidGps && c.HasStart() {
			dist := geo.DistanceKm(geo.Point{Lat: c.StartLocation.Lat, Lng: c.StartLocation.Lng}, point)
			hours := dist / f.speedKmh
			e.DistanceFromStartKm = &dist
			e.EstimatedTravelTimeHours = &hours
			e.WithinTravelRadius = dist <= radiusKm
			e.DailyDistanceCompliant = hours <= maxDailyDriveHours
		}

		e.WithinRegion = true
		if e.HasValidGps && c.RegionCode != "" {
			e.WithinRegion = geo.InRegion(c.RegionCode, point)
		}

		e.WithinDateRange = f.withinDateRange(s.ObsDt, c)
		e.QualityCompliant = qualityCompliant(&s, c.MinObservationQuality)

		key := s.DuplicateKey()
		if _, dup := seen[key]; dup {
			e.IsDuplicate = true
		} else {
			seen[key] = struct{}{}
		}

		e.MeetsAllConstraints = e.HasValidGps &&
			e.WithinTravelRadius &&
			e.WithinDateRange &&
			e.WithinRegion &&
			e.QualityCompliant &&
			!e.IsDuplicate &&
			e.DailyDistanceCompliant

		if !e.MeetsAllConstraints {
			logging.Trace(f.logger, "Sighting excluded",
				"species", s.SpeciesCode, "loc", s.LocID,
				"gps", e.HasValidGps, "radius", e.WithinTravelRadius,
				"date", e.WithinDateRange, "region", e.WithinRegion,
				"quality", e.QualityCompliant, "dup", e.IsDuplicate)
		}

		tally(&stats, &e)
		out = append(out, e)
	}

	summarize(&stats)
	if stats.FullyCompliant == 0 {
		f.logger.Warn("No sightings meet all constraints", "total", stats.TotalSightings)
	} else {
		f.logger.Info("Constraints applied",
			"total", stats.TotalSightings,
			"compliant", stats.FullyCompliant,
			"duplicates", stats.Duplicates)
	}
	return out, stats
}

// withinDateRange checks the observation timestamp against an explicit
// date range when given, else against the daysBack window ending now.
// Unparseable timestamps fail the check.
func (f *Filter) withinDateRange(obsDt string, c model.Constraints) bool {
	t, err := model.ParseObsDt(obsDt)
	if err != nil {
		return false
	}

	if c.DateRange != nil {
		start, err1 := time.Parse(model.ObsDtDateLayout, c.DateRange.Start)
		end, err2 := time.Parse(model.ObsDtDateLayout, c.DateRange.End)
		if err1 != nil || err2 != nil {
			return false
		}
		// End is inclusive through the whole day.
		end = end.Add(24*time.Hour - time.Nanosecond)
		return !t.Before(start) && !t.After(end)
	}

	days := c.DaysBack
	if days <= 0 {
		days = 7
	}
	cutoff := f.now().AddDate(0, 0, -days)
	return !t.Before(cutoff)
}

func qualityCompliant(s *model.Sighting, minQuality string) bool {
	switch minQuality {
	case model.QualityReviewed:
		return s.ObsReviewed
	case model.QualityValid:
		return s.ObsValid
	default:
		return true
	}
}

func tally(stats *model.FilterStats, e *model.EnrichedSighting) {
	if e.HasValidGps {
		stats.ValidGps++
	}
	if e.WithinTravelRadius {
		stats.WithinTravelRadius++
	}
	if e.WithinDateRange {
		stats.WithinDateRange++
	}
	if e.WithinRegion {
		stats.WithinRegion++
	}
	if e.QualityCompliant {
		stats.QualityCompliant++
	}
	if e.IsDuplicate {
		stats.Duplicates++
	}
	if e.DailyDistanceCompliant {
		stats.DailyDistanceCompliant++
	}
	if e.MeetsAllConstraints {
		stats.FullyCompliant++
	}
}

func summarize(stats *model.FilterStats) {
	total := float64(stats.TotalSightings)
	if total == 0 {
		return
	}
	pct := func(n int) float64 { return float64(n) / total * 100 }
	stats.ComplianceSummary["validGpsPct"] = pct(stats.ValidGps)
	stats.ComplianceSummary["withinTravelRadiusPct"] = pct(stats.WithinTravelRadius)
	stats.ComplianceSummary["withinDateRangePct"] = pct(stats.WithinDateRange)
	stats.ComplianceSummary["withinRegionPct"] = pct(stats.WithinRegion)
	stats.ComplianceSummary["qualityCompliantPct"] = pct(stats.QualityCompliant)
	stats.ComplianceSummary["duplicatePct"] = pct(stats.Duplicates)
	stats.ComplianceSummary["dailyDistanceCompliantPct"] = pct(stats.DailyDistanceCompliant)
	stats.ComplianceSummary["fullyCompliantPct"] = pct(stats.FullyCompliant)
}
