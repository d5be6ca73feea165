package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"birdtrip/pkg/model"
)

// regionPattern matches eBird region codes: a country ("US"), a
// subnational1 ("US-MA"), or a subnational2 ("US-MA-017").
var regionPattern = regexp.MustCompile(`^[A-Z]{2}(-[A-Z0-9]{1,3}){0,2}$`)

const maxDaysBack = 30

// ValidationError describes a rejected planning request. It is the only
// error class that aborts a run before the first stage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// prepare validates the request and returns the cleaned species list
// plus fully defaulted constraints.
func (p *Runner) prepare(req Request) ([]string, model.Constraints, error) {
	cons := req.Constraints
	cons.RegionCode = strings.ToUpper(strings.TrimSpace(cons.RegionCode))

	if err := p.checkConstraints(&cons); err != nil {
		return nil, cons, err
	}
	p.normalize(&cons)

	names := make([]string, 0, len(req.Species))
	for _, raw := range req.Species {
		if name := strings.TrimSpace(raw); name != "" {
			names = append(names, name)
		}
	}
	return names, cons, nil
}

func (p *Runner) checkConstraints(cons *model.Constraints) error {
	if cons.StartLocation != nil {
		if cons.StartLocation.Lat < -90 || cons.StartLocation.Lat > 90 {
			return invalid("startLocation.lat", "latitude must be between -90 and 90")
		}
		if cons.StartLocation.Lng < -180 || cons.StartLocation.Lng > 180 {
			return invalid("startLocation.lng", "longitude must be between -180 and 180")
		}
	}
	if cons.StartLocation == nil && cons.RegionCode == "" {
		return invalid("constraints", "either startLocation or regionCode is required")
	}
	if cons.RegionCode != "" && !regionPattern.MatchString(cons.RegionCode) {
		return invalid("regionCode", fmt.Sprintf("%q is not an eBird region code", cons.RegionCode))
	}
	if cons.DaysBack < 0 {
		return invalid("daysBack", "must not be negative")
	}
	if cons.MaxDailyDistanceKm < 0 {
		return invalid("maxDailyDistanceKm", "must not be negative")
	}
	if cons.MaxTravelRadiusKm < 0 {
		return invalid("maxTravelRadiusKm", "must not be negative")
	}
	if cons.MaxLocationsPerDay < 0 {
		return invalid("maxLocationsPerDay", "must not be negative")
	}
	if cons.MinLocationScore < 0 || cons.MinLocationScore > 1 {
		return invalid("minLocationScore", "must be between 0 and 1")
	}
	switch cons.MinObservationQuality {
	case "", model.QualityAny, model.QualityValid, model.QualityReviewed:
	default:
		return invalid("minObservationQuality", `must be "any", "valid" or "reviewed"`)
	}
	if cons.TripDurationDays < 0 {
		return invalid("tripDurationDays", "must not be negative")
	}
	if cons.DateRange != nil {
		start, err := time.Parse("2006-01-02", cons.DateRange.Start)
		if err != nil {
			return invalid("dateRange.start", "must be YYYY-MM-DD")
		}
		end, err := time.Parse("2006-01-02", cons.DateRange.End)
		if err != nil {
			return invalid("dateRange.end", "must be YYYY-MM-DD")
		}
		if end.Before(start) {
			return invalid("dateRange", "end must not be before start")
		}
	}
	return nil
}

// normalize fills unset constraint fields from the configured defaults.
func (p *Runner) normalize(cons *model.Constraints) {
	if cons.DaysBack == 0 {
		cons.DaysBack = p.defaults.DaysBack
	}
	if cons.DaysBack == 0 {
		cons.DaysBack = 7
	}
	if cons.DaysBack > maxDaysBack {
		cons.DaysBack = maxDaysBack
	}
	if cons.MaxDailyDistanceKm == 0 {
		cons.MaxDailyDistanceKm = p.defaults.MaxDailyDistance.Km()
	}
	if cons.MaxDailyDistanceKm == 0 {
		cons.MaxDailyDistanceKm = 200
	}
	if cons.MaxTravelRadiusKm == 0 {
		cons.MaxTravelRadiusKm = cons.MaxDailyDistanceKm
	}
	if cons.MinObservationQuality == "" {
		cons.MinObservationQuality = p.defaults.MinQuality
	}
	if cons.MinObservationQuality == "" {
		cons.MinObservationQuality = model.QualityAny
	}
	if cons.MaxLocationsPerDay == 0 {
		cons.MaxLocationsPerDay = p.defaults.MaxLocationsPerDay
	}
	if cons.MaxLocationsPerDay == 0 {
		cons.MaxLocationsPerDay = 8
	}
	if cons.MinLocationScore == 0 {
		cons.MinLocationScore = p.defaults.MinLocationScore
	}
	if cons.TripDurationDays == 0 {
		cons.TripDurationDays = p.defaults.TripDurationDays
	}
	if cons.TripDurationDays == 0 {
		cons.TripDurationDays = 1
	}
}
