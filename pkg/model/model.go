package model

import (
	"fmt"
	"time"
)

// JSON field names follow eBird's camelCase convention. Fields that come
// straight off the eBird wire (speciesCode, comName, obsDt, ...) keep their
// upstream names so a record can be traced back to the API response that
// produced it.

// Validation methods, ordered from most to least confident.
const (
	ValidationDirectCommonName     = "directCommonName"
	ValidationDirectScientificName = "directScientificName"
	ValidationDirectSpeciesCode    = "directSpeciesCode"
	ValidationPartialCommonName    = "partialCommonName"
	ValidationLLMFuzzyMatch        = "llmFuzzyMatch"
	ValidationLLMOnlyFallback      = "llmOnlyFallback"
)

// SpeciesCodeUnknown marks a species that was canonicalized without taxonomy
// backing. Downstream stages skip API calls for it.
const SpeciesCodeUnknown = "unknown"

// Fetch strategies used by the sightings fetcher.
const (
	FetchNearbyObservations  = "nearbyObservations"
	FetchSpeciesObservations = "speciesObservations"
)

// Observation quality thresholds.
const (
	QualityAny      = "any"
	QualityValid    = "valid"
	QualityReviewed = "reviewed"
)

// Route optimization methods.
const (
	RouteEmpty                   = "empty"
	RouteSingleLocation          = "singleLocation"
	RouteTwoOpt                  = "twoOpt"
	RouteEnhancedNearestNeighbor = "enhancedNearestNeighbor"
	RouteFallbackScoreOrder      = "fallbackScoreOrder"
)

// Scoring methods.
const (
	ScoringAlgorithmic = "algorithmic"
	ScoringLLMEnhanced = "llmEnhanced"
)

// Itinerary generation methods.
const (
	ItineraryLLMEnhanced      = "llmEnhanced"
	ItineraryTemplateFallback = "templateFallback"
	ItineraryNone             = "none"
)

// Coordinate quality grades.
const (
	CoordQualityHigh   = "high"
	CoordQualityMedium = "medium"
)

// TargetSpecies is a validated entry from the user's species list.
type TargetSpecies struct {
	OriginalName     string  `json:"originalName"`
	CommonName       string  `json:"commonName"`
	ScientificName   string  `json:"scientificName"`
	SpeciesCode      string  `json:"speciesCode"`
	ValidationMethod string  `json:"validationMethod"`
	Confidence       float64 `json:"confidence"`

	// Taxonomy context, empty when validation ran without taxonomy backing.
	TaxonomicOrder       float64 `json:"taxonomicOrder,omitempty"`
	FamilyCommonName     string  `json:"familyCommonName,omitempty"`
	FamilyScientificName string  `json:"familyScientificName,omitempty"`

	SeasonalNotes   string `json:"seasonalNotes,omitempty"`
	BehavioralNotes string `json:"behavioralNotes,omitempty"`
}

// Sighting is a single eBird observation plus fetch provenance.
type Sighting struct {
	// eBird observation fields, names preserved verbatim.
	SpeciesCode     string   `json:"speciesCode"`
	ComName         string   `json:"comName"`
	SciName         string   `json:"sciName"`
	LocID           string   `json:"locId"`
	LocName         string   `json:"locName"`
	ObsDt           string   `json:"obsDt"` // "YYYY-MM-DD HH:MM" or "YYYY-MM-DD"
	HowMany         *int     `json:"howMany,omitempty"`
	Lat             *float64 `json:"lat,omitempty"`
	Lng             *float64 `json:"lng,omitempty"`
	ObsValid        bool     `json:"obsValid"`
	ObsReviewed     bool     `json:"obsReviewed"`
	LocationPrivate bool     `json:"locationPrivate"`

	// Provenance added by the sightings fetcher.
	FetchMethod          string    `json:"fetchMethod"`
	FetchTimestamp       time.Time `json:"fetchTimestamp"`
	ValidationMethod     string    `json:"validationMethod"`
	ValidationConfidence float64   `json:"validationConfidence"`
	OriginalSpeciesName  string    `json:"originalSpeciesName"`
	SeasonalNotes        string    `json:"seasonalNotes,omitempty"`
	BehavioralNotes      string    `json:"behavioralNotes,omitempty"`
}

// DuplicateKey identifies a sighting for duplicate detection. Two records
// with the same location, species and timestamp describe the same find.
func (s *Sighting) DuplicateKey() string {
	return fmt.Sprintf("%s|%s|%s", s.LocID, s.SpeciesCode, s.ObsDt)
}

// HasCoordinates reports whether both latitude and longitude are present.
func (s *Sighting) HasCoordinates() bool {
	return s.Lat != nil && s.Lng != nil
}

// EnrichedSighting is a Sighting plus constraint-compliance flags. The
// embedded Sighting is carried unchanged; enrichment only ever adds.
type EnrichedSighting struct {
	Sighting

	HasValidGps              bool     `json:"hasValidGps"`
	DistanceFromStartKm      *float64 `json:"distanceFromStartKm,omitempty"`
	WithinTravelRadius       bool     `json:"withinTravelRadius"`
	EstimatedTravelTimeHours *float64 `json:"estimatedTravelTimeHours,omitempty"`
	WithinDateRange          bool     `json:"withinDateRange"`
	WithinRegion             bool     `json:"withinRegion"`
	QualityCompliant         bool     `json:"qualityCompliant"`
	IsDuplicate              bool     `json:"isDuplicate"`
	DailyDistanceCompliant   bool     `json:"dailyDistanceCompliant"`
	MeetsAllConstraints      bool     `json:"meetsAllConstraints"`
}

// HotspotMeta describes the official eBird hotspot a location was matched to.
type HotspotMeta struct {
	LocID               string  `json:"locId"`
	Name                string  `json:"name"`
	NumSpeciesAllTime   int     `json:"numSpeciesAllTime"`
	LatestObsDate       string  `json:"latestObsDate,omitempty"`
	DistanceToHotspotKm float64 `json:"distanceToHotspotKm"`
	ExactCoordMatch     bool    `json:"exactCoordMatch"`
}

// Location is a deduplicated observation site keyed by truncated coordinates.
type Location struct {
	CoordKey string  `json:"coordKey"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	LocID    string  `json:"locId"`
	LocName  string  `json:"locName"`

	// Further eBird location ids/names that collapsed onto the same
	// coordinate key. The first-seen id stays primary.
	AltLocIDs   []string `json:"altLocIds,omitempty"`
	AltLocNames []string `json:"altLocNames,omitempty"`

	// Indexes into the enriched sightings slice this location aggregates.
	SightingIndexes  []int    `json:"sightingIndexes"`
	Species          []string `json:"species"`
	ObservationDates []string `json:"observationDates,omitempty"`

	IsHotspot bool         `json:"isHotspot"`
	Hotspot   *HotspotMeta `json:"hotspot,omitempty"`
}

// DisplayName returns the best available name for the location.
// Priority: hotspot name > locName > coordKey.
func (l *Location) DisplayName() string {
	if l.Hotspot != nil && l.Hotspot.Name != "" {
		return l.Hotspot.Name
	}
	if l.LocName != "" {
		return l.LocName
	}
	return l.CoordKey
}

// SightingCount returns the number of sightings aggregated at this location.
func (l *Location) SightingCount() int {
	return len(l.SightingIndexes)
}

// ClusterStatistics summarizes the sightings inside a cluster.
type ClusterStatistics struct {
	LocationCount         int      `json:"locationCount"`
	SightingCount         int      `json:"sightingCount"`
	SpeciesDiversity      int      `json:"speciesDiversity"`
	SpeciesCodes          []string `json:"speciesCodes"`
	HotspotCount          int      `json:"hotspotCount"`
	ClusterRadiusKm       float64  `json:"clusterRadiusKm"`
	MostRecentObservation string   `json:"mostRecentObservation,omitempty"`
}

// ClusterAccessibility captures how reachable and trustworthy a cluster is.
type ClusterAccessibility struct {
	HasHotspot         bool     `json:"hasHotspot"`
	AvgTravelTimeHours *float64 `json:"avgTravelTimeHours,omitempty"`
	CoordinateQuality  string   `json:"coordinateQuality"`
}

// HotspotCluster is a group of nearby locations treated as one trip stop.
type HotspotCluster struct {
	ClusterID     string               `json:"clusterId"`
	ClusterName   string               `json:"clusterName"`
	CenterLat     float64              `json:"centerLat"`
	CenterLng     float64              `json:"centerLng"`
	Locations     []Location           `json:"locations"`
	Statistics    ClusterStatistics    `json:"statistics"`
	Accessibility ClusterAccessibility `json:"accessibility"`
}

// LLMEvaluation is the habitat assessment returned by the language model.
type LLMEvaluation struct {
	HabitatScore  float64 `json:"habitatScore"`
	Reasoning     string  `json:"reasoning,omitempty"`
	BestTimeOfDay string  `json:"bestTimeOfDay,omitempty"`
	Tips          string  `json:"tips,omitempty"`
}

// ScoredCluster is a HotspotCluster with scoring attached.
type ScoredCluster struct {
	HotspotCluster

	BaseScore          float64        `json:"baseScore"`
	DiversityScore     float64        `json:"diversityScore"`
	RecencyScore       float64        `json:"recencyScore"`
	HotspotScore       float64        `json:"hotspotScore"`
	AccessibilityScore float64        `json:"accessibilityScore"`
	FinalScore         float64        `json:"finalScore"`
	ScoringMethod      string         `json:"scoringMethod"`
	LLMEvaluation      *LLMEvaluation `json:"llmEvaluation,omitempty"`
}

// RouteSegment is one leg of the optimized route. LocationScore and
// SpeciesDiversity describe the destination; both stay zero on the
// closing leg back to the start point.
type RouteSegment struct {
	SegmentNumber           int     `json:"segmentNumber"`
	FromName                string  `json:"fromName"`
	ToName                  string  `json:"toName"`
	FromLat                 float64 `json:"fromLat"`
	FromLng                 float64 `json:"fromLng"`
	ToLat                   float64 `json:"toLat"`
	ToLng                   float64 `json:"toLng"`
	DistanceKm              float64 `json:"distanceKm"`
	EstimatedDriveTimeHours float64 `json:"estimatedDriveTimeHours"`
	CumulativeDistanceKm    float64 `json:"cumulativeDistanceKm"`
	LocationScore           float64 `json:"locationScore,omitempty"`
	SpeciesDiversity        int     `json:"speciesDiversity,omitempty"`
}

// Route is the ordered visit plan over the selected clusters.
type Route struct {
	Clusters           []ScoredCluster `json:"clusters"`
	Segments           []RouteSegment  `json:"segments"`
	TotalDistanceKm    float64         `json:"totalDistanceKm"`
	OptimizationMethod string          `json:"optimizationMethod"`
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DateRange is an inclusive observation date window ("YYYY-MM-DD").
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Constraints carries the trip parameters for one planning request.
// Zero values mean "not provided"; the pipeline fills in defaults before
// the first stage runs.
type Constraints struct {
	StartLocation         *GeoPoint  `json:"startLocation,omitempty"`
	RegionCode            string     `json:"regionCode,omitempty"`
	DaysBack              int        `json:"daysBack,omitempty"`
	MaxDailyDistanceKm    float64    `json:"maxDailyDistanceKm,omitempty"`
	MaxTravelRadiusKm     float64    `json:"maxTravelRadiusKm,omitempty"`
	DateRange             *DateRange `json:"dateRange,omitempty"`
	MinObservationQuality string     `json:"minObservationQuality,omitempty"`
	MaxLocationsPerDay    int        `json:"maxLocationsPerDay,omitempty"`
	MinLocationScore      float64    `json:"minLocationScore,omitempty"`
	TripDurationDays      int        `json:"tripDurationDays,omitempty"`
}

// HasStart reports whether a usable start location is present.
func (c *Constraints) HasStart() bool {
	return c.StartLocation != nil
}
