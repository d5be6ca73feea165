package model

import "time"

// ValidationStats summarizes species validation.
type ValidationStats struct {
	TotalInput        int `json:"totalInput"`
	DirectMatches     int `json:"directMatches"`
	FuzzyMatches      int `json:"fuzzyMatches"`
	FailedValidations int `json:"failedValidations"`
	CacheHits         int `json:"cacheHits"`
}

// FetchStats summarizes the sightings fetch.
type FetchStats struct {
	TotalSpecies      int            `json:"totalSpecies"`
	SuccessfulFetches int            `json:"successfulFetches"`
	EmptyResults      int            `json:"emptyResults"`
	APIErrors         int            `json:"apiErrors"`
	SkippedUnknown    int            `json:"skippedUnknown"`
	TotalObservations int            `json:"totalObservations"`
	UniqueLocations   int            `json:"uniqueLocations"`
	MethodCounts      map[string]int `json:"fetchMethodStats"`
}

// FilterStats summarizes constraint enrichment. Counts tally sightings that
// PASS each check; compliance rates are percentages of the total.
type FilterStats struct {
	TotalSightings         int                `json:"totalSightings"`
	ValidGps               int                `json:"validGps"`
	WithinTravelRadius     int                `json:"withinTravelRadius"`
	WithinDateRange        int                `json:"withinDateRange"`
	WithinRegion           int                `json:"withinRegion"`
	QualityCompliant       int                `json:"qualityCompliant"`
	Duplicates             int                `json:"duplicates"`
	DailyDistanceCompliant int                `json:"dailyDistanceCompliant"`
	FullyCompliant         int                `json:"fullyCompliant"`
	ComplianceSummary      map[string]float64 `json:"complianceSummary"`
}

// ClusterStats summarizes hotspot clustering.
type ClusterStats struct {
	InputSightings       int `json:"inputSightings"`
	UniqueLocations      int `json:"uniqueLocations"`
	HotspotsFetched      int `json:"hotspotsFetched"`
	HotspotsMatched      int `json:"hotspotsMatched"`
	HotspotOnlyLocations int `json:"hotspotOnlyLocations"`
	ClusterCount         int `json:"clusterCount"`
	LargestClusterSize   int `json:"largestClusterSize"`
}

// ScoreStats summarizes cluster scoring.
type ScoreStats struct {
	ClustersScored int     `json:"clustersScored"`
	LLMAttempted   int     `json:"llmAttempted"`
	LLMSucceeded   int     `json:"llmSucceeded"`
	LLMFailed      int     `json:"llmFailed"`
	Algorithmic    int     `json:"algorithmic"`
	LLMEnhanced    int     `json:"llmEnhanced"`
	TopScore       float64 `json:"topScore"`
}

// RouteStats summarizes route optimization.
type RouteStats struct {
	CandidateClusters  int     `json:"candidateClusters"`
	SelectedClusters   int     `json:"selectedClusters"`
	Method             string  `json:"method"`
	TotalDistanceKm    float64 `json:"totalDistanceKm"`
	BaselineDistanceKm float64 `json:"baselineDistanceKm"`
	ImprovementPasses  int     `json:"improvementPasses"`
}

// ItineraryStats summarizes itinerary rendering.
type ItineraryStats struct {
	Method             string  `json:"method"` // llmEnhanced, templateFallback, or none
	LLMAttempts        int     `json:"llmAttempts"`
	Sections           int     `json:"contentSections"`
	TotalSpecies       int     `json:"totalSpecies"`
	TotalLocations     int     `json:"totalLocations"`
	EstimatedTripHours float64 `json:"estimatedTripDurationHours"`
}

// StageTiming records wall clock per pipeline stage.
type StageTiming struct {
	Stage      string  `json:"stage"`
	DurationMs float64 `json:"durationMs"`
	Warnings   int     `json:"warnings"`
}

// PipelineStats aggregates the per-stage stats blocks for one run.
type PipelineStats struct {
	Validation ValidationStats `json:"validation"`
	Fetch      FetchStats      `json:"fetch"`
	Filter     FilterStats     `json:"filter"`
	Cluster    ClusterStats    `json:"cluster"`
	Score      ScoreStats      `json:"score"`
	Route      RouteStats      `json:"route"`
	Itinerary  ItineraryStats  `json:"itinerary"`
	Timings    []StageTiming   `json:"timings"`
}

// TripPlan is the assembled pipeline output for one planning request.
type TripPlan struct {
	Success           bool               `json:"success"`
	RunID             string             `json:"runId"`
	Species           []TargetSpecies    `json:"species"`
	Sightings         []EnrichedSighting `json:"sightings"`
	Clusters          []ScoredCluster    `json:"clusters"`
	Route             *Route             `json:"route,omitempty"`
	ItineraryMarkdown string             `json:"itinerary"`
	Warnings          []string           `json:"warnings"`
	Stats             PipelineStats      `json:"stats"`
	GeneratedAt       time.Time          `json:"generatedAt"`
}
