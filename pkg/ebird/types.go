package ebird

// Wire DTOs for the eBird API v2. Field names mirror the JSON payloads
// exactly; do not rename.

// Observation is one record from the /data/obs endpoints.
//
// obsValid and obsReviewed are pointers because eBird omits them on most
// records: an absent obsValid means the record has not been flagged and
// counts as valid, an absent obsReviewed means it has not been through
// review. Use Valid()/Reviewed() instead of reading the pointers.
type Observation struct {
	SpeciesCode     string   `json:"speciesCode"`
	ComName         string   `json:"comName"`
	SciName         string   `json:"sciName"`
	LocID           string   `json:"locId"`
	LocName         string   `json:"locName"`
	ObsDt           string   `json:"obsDt"`
	HowMany         *int     `json:"howMany,omitempty"`
	Lat             *float64 `json:"lat,omitempty"`
	Lng             *float64 `json:"lng,omitempty"`
	ObsValid        *bool    `json:"obsValid,omitempty"`
	ObsReviewed     *bool    `json:"obsReviewed,omitempty"`
	LocationPrivate bool     `json:"locationPrivate,omitempty"`
}

// Valid reports whether the observation counts as valid. Records without
// the flag are valid-unless-flagged.
func (o *Observation) Valid() bool {
	return o.ObsValid == nil || *o.ObsValid
}

// Reviewed reports whether the observation passed regional review.
func (o *Observation) Reviewed() bool {
	return o.ObsReviewed != nil && *o.ObsReviewed
}

// Hotspot is one record from the /ref/hotspot endpoints (fmt=json).
type Hotspot struct {
	LocID             string  `json:"locId"`
	LocName           string  `json:"locName"`
	CountryCode       string  `json:"countryCode"`
	Subnational1Code  string  `json:"subnational1Code"`
	Subnational2Code  string  `json:"subnational2Code,omitempty"`
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	LatestObsDt       string  `json:"latestObsDt,omitempty"`
	NumSpeciesAllTime int     `json:"numSpeciesAllTime,omitempty"`
}

// TaxonEntry is one record from /ref/taxonomy/ebird (fmt=json).
type TaxonEntry struct {
	SciName       string  `json:"sciName"`
	ComName       string  `json:"comName"`
	SpeciesCode   string  `json:"speciesCode"`
	Category      string  `json:"category"`
	TaxonOrder    float64 `json:"taxonOrder"`
	Order         string  `json:"order,omitempty"`
	FamilyCode    string  `json:"familyCode,omitempty"`
	FamilyComName string  `json:"familyComName,omitempty"`
	FamilySciName string  `json:"familySciName,omitempty"`
}

// CategorySpecies is the taxonomy category for full species entries, as
// opposed to subspecies (issf), hybrids, spuhs and slashes.
const CategorySpecies = "species"
