package pipeline

// Shared store keys. Stages read their named inputs and write exactly
// one output key; the runner checks the key after each stage.
const (
	KeyInputSpecies     = "input.speciesList"
	KeyInputConstraints = "input.constraints"
	KeySpecies          = "species.validated"
	KeySightings        = "sightings.raw"
	KeyEnriched         = "sightings.enriched"
	KeyClusters         = "clusters"
	KeyScored           = "clusters.scored"
	KeyRoute            = "route"
	KeyItinerary        = "itinerary.markdown"
)

// Store is the keyed blackboard for one pipeline run. The pipeline is
// single threaded at stage boundaries, so access needs no locking; a
// canceled run simply drops its store.
type Store struct {
	data map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]any)}
}

// Put stores a value under key, replacing any previous value.
func (s *Store) Put(key string, v any) {
	s.data[key] = v
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Has reports whether key holds a value.
func (s *Store) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}
