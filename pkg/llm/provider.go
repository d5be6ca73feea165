package llm

import (
	"context"
)

// Profile names used across the pipeline. Providers may implement any
// subset; callers check HasProfile before generating.
const (
	ProfileSpeciesMatch = "species_match"
	ProfileHabitat      = "habitat"
	ProfileItinerary    = "itinerary"
)

// Provider defines the interface for interacting with LLM services.
type Provider interface {
	// GenerateText sends a prompt and returns the text response.
	GenerateText(ctx context.Context, name, prompt string) (string, error)

	// HealthCheck verifies that the provider is configured and reachable.
	HealthCheck(ctx context.Context) error

	// HasProfile checks if the provider has a specific profile configured.
	HasProfile(name string) bool
}
