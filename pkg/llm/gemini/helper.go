package gemini

import (
	"google.golang.org/genai"

	"birdtrip/pkg/llm"
)

// resolveModel returns the target model name and configuration for the given intent.
func (c *Client) resolveModel(intent string) (string, *genai.GenerateContentConfig) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Identify configured model name
	targetModel := c.modelName // Default

	// Check if intent maps to a profile
	if profileModel, ok := c.profiles[intent]; ok && profileModel != "" {
		targetModel = profileModel
	}

	// Default configuration
	config := &genai.GenerateContentConfig{}

	switch intent {
	case llm.ProfileSpeciesMatch, llm.ProfileHabitat:
		// Matching and scoring want reproducible answers.
		var temp float32 = 0.1
		config.Temperature = &temp
	case llm.ProfileItinerary:
		// Narrative output reads better with some variance.
		var temp float32 = 0.7
		config.Temperature = &temp
	}

	return targetModel, config
}
