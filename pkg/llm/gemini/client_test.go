package gemini

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"birdtrip/pkg/config"
	"birdtrip/pkg/llm"
)

func TestHealthCheck_NotConfigured(t *testing.T) {
	c, err := NewClient(config.LLMConfig{Model: "gemini-2.5-flash-lite"}, "", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() without API key must fail")
	}
	if c.HasProfile(llm.ProfileSpeciesMatch) {
		t.Error("HasProfile() must be false without API key")
	}
}

func TestResolveModel(t *testing.T) {
	c := &Client{
		modelName: "gemini-2.5-flash-lite",
		profiles: map[string]string{
			llm.ProfileItinerary: "gemini-2.5-flash",
		},
	}

	tests := []struct {
		intent    string
		wantModel string
		wantTemp  float32
	}{
		{llm.ProfileItinerary, "gemini-2.5-flash", 0.7},
		{llm.ProfileSpeciesMatch, "gemini-2.5-flash-lite", 0.1},
		{llm.ProfileHabitat, "gemini-2.5-flash-lite", 0.1},
		{"unknown_intent", "gemini-2.5-flash-lite", 0},
	}

	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			model, cfg := c.resolveModel(tt.intent)
			if model != tt.wantModel {
				t.Errorf("resolveModel(%q) model = %q, want %q", tt.intent, model, tt.wantModel)
			}
			if tt.wantTemp == 0 {
				if cfg.Temperature != nil {
					t.Errorf("resolveModel(%q) temperature = %v, want nil", tt.intent, *cfg.Temperature)
				}
			} else if cfg.Temperature == nil || *cfg.Temperature != tt.wantTemp {
				t.Errorf("resolveModel(%q) temperature = %v, want %v", tt.intent, cfg.Temperature, tt.wantTemp)
			}
		})
	}
}

func TestGetResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Hello "},
				{Text: "World"},
			}}},
		},
	}

	text, err := getResponseText(resp)
	if err != nil {
		t.Fatalf("getResponseText: %v", err)
	}
	if text != "Hello World" {
		t.Errorf("getResponseText = %q, want %q", text, "Hello World")
	}

	empty := &genai.GenerateContentResponse{}
	if _, err := getResponseText(empty); err == nil {
		t.Error("getResponseText with no candidates must fail")
	}
}
