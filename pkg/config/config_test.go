package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "birdtrip.yaml")

	tests := []struct {
		name      string
		setup     func(t *testing.T)
		validate  func(*testing.T, *Config)
		checkFile func(*testing.T)
	}{
		{
			name:  "NewFile_Defaults",
			setup: func(t *testing.T) {}, // No file
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Trip.DaysBack != 7 {
					t.Errorf("expected default days_back 7, got %d", cfg.Trip.DaysBack)
				}
				if cfg.Request.MinInterval.Std() != 200*time.Millisecond {
					t.Errorf("expected default min_interval 200ms, got %v", cfg.Request.MinInterval.Std())
				}
				if cfg.Cluster.Radius.Km() != 15 {
					t.Errorf("expected default cluster radius 15km, got %v", cfg.Cluster.Radius.Km())
				}
				if cfg.EBird.BaseURL != "https://api.ebird.org/v2" {
					t.Errorf("unexpected ebird base url %q", cfg.EBird.BaseURL)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "days_back: 7") {
					t.Error("config file missing default values")
				}
				if !strings.Contains(string(content), "# Options: any, valid, reviewed") {
					t.Error("config file missing quality enum comment")
				}
			},
		},
		{
			name: "ExistingFile_Override",
			setup: func(t *testing.T) {
				err := os.WriteFile(configPath, []byte("trip:\n  days_back: 14\nrouter:\n  max_stops: 6\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Trip.DaysBack != 14 {
					t.Errorf("expected days_back 14, got %d", cfg.Trip.DaysBack)
				}
				if cfg.Router.MaxStops != 6 {
					t.Errorf("expected max_stops 6, got %d", cfg.Router.MaxStops)
				}
				// Untouched sections keep defaults.
				if cfg.Scorer.LLMTopN != 10 {
					t.Errorf("expected llm_top_n default 10, got %d", cfg.Scorer.LLMTopN)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "days_back: 14") {
					t.Error("config file should keep custom value")
				}
			},
		},
		{
			name: "Env_Fallbacks",
			setup: func(t *testing.T) {
				t.Setenv("EBIRD_API_TOKEN", "env_ebird_token")
				t.Setenv("GEMINI_API_KEY", "env_gemini_key")
				err := os.WriteFile(configPath, []byte("ebird:\n  token: \"\"\nllm:\n  key: \"\"\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.EBird.Token != "env_ebird_token" {
					t.Errorf("expected ebird token from env, got %q", cfg.EBird.Token)
				}
				if cfg.LLM.Key != "env_gemini_key" {
					t.Errorf("expected llm key from env, got %q", cfg.LLM.Key)
				}
			},
			checkFile: func(t *testing.T) {
				// Env values must not be written back to disk.
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if strings.Contains(string(content), "env_ebird_token") {
					t.Error("environment secret should NOT be persisted to config file")
				}
			},
		},
		{
			name: "ConfigFile_Key_Wins_Over_Env",
			setup: func(t *testing.T) {
				t.Setenv("EBIRD_API_TOKEN", "env_ebird_token")
				err := os.WriteFile(configPath, []byte("ebird:\n  token: file_token\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.EBird.Token != "file_token" {
					t.Errorf("expected file token to win, got %q", cfg.EBird.Token)
				}
			},
			checkFile: func(t *testing.T) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Remove(configPath)
			tt.setup(t)

			cfg, err := Load(configPath)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			tt.validate(t, cfg)
			tt.checkFile(t)
		})
	}
}

func TestGenerateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "birdtrip.yaml")

	if err := GenerateDefault(configPath); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if !strings.Contains(string(content), "# birdtrip Configuration") {
		t.Error("config file missing header comment")
	}

	// Second call must not clobber an existing file.
	if err := os.WriteFile(configPath, []byte("server:\n  address: custom:9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateDefault(configPath); err != nil {
		t.Fatalf("GenerateDefault on existing file failed: %v", err)
	}
	content, _ = os.ReadFile(configPath)
	if !strings.Contains(string(content), "custom:9") {
		t.Error("GenerateDefault overwrote an existing config file")
	}
}
