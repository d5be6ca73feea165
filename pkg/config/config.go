package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Request   RequestConfig   `yaml:"request"`
	EBird     EBirdConfig     `yaml:"ebird"`
	LLM       LLMConfig       `yaml:"llm"`
	Trip      TripConfig      `yaml:"trip"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Scorer    ScorerConfig    `yaml:"scorer"`
	Router    RouterConfig    `yaml:"router"`
	Itinerary ItineraryConfig `yaml:"itinerary"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path     string   `yaml:"path"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// RequestConfig holds HTTP request settings shared by all outbound clients.
type RequestConfig struct {
	Retries     int           `yaml:"retries"`
	Timeout     Duration      `yaml:"timeout"`
	MinInterval Duration      `yaml:"min_interval"`
	Backoff     BackoffConfig `yaml:"backoff"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Threshold int      `yaml:"threshold"`
	Cooldown  Duration `yaml:"cooldown"`
}

// EBirdConfig holds eBird API settings.
type EBirdConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"` // API token; falls back to EBIRD_API_TOKEN
}

// LLMConfig holds settings for the Large Language Model providers.
type LLMConfig struct {
	Provider string            `yaml:"provider"` // "gemini", "openai", "none"
	Model    string            `yaml:"model"`    // default model
	Key      string            `yaml:"key"`      // API key; falls back to env
	BaseURL  string            `yaml:"base_url"` // OpenAI-compatible endpoint
	Profiles map[string]string `yaml:"profiles"` // intent -> model
}

// TripConfig holds defaults applied to planning requests that omit a
// constraint. Per-request values always win.
type TripConfig struct {
	DaysBack           int      `yaml:"days_back"`
	MaxDailyDistance   Distance `yaml:"max_daily_distance"`
	MinQuality         string   `yaml:"min_observation_quality"`
	MaxLocationsPerDay int      `yaml:"max_locations_per_day"`
	MinLocationScore   float64  `yaml:"min_location_score"`
	TripDurationDays   int      `yaml:"trip_duration_days"`
	FetchWorkers       int      `yaml:"fetch_workers"`
}

// ClusterConfig holds clustering radii.
type ClusterConfig struct {
	Radius       Distance `yaml:"radius"`
	HotspotMerge Distance `yaml:"hotspot_merge"`
}

// ScorerConfig holds location scoring settings.
type ScorerConfig struct {
	LLMTopN int `yaml:"llm_top_n"`
}

// RouterConfig holds route optimization settings.
type RouterConfig struct {
	AverageSpeedKmh float64 `yaml:"average_speed_kmh"`
	MaxStops        int     `yaml:"max_stops"`
	TwoOptCutover   int     `yaml:"two_opt_cutover"`
}

// ItineraryConfig holds itinerary generation settings.
type ItineraryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:2460",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:     "./data/birdtrip.db",
			CacheTTL: Duration(24 * time.Hour),
		},
		Request: RequestConfig{
			Retries:     3,
			Timeout:     Duration(30 * time.Second),
			MinInterval: Duration(200 * time.Millisecond),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(60 * time.Second),
			},
			Breaker: BreakerConfig{
				Threshold: 5,
				Cooldown:  Duration(60 * time.Second),
			},
		},
		EBird: EBirdConfig{
			BaseURL: "https://api.ebird.org/v2",
			Token:   "",
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash-lite",
			Key:      "",
			BaseURL:  "",
			Profiles: map[string]string{
				"species_match": "gemini-2.5-flash-lite",
				"habitat":       "gemini-2.5-flash-lite",
				"itinerary":     "gemini-2.5-flash",
			},
		},
		Trip: TripConfig{
			DaysBack:           7,
			MaxDailyDistance:   Distance(200 * 1000),
			MinQuality:         "any",
			MaxLocationsPerDay: 8,
			MinLocationScore:   0.3,
			TripDurationDays:   1,
			FetchWorkers:       5,
		},
		Cluster: ClusterConfig{
			Radius:       Distance(15 * 1000),
			HotspotMerge: Distance(500),
		},
		Scorer: ScorerConfig{
			LLMTopN: 10,
		},
		Router: RouterConfig{
			AverageSpeedKmh: 60.0,
			MaxStops:        12,
			TwoOptCutover:   8,
		},
		Itinerary: ItineraryConfig{
			MaxAttempts: 3,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applyEnvFallbacks(cfg)
		return cfg, nil
	}

	// File does not exist, save defaults.
	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}
	applyEnvFallbacks(cfg)
	return cfg, nil
}

// applyEnvFallbacks fills empty credential fields from the environment.
// Values already present in the config file win; nothing is saved back.
func applyEnvFallbacks(cfg *Config) {
	if cfg.EBird.Token == "" {
		if tok := os.Getenv("EBIRD_API_TOKEN"); tok != "" {
			cfg.EBird.Token = tok
		}
	}
	if cfg.LLM.Key == "" {
		switch cfg.LLM.Provider {
		case "openai":
			if key := os.Getenv("OPENAI_API_KEY"); key != "" {
				cfg.LLM.Key = key
			}
		default:
			if key := os.Getenv("GEMINI_API_KEY"); key != "" {
				cfg.LLM.Key = key
			}
		}
	}
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# birdtrip Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles)

`)
	data = append(header, data...)

	// Inject comments for enum fields. Regex keys include indentation so the
	// comments land on the right lines.
	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: gemini, openai, none\n${1}provider:"))

	reQuality := regexp.MustCompile(`(?m)^(\s+)min_observation_quality:`)
	data = reQuality.ReplaceAll(data, []byte("${1}# Options: any, valid, reviewed\n${1}min_observation_quality:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
