package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"birdtrip/internal/api"
	"birdtrip/pkg/cluster"
	"birdtrip/pkg/config"
	"birdtrip/pkg/db"
	"birdtrip/pkg/db/maintenance"
	"birdtrip/pkg/ebird"
	"birdtrip/pkg/itinerary"
	"birdtrip/pkg/llm"
	"birdtrip/pkg/llm/failover"
	"birdtrip/pkg/llm/gemini"
	"birdtrip/pkg/llm/openai"
	"birdtrip/pkg/llm/prompts"
	"birdtrip/pkg/logging"
	"birdtrip/pkg/pipeline"
	"birdtrip/pkg/probe"
	"birdtrip/pkg/request"
	"birdtrip/pkg/route"
	"birdtrip/pkg/scorer"
	"birdtrip/pkg/sightings"
	"birdtrip/pkg/species"
	"birdtrip/pkg/store"
	"birdtrip/pkg/tracker"
	"birdtrip/pkg/version"
)

var (
	configPath = flag.String("config", "configs/birdtrip.yaml", "Path to config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A missing .env is fine; credentials can also come from the real
	// environment or the config file.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("BirdTrip started", "version", version.Version)

	dbConn, st, err := initDB(cfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	maintenance.Run(ctx, st, dbConn, cfg.DB.CacheTTL.Std())

	tr := tracker.New()
	rc := request.New(st, tr, request.ClientConfig{
		Retries:          cfg.Request.Retries,
		Timeout:          cfg.Request.Timeout.Std(),
		MinInterval:      cfg.Request.MinInterval.Std(),
		BaseDelay:        cfg.Request.Backoff.BaseDelay.Std(),
		MaxDelay:         cfg.Request.Backoff.MaxDelay.Std(),
		BreakerThreshold: cfg.Request.Breaker.Threshold,
		BreakerCooldown:  cfg.Request.Breaker.Cooldown.Std(),
	})

	// Every eBird v2 endpoint needs a token, so this is the one hard
	// dependency of the whole service.
	ebirdClient, err := ebird.New(cfg.EBird, rc, tr)
	if err != nil {
		return fmt.Errorf("failed to initialize eBird client: %w", err)
	}

	llmChain, llmNames := initLLM(cfg, rc, tr)

	pm, err := prompts.New()
	if err != nil {
		return fmt.Errorf("failed to initialize prompt manager: %w", err)
	}

	validator := species.NewValidator(ebirdClient, llmChain, pm, species.NewCache())
	runner := pipeline.NewRunner(pipeline.Deps{
		Validator: validator,
		Fetcher:   sightings.NewFetcher(ebirdClient, cfg.Trip.FetchWorkers),
		Filter:    sightings.NewFilter(cfg.Router.AverageSpeedKmh),
		Clusterer: cluster.New(ebirdClient, cfg.Cluster.Radius.Km(), cfg.Cluster.HotspotMerge.Km()),
		Scorer:    scorer.New(llmChain, pm, cfg.Scorer.LLMTopN),
		Optimizer: route.New(cfg.Router.AverageSpeedKmh, cfg.Router.MaxStops, cfg.Router.TwoOptCutover),
		Renderer:  itinerary.New(llmChain, pm, cfg.Itinerary.MaxAttempts),
	}, cfg.Trip)

	// Startup Probes
	results := probe.Run(ctx, probe.Checks(ebirdClient, llmChain))
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, cfg, runner, dbConn, st, tr, validator, llmChain != nil, llmNames)
}

func initDB(cfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// initLLM builds the configured provider behind the failover wrapper.
// A nil chain means no provider is usable; every pipeline stage treats
// that as "skip the LLM tier", so planning still works.
func initLLM(cfg *config.Config, rc *request.Client, tr *tracker.Tracker) (llm.Provider, []string) {
	if cfg.LLM.Provider == "none" {
		slog.Info("LLM disabled in config, algorithmic paths only")
		return nil, nil
	}
	if cfg.LLM.Key == "" {
		slog.Warn("No LLM API key configured, planning runs without LLM refinement")
		return nil, nil
	}

	var (
		prov llm.Provider
		name string
		err  error
	)
	switch cfg.LLM.Provider {
	case "openai":
		prov, err = openai.NewClient(cfg.LLM, rc)
		name = "openai"
	case "gemini", "":
		// The chain owns the prompt log, so the client gets no path of
		// its own; entries would otherwise be written twice.
		prov, err = gemini.NewClient(cfg.LLM, "", tr)
		name = "gemini"
	default:
		slog.Warn("Unknown LLM provider, planning runs without LLM refinement", "provider", cfg.LLM.Provider)
		return nil, nil
	}
	if err != nil {
		slog.Warn("LLM provider unavailable, planning runs without LLM refinement", "provider", name, "error", err)
		return nil, nil
	}

	logPath := filepath.Join(filepath.Dir(cfg.Log.Server.Path), "llm.log")
	chain, err := failover.New([]llm.Provider{prov}, []string{name}, logPath, tr)
	if err != nil {
		slog.Warn("LLM failover chain unavailable", "error", err)
		return nil, nil
	}
	return chain, []string{name}
}

func runServer(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, dbConn *db.DB, st store.Store, tr *tracker.Tracker, validator *species.Validator, llmPresent bool, llmNames []string) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewTripHandler(runner, st),
		api.NewHealthHandler(true, llmPresent, dbConn),
		api.NewStatsHandler(tr, validator.CacheSize, llmNames),
		shutdownFunc,
	)

	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
