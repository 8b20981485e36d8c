package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolwarden/internal/chain"
	"poolwarden/internal/config"
	"poolwarden/internal/evidence"
	"poolwarden/internal/health"
	"poolwarden/internal/lifecycle"
	"poolwarden/internal/oracle"
	"poolwarden/internal/recorder"
	"poolwarden/internal/scheduler"
	"poolwarden/internal/social"
	"poolwarden/internal/state"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] poolwarden starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable state document
	store, err := state.Open(cfg.Agent.StateFile)
	if err != nil {
		log.Fatalf("[FATAL] open state file: %v", err)
	}

	// RPC fabric over the configured endpoints
	endpoints := make([]chain.EndpointConfig, 0, len(cfg.Chain.Endpoints))
	for _, e := range cfg.Chain.Endpoints {
		endpoints = append(endpoints, chain.EndpointConfig{
			URL:          e.URL,
			Priority:     e.Priority,
			StallTimeout: time.Duration(e.StallTimeout) * time.Second,
			Weight:       e.Weight,
		})
	}
	fabric, err := chain.Dial(ctx, endpoints)
	if err != nil {
		log.Fatalf("[FATAL] dial RPC endpoints: %v", err)
	}
	defer fabric.Close()

	chainID := big.NewInt(cfg.Chain.ChainID)
	if onchainID, err := fabric.ChainID(ctx); err == nil && onchainID.Cmp(chainID) != 0 {
		log.Fatalf("[FATAL] chain id mismatch: config %s, node %s", chainID, onchainID)
	}

	// Transaction coordinator owns the signing key exclusively
	coord, err := chain.NewCoordinator(fabric, cfg.Chain.PrivateKey, chainID, cfg.Chain.Confirmations)
	if err != nil {
		log.Fatalf("[FATAL] init transaction coordinator: %v", err)
	}
	log.Printf("[INFO] agent wallet: %s", coord.Address().Hex())

	vault, err := chain.NewPoolVault(cfg.Chain.VaultVariant, common.HexToAddress(cfg.Chain.VaultAddress),
		chainID, fabric, coord, cfg.Chain.CreateGasLimit)
	if err != nil {
		log.Fatalf("[FATAL] init vault: %v", err)
	}
	log.Printf("[INFO] vault %s (%s variant)", cfg.Chain.VaultAddress, cfg.Chain.VaultVariant)

	// Evidence sources
	fetcher := evidence.NewFetcher()
	structured := evidence.NewStructuredClient(
		cfg.Evidence.GasOracleURL, cfg.Evidence.EtherscanAPIKey,
		cfg.Evidence.PriceAPIURL,
		cfg.Evidence.WeatherAPIURL, cfg.Evidence.OpenWeatherAPIKey,
		fabric,
	)

	// Event recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Pool lifecycle manager with the dual-auth oracle pipeline
	manager := lifecycle.NewManager(vault, oracle.NewGate(), fetcher, structured, rec)
	manager.WeatherLat = cfg.Evidence.WeatherLat
	manager.WeatherLon = cfg.Evidence.WeatherLon

	// Social platforms per mode
	platforms := buildPlatforms(cfg)
	subsystems := []string{"oracle", "lifecycle"}
	for _, p := range platforms {
		subsystems = append(subsystems, p.Name())
	}
	log.Printf("[INFO] mode %s, driving %d platform(s)", cfg.Agent.Mode, len(platforms))

	// Health endpoint
	hs := health.NewServer(store, subsystems)
	go func() {
		if err := hs.ListenAndServe(cfg.Agent.HealthAddr); err != nil {
			log.Printf("[WARN] health server: %v", err)
		}
	}()

	// Heartbeat
	hb := scheduler.NewHeartbeat(store, manager, platforms, rec, scheduler.Budgets{
		PostCooldown:    time.Duration(cfg.Agent.PostCooldownMin) * time.Minute,
		DailyPostCap:    cfg.Agent.DailyPostCap,
		DailyCommentCap: cfg.Agent.DailyCommentCap,
		DailyFollowCap:  cfg.Agent.DailyFollowCap,
		DailyDMCap:      cfg.Agent.DailyDMCap,
		LikesPerCycle:   cfg.Agent.LikesPerCycle,
		RepliesPerCycle: cfg.Agent.RepliesPerCycle,
	})
	hb.VaultAddress = cfg.Chain.VaultAddress
	hb.RouterAddress = cfg.Chain.RouterAddress
	hb.SellingEnabled = cfg.Agent.SellingEnabled
	if err := hb.Start(ctx, time.Duration(cfg.Agent.HeartbeatIntervalMin)*time.Minute); err != nil {
		log.Fatalf("[FATAL] start heartbeat: %v", err)
	}

	log.Println("[INFO] poolwarden is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	hb.Stop()
	if err := store.Save(); err != nil {
		log.Printf("[WARN] final state save: %v", err)
	}
	log.Println("[INFO] poolwarden stopped")
}

// buildPlatforms selects the social clients the scheduler drives, per mode.
// Oracle mode runs the chain side only.
func buildPlatforms(cfg *config.Config) []social.Platform {
	var platforms []social.Platform
	mode := cfg.Agent.Mode

	useMoltBook := mode == "all" || mode == "social" || mode == "moltbook"
	useMoltX := mode == "all" || mode == "social" || mode == "moltx"

	if useMoltBook && cfg.Platforms.MoltBook.APIKey != "" {
		platforms = append(platforms, social.NewMoltBookClient(cfg.Platforms.MoltBook.BaseURL, cfg.Platforms.MoltBook.APIKey))
	}
	if useMoltX && cfg.Platforms.MoltX.APIKey != "" {
		platforms = append(platforms, social.NewMoltXClient(cfg.Platforms.MoltX.BaseURL, cfg.Platforms.MoltX.APIKey))
	}
	return platforms
}
