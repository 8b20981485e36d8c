package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Endpoint describes one RPC endpoint of the fabric, in descending trust
// order. Weight drives both endpoint selection and the read quorum.
type Endpoint struct {
	URL          string `yaml:"url"`
	Priority     int    `yaml:"priority"`
	StallTimeout int    `yaml:"stall_timeout_sec"`
	Weight       int    `yaml:"weight"`
}

// Config holds all application configuration.
type Config struct {
	Chain struct {
		PrivateKey      string     `yaml:"private_key"`
		ChainID         int64      `yaml:"chain_id"`
		Endpoints       []Endpoint `yaml:"endpoints"`
		VaultAddress    string     `yaml:"vault_address"`
		VaultVariant    string     `yaml:"vault_variant"` // v1 | v3 | standalone
		RouterAddress   string     `yaml:"router_address"`
		USDCAddress     string     `yaml:"usdc_address"`
		OracleAddress   string     `yaml:"oracle_address"`
		TreasuryAddress string     `yaml:"treasury_address"`
		CreateGasLimit  uint64     `yaml:"create_gas_limit"`
		Confirmations   uint64     `yaml:"confirmations"`
	} `yaml:"chain"`
	Evidence struct {
		EtherscanAPIKey   string  `yaml:"etherscan_api_key"`
		OpenWeatherAPIKey string  `yaml:"openweather_api_key"`
		GasOracleURL      string  `yaml:"gas_oracle_url"`
		PriceAPIURL       string  `yaml:"price_api_url"`
		WeatherAPIURL     string  `yaml:"weather_api_url"`
		WeatherLat        float64 `yaml:"weather_lat"`
		WeatherLon        float64 `yaml:"weather_lon"`
	} `yaml:"evidence"`
	Platforms struct {
		MoltBook struct {
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
		} `yaml:"moltbook"`
		MoltX struct {
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
		} `yaml:"moltx"`
	} `yaml:"platforms"`
	Agent struct {
		Mode                 string `yaml:"mode"` // all | oracle | moltbook | moltx | social
		SellingEnabled       bool   `yaml:"selling_enabled"`
		StateFile            string `yaml:"state_file"`
		HeartbeatIntervalMin int    `yaml:"heartbeat_interval_min"`
		MaxActivePools       int    `yaml:"max_active_pools"`
		PostCooldownMin      int    `yaml:"post_cooldown_min"`
		DailyPostCap         int    `yaml:"daily_post_cap"`
		DailyCommentCap      int    `yaml:"daily_comment_cap"`
		DailyFollowCap       int    `yaml:"daily_follow_cap"`
		DailyDMCap           int    `yaml:"daily_dm_cap"`
		LikesPerCycle        int    `yaml:"likes_per_cycle"`
		RepliesPerCycle      int    `yaml:"replies_per_cycle"`
		HealthAddr           string `yaml:"health_addr"`
	} `yaml:"agent"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A .env file in the working directory is folded into the
// environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Agent.SellingEnabled = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("AGENT_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("VAULT_ADDRESS"); v != "" {
		cfg.Chain.VaultAddress = v
	}
	if v := os.Getenv("VAULT_VARIANT"); v != "" {
		cfg.Chain.VaultVariant = v
	}
	if v := os.Getenv("ROUTER_ADDRESS"); v != "" {
		cfg.Chain.RouterAddress = v
	}
	if v := os.Getenv("USDC_ADDRESS"); v != "" {
		cfg.Chain.USDCAddress = v
	}
	if v := os.Getenv("ORACLE_ADDRESS"); v != "" {
		cfg.Chain.OracleAddress = v
	}
	if v := os.Getenv("TREASURY_ADDRESS"); v != "" {
		cfg.Chain.TreasuryAddress = v
	}
	if v := os.Getenv("ETHERSCAN_API_KEY"); v != "" {
		cfg.Evidence.EtherscanAPIKey = v
	}
	if v := os.Getenv("OPENWEATHERMAP_API_KEY"); v != "" {
		cfg.Evidence.OpenWeatherAPIKey = v
	}
	if v := os.Getenv("WEATHER_LAT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Evidence.WeatherLat = f
		}
	}
	if v := os.Getenv("WEATHER_LON"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Evidence.WeatherLon = f
		}
	}
	if v := os.Getenv("MOLTBOOK_API_KEY"); v != "" {
		cfg.Platforms.MoltBook.APIKey = v
	}
	if v := os.Getenv("MOLTX_API_KEY"); v != "" {
		cfg.Platforms.MoltX.APIKey = v
	}
	if v := os.Getenv("BOT_MODE"); v != "" {
		cfg.Agent.Mode = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.Agent.StateFile = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("SELLING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Agent.SellingEnabled = b
		}
	}

	// RPC endpoints from env, in descending trust: BASE > ALCHEMY > INFURA.
	// YAML-declared endpoints win if present.
	if len(cfg.Chain.Endpoints) == 0 {
		for i, key := range []string{"BASE_RPC_URL", "ALCHEMY_RPC_URL", "INFURA_RPC_URL"} {
			if v := os.Getenv(key); v != "" {
				cfg.Chain.Endpoints = append(cfg.Chain.Endpoints, Endpoint{
					URL:          v,
					Priority:     i,
					StallTimeout: 15,
					Weight:       3 - i,
				})
			}
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 8453
	}
	if cfg.Chain.VaultVariant == "" {
		cfg.Chain.VaultVariant = "v3"
	}
	if cfg.Chain.CreateGasLimit == 0 {
		cfg.Chain.CreateGasLimit = 550000
	}
	if cfg.Chain.Confirmations == 0 {
		cfg.Chain.Confirmations = 1
	}
	for i := range cfg.Chain.Endpoints {
		if cfg.Chain.Endpoints[i].StallTimeout == 0 {
			cfg.Chain.Endpoints[i].StallTimeout = 15
		}
		if cfg.Chain.Endpoints[i].Weight == 0 {
			cfg.Chain.Endpoints[i].Weight = 1
		}
	}
	if cfg.Evidence.GasOracleURL == "" {
		cfg.Evidence.GasOracleURL = "https://api.etherscan.io/api"
	}
	if cfg.Evidence.PriceAPIURL == "" {
		cfg.Evidence.PriceAPIURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Evidence.WeatherAPIURL == "" {
		cfg.Evidence.WeatherAPIURL = "https://api.openweathermap.org/data/2.5"
	}
	if cfg.Agent.Mode == "" {
		cfg.Agent.Mode = "all"
	}
	if cfg.Agent.StateFile == "" {
		cfg.Agent.StateFile = "data/agent_state.json"
	}
	if cfg.Agent.HeartbeatIntervalMin == 0 {
		cfg.Agent.HeartbeatIntervalMin = 7
	}
	if cfg.Agent.MaxActivePools == 0 {
		cfg.Agent.MaxActivePools = 15
	}
	if cfg.Agent.PostCooldownMin == 0 {
		cfg.Agent.PostCooldownMin = 20
	}
	if cfg.Agent.DailyPostCap == 0 {
		cfg.Agent.DailyPostCap = 8
	}
	if cfg.Agent.DailyCommentCap == 0 {
		cfg.Agent.DailyCommentCap = 30
	}
	if cfg.Agent.DailyFollowCap == 0 {
		cfg.Agent.DailyFollowCap = 10
	}
	if cfg.Agent.DailyDMCap == 0 {
		cfg.Agent.DailyDMCap = 5
	}
	if cfg.Agent.LikesPerCycle == 0 {
		cfg.Agent.LikesPerCycle = 10
	}
	if cfg.Agent.RepliesPerCycle == 0 {
		cfg.Agent.RepliesPerCycle = 5
	}
	if cfg.Agent.HealthAddr == "" {
		cfg.Agent.HealthAddr = ":8090"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/poolwarden.db"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Chain.PrivateKey == "" {
		return fmt.Errorf("chain.private_key (AGENT_PRIVATE_KEY) is required")
	}
	if len(c.Chain.Endpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required (BASE_RPC_URL)")
	}
	if c.Chain.VaultAddress == "" {
		return fmt.Errorf("chain.vault_address is required")
	}
	switch c.Chain.VaultVariant {
	case "v1", "v3", "standalone":
	default:
		return fmt.Errorf("chain.vault_variant must be v1, v3, or standalone, got %q", c.Chain.VaultVariant)
	}
	switch c.Agent.Mode {
	case "all", "oracle", "moltbook", "moltx", "social":
	default:
		return fmt.Errorf("agent.mode must be one of all/oracle/moltbook/moltx/social, got %q", c.Agent.Mode)
	}
	return nil
}
