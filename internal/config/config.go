package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the callisto platform.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Server  Server        `yaml:"server"`
	Alpaca  Alpaca        `yaml:"alpaca"`
	Logging Logging       `yaml:"logging"`
	Chart   ChartConfig   `yaml:"chart"`
	History HistoryConfig `yaml:"history"`
	Screen  ScreenConfig  `yaml:"screen"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChartConfig controls the chart client and its range loader.
type ChartConfig struct {
	ServerURL        string `yaml:"server_url"`
	Timeframe        string `yaml:"timeframe"`
	LookbackDays     int    `yaml:"lookback_days"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs"`
}

// HistoryConfig holds parameters for the historical bar downloader.
type HistoryConfig struct {
	Years           int     `yaml:"years"`
	ChunkDays       int     `yaml:"chunk_days"`
	BatchSize       int     `yaml:"batch_size"`
	MaxWorkers      int     `yaml:"max_workers"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	SymbolLimit     int     `yaml:"symbol_limit"`
}

// ScreenConfig controls the watchlist screener.
type ScreenConfig struct {
	Enabled         bool    `yaml:"enabled"`
	IntervalMinutes int     `yaml:"interval_minutes"`
	RSIOversold     float64 `yaml:"rsi_oversold"`
	RSIOverbought   float64 `yaml:"rsi_overbought"`
	NearRangePct    float64 `yaml:"near_range_pct"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills in defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config with every default filled in, for tools that run
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	applyEnvOverrides(cfg)
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "callisto.db"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Chart.ServerURL == "" {
		cfg.Chart.ServerURL = "http://localhost:5000"
	}
	if cfg.Chart.Timeframe == "" {
		cfg.Chart.Timeframe = "1d"
	}
	if cfg.Chart.LookbackDays == 0 {
		cfg.Chart.LookbackDays = 100
	}
	if cfg.Chart.FetchTimeoutSecs == 0 {
		cfg.Chart.FetchTimeoutSecs = 10
	}
	if cfg.History.Years == 0 {
		cfg.History.Years = 5
	}
	if cfg.History.ChunkDays == 0 {
		cfg.History.ChunkDays = 30
	}
	if cfg.History.BatchSize == 0 {
		cfg.History.BatchSize = 50
	}
	if cfg.History.MaxWorkers == 0 {
		cfg.History.MaxWorkers = 4
	}
	if cfg.History.RateLimitPerSec == 0 {
		cfg.History.RateLimitPerSec = 4
	}
	if cfg.Screen.IntervalMinutes == 0 {
		cfg.Screen.IntervalMinutes = 15
	}
	if cfg.Screen.RSIOversold == 0 {
		cfg.Screen.RSIOversold = 30
	}
	if cfg.Screen.RSIOverbought == 0 {
		cfg.Screen.RSIOverbought = 70
	}
	if cfg.Screen.NearRangePct == 0 {
		cfg.Screen.NearRangePct = 2
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("CALLISTO_SERVER_URL"); v != "" {
		cfg.Chart.ServerURL = v
	}

	// Canonical Alpaca env var names win over the ALPACA_* aliases.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
