package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"numsync/codec"
)

// Config is the daemon configuration, loaded from TOML with NUMSYNC_*
// environment overrides applied on top.
type Config struct {
	IndexerRPCURL string `toml:"IndexerRPCURL"`
	IndexerWSURL  string `toml:"IndexerWSURL"`
	DataDir       string `toml:"DataDir"`
	ListenAddress string `toml:"ListenAddress"`

	// SlotScheme selects the packed-slot layout: "fixed-bits" or
	// "fixed-radix". The on-chain encoding differs between deployments and
	// must be validated against live data, so there is no safe default
	// beyond the one observed most often.
	SlotScheme   string `toml:"SlotScheme"`
	SlotBitWidth uint8  `toml:"SlotBitWidth"`

	PollIntervalSeconds int `toml:"PollIntervalSeconds"`
	PageSize            int `toml:"PageSize"`

	Environment string    `toml:"Environment"`
	LogLevel    string    `toml:"LogLevel"`
	Telemetry   Telemetry `toml:"Telemetry"`
}

// Telemetry holds the OTLP exporter knobs.
type Telemetry struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Scheme returns the parsed codec scheme.
func (c *Config) Scheme() (codec.Scheme, error) {
	return codec.ParseScheme(c.SlotScheme)
}

func defaultConfig() *Config {
	return &Config{
		IndexerRPCURL:       "",
		IndexerWSURL:        "",
		DataDir:             "./numsync-data",
		ListenAddress:       "127.0.0.1:8645",
		SlotScheme:          string(codec.SchemeFixedBits),
		SlotBitWidth:        codec.DefaultBitWidth,
		PollIntervalSeconds: 3,
		PageSize:            10,
		Environment:         "local",
		LogLevel:            "info",
	}
}

// Load reads the configuration from path, writing a commented default file
// when none exists, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path, cfg); err != nil {
			return nil, err
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeDefault(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create config dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("config: create default config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: write default config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("NUMSYNC_INDEXER_RPC_URL")); v != "" {
		cfg.IndexerRPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NUMSYNC_INDEXER_WS_URL")); v != "" {
		cfg.IndexerWSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NUMSYNC_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("NUMSYNC_LISTEN_ADDRESS")); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("NUMSYNC_SLOT_SCHEME")); v != "" {
		cfg.SlotScheme = v
	}
	if v := strings.TrimSpace(os.Getenv("NUMSYNC_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("NUMSYNC_POLL_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollIntervalSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("NUMSYNC_PAGE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PageSize = n
		}
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.IndexerRPCURL) == "" {
		return fmt.Errorf("config: IndexerRPCURL required")
	}
	if _, err := codec.ParseScheme(c.SlotScheme); err != nil {
		return err
	}
	if c.SlotBitWidth < 1 || c.SlotBitWidth > 16 {
		return fmt.Errorf("config: SlotBitWidth %d outside [1, 16]", c.SlotBitWidth)
	}
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("config: PollIntervalSeconds must be at least 1")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("config: PageSize %d outside [1, 100]", c.PageSize)
	}
	return nil
}
