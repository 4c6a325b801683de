package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/akolk/loki-nexus2/logging"
)

type ProviderConfig struct {
	Type    string `toml:"type"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key,omitempty"`
}

type DataConfig struct {
	// QueryStore is the sqlite file backing the query engine. Empty means in-memory.
	QueryStore   string `toml:"query_store"`
	DataRoot     string `toml:"data_root"`
	DefaultLimit int    `toml:"default_limit"`
	SeedSample   bool   `toml:"seed_sample"`
}

type WorkspaceConfig struct {
	Root string `toml:"root"`
}

type AgentConfig struct {
	HistoryWindow     int    `toml:"history_window"`
	MaxSteps          int    `toml:"max_steps"`
	MaxExecutionSteps uint64 `toml:"max_execution_steps"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

type SchedulerConfig struct {
	RedisURL        string `toml:"redis_url"`
	LeaseTTLSeconds int    `toml:"lease_ttl_seconds"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

type Config struct {
	DataDirectory string          `toml:"data_directory"`
	Provider      ProviderConfig  `toml:"provider"`
	Data          DataConfig      `toml:"data"`
	Workspace     WorkspaceConfig `toml:"workspace"`
	Agent         AgentConfig     `toml:"agent"`
	Database      DatabaseConfig  `toml:"database"`
	Scheduler     SchedulerConfig `toml:"scheduler"`
	Metrics       MetricsConfig   `toml:"metrics"`
	Log           logging.Config  `toml:"log"`
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// DataRoot is the parent of the per-caller data directories.
func (c *Config) DataRoot() string {
	if c.Data.DataRoot == "" {
		return filepath.Join(c.DataDir(), "data")
	}
	return ExpandPath(c.Data.DataRoot)
}

func (c *Config) WorkspaceRoot() string {
	if c.Workspace.Root == "" {
		return filepath.Join(c.DataDir(), "workspace")
	}
	return ExpandPath(c.Workspace.Root)
}

// ModelIdentifier is recorded in provenance metadata, e.g. "openai:gpt-4o".
func (c *Config) ModelIdentifier() string {
	return c.Provider.Type + ":" + c.Provider.Model
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LOKI_DATA_DIR"); v != "" {
		c.DataDirectory = v
	}
	if v := os.Getenv("LOKI_PROVIDER"); v != "" {
		c.Provider.Type = v
	}
	if v := os.Getenv("LOKI_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("LOKI_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = apiKeyFromEnv(c.Provider.Type)
	}
	if v := os.Getenv("LOKI_QUERY_STORE"); v != "" {
		c.Data.QueryStore = v
	}
	if v := os.Getenv("LOKI_WORKSPACE"); v != "" {
		c.Workspace.Root = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("LOKI_REDIS_URL"); v != "" {
		c.Scheduler.RedisURL = v
	}
	if v := os.Getenv("LOKI_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
	if v := os.Getenv("LOKI_HISTORY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Agent.HistoryWindow = n
		}
	}
	if v := os.Getenv("LOKI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOKI_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if CheckDebug() {
		c.Log.Level = "debug"
	}
}

func apiKeyFromEnv(providerType string) string {
	if v := os.Getenv("LOKI_API_KEY"); v != "" {
		return v
	}
	switch providerType {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	}
	return ""
}

func CheckDebug() bool {
	debug := os.Getenv("LOKI_DEBUG")
	return debug == "true" || debug == "1"
}

// Load builds the configuration from defaults, .env, the settings file and
// the environment, in that order. An empty path uses GetSettingsFilePath.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("LOKI_CONFIG")
	}
	if path == "" {
		path = GetSettingsFilePath()
	}

	if FileExists(path) {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := EnsureDir(cfg.DataDir()); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// Validate reports settings that cannot work at all.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider.Type) {
	case "ollama", "openai", "anthropic", "openrouter":
	default:
		return fmt.Errorf("unknown provider type: %q", c.Provider.Type)
	}
	if c.DataDirectory == "" {
		return fmt.Errorf("data_directory cannot be empty")
	}
	if c.Agent.HistoryWindow < 0 {
		return fmt.Errorf("agent.history_window must not be negative")
	}
	return nil
}
