package config

import "github.com/akolk/loki-nexus2/logging"

const (
	DefaultHistoryWindow     = 10
	DefaultMaxSteps          = 8
	DefaultMaxExecutionSteps = 5_000_000
	DefaultQueryLimit        = 100
	DefaultLeaseTTLSeconds   = 60
)

func Default() *Config {
	return &Config{
		DataDirectory: GetDefaultDataDir(),
		Provider: ProviderConfig{
			Type:  "openai",
			Model: "gpt-4o",
		},
		Data: DataConfig{
			DefaultLimit: DefaultQueryLimit,
		},
		Agent: AgentConfig{
			HistoryWindow:     DefaultHistoryWindow,
			MaxSteps:          DefaultMaxSteps,
			MaxExecutionSteps: DefaultMaxExecutionSteps,
		},
		Scheduler: SchedulerConfig{
			LeaseTTLSeconds: DefaultLeaseTTLSeconds,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

func GenerateConfigTemplate() string {
	return `# loki configuration
# Location: ~/.config/loki/settings.toml
# This file uses TOML format: https://toml.io

# Directory for the local database, per-caller data and the workspace
data_directory = "~/.local/share/loki"

[provider]
# ollama, openai, anthropic or openrouter
type = "openai"
model = "gpt-4o"
# base_url = ""
# API keys are read from OPENAI_API_KEY / ANTHROPIC_API_KEY / OPENROUTER_API_KEY

[data]
# sqlite file for the query engine; empty keeps it in memory
query_store = ""
# parent of the per-caller directories substituted for __DATA_DIR__
data_root = ""
default_limit = 100
seed_sample = false

[workspace]
root = ""

[agent]
history_window = 10
max_steps = 8

[database]
# empty uses sqlite in data_directory; postgres://... uses PostgreSQL
url = ""

[scheduler]
# optional redis used to lease job ticks across processes
redis_url = ""
lease_ttl_seconds = 60

[metrics]
listen = ":9090"

[log]
level = "info"
format = "text"
`
}
