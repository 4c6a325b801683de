package provider

import (
	"fmt"

	"github.com/akolk/loki-nexus2/config"
	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/model"
)

// NewProvider creates a provider based on configuration.
//
// Returns an error if the provider type is unknown or the provider-specific
// constructor fails (invalid URL, missing API key).
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg)
	case ProviderTypeOpenRouter:
		return NewOpenRouterProvider(cfg)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider ID to a ProviderType.
// Unknown IDs are passed through and rejected by NewProvider.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama", "":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic", "claude":
		return ProviderTypeAnthropic
	default:
		return ProviderType(id)
	}
}

// FromConfig builds the provider described by the [provider] settings section.
func FromConfig(pc config.ProviderConfig, log *logging.Logger) (model.Provider, error) {
	p, err := NewProvider(Config{
		Type:    MapProviderIDToType(pc.Type),
		BaseURL: pc.BaseURL,
		Model:   pc.Model,
		APIKey:  pc.APIKey,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", pc.Type, err)
	}
	return p, nil
}
