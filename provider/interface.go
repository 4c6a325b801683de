// Package provider implements model.Provider for the supported LLM backends.
//
// Ollama, OpenAI, OpenRouter and Anthropic sit behind the same interface, so
// the agent loop stays provider-agnostic. All conversion between
// model.Message/mcptypes.Tool and the provider SDK types happens here (see
// conversions.go and mcp/tool_converter.go).
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:  provider.ProviderTypeOllama,
//	    Model: "llama3.1",
//	})
//	if err != nil {
//	    // handle error
//	}
//	err = p.ChatWithTools(ctx, messages, tools, callback)
package provider

import "github.com/akolk/loki-nexus2/logging"

// Note: The Provider interface and StreamCallback are defined in the model package
// (model/provider.go) to avoid import cycles. This package implements model.Provider.

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
	Logger  *logging.Logger
}

func (c Config) logger() *logging.Logger {
	if c.Logger == nil {
		return logging.Discard()
	}
	return c.Logger.Named("provider." + string(c.Type))
}
