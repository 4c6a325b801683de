package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/ollama"
)

// Provider abstracts LLM provider implementations (Ollama, OpenAI,
// OpenRouter, Anthropic) using provider-agnostic types.
//
// The interface lives in the model package so provider implementations and
// their consumers can both import it without a cycle.
type Provider interface {
	// Chat sends messages and streams responses back via callback.
	Chat(ctx context.Context, messages []Message, callback StreamCallback) error

	// ChatWithTools sends messages with available tools and streams responses.
	// Tool calls requested by the model are delivered through the callback.
	ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) error

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// GetModel returns the model name used for API calls.
	GetModel() string

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallback is called for each chunk of streamed response.
type StreamCallback func(chunk string, toolCalls []ToolCall) error
