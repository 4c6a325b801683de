package provider

import (
	"context"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/mcp"
	"github.com/akolk/loki-nexus2/model"
	"github.com/akolk/loki-nexus2/ollama"
)

// OpenRouterProvider talks to OpenRouter through the OpenAI SDK; the API is
// OpenAI-compatible.
type OpenRouterProvider struct {
	client openai.Client
	model  string
	log    *logging.Logger
}

func NewOpenRouterProvider(cfg Config) (*OpenRouterProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "meta-llama/llama-3.3-70b-instruct"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &OpenRouterProvider{
		client: client,
		model:  modelName,
		log:    cfg.logger(),
	}, nil
}

// shouldSkipToolInstructions reports models that understand tools natively
// and start leaking XML when given explicit instructions.
func shouldSkipToolInstructions(modelName string) bool {
	modelLower := strings.ToLower(modelName)
	for _, marker := range []string{"qwen"} {
		if strings.Contains(modelLower, marker) {
			return true
		}
	}
	return false
}

// OpenRouter requires tool names matching ^[a-zA-Z0-9_-]{1,64}$. ToolSet names
// are already sanitized, but remote names may carry dots from a server prefix.
func convertToolNamesForOpenRouter(tools []mcptypes.Tool) []mcptypes.Tool {
	converted := make([]mcptypes.Tool, len(tools))
	for i, tool := range tools {
		converted[i] = tool
		converted[i].Name = strings.ReplaceAll(tool.Name, ".", "__")
	}
	return converted
}

func convertToolNameFromOpenRouter(toolName string) string {
	return strings.ReplaceAll(toolName, "__", ".")
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

func (p *OpenRouterProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	skip := shouldSkipToolInstructions(p.model)
	if len(tools) > 0 {
		p.log.Debug("tool instructions", "model", p.model, "skipped", skip)
		if !skip {
			messages = withToolInstructions(messages, buildToolInstructions(tools))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
	}

	var rename func(string) string
	if len(tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToOpenAIFormat(convertToolNamesForOpenRouter(tools))
		rename = renamer(tools, convertToolNameFromOpenRouter)
	}

	if err := streamChatCompletion(ctx, p.client, params, callback, rename); err != nil {
		return fmt.Errorf("OpenRouter streaming error: %w", err)
	}
	return nil
}

// renamer reverses a wire-name conversion, but only for names that map back to
// an offered tool. Sanitized names may legitimately contain "__".
func renamer(tools []mcptypes.Tool, reverse func(string) string) func(string) string {
	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t.Name] = true
	}
	return func(name string) string {
		if known[name] {
			return name
		}
		if r := reverse(name); known[r] {
			return r
		}
		return name
	}
}

func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenRouter models: %w", err)
	}

	result := make([]ollama.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, ollama.ModelInfo{
			Name:     m.ID,
			Provider: string(ProviderTypeOpenRouter),
		})
	}
	return result, nil
}

// GetModel returns the full model name with vendor prefix,
// e.g. "qwen/qwen3-coder:free".
func (p *OpenRouterProvider) GetModel() string {
	return p.model
}

func (p *OpenRouterProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenRouter ping failed: %w", err)
	}
	return nil
}
