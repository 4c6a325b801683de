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

// OpenAIProvider implements model.Provider with the official OpenAI Go SDK.
type OpenAIProvider struct {
	client openai.Client
	model  string
	log    *logging.Logger
}

// NewOpenAIProvider requires an API key; Model defaults to gpt-4o-mini.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &OpenAIProvider{
		client: client,
		model:  modelName,
		log:    cfg.logger(),
	}, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if len(tools) > 0 {
		messages = withToolInstructions(messages, buildToolInstructions(tools))
	}
	p.log.Debug("chat request", "model", p.model, "messages", len(messages), "tools", len(tools))

	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
	}
	if len(tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToOpenAIFormat(tools)
	}

	if err := streamChatCompletion(ctx, p.client, params, callback, nil); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}
	return nil
}

// streamChatCompletion runs a streaming completion against any
// OpenAI-compatible endpoint. Tool calls are delivered as they finish; if the
// API reported none, the accumulated text is scanned for leaked calls.
// rename maps wire tool names back to ToolSet names and may be nil.
func streamChatCompletion(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams, callback model.StreamCallback, rename func(string) string) error {
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	acc := openai.ChatCompletionAccumulator{}

	var apiToolCalls bool
	var content strings.Builder

	emit := func(chunk string, calls []model.ToolCall) error {
		if callback == nil {
			return nil
		}
		if rename != nil {
			for i := range calls {
				calls[i].Name = rename(calls[i].Name)
			}
		}
		return callback(chunk, calls)
	}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			apiToolCalls = true
			call := model.ToolCall{Name: tool.Name, Arguments: ParseToolArguments(tool.Arguments)}
			if err := emit("", []model.ToolCall{call}); err != nil {
				return err
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			delta := chunk.Choices[0].Delta.Content
			content.WriteString(delta)
			if err := emit(delta, nil); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return err
	}

	if !apiToolCalls {
		if leaked := ParseLeakedToolCalls(content.String()); len(leaked) > 0 {
			return emit("", leaked)
		}
	}
	return nil
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenAI models: %w", err)
	}

	result := make([]ollama.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, ollama.ModelInfo{
			Name:     m.ID,
			Provider: string(ProviderTypeOpenAI),
		})
	}
	return result, nil
}

func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// Ping lists models; OpenAI has no dedicated health endpoint.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}
