package testutil

import (
	"context"
	"sync/atomic"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/model"
	"github.com/akolk/loki-nexus2/ollama"
)

// MockProvider implements model.Provider with overridable function fields.
// Unset fields answer every turn with a code answer that sets an empty
// dataframe result.
type MockProvider struct {
	ChatFunc          func(ctx context.Context, messages []model.Message, callback model.StreamCallback) error
	ChatWithToolsFunc func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error
	ListModelsFunc    func(ctx context.Context) ([]ollama.ModelInfo, error)
	PingFunc          func(ctx context.Context) error

	model string
	calls atomic.Int32
}

func NewMockProvider(modelName string) *MockProvider {
	return &MockProvider{model: modelName}
}

// Calls counts Chat and ChatWithTools invocations.
func (m *MockProvider) Calls() int {
	return int(m.calls.Load())
}

func (m *MockProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	m.calls.Add(1)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages, callback)
	}
	return callback(AnswerJSON("result = []", "Mock answer."), nil)
}

func (m *MockProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	m.calls.Add(1)
	if m.ChatWithToolsFunc != nil {
		return m.ChatWithToolsFunc(ctx, messages, tools, callback)
	}
	return callback(AnswerJSON("result = []", "Mock answer."), nil)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return []ollama.ModelInfo{
		{Name: m.model, Provider: "mock"},
		{Name: "mock-large", Provider: "mock"},
	}, nil
}

func (m *MockProvider) GetModel() string {
	return m.model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}
