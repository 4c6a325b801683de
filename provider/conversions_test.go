package provider

import (
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akolk/loki-nexus2/model"
)

func TestConvertToOllamaMessages(t *testing.T) {
	tests := []struct {
		name     string
		input    []model.Message
		expected []api.Message
	}{
		{
			name:     "empty slice",
			input:    []model.Message{},
			expected: []api.Message{},
		},
		{
			name: "conversation with tool result",
			input: []model.Message{
				{Role: "system", Content: "be brief"},
				{Role: "user", Content: "Hello", Timestamp: time.Now()},
				{Role: "assistant", Content: "calling data_query"},
				{Role: "tool", Content: `[{"n":1}]`},
			},
			expected: []api.Message{
				{Role: "system", Content: "be brief"},
				{Role: "user", Content: "Hello"},
				{Role: "assistant", Content: "calling data_query"},
				{Role: "tool", Content: `[{"n":1}]`},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertToOllamaMessages(tt.input)
			require.Len(t, result, len(tt.expected))
			for i, msg := range result {
				assert.Equal(t, tt.expected[i].Role, msg.Role, "message %d", i)
				assert.Equal(t, tt.expected[i].Content, msg.Content, "message %d", i)
			}
		})
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	msgs := []model.Message{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "u"},
		{Role: "assistant", Content: "a"},
		{Role: "tool", Content: "t"},
	}

	out := ConvertToOpenAIMessages(msgs)
	require.Len(t, out, 4)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser)
	assert.NotNil(t, out[2].OfAssistant)
	assert.NotNil(t, out[3].OfUser, "tool results travel as user turns")
}

func TestConvertToProviderToolCalls(t *testing.T) {
	assert.Nil(t, ConvertToProviderToolCalls(nil))
	assert.Nil(t, ConvertToProviderToolCalls([]api.ToolCall{}))

	calls := ConvertToProviderToolCalls([]api.ToolCall{
		{Function: api.ToolCallFunction{Name: "data_query", Arguments: map[string]any{"query": "SELECT 1"}}},
		{Function: api.ToolCallFunction{Name: "read_file_content", Arguments: map[string]any{"filepath": "a.txt"}}},
	})
	require.Len(t, calls, 2)
	assert.Equal(t, "data_query", calls[0].Name)
	assert.Equal(t, "SELECT 1", calls[0].Arguments["query"])
	assert.Equal(t, "a.txt", calls[1].Arguments["filepath"])
}

func TestParseToolArguments(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]any
	}{
		{`{"query":"SELECT 1"}`, map[string]any{"query": "SELECT 1"}},
		{`not json`, map[string]any{}},
		{``, map[string]any{}},
		{`null`, map[string]any{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseToolArguments(tt.in), tt.in)
	}
}

func TestConvertToAnthropicMessages(t *testing.T) {
	msgs, system := convertToAnthropicMessages([]model.Message{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
		{Role: "tool", Content: "r"},
	})
	require.Len(t, system, 1)
	assert.Equal(t, "rules", system[0].Text)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
}
