package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/model"
)

// buildToolInstructions is the short execution guidance prepended for cloud
// models. Ollama models get tools natively and no extra prompt.
func buildToolInstructions(tools []mcptypes.Tool) string {
	toolNames := make([]string, 0, len(tools))
	for _, tool := range tools {
		toolNames = append(toolNames, tool.Name)
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(toolNames, ", "),
		"",
		"When answering requires data or files you do not have yet:",
		"1. Pick the tool that provides it",
		"2. Call it IMMEDIATELY with complete arguments",
		"3. Use the result to continue; call further tools only if still needed",
		"",
		"DO NOT:",
		"- List the available tools to the user",
		"- Describe a tool call instead of making it",
		"",
		"Example:",
		"User: 'How many rows are in test_data?'",
		"You: [call data_query(query='SELECT count(*) FROM test_data')]",
	}, "\n")
}

func withToolInstructions(messages []model.Message, instructions string) []model.Message {
	out := make([]model.Message, 0, len(messages)+1)
	out = append(out, model.Message{Role: "system", Content: instructions})
	return append(out, messages...)
}
