package testutil

import (
	"encoding/json"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/model"
)

// TestMessages returns a sample conversation for testing
func TestMessages() []model.Message {
	return []model.Message{
		{Role: "user", Content: "Which tables are available?", Timestamp: time.Now()},
		{Role: "assistant", Content: "There is a test_data table.", Timestamp: time.Now()},
		{Role: "user", Content: "Show me its points on the map.", Timestamp: time.Now()},
	}
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.Message {
	return []model.Message{
		{Role: "user", Content: content, Timestamp: time.Now()},
	}
}

// TestMCPTools returns tool descriptors shaped like the built-in tools.
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		mcptypes.NewTool("data_query",
			mcptypes.WithDescription("Run a SQL query against the data store"),
			mcptypes.WithString("query", mcptypes.Required(), mcptypes.Description("SQL to execute")),
		),
		mcptypes.NewTool("read_file_content",
			mcptypes.WithDescription("Read a text file from the workspace"),
			mcptypes.WithString("filepath", mcptypes.Required()),
		),
	}
}

// AnswerJSON renders a structured answer the way a model would return it.
func AnswerJSON(code, disclaimer string, followups ...string) string {
	if followups == nil {
		followups = []string{}
	}
	b, _ := json.Marshal(map[string]any{
		"code":       code,
		"disclaimer": disclaimer,
		"followup":   followups,
	})
	return string(b)
}
