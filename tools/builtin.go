package tools

import (
	"context"
	"encoding/json"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/query"
)

const (
	DataQueryTool = "data_query"
	ReadFileTool  = "read_file_content"
	WriteFileTool = "write_file_content"
)

// Querier runs caller-scoped SQL.
type Querier interface {
	Execute(ctx context.Context, caller, sqlText string) []query.Row
}

// FileAccess renders guarded workspace reads and writes as tool text.
type FileAccess interface {
	ReadText(p string) string
	WriteText(p, content string) string
}

func dataQueryTool(engine Querier, caller string) Tool {
	def := mcptypes.NewTool(DataQueryTool,
		mcptypes.WithDescription("Run a SQL query against the analytical database and return the rows as JSON. "+
			"Use __DATA_DIR__ to refer to your private data directory."),
		mcptypes.WithString("query", mcptypes.Required(), mcptypes.Description("SQL statement to run")),
	)
	return funcTool{def: def, fn: func(ctx context.Context, args map[string]any) (string, error) {
		sqlText, err := stringArg(args, "query")
		if err != nil {
			return "", err
		}
		rows := engine.Execute(ctx, caller, sqlText)
		b, err := json.Marshal(rows)
		if err != nil {
			return "", fmt.Errorf("failed to encode query result: %w", err)
		}
		return string(b), nil
	}}
}

func readFileTool(files FileAccess) Tool {
	def := mcptypes.NewTool(ReadFileTool,
		mcptypes.WithDescription("Read a text file from the workspace."),
		mcptypes.WithString("filepath", mcptypes.Required(), mcptypes.Description("Path relative to the workspace root")),
	)
	return funcTool{def: def, fn: func(_ context.Context, args map[string]any) (string, error) {
		p, err := stringArg(args, "filepath")
		if err != nil {
			return "", err
		}
		return files.ReadText(p), nil
	}}
}

func writeFileTool(files FileAccess) Tool {
	def := mcptypes.NewTool(WriteFileTool,
		mcptypes.WithDescription("Write a text file into the workspace, replacing any existing content."),
		mcptypes.WithString("filepath", mcptypes.Required(), mcptypes.Description("Path relative to the workspace root")),
		mcptypes.WithString("content", mcptypes.Required(), mcptypes.Description("Full file content")),
	)
	return funcTool{def: def, fn: func(_ context.Context, args map[string]any) (string, error) {
		p, err := stringArg(args, "filepath")
		if err != nil {
			return "", err
		}
		content, err := stringArg(args, "content")
		if err != nil {
			return "", err
		}
		return files.WriteText(p, content), nil
	}}
}
