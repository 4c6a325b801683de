package tools

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/mcp"
)

// remoteTool forwards calls to a tool on the bridge session under its
// original name. The local name may differ after sanitization.
type remoteTool struct {
	session    mcp.Session
	remoteName string
	def        mcptypes.Tool
}

func (t *remoteTool) Definition() mcptypes.Tool { return t.def }

func (t *remoteTool) Call(ctx context.Context, args map[string]any) (string, error) {
	return invokeRemote(ctx, t.session, t.remoteName, args)
}

func invokeRemote(ctx context.Context, session mcp.Session, name string, args map[string]any) (string, error) {
	return session.CallTool(ctx, name, args)
}

// addRemoteTools lists the session's tools and registers them with
// sanitized, collision-free names.
func addRemoteTools(ctx context.Context, set *ToolSet, session mcp.Session) ([]string, error) {
	listed, err := session.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, tool := range listed {
		local := mcp.UniqueToolName(mcp.SanitizeToolName(tool.Name), set.has)
		def := tool
		def.Name = local
		set.add(&remoteTool{session: session, remoteName: tool.Name, def: def})
		added = append(added, local)
	}
	return added, nil
}
