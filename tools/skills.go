package tools

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/skills"
)

const (
	ListSkillsTool   = "list_skills"
	LoadSkillTool    = "load_skill"
	ReadResourceTool = "read_skill_resource"
)

func skillTools(lib *skills.Library) []Tool {
	list := funcTool{
		def: mcptypes.NewTool(ListSkillsTool,
			mcptypes.WithDescription("List available skills as a JSON object of name to description."),
		),
		fn: func(context.Context, map[string]any) (string, error) {
			return lib.List(), nil
		},
	}

	load := funcTool{
		def: mcptypes.NewTool(LoadSkillTool,
			mcptypes.WithDescription("Load a skill's full instructions and its resource list."),
			mcptypes.WithString("skill_name", mcptypes.Required(), mcptypes.Description("Name from list_skills")),
		),
		fn: func(_ context.Context, args map[string]any) (string, error) {
			name, err := stringArg(args, "skill_name")
			if err != nil {
				return "", err
			}
			return lib.Load(name)
		},
	}

	read := funcTool{
		def: mcptypes.NewTool(ReadResourceTool,
			mcptypes.WithDescription("Read a resource file that belongs to a skill."),
			mcptypes.WithString("skill_name", mcptypes.Required(), mcptypes.Description("Name from list_skills")),
			mcptypes.WithString("resource", mcptypes.Required(), mcptypes.Description("Resource path relative to the skill")),
		),
		fn: func(_ context.Context, args map[string]any) (string, error) {
			name, err := stringArg(args, "skill_name")
			if err != nil {
				return "", err
			}
			resource, err := stringArg(args, "resource")
			if err != nil {
				return "", err
			}
			return lib.ReadResource(name, resource)
		},
	}

	return []Tool{list, load, read}
}
