// Package mcp bridges remote MCP toolsets into a run and converts MCP tool
// descriptors, the common currency of every ToolSet entry, into each
// provider's wire format.
package mcp

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// ConvertMCPToolsToOllama converts MCP tools to Ollama API tool format
func ConvertMCPToolsToOllama(mcpTools []mcptypes.Tool) []api.Tool {
	ollamaTools := make([]api.Tool, 0, len(mcpTools))
	for _, t := range mcpTools {
		ollamaTools = append(ollamaTools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convertInputSchemaToParameters(t.InputSchema),
			},
		})
	}
	return ollamaTools
}

func convertInputSchemaToParameters(inputSchema mcptypes.ToolInputSchema) api.ToolFunctionParameters {
	params := api.ToolFunctionParameters{
		Type:       inputSchema.Type,
		Required:   inputSchema.Required,
		Properties: make(map[string]api.ToolProperty, len(inputSchema.Properties)),
	}
	if params.Type == "" {
		params.Type = "object"
	}
	if inputSchema.Defs != nil {
		params.Defs = inputSchema.Defs
	}

	for name, value := range inputSchema.Properties {
		params.Properties[name] = convertPropertyValue(value)
	}
	return params
}

// convertPropertyValue maps one JSON Schema property onto Ollama's ToolProperty.
// Non-map values (typed structs from remote servers) are round-tripped through JSON.
func convertPropertyValue(propValue any) api.ToolProperty {
	toolProp := api.ToolProperty{}

	propMap, ok := propValue.(map[string]any)
	if !ok {
		bytes, err := json.Marshal(propValue)
		if err != nil {
			return toolProp
		}
		if err := json.Unmarshal(bytes, &propMap); err != nil {
			return toolProp
		}
	}

	// type may be a string or a list of strings
	switch t := propMap["type"].(type) {
	case string:
		toolProp.Type = api.PropertyType{t}
	case []string:
		toolProp.Type = api.PropertyType(t)
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		toolProp.Type = api.PropertyType(types)
	}

	if desc, ok := propMap["description"].(string); ok {
		toolProp.Description = desc
	}
	if enum, ok := propMap["enum"].([]any); ok {
		toolProp.Enum = enum
	}
	if items, ok := propMap["items"]; ok {
		toolProp.Items = items
	}
	if anyOf, ok := propMap["anyOf"].([]any); ok {
		props := make([]api.ToolProperty, 0, len(anyOf))
		for _, item := range anyOf {
			props = append(props, convertPropertyValue(item))
		}
		toolProp.AnyOf = props
	}

	return toolProp
}

// ConvertMCPToolsToOpenAIFormat converts MCP tools to the function-tool format
// shared by OpenAI and OpenRouter. Both sides are JSON Schema, so the input
// schema is copied into FunctionParameters.
func ConvertMCPToolsToOpenAIFormat(mcpTools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		properties := tool.InputSchema.Properties
		if properties == nil {
			properties = map[string]any{}
		}
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		result[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  params,
		})
	}
	return result
}

// ConvertMCPToolsToAnthropicFormat converts MCP tools to Anthropic tool params.
func ConvertMCPToolsToAnthropicFormat(mcpTools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		// Type defaults to "object" when omitted
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{"$defs": tool.InputSchema.Defs}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return result
}
