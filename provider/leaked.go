package provider

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/akolk/loki-nexus2/model"
)

// Some models answer with a tool call written into the text instead of using
// the tool API. These helpers recover such calls.

var xmlToolCallPattern = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)

// ParseLeakedToolCalls finds tool calls in JSON or <tool_call> XML form.
func ParseLeakedToolCalls(content string) []model.ToolCall {
	if calls := ParseLeakedXMLToolCalls(content); len(calls) > 0 {
		return calls
	}
	return ParseLeakedJSONToolCalls(content)
}

// ParseLeakedJSONToolCalls accepts a single object or an array of objects of
// the form {"name": "...", "arguments": {...}}. "parameters" is accepted for
// "arguments".
func ParseLeakedJSONToolCalls(content string) []model.ToolCall {
	trimmed := strings.TrimSpace(StripCodeFence(content))
	if !gjson.Valid(trimmed) {
		return nil
	}

	result := gjson.Parse(trimmed)
	if result.IsArray() {
		var calls []model.ToolCall
		for _, item := range result.Array() {
			if call, ok := toolCallFromJSON(item); ok {
				calls = append(calls, call)
			}
		}
		return calls
	}
	if call, ok := toolCallFromJSON(result); ok {
		return []model.ToolCall{call}
	}
	return nil
}

func ParseLeakedXMLToolCalls(content string) []model.ToolCall {
	var calls []model.ToolCall
	for _, m := range xmlToolCallPattern.FindAllStringSubmatch(content, -1) {
		if !gjson.Valid(m[1]) {
			continue
		}
		if call, ok := toolCallFromJSON(gjson.Parse(m[1])); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func toolCallFromJSON(obj gjson.Result) (model.ToolCall, bool) {
	if !obj.IsObject() {
		return model.ToolCall{}, false
	}
	name := obj.Get("name")
	if name.Type != gjson.String || name.String() == "" {
		return model.ToolCall{}, false
	}

	args := obj.Get("arguments")
	if !args.Exists() {
		args = obj.Get("parameters")
	}
	switch {
	case args.IsObject():
	case args.Type == gjson.String && gjson.Valid(args.String()):
		args = gjson.Parse(args.String())
		if !args.IsObject() {
			return model.ToolCall{}, false
		}
	default:
		return model.ToolCall{}, false
	}

	arguments, _ := args.Value().(map[string]any)
	return model.ToolCall{Name: name.String(), Arguments: arguments}, true
}

// StripCodeFence removes a surrounding ```json ... ``` fence if present.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
