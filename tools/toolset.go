// Package tools assembles the capabilities offered to the model for one run:
// built-in data and file tools, remote bridge tools and skill tools.
package tools

import (
	"context"
	"errors"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/metrics"
)

var ErrUnknownTool = errors.New("unknown tool")

// Tool is one callable capability.
type Tool interface {
	Definition() mcptypes.Tool
	Call(ctx context.Context, args map[string]any) (string, error)
}

// ToolSet is an ordered, name-keyed table of tools. It is not modified after
// assembly.
type ToolSet struct {
	order   []string
	tools   map[string]Tool
	metrics *metrics.Metrics
}

func newToolSet(m *metrics.Metrics) *ToolSet {
	return &ToolSet{tools: make(map[string]Tool), metrics: m}
}

func (s *ToolSet) add(t Tool) {
	name := t.Definition().Name
	if _, exists := s.tools[name]; !exists {
		s.order = append(s.order, name)
	}
	s.tools[name] = t
}

func (s *ToolSet) has(name string) bool {
	_, ok := s.tools[name]
	return ok
}

func (s *ToolSet) Len() int {
	return len(s.order)
}

// Names returns tool names in registration order.
func (s *ToolSet) Names() []string {
	return append([]string(nil), s.order...)
}

func (s *ToolSet) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Definitions returns the tool descriptors handed to the provider.
func (s *ToolSet) Definitions() []mcptypes.Tool {
	defs := make([]mcptypes.Tool, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, s.tools[name].Definition())
	}
	return defs
}

// Call dispatches one tool call by name.
func (s *ToolSet) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := s.tools[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrUnknownTool)
	}
	if args == nil {
		args = map[string]any{}
	}
	out, err := t.Call(ctx, args)
	s.metrics.ToolCalled(name, err)
	return out, err
}

// funcTool adapts a plain function to Tool.
type funcTool struct {
	def mcptypes.Tool
	fn  func(ctx context.Context, args map[string]any) (string, error)
}

func (t funcTool) Definition() mcptypes.Tool { return t.def }

func (t funcTool) Call(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}
