package testutil

import (
	"context"
	"fmt"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/model"
	"github.com/akolk/loki-nexus2/ollama"
)

// Turn is one scripted model reply: streamed text, tool calls, or both.
type Turn struct {
	Text      string
	ToolCalls []model.ToolCall
	Err       error
}

// ScriptedProvider replays Turns in order, one per ChatWithTools call, and
// records what it was sent. Running out of turns is an error.
type ScriptedProvider struct {
	model string

	mu       sync.Mutex
	turns    []Turn
	requests [][]model.Message
	tools    [][]mcptypes.Tool
}

func NewScriptedProvider(modelName string, turns ...Turn) *ScriptedProvider {
	return &ScriptedProvider{model: modelName, turns: turns}
}

func (s *ScriptedProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return s.ChatWithTools(ctx, messages, nil, callback)
}

func (s *ScriptedProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.requests = append(s.requests, append([]model.Message(nil), messages...))
	s.tools = append(s.tools, tools)
	if len(s.turns) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("scripted provider: no turns left")
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]
	s.mu.Unlock()

	if turn.Err != nil {
		return turn.Err
	}
	if turn.Text != "" {
		if err := callback(turn.Text, nil); err != nil {
			return err
		}
	}
	if len(turn.ToolCalls) > 0 {
		return callback("", turn.ToolCalls)
	}
	return nil
}

// Requests returns the message lists sent so far, one per call.
func (s *ScriptedProvider) Requests() [][]model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]model.Message(nil), s.requests...)
}

// Tools returns the tool lists offered so far, one per call.
func (s *ScriptedProvider) Tools() [][]mcptypes.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]mcptypes.Tool(nil), s.tools...)
}

func (s *ScriptedProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return []ollama.ModelInfo{{Name: s.model, Provider: "scripted"}}, nil
}

func (s *ScriptedProvider) GetModel() string {
	return s.model
}

func (s *ScriptedProvider) Ping(ctx context.Context) error {
	return nil
}
