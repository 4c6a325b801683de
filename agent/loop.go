package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/model"
	"github.com/akolk/loki-nexus2/tools"
)

// modelLoop sends messages to the provider and runs the tool calls it asks
// for until it replies with text only. It returns that final text.
func (o *Orchestrator) modelLoop(ctx context.Context, log *logging.Logger, messages []model.Message, set *tools.ToolSet) (string, error) {
	defs := set.Definitions()

	for step := 1; step <= o.maxSteps; step++ {
		var (
			text  strings.Builder
			calls []model.ToolCall
		)
		err := o.provider.ChatWithTools(ctx, messages, defs, func(chunk string, toolCalls []model.ToolCall) error {
			text.WriteString(chunk)
			calls = append(calls, toolCalls...)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("model request failed: %w", err)
		}

		if len(calls) == 0 {
			log.Debug("model finished", "step", step, "chars", text.Len())
			return text.String(), nil
		}

		log.Debug("executing tool calls", "step", step, "count", len(calls))
		messages = append(messages, model.Message{
			Role:      "assistant",
			Content:   describeCalls(text.String(), calls),
			Timestamp: time.Now(),
		})
		for _, call := range calls {
			messages = append(messages, model.Message{
				Role:      "tool",
				Content:   o.callTool(ctx, log, set, call),
				Timestamp: time.Now(),
			})
		}
	}

	return "", fmt.Errorf("%w (%d)", ErrMaxSteps, o.maxSteps)
}

// callTool runs one call. Failures, unknown tools included, are reported
// back to the model as text.
func (o *Orchestrator) callTool(ctx context.Context, log *logging.Logger, set *tools.ToolSet, call model.ToolCall) string {
	start := time.Now()
	out, err := set.Call(ctx, call.Name, call.Arguments)
	if err != nil {
		log.WithError(err).Warn("tool call failed", "tool", call.Name)
		return fmt.Sprintf("Error executing %s: %v", call.Name, err)
	}
	log.WithDuration(time.Since(start)).Debug("tool call finished", "tool", call.Name, "chars", len(out))
	if out == "" {
		return "Tool executed successfully (no output)"
	}
	return out
}

func describeCalls(text string, calls []model.ToolCall) string {
	var b strings.Builder
	if text != "" {
		b.WriteString(text)
		b.WriteString("\n")
	}
	for i, call := range calls {
		if i > 0 {
			b.WriteString("\n")
		}
		args, _ := json.Marshal(call.Arguments)
		fmt.Fprintf(&b, "Calling tool %s with arguments %s", call.Name, args)
	}
	return b.String()
}
