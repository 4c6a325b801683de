package model

import "time"

// Message represents a chat message in the conversation
type Message struct {
	Role      string // system, user, assistant or tool
	Content   string
	Timestamp time.Time
}

// ToolCall is a provider-agnostic tool invocation requested by the model.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}
