package ai

import (
	"fmt"

	"github.com/poiesic/admissions/core"
)

// MessageRole is the author of a chat message sent to a Generator.
type MessageRole int

const (
	RoleSystem MessageRole = iota + 1
	RoleUser
	RoleAssistant
)

func (r MessageRole) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("message_role(%d)", int(r))
	}
}

// Message is one chat message.
type Message struct {
	Role    MessageRole
	Content string
}

// SystemMessage returns a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// HistoryMessages converts conversation turns into chat messages, oldest first.
func HistoryMessages(history []core.ChatTurn) []Message {
	msgs := make([]Message, 0, len(history))
	for _, turn := range history {
		role := RoleUser
		if turn.Role == core.RoleAssistant {
			role = RoleAssistant
		}
		msgs = append(msgs, Message{Role: role, Content: turn.Text})
	}
	return msgs
}

// Generation is the raw model output with its token accounting.
type Generation struct {
	Text  string
	Usage core.TokenUsage
}

// GenerateOptions controls a single Generate call.
type GenerateOptions struct {
	// JSON requests structured JSON output from the model.
	JSON bool
	// Temperature is the sampling temperature.
	Temperature float64
	// MaxTokens caps the completion length; 0 leaves the provider default.
	MaxTokens int
}

// GenerateOption is a functional option for a Generate call.
type GenerateOption func(*GenerateOptions)

// WithJSON requests structured JSON output.
func WithJSON() GenerateOption {
	return func(o *GenerateOptions) {
		o.JSON = true
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// ApplyGenerateOptions resolves opts over the defaults (temperature 0, free text).
func ApplyGenerateOptions(opts ...GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
