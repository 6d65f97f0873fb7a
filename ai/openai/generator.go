package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client llms.Model
	logger *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// newGenerator is an internal constructor that returns the concrete type.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client: client,
		logger: slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a chat generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

func messageType(role ai.MessageRole) llms.ChatMessageType {
	switch role {
	case ai.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// Generate sends messages to the chat model and returns the first choice.
func (g *Generator) Generate(ctx context.Context, messages []ai.Message, opts ...ai.GenerateOption) (*ai.Generation, error) {
	o := ai.ApplyGenerateOptions(opts...)

	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.MessageContent{
			Role:  messageType(msg.Role),
			Parts: []llms.ContentPart{llms.TextPart(msg.Content)},
		})
	}

	callOpts := []llms.CallOption{llms.WithTemperature(o.Temperature)}
	if o.JSON {
		callOpts = append(callOpts, llms.WithJSONMode())
	}
	if o.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.MaxTokens))
	}

	response, err := g.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return nil, err
	}
	if len(response.Choices) < 1 {
		g.logger.Debug("no choices returned from model")
		return nil, ai.ErrEmptyResponse
	}

	choice := response.Choices[0]
	usage := usageFromInfo(choice.GenerationInfo)
	g.logger.Debug("generated content",
		"json", o.JSON,
		"length", len(choice.Content),
		"total_tokens", usage.TotalTokens)

	return &ai.Generation{
		Text:  choice.Content,
		Usage: usage,
	}, nil
}

// usageFromInfo reads token counts from langchaingo's generation info.
func usageFromInfo(info map[string]any) core.TokenUsage {
	return core.TokenUsage{
		PromptTokens:     intFromInfo(info, "PromptTokens"),
		CompletionTokens: intFromInfo(info, "CompletionTokens"),
		TotalTokens:      intFromInfo(info, "TotalTokens"),
	}
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case nil:
		return 0
	default:
		var n int
		if _, err := fmt.Sscan(fmt.Sprint(v), &n); err == nil {
			return n
		}
		return 0
	}
}
