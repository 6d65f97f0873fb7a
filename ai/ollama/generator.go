// Package ollama implements ai.Generator on the native Ollama chat API.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
)

// Generator implements ai.Generator using the Ollama chat endpoint.
type Generator struct {
	client *api.Client
	model  string
	logger *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(config.ChatHost)
	if err != nil {
		return nil, fmt.Errorf("could not parse ollama host: %w", err)
	}

	return &Generator{
		client: api.NewClient(base, http.DefaultClient),
		model:  strings.TrimPrefix(config.ChatModel, "ollama:"),
		logger: slog.Default().With("component", "ollama-generator"),
	}, nil
}

// NewGenerator creates an Ollama chat generator.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate runs a non-streaming chat request and returns the reply.
func (g *Generator) Generate(ctx context.Context, messages []ai.Message, opts ...ai.GenerateOption) (*ai.Generation, error) {
	o := ai.ApplyGenerateOptions(opts...)

	ollamaMessages := make([]api.Message, len(messages))
	for i, msg := range messages {
		ollamaMessages[i] = api.Message{
			Role:    msg.Role.String(),
			Content: msg.Content,
		}
	}

	stream := false
	req := &api.ChatRequest{
		Model:    g.model,
		Messages: ollamaMessages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": o.Temperature,
		},
	}
	if o.MaxTokens > 0 {
		req.Options["num_predict"] = o.MaxTokens
	}
	if o.JSON {
		req.Format = json.RawMessage(`"json"`)
	}

	var (
		content strings.Builder
		usage   core.TokenUsage
	)
	err := g.client.Chat(ctx, req, func(res api.ChatResponse) error {
		content.WriteString(res.Message.Content)
		if res.Done {
			usage = core.TokenUsage{
				PromptTokens:     res.PromptEvalCount,
				CompletionTokens: res.EvalCount,
				TotalTokens:      res.PromptEvalCount + res.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		g.logger.Error("ollama chat failed", "model", g.model, "err", err)
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}
	if strings.TrimSpace(content.String()) == "" {
		return nil, ai.ErrEmptyResponse
	}

	g.logger.Debug("generated content", "json", o.JSON, "total_tokens", usage.TotalTokens)
	return &ai.Generation{Text: content.String(), Usage: usage}, nil
}
