package openai

import (
	"testing"

	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
	"github.com/stretchr/testify/assert"
	"github.com/tmc/langchaingo/llms"
)

func TestUsageFromInfo(t *testing.T) {
	tests := []struct {
		name string
		info map[string]any
		want core.TokenUsage
	}{
		{
			name: "int values",
			info: map[string]any{"PromptTokens": 12, "CompletionTokens": 8, "TotalTokens": 20},
			want: core.TokenUsage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
		},
		{
			name: "float values",
			info: map[string]any{"PromptTokens": float64(3), "CompletionTokens": float64(4), "TotalTokens": float64(7)},
			want: core.TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
		},
		{name: "missing info", info: nil, want: core.TokenUsage{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usageFromInfo(tt.info))
		})
	}
}

func TestMessageType(t *testing.T) {
	assert.Equal(t, llms.ChatMessageTypeSystem, messageType(ai.RoleSystem))
	assert.Equal(t, llms.ChatMessageTypeHuman, messageType(ai.RoleUser))
	assert.Equal(t, llms.ChatMessageTypeAI, messageType(ai.RoleAssistant))
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(&ai.Config{Backend: "bedrock"})
	assert.ErrorIs(t, err, ai.ErrUnknownBackend)
}

func TestNewProvider_Backends(t *testing.T) {
	for _, backend := range []ai.Backend{ai.BackendOpenAI, ai.BackendOllama} {
		t.Run(string(backend), func(t *testing.T) {
			p, err := NewProvider(ai.NewConfig(ai.WithBackend(backend)))
			assert.NoError(t, err)
			assert.NotNil(t, p.Generator())
			assert.NotNil(t, p.Embedder())
			assert.NoError(t, p.Close())
		})
	}
}
