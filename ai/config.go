// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Backend selects the chat completion implementation.
type Backend string

const (
	// BackendOpenAI talks to any OpenAI-compatible server through langchaingo.
	BackendOpenAI Backend = "openai"
	// BackendOllama talks to the native Ollama chat API.
	BackendOllama Backend = "ollama"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Backend selects the chat implementation. Embeddings always use the
	// OpenAI-compatible endpoint.
	Backend Backend

	// ChatHost is the base URL for chat completions.
	// Example: "http://localhost:11434/v1" for an OpenAI-compatible server,
	// "http://localhost:11434" for native Ollama.
	ChatHost string

	// EmbeddingHost is the base URL for the embedding service API.
	EmbeddingHost string

	// ChatModel is the model used by the router, evaluator and synthesizer.
	// Example: "qwen2.5:7b", "gpt-4o-mini"
	ChatModel string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// APIKey is sent as the bearer token. Local servers accept "none".
	APIKey string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend sets the chat backend.
func WithBackend(backend Backend) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithChatHost sets the chat service host URL.
func WithChatHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithHost sets both chat and embedding hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
		c.EmbeddingHost = host
	}
}

// WithChatModel sets the chat model identifier.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible server.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		Backend:        BackendOpenAI,
		ChatHost:       defaultHost,
		EmbeddingHost:  defaultHost,
		ChatModel:      "qwen2.5:7b",
		EmbeddingModel: "embeddinggemma",
		APIKey:         "none",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithBackend(BackendOllama),
//	    WithChatHost("http://localhost:11434"),
//	    WithChatModel("llama3.1:8b"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible hosts get the /v1 suffix; a native Ollama chat host
// has it removed.
func (c *Config) Normalize() {
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	if c.Backend == "" {
		c.Backend = BackendOpenAI
	}
	switch c.Backend {
	case BackendOllama:
		c.ChatHost = strings.TrimSuffix(strings.TrimSuffix(c.ChatHost, "/"), "/v1")
	default:
		c.ChatHost = withV1(c.ChatHost)
	}
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Backend != BackendOpenAI && c.Backend != BackendOllama {
		return fmt.Errorf("ai config: %w %q", ErrUnknownBackend, c.Backend)
	}
	if c.ChatHost == "" {
		return errors.New("ai config: ChatHost is required")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	return nil
}
