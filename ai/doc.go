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


// Package ai provides abstractions for the model services used by the
// admissions pipeline.
//
// # Interfaces
//
//   - Generator: chat completion, optionally in JSON mode
//   - Embedder: vector embeddings for similarity search
//   - AIProvider: aggregates both for initialization and lifecycle management
//
// # Untrusted Output
//
// Model output is always treated as an untyped string. Callers expecting
// structured output decode it with ParseStructured, which strips code fences,
// repairs common quoting mistakes, validates against a JSON Schema and
// returns a Parsed value that is either Ok or carries the parse error and
// the raw text. Nothing in this package panics on malformed output.
//
// # Implementation Packages
//
//   - ai/openai: langchaingo-backed provider for OpenAI-compatible servers
//   - ai/ollama: native Ollama chat generator
//   - ai/mock: test doubles
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, ollama.NewGenerator, etc.) return
// INTERFACE types to prevent accidental coupling to concrete implementations.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//
// Test utility constructors (mock.NewMockEmbedder, mock.NewMockGenerator)
// return CONCRETE types to enable test assertions and behavior injection.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithBackend(ai.BackendOllama))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	gen, err := provider.Generator().Generate(ctx, []ai.Message{
//	    ai.SystemMessage(prompt),
//	    ai.UserMessage(question),
//	}, ai.WithJSON())
//	parsed := ai.ParseStructured[decision](gen.Text, schema)
package ai
