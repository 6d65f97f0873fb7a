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

package core

import "errors"

// Pipeline error taxonomy
var (
	// ErrQuotaExceeded indicates the daily usage limit for an identity is reached.
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrRouterParse indicates the router model output could not be parsed.
	ErrRouterParse = errors.New("router output could not be parsed")

	// ErrRetrievalCall indicates a single function call failed; other calls are unaffected.
	ErrRetrievalCall = errors.New("retrieval call failed")

	// ErrUnknownFunction indicates a function call names an unsupported function.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrInvalidParams indicates a function call is missing or mistypes a parameter.
	ErrInvalidParams = errors.New("invalid function parameters")

	// ErrUpstreamProvider indicates an LLM provider or store could not be reached.
	ErrUpstreamProvider = errors.New("upstream provider failure")

	// ErrEvaluation indicates the evaluator could not produce a verdict.
	ErrEvaluation = errors.New("evaluation failed")
)

// Domain validation errors
var (
	// ErrInvalidIdentity indicates an identity has no kind or an empty value.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyContent indicates the chunk Text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyDocumentID indicates a chunk is not attributed to a document.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrInvalidRole indicates an invalid Role value in chat history.
	ErrInvalidRole = errors.New("invalid role")
)
