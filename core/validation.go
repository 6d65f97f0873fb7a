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

import (
	"fmt"
	"strings"
)

// ValidateIdentity validates an Identity.
//
// Validation rules:
//   - Kind must be IdentityUser or IdentityAddress
//   - Value must not be blank
func ValidateIdentity(id Identity) error {
	if id.Kind != IdentityUser && id.Kind != IdentityAddress {
		return fmt.Errorf("%w: kind %d", ErrInvalidIdentity, id.Kind)
	}
	if strings.TrimSpace(id.Value) == "" {
		return fmt.Errorf("%w: empty %s value", ErrInvalidIdentity, id.Kind)
	}
	return nil
}

// ValidateChunk validates a Chunk before it is written to the store.
//
// Validation rules:
//   - Text must not be empty
//   - DocumentID must not be empty
//
// NOT validated (populated by the loader or the store):
//   - Vector (filled in by the embedder)
//   - Id and ContentHash
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if strings.TrimSpace(chunk.DocumentID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyDocumentID)
	}
	return nil
}

// ValidateHistory checks that every turn carries a known role.
func ValidateHistory(history []ChatTurn) error {
	for i, turn := range history {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return fmt.Errorf("%w: turn %d has role %d", ErrInvalidRole, i, turn.Role)
		}
	}
	return nil
}

// ValidateFunctionCall checks a call against the capability manifest.
// Unknown names wrap ErrUnknownFunction; missing required or mistyped
// parameters wrap ErrInvalidParams.
func ValidateFunctionCall(call FunctionCall) error {
	capability, ok := CapabilityFor(call.Name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFunction, call.Name)
	}
	for _, spec := range capability.Params {
		v, present := call.Params[spec.Name]
		if !present || v == nil {
			if spec.Required {
				return fmt.Errorf("%w: %s requires %q", ErrInvalidParams, call.Name, spec.Name)
			}
			continue
		}
		switch spec.Type {
		case ParamNumber:
			if _, ok := call.Params.Float(spec.Name); !ok {
				return fmt.Errorf("%w: %s.%s must be a number", ErrInvalidParams, call.Name, spec.Name)
			}
		case ParamString:
			if spec.Required && call.Params.String(spec.Name) == "" {
				return fmt.Errorf("%w: %s requires non-empty %q", ErrInvalidParams, call.Name, spec.Name)
			}
		}
	}
	return nil
}
