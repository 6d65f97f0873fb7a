package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// Parsed is the outcome of parsing untrusted model text. Exactly one of the
// two variants holds: Ok with Value populated, or a parse error with Err set.
// Raw always carries the model text as received.
type Parsed[T any] struct {
	Value T
	Raw   string
	Err   error
}

// Ok reports whether parsing succeeded.
func (p Parsed[T]) Ok() bool {
	return p.Err == nil
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(schemaJSON string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// MustCompileSchema is CompileSchema for package-level schemas known at build time.
func MustCompileSchema(schemaJSON string) *jsonschema.Schema {
	schema, err := CompileSchema(schemaJSON)
	if err != nil {
		panic(err)
	}
	return schema
}

// CleanJSON strips markdown code fences and repairs common key-quoting
// mistakes in model output.
func CleanJSON(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	return repairJSON(text)
}

// ParseStructured decodes model text into T. When schema is non-nil the
// cleaned document must validate against it before decoding.
// It never panics and never returns a partially trusted value: on any
// failure Value is the zero T.
func ParseStructured[T any](raw string, schema *jsonschema.Schema) Parsed[T] {
	result := Parsed[T]{Raw: raw}

	text := CleanJSON(raw)
	if text == "" {
		result.Err = ErrEmptyResponse
		return result
	}
	if !json.Valid([]byte(text)) {
		result.Err = ErrMalformedJSON
		return result
	}
	if schema != nil {
		validation := schema.ValidateJSON([]byte(text))
		if !validation.IsValid() {
			result.Err = fmt.Errorf("%w: %v", ErrSchemaViolation, validation.Errors)
			return result
		}
	}

	var value T
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		result.Err = fmt.Errorf("%w: %w", ErrMalformedJSON, err)
		return result
	}
	result.Value = value
	return result
}
