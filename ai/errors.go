package ai

import "errors"

var (
	// ErrEmptyResponse indicates the provider returned no choices or no text.
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrMalformedJSON indicates the model output is not valid JSON.
	ErrMalformedJSON = errors.New("model output is not valid JSON")

	// ErrSchemaViolation indicates the model output does not match the expected schema.
	ErrSchemaViolation = errors.New("model output does not match schema")

	// ErrUnknownBackend indicates an unsupported chat backend in the config.
	ErrUnknownBackend = errors.New("unknown chat backend")
)
