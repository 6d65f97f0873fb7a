// Package mock provides test doubles for the ai package interfaces.
//
// These mocks allow testing pipeline components without calling a model
// server. Behavior is injected through function fields:
//
//	gen := mock.NewMockGenerator(`{"function_calls": []}`)
//	gen.GenerateFunc = func(ctx context.Context, msgs []ai.Message, opts ai.GenerateOptions) (*ai.Generation, error) {
//	    return nil, errors.New("connection refused")
//	}
//
//	// Check call counts
//	count := gen.CallCount()
//
// # Default Behavior
//
// The mock implementations provide sensible defaults:
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockGenerator: Returns its fixed Text with a small token usage
//   - MockProvider: Aggregates mock embedder and generator
//
// Call counters are atomic, so mocks may be shared by concurrent workers.
package mock
