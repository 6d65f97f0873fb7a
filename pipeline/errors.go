package pipeline

import "errors"

var (
	// ErrGovernorRequired is returned when a quota governor is not provided.
	ErrGovernorRequired = errors.New("quota governor required")

	// ErrRouterRequired is returned when a router is not provided.
	ErrRouterRequired = errors.New("router required")

	// ErrRetrieverRequired is returned when a retrieval gateway is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrSynthesizerRequired is returned when a synthesizer is not provided.
	ErrSynthesizerRequired = errors.New("synthesizer required")
)
