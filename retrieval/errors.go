package retrieval

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrMissingHandler is returned when the handler table does not cover a supported function.
	ErrMissingHandler = errors.New("no handler for function")
)
