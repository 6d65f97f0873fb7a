package storage

import (
	"context"
	"strings"

	"github.com/poiesic/admissions/core"
)

// Filter restricts similarity search to chunks whose metadata matches every
// entry. Matching is case-insensitive; an empty filter matches all chunks.
type Filter map[string]string

// Matches reports whether metadata satisfies the filter.
func (f Filter) Matches(metadata map[string]string) bool {
	for k, want := range f {
		if want == "" {
			continue
		}
		if !strings.EqualFold(metadata[k], want) {
			return false
		}
	}
	return true
}

type Repository interface {
	// Close closes the storage backend and releases resources.
	Close() error
}

// ChunkRepository is the read path of the document store plus the loader's write path.
type ChunkRepository interface {
	Repository

	// AddChunks adds chunks to storage.
	// Chunks whose ContentHash is already stored are skipped.
	// New chunks get Id from a sequence and InsertedAt if unset.
	// Returns only the chunks that were written.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// FindSimilar finds chunks similar to the given vector that pass filter.
	// Returns chunks with similarity >= minSimilarity, up to limit results,
	// ordered by score descending with ties broken by insertion order.
	FindSimilar(ctx context.Context, vector []float32, filter Filter, minSimilarity float32, limit int) ([]*core.ChunkMatch, error)

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)
}

// UsageRepository is the quota table: get/upsert keyed by identity.
type UsageRepository interface {
	Repository

	// GetUsage returns the stored record for an identity.
	// Returns ErrNotFound if the identity has never been seen.
	GetUsage(ctx context.Context, id core.Identity) (*core.UsageRecord, error)

	// UpsertUsage writes the record, replacing any previous record for the identity.
	UpsertUsage(ctx context.Context, rec *core.UsageRecord) error
}

// AuditRepository persists evaluation reports.
type AuditRepository interface {
	Repository

	// SaveReport appends a report to the audit log.
	SaveReport(ctx context.Context, rep *core.EvaluationReport) error

	// ListReports returns up to limit reports, newest first.
	ListReports(ctx context.Context, limit int) ([]*core.EvaluationReport, error)
}
