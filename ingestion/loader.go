package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
)

const (
	DefaultBatchSize  = 32
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// LoadStats summarizes a Load call.
type LoadStats struct {
	Submitted  int
	Added      int
	Duplicates int
	Invalid    int
	Failed     int
}

// Loader embeds documents and writes them to the chunk store.
type Loader struct {
	chunks     storage.ChunkRepository
	embedder   ai.Embedder
	pool       *ants.Pool
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	progress   *ProgressTracker
	logger     *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithPoolSize sets the number of concurrent embedding batches.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(l *Loader) error {
		if size < 1 {
			size = 1
		}
		if l.pool != nil {
			l.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		l.pool = pool
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per call.
func WithBatchSize(size int) Option {
	return func(l *Loader) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive: %d", size)
		}
		l.batchSize = size
		return nil
	}
}

// WithRetry sets embedding retry attempts and the initial backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(l *Loader) error {
		if maxRetries <= 0 {
			return ErrInvalidMaxAttempts
		}
		l.maxRetries = maxRetries
		l.retryDelay = baseDelay
		return nil
	}
}

// WithProgress reports loaded chunks to tracker.
func WithProgress(tracker *ProgressTracker) Option {
	return func(l *Loader) error {
		l.progress = tracker
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// NewLoader creates a loader writing to chunks.
func NewLoader(chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Loader, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	l := &Loader{
		chunks:     chunks,
		embedder:   embedder,
		batchSize:  DefaultBatchSize,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			l.Release()
			return nil, err
		}
	}
	if l.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		l.pool = pool
	}
	l.logger = l.logger.With("component", "loader")

	return l, nil
}

// Release stops the worker pool.
func (l *Loader) Release() {
	if l.pool != nil {
		l.pool.Release()
	}
}

// Load embeds and stores docs, blocking until every batch is done.
//
// Invalid documents and duplicates are counted and skipped. A batch whose
// embedding or write fails after retries is counted as failed; the joined
// batch errors are returned alongside the stats.
func (l *Loader) Load(ctx context.Context, docs []Document) (LoadStats, error) {
	stats := LoadStats{Submitted: len(docs)}

	seen := make(map[core.ID]bool, len(docs))
	pending := make([]*core.Chunk, 0, len(docs))
	for i, d := range docs {
		chunk := d.chunk()
		if err := core.ValidateChunk(chunk); err != nil {
			l.logger.Warn("skipping invalid document", "index", i, "document_id", d.DocumentID, "err", err)
			stats.Invalid++
			continue
		}
		if seen[chunk.ContentHash] {
			stats.Duplicates++
			continue
		}
		seen[chunk.ContentHash] = true
		pending = append(pending, chunk)
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)
	for start := 0; start < len(pending); start += l.batchSize {
		batch := pending[start:min(start+l.batchSize, len(pending))]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			added, err := l.processBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed += len(batch)
				errs = append(errs, err)
			} else {
				stats.Added += added
				stats.Duplicates += len(batch) - added
			}
			if l.progress != nil {
				l.progress.Increment(len(batch))
			}
		}
		if err := l.pool.Submit(task); err != nil {
			l.logger.Warn("loader pool unavailable, processing batch inline", "err", err)
			task()
		}
	}
	wg.Wait()

	l.logger.Info("load complete",
		"submitted", stats.Submitted,
		"added", stats.Added,
		"duplicates", stats.Duplicates,
		"invalid", stats.Invalid,
		"failed", stats.Failed)
	return stats, errors.Join(errs...)
}

// processBatch embeds batch with retry and writes it, returning how many chunks were new.
func (l *Loader) processBatch(ctx context.Context, batch []*core.Chunk) (int, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, l.logger, func() error {
		var err error
		embeddings, err = l.embedder.EmbedTexts(ctx, texts)
		return err
	}, l.maxRetries, l.retryDelay)
	if err != nil {
		l.logger.Error("error generating embeddings", "chunks", len(batch), "err", err)
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", l.maxRetries, err)
	}
	if len(embeddings) != len(batch) {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(batch), len(embeddings))
	}

	for i := range batch {
		batch[i].Vector = NormalizeVector(embeddings[i])
	}

	added, err := l.chunks.AddChunks(ctx, batch...)
	if err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	l.logger.Debug("stored batch", "chunks", len(batch), "added", len(added))
	return len(added), nil
}
