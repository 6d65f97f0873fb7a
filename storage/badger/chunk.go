package badger

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a chunk repository on backend.
func NewChunkRepository(backend *Backend) (storage.ChunkRepository, error) {
	return newChunkRepository(backend)
}

func newChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}
	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

func (r *ChunkRepository) nextID() (core.ID, error) {
	nextID, err := r.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		nextID, err = r.idSeq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}

// AddChunks adds chunks to storage, skipping any whose content is already stored.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	var added []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		seen := make(map[core.ID]bool, len(chunks))
		for _, chunk := range chunks {
			if err := core.ValidateChunk(chunk); err != nil {
				return err
			}
			if chunk.ContentHash == 0 {
				chunk.ContentHash = core.IDFromContent(chunk.DocumentID + "\x00" + chunk.Text)
			}
			if seen[chunk.ContentHash] {
				continue
			}
			seen[chunk.ContentHash] = true

			hashKey := makeChunkHashKey(chunk.ContentHash)
			_, err := tx.Get(hashKey)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			id, err := r.nextID()
			if err != nil {
				return err
			}
			chunk.Id = id
			if chunk.InsertedAt.IsZero() {
				chunk.InsertedAt = time.Now().UTC()
			}

			if err := tx.Set(makeChunkKey(chunk.Id), storage.MarshalChunk(chunk)); err != nil {
				return err
			}
			if err := tx.Set(hashKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
			added = append(added, chunk)
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return added, nil
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeChunkKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// CountChunks returns the number of stored chunks.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// FindSimilar scans every chunk, scores it against vector and keeps the best
// limit matches that pass filter and minSimilarity.
func (r *ChunkRepository) FindSimilar(ctx context.Context, vector []float32, filter storage.Filter, minSimilarity float32, limit int) ([]*core.ChunkMatch, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	if len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.ChunkMatch
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}

			// Skip chunks without embeddings
			if len(chunk.Vector) == 0 || !filter.Matches(chunk.Metadata) {
				continue
			}

			similarity := cosineSimilarity(vector, chunk.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.ChunkMatch{Chunk: chunk, Score: similarity})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Score descending, then insertion order
	slices.SortFunc(results, func(a, b *core.ChunkMatch) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Id, b.Chunk.Id)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
