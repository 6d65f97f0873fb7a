package retrieval

import (
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
)

const (
	// DefaultMinSimilarity is the cosine similarity floor for a chunk to count as a match.
	DefaultMinSimilarity = 0.30

	// verbatimBoost is added to a match whose text contains every keyword.
	verbatimBoost = 0.3

	// candidateFactor widens the similarity search so keyword matches ranked
	// just below limit can still be promoted into the results.
	candidateFactor = 4
)

// Searcher provides semantic search over document chunks.
type Searcher struct {
	chunks        storage.ChunkRepository
	embedder      ai.Embedder
	minSimilarity float32
	logger        *slog.Logger
}

func newSearcher(chunks storage.ChunkRepository, embedder ai.Embedder, minSimilarity float32, logger *slog.Logger) *Searcher {
	return &Searcher{
		chunks:        chunks,
		embedder:      embedder,
		minSimilarity: minSimilarity,
		logger:        logger,
	}
}

// FindSimilar embeds query and returns up to limit chunks passing filter,
// ranked by similarity score. Chunks containing all of keywords are boosted
// before the list is cut to limit.
func (s *Searcher) FindSimilar(ctx context.Context, query, keywords string, filter storage.Filter, limit int) ([]*core.ChunkMatch, error) {
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	candidates := limit
	if keywords != "" {
		candidates = limit * candidateFactor
	}
	matches, err := s.chunks.FindSimilar(ctx, embedding, filter, s.minSimilarity, candidates)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}

	boosted := 0
	for _, m := range matches {
		if containsAllQueryWords(m.Chunk.Text, keywords) {
			m.Score += verbatimBoost
			boosted++
		}
	}
	if boosted > 0 {
		slices.SortStableFunc(matches, func(a, b *core.ChunkMatch) int {
			switch {
			case a.Score > b.Score:
				return -1
			case a.Score < b.Score:
				return 1
			default:
				return 0
			}
		})
	}

	if len(matches) > limit {
		matches = matches[:limit]
	}

	s.logger.Debug("semantic search", "query", query, "filter", filter, "hits", len(matches), "boosted", boosted)
	return matches, nil
}
