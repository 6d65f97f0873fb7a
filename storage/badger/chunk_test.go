package badger

import (
	"context"
	"testing"

	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunks(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos.Chunks
}

func TestChunkBasics(t *testing.T) {
	repo := newTestChunks(t)
	ctx := context.Background()

	added, err := repo.AddChunks(ctx, &core.Chunk{
		DocumentID: "snu-2026",
		Source:     "SNU Admission Guide",
		Text:       "Regular admission interviews take place in January.",
		Vector:     []float32{1, 0, 0},
		Metadata:   map[string]string{"university": "Seoul National University"},
	})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.NotZero(t, added[0].Id)
	assert.NotZero(t, added[0].ContentHash)
	assert.False(t, added[0].InsertedAt.IsZero())

	got, err := repo.GetChunk(ctx, added[0].Id)
	require.NoError(t, err)
	assert.Equal(t, added[0].Text, got.Text)
	assert.Equal(t, "Seoul National University", got.Metadata["university"])

	_, err = repo.GetChunk(ctx, core.ID(9999))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	count, err := repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAddChunks_Dedup(t *testing.T) {
	repo := newTestChunks(t)
	ctx := context.Background()

	chunk := func() *core.Chunk {
		return &core.Chunk{DocumentID: "doc", Text: "same text", Vector: []float32{1}}
	}

	added, err := repo.AddChunks(ctx, chunk(), chunk())
	require.NoError(t, err)
	assert.Len(t, added, 1, "duplicates within a batch are skipped")

	added, err = repo.AddChunks(ctx, chunk())
	require.NoError(t, err)
	assert.Empty(t, added, "already stored content is skipped")

	count, err := repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAddChunks_Invalid(t *testing.T) {
	repo := newTestChunks(t)

	_, err := repo.AddChunks(context.Background(), &core.Chunk{DocumentID: "doc"})
	assert.ErrorIs(t, err, core.ErrInvalidChunk)
}

func TestFindSimilar_NoChunks(t *testing.T) {
	repo := newTestChunks(t)

	results, err := repo.FindSimilar(context.Background(), []float32{0.1, 0.2}, nil, 0.5, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilar_OrderAndTies(t *testing.T) {
	repo := newTestChunks(t)
	ctx := context.Background()

	_, err := repo.AddChunks(ctx,
		&core.Chunk{DocumentID: "a", Text: "first tie", Vector: []float32{1, 1}},
		&core.Chunk{DocumentID: "b", Text: "best", Vector: []float32{1, 0}},
		&core.Chunk{DocumentID: "c", Text: "second tie", Vector: []float32{2, 2}},
		&core.Chunk{DocumentID: "d", Text: "unrelated", Vector: []float32{0, 1}},
		&core.Chunk{DocumentID: "e", Text: "no vector"},
	)
	require.NoError(t, err)

	results, err := repo.FindSimilar(ctx, []float32{1, 0}, nil, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "best", results[0].Chunk.Text)
	assert.Equal(t, "first tie", results[1].Chunk.Text, "ties keep insertion order")
	assert.Equal(t, "second tie", results[2].Chunk.Text)
	assert.InDelta(t, results[1].Score, results[2].Score, 1e-6)

	limited, err := repo.FindSimilar(ctx, []float32{1, 0}, nil, 0, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestFindSimilar_Filter(t *testing.T) {
	repo := newTestChunks(t)
	ctx := context.Background()

	_, err := repo.AddChunks(ctx,
		&core.Chunk{DocumentID: "y", Text: "Yonsei tuition", Vector: []float32{1, 0}, Metadata: map[string]string{"university": "Yonsei"}},
		&core.Chunk{DocumentID: "k", Text: "Korea tuition", Vector: []float32{1, 0}, Metadata: map[string]string{"university": "Korea"}},
	)
	require.NoError(t, err)

	results, err := repo.FindSimilar(ctx, []float32{1, 0}, storage.Filter{"university": "yonsei"}, 0, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Yonsei tuition", results[0].Chunk.Text)
}

func TestFindSimilar_InvalidQuery(t *testing.T) {
	repo := newTestChunks(t)
	ctx := context.Background()

	_, err := repo.FindSimilar(ctx, nil, nil, 0, 5)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = repo.FindSimilar(ctx, []float32{1}, nil, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestFindSimilar_Cancelled(t *testing.T) {
	repo := newTestChunks(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := repo.AddChunks(ctx, &core.Chunk{DocumentID: "x", Text: "t", Vector: []float32{1}})
	require.NoError(t, err)

	cancel()
	_, err = repo.FindSimilar(ctx, []float32{1}, nil, 0, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
