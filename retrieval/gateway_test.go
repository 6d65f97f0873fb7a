package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/admissions/ai/mock"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
	"github.com/poiesic/admissions/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChunks(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	_, err = repos.Chunks.AddChunks(context.Background(),
		&core.Chunk{
			DocumentID: "snu-guide",
			Source:     "SNU Admission Guide",
			Text:       "Seoul National University regular admission opens in December.",
			Vector:     []float32{1, 0, 0},
			Metadata:   map[string]string{"university": "Seoul National University"},
		},
		&core.Chunk{
			DocumentID: "snu-guide",
			Source:     "SNU Admission Guide",
			Text:       "Interviews for the engineering college are held in January.",
			Vector:     []float32{0.9, 0.1, 0},
			Metadata:   map[string]string{"university": "Seoul National University"},
		},
		&core.Chunk{
			DocumentID: "kaist-guide",
			Source:     "KAIST Admission Guide",
			Text:       "KAIST early admission accepts science high school applicants.",
			Vector:     []float32{1, 0, 0},
			Metadata:   map[string]string{"university": "KAIST"},
		},
		&core.Chunk{
			DocumentID: "score-table",
			Source:     "2025 Score Cutoffs",
			Text:       "Natural science track cutoff was 290 points.",
			Vector:     []float32{0, 1, 0},
			Metadata:   map[string]string{"track": "science"},
		},
	)
	require.NoError(t, err)
	return repos.Chunks
}

func fixedEmbedder(vector []float32) *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return vector, nil
	}
	return e
}

func newTestGateway(t *testing.T, chunks storage.ChunkRepository, embedder *mock.MockEmbedder, opts ...Option) *Gateway {
	t.Helper()
	g, err := NewGateway(chunks, embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(g.Release)
	return g
}

func TestNewGateway_Validation(t *testing.T) {
	_, err := NewGateway(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewGateway(seedChunks(t), nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewGateway(seedChunks(t), mock.NewMockEmbedder(), WithHandler("weather", nil))
	assert.ErrorIs(t, err, core.ErrUnknownFunction)

	_, err = NewGateway(seedChunks(t), mock.NewMockEmbedder(), WithHandler(core.FunctionScoreConsult, nil))
	assert.ErrorIs(t, err, ErrMissingHandler)
}

func TestExecute_EmptyCalls(t *testing.T) {
	embedder := fixedEmbedder([]float32{1, 0, 0})
	g := newTestGateway(t, seedChunks(t), embedder)

	results := g.Execute(context.Background(), nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, embedder.CallCount())
}

func TestExecute_UnivSearch(t *testing.T) {
	g := newTestGateway(t, seedChunks(t), fixedEmbedder([]float32{1, 0, 0}))

	results := g.Execute(context.Background(), []core.FunctionCall{
		{Name: core.FunctionUnivSearch, Params: core.Params{"university": "Seoul National University"}},
	})
	require.Len(t, results, 1)

	r := results[core.CallKey(0)]
	require.NotNil(t, r)
	require.NoError(t, r.Err)
	assert.Equal(t, core.FunctionUnivSearch, r.Function)
	assert.Equal(t, 2, r.Count)
	require.Len(t, r.Matches, 2)
	assert.GreaterOrEqual(t, r.Matches[0].Score, r.Matches[1].Score)
	for _, m := range r.Matches {
		assert.Equal(t, "Seoul National University", m.Chunk.Metadata["university"])
	}
	assert.Equal(t, []core.Source{{DocumentID: "snu-guide", Title: "SNU Admission Guide"}}, r.Sources)
}

func TestExecute_PartialFailure(t *testing.T) {
	g := newTestGateway(t, seedChunks(t), fixedEmbedder([]float32{1, 0, 0}))

	results := g.Execute(context.Background(), []core.FunctionCall{
		{Name: core.FunctionUnivSearch, Params: core.Params{"university": "KAIST"}},
		{Name: "weather_lookup", Params: core.Params{"city": "Seoul"}},
		{Name: core.FunctionScoreConsult, Params: core.Params{"score": "not a number"}},
	})
	require.Len(t, results, 3)

	ok := results[core.CallKey(0)]
	require.NoError(t, ok.Err)
	assert.Equal(t, 1, ok.Count)

	unknown := results[core.CallKey(1)]
	assert.True(t, unknown.Failed())
	assert.ErrorIs(t, unknown.Err, core.ErrRetrievalCall)
	assert.ErrorIs(t, unknown.Err, core.ErrUnknownFunction)
	assert.Empty(t, unknown.Matches)

	invalid := results[core.CallKey(2)]
	assert.ErrorIs(t, invalid.Err, core.ErrInvalidParams)
}

func TestExecute_HandlerErrorIsolated(t *testing.T) {
	failing := func(ctx context.Context, call core.FunctionCall) ([]*core.ChunkMatch, error) {
		return nil, errors.New("index offline")
	}
	g := newTestGateway(t, seedChunks(t), fixedEmbedder([]float32{1, 0, 0}),
		WithHandler(core.FunctionAdmissionGuide, failing))

	results := g.Execute(context.Background(), []core.FunctionCall{
		{Name: core.FunctionAdmissionGuide, Params: core.Params{"topic": "early admission"}},
		{Name: core.FunctionUnivSearch, Params: core.Params{"university": "Seoul National University"}},
	})

	assert.ErrorContains(t, results[core.CallKey(0)].Err, "index offline")
	assert.NoError(t, results[core.CallKey(1)].Err)
	assert.Equal(t, 2, results[core.CallKey(1)].Count)
}

func TestExecute_HandlerPanicRecovered(t *testing.T) {
	panicky := func(ctx context.Context, call core.FunctionCall) ([]*core.ChunkMatch, error) {
		panic("boom")
	}
	g := newTestGateway(t, seedChunks(t), fixedEmbedder([]float32{1, 0, 0}),
		WithHandler(core.FunctionAdmissionGuide, panicky))

	results := g.Execute(context.Background(), []core.FunctionCall{
		{Name: core.FunctionAdmissionGuide, Params: core.Params{"topic": "documents"}},
	})
	assert.ErrorIs(t, results[core.CallKey(0)].Err, core.ErrRetrievalCall)
	assert.ErrorContains(t, results[core.CallKey(0)].Err, "boom")
}

func TestExecute_RunsConcurrently(t *testing.T) {
	var inflight, peak atomic.Int32
	slow := func(ctx context.Context, call core.FunctionCall) ([]*core.ChunkMatch, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inflight.Add(-1)
		return nil, nil
	}
	g := newTestGateway(t, seedChunks(t), fixedEmbedder([]float32{1, 0, 0}),
		WithPoolSize(4), WithHandler(core.FunctionAdmissionGuide, slow))

	calls := make([]core.FunctionCall, 4)
	for i := range calls {
		calls[i] = core.FunctionCall{Name: core.FunctionAdmissionGuide, Params: core.Params{"topic": "essay"}}
	}
	results := g.Execute(context.Background(), calls)

	require.Len(t, results, 4)
	for i := range calls {
		r := results[core.CallKey(i)]
		assert.Equal(t, i, r.Index)
		assert.NoError(t, r.Err)
		assert.NotNil(t, r.Matches)
	}
	assert.Greater(t, peak.Load(), int32(1))
}

func TestExecute_CancelledContext(t *testing.T) {
	g := newTestGateway(t, seedChunks(t), fixedEmbedder([]float32{1, 0, 0}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := g.Execute(ctx, []core.FunctionCall{
		{Name: core.FunctionUnivSearch, Params: core.Params{"university": "KAIST"}},
	})
	assert.ErrorIs(t, results[core.CallKey(0)].Err, context.Canceled)
}

func TestBuildQuery(t *testing.T) {
	capability, ok := core.CapabilityFor(core.FunctionScoreConsult)
	require.True(t, ok)

	query, filter := buildQuery(capability, core.Params{
		"score":  float64(285.5),
		"track":  " science ",
		"region": "",
	})
	assert.Equal(t, "score: 285.5\ntrack: science", query)
	assert.Equal(t, storage.Filter{"track": "science"}, filter)
}
