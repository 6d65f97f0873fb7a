package mock

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/poiesic/admissions/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicVector(t *testing.T) {
	a := DeterministicVector("Yonsei University", 32)
	b := DeterministicVector("Yonsei University", 32)
	c := DeterministicVector("Korea University", 32)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockGenerator_ConcurrentCalls(t *testing.T) {
	gen := NewMockGenerator("ok")
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := gen.Generate(context.Background(), []ai.Message{ai.UserMessage("q")})
			assert.NoError(t, err)
			assert.Equal(t, "ok", out.Text)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, gen.CallCount())
	assert.Len(t, gen.Calls(), 20)

	gen.Reset()
	assert.Zero(t, gen.CallCount())
	assert.Empty(t, gen.Calls())
}

func TestMockGenerator_Options(t *testing.T) {
	gen := NewMockGenerator("")
	var seen ai.GenerateOptions
	gen.GenerateFunc = func(_ context.Context, _ []ai.Message, opts ai.GenerateOptions) (*ai.Generation, error) {
		seen = opts
		return &ai.Generation{Text: "{}"}, nil
	}

	_, err := gen.Generate(context.Background(), nil, ai.WithJSON(), ai.WithTemperature(0.3))
	require.NoError(t, err)
	assert.True(t, seen.JSON)
	assert.InDelta(t, 0.3, seen.Temperature, 1e-9)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider().(*MockProvider)
	assert.Same(t, p.GetMockEmbedder(), p.Embedder())
	assert.Same(t, p.GetMockGenerator(), p.Generator())

	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
}
