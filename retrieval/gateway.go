package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
)

// Gateway dispatches function calls to their handlers.
// The handler table is fixed at construction.
type Gateway struct {
	handlers      map[core.FunctionName]Handler
	overrides     map[core.FunctionName]Handler
	pool          *ants.Pool
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// WithPoolSize sets the number of concurrent retrieval workers.
func WithPoolSize(size int) Option {
	return func(g *Gateway) error {
		if size < 1 {
			size = 1
		}
		if g.pool != nil {
			g.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		g.pool = pool
		return nil
	}
}

// WithMinSimilarity sets the similarity floor for matches.
func WithMinSimilarity(min float32) Option {
	return func(g *Gateway) error {
		g.minSimilarity = min
		return nil
	}
}

// WithHandler replaces the handler of a supported function.
func WithHandler(name core.FunctionName, h Handler) Option {
	return func(g *Gateway) error {
		if !name.Valid() {
			return fmt.Errorf("%w: %q", core.ErrUnknownFunction, name)
		}
		if g.overrides == nil {
			g.overrides = make(map[core.FunctionName]Handler)
		}
		g.overrides[name] = h
		return nil
	}
}

// NewGateway creates a gateway searching chunks with embedder.
func NewGateway(chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Gateway, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	g := &Gateway{
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			g.Release()
			return nil, err
		}
	}
	if g.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU(), 4))
		if err != nil {
			return nil, err
		}
		g.pool = pool
	}
	g.logger = g.logger.With("component", "retrieval")

	g.handlers = defaultHandlers(newSearcher(chunks, embedder, g.minSimilarity, g.logger))
	for name, h := range g.overrides {
		g.handlers[name] = h
	}
	g.overrides = nil

	for _, name := range core.FunctionNames {
		if g.handlers[name] == nil {
			g.Release()
			return nil, fmt.Errorf("%w: %s", ErrMissingHandler, name)
		}
	}

	return g, nil
}

// Release stops the worker pool.
func (g *Gateway) Release() {
	if g.pool != nil {
		g.pool.Release()
	}
}

// Execute runs every call and returns results keyed by core.CallKey(index).
// An empty call list returns an empty, non-nil ResultSet.
func (g *Gateway) Execute(ctx context.Context, calls []core.FunctionCall) core.ResultSet {
	results := make(core.ResultSet, len(calls))
	if len(calls) == 0 {
		return results
	}

	slots := make([]*core.CallResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			slots[i] = g.executeOne(ctx, i, call)
		}
		if err := g.pool.Submit(task); err != nil {
			g.logger.Warn("retrieval pool unavailable, running call inline", "index", i, "err", err)
			task()
		}
	}
	wg.Wait()

	failed := 0
	for i, r := range slots {
		results[core.CallKey(i)] = r
		if r.Failed() {
			failed++
		}
	}
	g.logger.Debug("executed function calls", "calls", len(calls), "failed", failed)
	return results
}

func (g *Gateway) executeOne(ctx context.Context, index int, call core.FunctionCall) (result *core.CallResult) {
	result = &core.CallResult{
		Index:    index,
		Function: call.Name,
		Params:   call.Params,
	}
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error("retrieval handler panicked", "function", call.Name, "panic", p)
			result.Matches = nil
			result.Sources = nil
			result.Count = 0
			result.Err = fmt.Errorf("%w: %s: panic: %v", core.ErrRetrievalCall, call.Name, p)
		}
	}()

	if err := core.ValidateFunctionCall(call); err != nil {
		g.logger.Warn("rejected function call", "index", index, "function", call.Name, "err", err)
		result.Err = fmt.Errorf("%w: %w", core.ErrRetrievalCall, err)
		return result
	}
	if err := ctx.Err(); err != nil {
		result.Err = fmt.Errorf("%w: %w", core.ErrRetrievalCall, err)
		return result
	}

	matches, err := g.handlers[call.Name](ctx, call)
	if err != nil {
		result.Err = fmt.Errorf("%w: %s: %w", core.ErrRetrievalCall, call.Name, err)
		return result
	}
	if matches == nil {
		matches = []*core.ChunkMatch{}
	}

	result.Matches = matches
	result.Count = len(matches)
	result.Sources = distinctSources(matches)
	return result
}

// distinctSources lists each document once, in first-match order.
func distinctSources(matches []*core.ChunkMatch) []core.Source {
	seen := make(map[string]bool, len(matches))
	sources := make([]core.Source, 0, len(matches))
	for _, m := range matches {
		if m == nil || m.Chunk == nil || seen[m.Chunk.DocumentID] {
			continue
		}
		seen[m.Chunk.DocumentID] = true
		sources = append(sources, core.Source{DocumentID: m.Chunk.DocumentID, Title: m.Chunk.Source})
	}
	return sources
}
