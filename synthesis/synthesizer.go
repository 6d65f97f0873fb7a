// Package synthesis turns retrieved chunks and conversation history into the final answer.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
)

const (
	// DefaultHistoryTurns is the number of trailing history turns sent to the model.
	DefaultHistoryTurns = 6
	// DefaultMaxTokens caps the length of generated answers.
	DefaultMaxTokens = 1024
)

// Synthesizer generates answers grounded in retrieval results.
type Synthesizer struct {
	generator    ai.Generator
	historyTurns int
	maxTokens    int
	temperature  float64
	logger       *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithHistoryTurns sets how many trailing history turns are sent to the model.
func WithHistoryTurns(n int) Option {
	return func(s *Synthesizer) error {
		if n < 0 {
			return fmt.Errorf("history turns must not be negative: %d", n)
		}
		s.historyTurns = n
		return nil
	}
}

// WithMaxTokens caps answer length.
func WithMaxTokens(n int) Option {
	return func(s *Synthesizer) error {
		s.maxTokens = n
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Synthesizer) error {
		s.temperature = t
		return nil
	}
}

// NewSynthesizer creates a synthesizer on generator.
func NewSynthesizer(generator ai.Generator, opts ...Option) (*Synthesizer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	s := &Synthesizer{
		generator:    generator,
		historyTurns: DefaultHistoryTurns,
		maxTokens:    DefaultMaxTokens,
		temperature:  0.3,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "synthesizer")

	return s, nil
}

// GenerateFinalAnswer answers question from results.
//
// When calls and results are both empty no model call is made and a fixed
// explanatory answer with no sources is returned. Model failures produce a
// degraded answer with Err set instead of an error.
func (s *Synthesizer) GenerateFinalAnswer(ctx context.Context, question string, calls []core.FunctionCall, results core.ResultSet, history []core.ChatTurn) (answer *core.Answer) {
	answer = &core.Answer{Sources: []core.Source{}}
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("synthesizer panicked", "panic", p)
			answer = &core.Answer{
				Text:     FallbackAnswer,
				Sources:  []core.Source{},
				Degraded: true,
				Err:      fmt.Errorf("%w: panic: %v", core.ErrUpstreamProvider, p),
			}
		}
	}()

	if len(calls) == 0 && len(results) == 0 {
		answer.Text = NoRetrievalAnswer
		return answer
	}

	matches := FlattenMatches(results)
	sources := DistinctSources(matches)

	messages := make([]ai.Message, 0, s.historyTurns+2)
	messages = append(messages, ai.SystemMessage(systemPrompt))
	messages = append(messages, ai.HistoryMessages(core.RecentTurns(history, s.historyTurns))...)
	messages = append(messages, ai.UserMessage(fmt.Sprintf(questionTemplate, renderExcerpts(matches), question)))

	opts := []ai.GenerateOption{ai.WithTemperature(s.temperature)}
	if s.maxTokens > 0 {
		opts = append(opts, ai.WithMaxTokens(s.maxTokens))
	}

	gen, err := s.generator.Generate(ctx, messages, opts...)
	if err == nil && strings.TrimSpace(gen.Text) == "" {
		err = ai.ErrEmptyResponse
	}
	if err != nil {
		s.logger.Warn("answer model call failed", "err", err)
		answer.Text = FallbackAnswer
		answer.Degraded = true
		answer.Err = fmt.Errorf("%w: %w", core.ErrUpstreamProvider, err)
		return answer
	}

	answer.Text = strings.TrimSpace(gen.Text)
	answer.Sources = sources
	answer.Usage = gen.Usage

	s.logger.Debug("generated answer",
		"chunks", len(matches),
		"sources", len(sources),
		"total_tokens", answer.Usage.TotalTokens)
	return answer
}

// FlattenMatches merges per-call matches in call order, keeping the first
// occurrence of each chunk. Failed calls contribute nothing.
func FlattenMatches(results core.ResultSet) []*core.ChunkMatch {
	seen := make(map[core.ID]bool)
	var flat []*core.ChunkMatch
	for _, r := range results.Ordered() {
		if r.Failed() {
			continue
		}
		for _, m := range r.Matches {
			if m == nil || m.Chunk == nil || seen[m.Chunk.Id] {
				continue
			}
			seen[m.Chunk.Id] = true
			flat = append(flat, m)
		}
	}
	return flat
}

// DistinctSources lists each document referenced by matches once, in match order.
func DistinctSources(matches []*core.ChunkMatch) []core.Source {
	seen := make(map[string]bool)
	sources := []core.Source{}
	for _, m := range matches {
		if seen[m.Chunk.DocumentID] {
			continue
		}
		seen[m.Chunk.DocumentID] = true
		sources = append(sources, core.Source{DocumentID: m.Chunk.DocumentID, Title: m.Chunk.Source})
	}
	return sources
}

func renderExcerpts(matches []*core.ChunkMatch) string {
	if len(matches) == 0 {
		return noExcerptsNote
	}
	var b strings.Builder
	for i, m := range matches {
		title := m.Chunk.Source
		if title == "" {
			title = m.Chunk.DocumentID
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, title, strings.TrimSpace(m.Chunk.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}
