// Package router maps a user message and recent history to retrieval function calls.
//
// Route never returns an error to its caller. Model failures and malformed
// output both degrade to an empty call list with RouterOutput.Err set, and
// there is no retry on parse failure.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
)

// DefaultHistoryTurns is the number of trailing history turns sent to the model.
const DefaultHistoryTurns = 6

var (
	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrEmptyMessage is reported when the user message is blank.
	ErrEmptyMessage = errors.New("empty message")
)

var compiledDecisionSchema = ai.MustCompileSchema(decisionSchema)

// decision is the wire form of the model's routing decision.
type decision struct {
	FunctionCalls []struct {
		Name   string         `json:"name"`
		Params map[string]any `json:"params"`
	} `json:"function_calls"`
}

// Router decides which retrieval functions a message needs.
type Router struct {
	generator    ai.Generator
	schema       *jsonschema.Schema
	systemPrompt string
	historyTurns int
	logger       *slog.Logger
}

// Option configures a Router.
type Option func(*Router) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithHistoryTurns sets how many trailing history turns are sent to the model.
// Zero sends no history.
func WithHistoryTurns(n int) Option {
	return func(r *Router) error {
		if n < 0 {
			return fmt.Errorf("history turns must not be negative: %d", n)
		}
		r.historyTurns = n
		return nil
	}
}

// NewRouter creates a router on generator.
func NewRouter(generator ai.Generator, opts ...Option) (*Router, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	r := &Router{
		generator:    generator,
		schema:       compiledDecisionSchema,
		systemPrompt: buildSystemPrompt(),
		historyTurns: DefaultHistoryTurns,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "router")

	return r, nil
}

// Route asks the model for function calls. The returned output always has a
// non-nil FunctionCalls slice; on failure it is empty and Err is set.
func (r *Router) Route(ctx context.Context, message string, history []core.ChatTurn) (out *core.RouterOutput) {
	out = &core.RouterOutput{FunctionCalls: []core.FunctionCall{}}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("router panicked", "panic", p)
			out = &core.RouterOutput{
				FunctionCalls: []core.FunctionCall{},
				RawText:       out.RawText,
				Usage:         out.Usage,
				Err:           fmt.Errorf("%w: panic: %v", core.ErrUpstreamProvider, p),
			}
		}
	}()

	message = strings.TrimSpace(message)
	if message == "" {
		out.Err = ErrEmptyMessage
		return out
	}

	messages := make([]ai.Message, 0, r.historyTurns+2)
	messages = append(messages, ai.SystemMessage(r.systemPrompt))
	messages = append(messages, ai.HistoryMessages(core.RecentTurns(history, r.historyTurns))...)
	messages = append(messages, ai.UserMessage(message))

	gen, err := r.generator.Generate(ctx, messages, ai.WithJSON(), ai.WithTemperature(0))
	if err != nil {
		r.logger.Warn("router model call failed", "err", err)
		out.Err = fmt.Errorf("%w: %w", core.ErrUpstreamProvider, err)
		return out
	}
	out.RawText = gen.Text
	out.Usage = gen.Usage

	parsed := ai.ParseStructured[decision](gen.Text, r.schema)
	if !parsed.Ok() {
		r.logger.Warn("error parsing router response", "response", gen.Text, "err", parsed.Err)
		out.Err = fmt.Errorf("%w: %w", core.ErrRouterParse, parsed.Err)
		return out
	}

	for _, fc := range parsed.Value.FunctionCalls {
		params := core.Params(fc.Params)
		if params == nil {
			params = core.Params{}
		}
		out.FunctionCalls = append(out.FunctionCalls, core.FunctionCall{
			Name:   core.FunctionName(strings.TrimSpace(fc.Name)),
			Params: params,
		})
	}

	r.logger.Debug("routed message",
		"calls", len(out.FunctionCalls),
		"total_tokens", out.Usage.TotalTokens)
	return out
}
