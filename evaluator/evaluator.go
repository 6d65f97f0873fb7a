// Package evaluator audits pipeline stages after the fact.
//
// Reports are observational: they are persisted or logged and never merged
// into the answer. An evaluation that cannot reach the model, or cannot parse
// its verdict, still returns a complete report with every verdict false and
// Failed set.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonschema"
	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
)

var compiledVerdictSchema = ai.MustCompileSchema(verdictSchema)

type verdictJSON struct {
	Valid     bool   `json:"valid"`
	Rationale string `json:"rationale"`
}

type evaluationJSON struct {
	Format             verdictJSON `json:"format"`
	FunctionSelection  verdictJSON `json:"function_selection"`
	ParameterSoundness verdictJSON `json:"parameter_soundness"`
	Comment            string      `json:"comment"`
}

// Evaluator scores router decisions and retrieval results with a model.
type Evaluator struct {
	generator ai.Generator
	schema    *jsonschema.Schema
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) error {
		if now == nil {
			now = time.Now
		}
		e.now = now
		return nil
	}
}

// NewEvaluator creates an evaluator on generator.
func NewEvaluator(generator ai.Generator, opts ...Option) (*Evaluator, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	e := &Evaluator{
		generator: generator,
		schema:    compiledVerdictSchema,
		now:       time.Now,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "evaluator")

	return e, nil
}

// EvaluateRouterOutput audits a router decision for question.
func (e *Evaluator) EvaluateRouterOutput(ctx context.Context, question string, out *core.RouterOutput) *core.EvaluationReport {
	if out == nil {
		out = &core.RouterOutput{}
	}

	payload := map[string]any{
		"question":       question,
		"function_calls": wireCalls(out.FunctionCalls),
		"raw_output":     out.RawText,
	}
	if out.Err != nil {
		payload["router_error"] = out.Err.Error()
	}

	system := fmt.Sprintf(routerAuditPrompt, core.DescribeCapabilities(), verdictSchema)
	return e.evaluate(ctx, core.ReportRouterOutput, question, system, payload)
}

// EvaluateFunctionResult audits the executed calls and their results for question.
func (e *Evaluator) EvaluateFunctionResult(ctx context.Context, question string, calls []core.FunctionCall, results core.ResultSet) *core.EvaluationReport {
	summaries := make(map[string]any, len(results))
	for key, r := range results {
		if r == nil {
			continue
		}
		summary := map[string]any{
			"function": string(r.Function),
			"params":   map[string]any(r.Params),
			"count":    r.Count,
		}
		if r.Err != nil {
			summary["error"] = r.Err.Error()
		} else {
			docs := make([]string, 0, len(r.Sources))
			for _, s := range r.Sources {
				docs = append(docs, s.Title)
			}
			summary["sources"] = docs
		}
		summaries[key] = summary
	}

	payload := map[string]any{
		"question":       question,
		"function_calls": wireCalls(calls),
		"results":        summaries,
	}

	system := fmt.Sprintf(retrievalAuditPrompt, core.DescribeCapabilities(), verdictSchema)
	return e.evaluate(ctx, core.ReportFunctionResult, question, system, payload)
}

func (e *Evaluator) evaluate(ctx context.Context, kind core.ReportKind, question, system string, payload map[string]any) (report *core.EvaluationReport) {
	report = &core.EvaluationReport{
		Id:        uuid.NewString(),
		Kind:      kind,
		Question:  question,
		CreatedAt: e.now(),
	}
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("evaluation panicked", "kind", kind, "panic", p)
			failReport(report, fmt.Errorf("panic: %v", p))
		}
	}()

	digest, err := core.Fingerprint(payload)
	if err != nil {
		failReport(report, err)
		return report
	}
	report.Digest = digest

	gen, err := e.generator.Generate(ctx,
		[]ai.Message{ai.SystemMessage(system), ai.UserMessage(renderPayload(payload))},
		ai.WithJSON(), ai.WithTemperature(0))
	if err != nil {
		e.logger.Warn("evaluator model call failed", "kind", kind, "err", err)
		failReport(report, fmt.Errorf("%w: %w", core.ErrUpstreamProvider, err))
		return report
	}

	parsed := ai.ParseStructured[evaluationJSON](gen.Text, e.schema)
	if !parsed.Ok() {
		e.logger.Warn("error parsing evaluator response", "kind", kind, "response", gen.Text, "err", parsed.Err)
		failReport(report, parsed.Err)
		return report
	}

	v := parsed.Value
	report.Format = core.Verdict{Valid: v.Format.Valid, Rationale: v.Format.Rationale}
	report.FunctionSelection = core.Verdict{Valid: v.FunctionSelection.Valid, Rationale: v.FunctionSelection.Rationale}
	report.ParameterSoundness = core.Verdict{Valid: v.ParameterSoundness.Valid, Rationale: v.ParameterSoundness.Rationale}
	report.Comment = v.Comment

	e.logger.Debug("evaluation complete",
		"kind", kind,
		"format", report.Format.Valid,
		"function_selection", report.FunctionSelection.Valid,
		"parameter_soundness", report.ParameterSoundness.Valid)
	return report
}

// failReport resets every verdict to false and records why evaluation failed.
func failReport(report *core.EvaluationReport, err error) {
	reason := fmt.Errorf("%w: %w", core.ErrEvaluation, err).Error()
	report.Failed = true
	report.Format = core.Verdict{Rationale: reason}
	report.FunctionSelection = core.Verdict{Rationale: reason}
	report.ParameterSoundness = core.Verdict{Rationale: reason}
	report.Comment = "evaluation could not be completed: " + reason
}

func wireCalls(calls []core.FunctionCall) []any {
	wire := make([]any, 0, len(calls))
	for _, c := range calls {
		wire = append(wire, c.Wire())
	}
	return wire
}

func renderPayload(payload map[string]any) string {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Sprint(payload)
	}
	return string(b)
}
