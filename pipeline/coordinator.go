// Package pipeline coordinates a question through quota, routing, retrieval
// and synthesis.
//
// A request moves RECEIVED → QUOTA_CHECKED → ROUTED → RETRIEVED →
// SYNTHESIZED → DONE, or ends in ERROR with a Failure. Audits of the routing
// and retrieval steps are handed to an Auditor without waiting, so evaluation
// latency never reaches the caller. Nothing a stage does, including a panic,
// escapes Handle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/quota"
	"github.com/poiesic/admissions/synthesis"
)

// QuotaChecker counts a request against the caller's daily limit.
type QuotaChecker interface {
	CheckAndIncrement(ctx context.Context, id core.Identity) (quota.Decision, error)
}

// Router selects function calls for a message.
type Router interface {
	Route(ctx context.Context, message string, history []core.ChatTurn) *core.RouterOutput
}

// Retriever executes function calls.
type Retriever interface {
	Execute(ctx context.Context, calls []core.FunctionCall) core.ResultSet
}

// Synthesizer writes the final answer.
type Synthesizer interface {
	GenerateFinalAnswer(ctx context.Context, question string, calls []core.FunctionCall, results core.ResultSet, history []core.ChatTurn) *core.Answer
}

// Auditor schedules background evaluations. Implementations must return
// without waiting for the evaluation.
type Auditor interface {
	AuditRouterOutput(ctx context.Context, requestID, question string, out *core.RouterOutput) error
	AuditFunctionResult(ctx context.Context, requestID, question string, calls []core.FunctionCall, results core.ResultSet) error
}

// Request is one user question.
type Request struct {
	// ID identifies the request in logs and audit reports. Generated when empty.
	ID       string
	Message  string
	History  []core.ChatTurn
	Identity core.Identity
}

// Result is the outcome of a request.
type Result struct {
	RequestID string
	State     Stage
	// Stages lists every state visited, in order, ending with State.
	Stages  []Stage
	Quota   *quota.Decision
	Router  *core.RouterOutput
	Results core.ResultSet
	Answer  *core.Answer
	Failure *Failure
	Elapsed time.Duration
}

// Coordinator runs requests through the pipeline stages.
type Coordinator struct {
	governor    QuotaChecker
	router      Router
	retriever   Retriever
	synthesizer Synthesizer
	auditor     Auditor
	newID       func() string
	logger      *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithAuditor enables background audits after routing and retrieval.
func WithAuditor(a Auditor) Option {
	return func(c *Coordinator) error {
		c.auditor = a
		return nil
	}
}

// WithRequestIDs overrides request ID generation.
func WithRequestIDs(newID func() string) Option {
	return func(c *Coordinator) error {
		if newID == nil {
			newID = uuid.NewString
		}
		c.newID = newID
		return nil
	}
}

// NewCoordinator wires the pipeline stages.
func NewCoordinator(governor QuotaChecker, router Router, retriever Retriever, synthesizer Synthesizer, opts ...Option) (*Coordinator, error) {
	switch {
	case governor == nil:
		return nil, ErrGovernorRequired
	case router == nil:
		return nil, ErrRouterRequired
	case retriever == nil:
		return nil, ErrRetrieverRequired
	case synthesizer == nil:
		return nil, ErrSynthesizerRequired
	}

	c := &Coordinator{
		governor:    governor,
		router:      router,
		retriever:   retriever,
		synthesizer: synthesizer,
		newID:       uuid.NewString,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "pipeline")

	return c, nil
}

// run tracks the state of one request.
type run struct {
	c       *Coordinator
	req     Request
	result  *Result
	started time.Time
	logger  *slog.Logger
}

func (c *Coordinator) newRun(req Request) *run {
	if req.ID == "" {
		req.ID = c.newID()
	}
	r := &run{
		c:       c,
		req:     req,
		started: time.Now(),
		result:  &Result{RequestID: req.ID},
		logger:  c.logger.With("request_id", req.ID),
	}
	r.advance(StageReceived)
	return r
}

func (r *run) advance(s Stage) {
	r.result.State = s
	r.result.Stages = append(r.result.Stages, s)
}

func (r *run) fail(code, message string, err error) *Result {
	r.result.Failure = &Failure{
		Stage:   r.result.State,
		Code:    code,
		Message: message,
		Err:     err,
	}
	r.advance(StageError)
	return r.finish()
}

func (r *run) finish() *Result {
	r.result.Elapsed = time.Since(r.started)
	if f := r.result.Failure; f != nil {
		r.logger.Warn("request failed", "stage", f.Stage, "code", f.Code, "message", f.Message, "elapsed", r.result.Elapsed)
	} else {
		r.logger.Info("request complete", "elapsed", r.result.Elapsed, "stages", len(r.result.Stages))
	}
	return r.result
}

// cancelled ends the run when ctx is done.
func (r *run) cancelled(ctx context.Context) (*Result, bool) {
	if err := ctx.Err(); err != nil {
		return r.fail(CodeCancelled, "request cancelled", err), true
	}
	return nil, false
}

// Handle runs a request through every stage, starting with the quota check.
func (c *Coordinator) Handle(ctx context.Context, req Request) (result *Result) {
	r := c.newRun(req)
	defer r.recoverPanic(&result)

	if res, done := r.cancelled(ctx); done {
		return res
	}

	decision, err := c.governor.CheckAndIncrement(ctx, req.Identity)
	if err != nil {
		if errors.Is(err, core.ErrInvalidIdentity) {
			return r.fail(CodeInvalidIdentity, err.Error(), err)
		}
		if ctx.Err() != nil {
			return r.fail(CodeCancelled, "request cancelled", err)
		}
		return r.fail(CodeInternal, err.Error(), err)
	}
	r.result.Quota = &decision
	if !decision.Allowed {
		msg := fmt.Sprintf("daily limit reached: %d of %d requests used", decision.Count, decision.Limit)
		return r.fail(CodeQuotaExceeded, msg, core.ErrQuotaExceeded)
	}
	r.advance(StageQuotaChecked)

	return r.answer(ctx)
}

// RunPipeline runs routing, retrieval and synthesis without a quota check.
// It is meant for trusted callers such as operator tooling.
func (c *Coordinator) RunPipeline(ctx context.Context, message string, history []core.ChatTurn) (result *Result) {
	r := c.newRun(Request{Message: message, History: history})
	defer r.recoverPanic(&result)

	return r.answer(ctx)
}

func (r *run) answer(ctx context.Context) *Result {
	c := r.c

	if res, done := r.cancelled(ctx); done {
		return res
	}
	out := c.router.Route(ctx, r.req.Message, r.req.History)
	if out == nil {
		out = &core.RouterOutput{FunctionCalls: []core.FunctionCall{}}
	}
	r.result.Router = out
	if out.Err != nil {
		r.logger.Info("router degraded to no calls", "err", out.Err)
	}
	r.advance(StageRouted)
	r.audit(func() error {
		return c.auditor.AuditRouterOutput(ctx, r.req.ID, r.req.Message, out)
	})

	if res, done := r.cancelled(ctx); done {
		return res
	}
	results := c.retriever.Execute(ctx, out.FunctionCalls)
	if results == nil {
		results = core.ResultSet{}
	}
	r.result.Results = results
	r.advance(StageRetrieved)
	r.audit(func() error {
		return c.auditor.AuditFunctionResult(ctx, r.req.ID, r.req.Message, out.FunctionCalls, results)
	})

	if res, done := r.cancelled(ctx); done {
		return res
	}
	if len(out.FunctionCalls) == 0 && errors.Is(out.Err, core.ErrUpstreamProvider) {
		// The router never reached the model, so "no calls" is not a decision.
		r.result.Answer = &core.Answer{
			Text:     synthesis.FallbackAnswer,
			Sources:  []core.Source{},
			Degraded: true,
			Err:      out.Err,
		}
	} else {
		r.result.Answer = c.synthesizer.GenerateFinalAnswer(ctx, r.req.Message, out.FunctionCalls, results, r.req.History)
	}
	r.advance(StageSynthesized)

	r.advance(StageDone)
	return r.finish()
}

func (r *run) audit(schedule func() error) {
	if r.c.auditor == nil {
		return
	}
	if err := schedule(); err != nil {
		r.logger.Debug("audit not scheduled", "err", err)
	}
}

// recoverPanic converts a stage panic into an internal failure.
func (r *run) recoverPanic(result **Result) {
	p := recover()
	if p == nil {
		return
	}
	r.logger.Error("pipeline stage panicked", "stage", r.result.State, "panic", p)
	if r.result.State.Terminal() {
		*result = r.result
		return
	}
	*result = r.fail(CodeInternal, fmt.Sprintf("unexpected failure: %v", p), fmt.Errorf("panic: %v", p))
}
