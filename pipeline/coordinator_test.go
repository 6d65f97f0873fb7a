package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/quota"
	"github.com/poiesic/admissions/synthesis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGovernor struct {
	decision quota.Decision
	err      error
	calls    atomic.Int32
}

func (f *fakeGovernor) CheckAndIncrement(ctx context.Context, id core.Identity) (quota.Decision, error) {
	f.calls.Add(1)
	if err := core.ValidateIdentity(id); err != nil {
		return quota.Decision{}, err
	}
	return f.decision, f.err
}

type fakeRouter struct {
	out   *core.RouterOutput
	calls atomic.Int32
	route func(ctx context.Context) *core.RouterOutput
}

func (f *fakeRouter) Route(ctx context.Context, message string, history []core.ChatTurn) *core.RouterOutput {
	f.calls.Add(1)
	if f.route != nil {
		return f.route(ctx)
	}
	return f.out
}

type fakeRetriever struct {
	calls   atomic.Int32
	got     []core.FunctionCall
	execute func(calls []core.FunctionCall) core.ResultSet
}

func (f *fakeRetriever) Execute(ctx context.Context, calls []core.FunctionCall) core.ResultSet {
	f.calls.Add(1)
	f.got = calls
	if f.execute != nil {
		return f.execute(calls)
	}
	results := core.ResultSet{}
	for i, c := range calls {
		results[core.CallKey(i)] = &core.CallResult{Index: i, Function: c.Name, Matches: []*core.ChunkMatch{}}
	}
	return results
}

type fakeSynthesizer struct {
	calls atomic.Int32
}

func (f *fakeSynthesizer) GenerateFinalAnswer(ctx context.Context, question string, calls []core.FunctionCall, results core.ResultSet, history []core.ChatTurn) *core.Answer {
	f.calls.Add(1)
	return &core.Answer{Text: "answer to " + question, Sources: []core.Source{}}
}

type fakeAuditor struct {
	routerAudits atomic.Int32
	resultAudits atomic.Int32
	requestID    atomic.Value
}

func (f *fakeAuditor) AuditRouterOutput(ctx context.Context, requestID, question string, out *core.RouterOutput) error {
	f.routerAudits.Add(1)
	f.requestID.Store(requestID)
	return nil
}

func (f *fakeAuditor) AuditFunctionResult(ctx context.Context, requestID, question string, calls []core.FunctionCall, results core.ResultSet) error {
	f.resultAudits.Add(1)
	return errors.New("pool saturated")
}

type fixture struct {
	governor    *fakeGovernor
	router      *fakeRouter
	retriever   *fakeRetriever
	synthesizer *fakeSynthesizer
	auditor     *fakeAuditor
	coordinator *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		governor: &fakeGovernor{decision: quota.Decision{Allowed: true, Count: 1, Limit: 50}},
		router: &fakeRouter{out: &core.RouterOutput{FunctionCalls: []core.FunctionCall{
			{Name: core.FunctionUnivSearch, Params: core.Params{"university": "KAIST"}},
		}}},
		retriever:   &fakeRetriever{},
		synthesizer: &fakeSynthesizer{},
		auditor:     &fakeAuditor{},
	}
	c, err := NewCoordinator(f.governor, f.router, f.retriever, f.synthesizer,
		WithAuditor(f.auditor),
		WithRequestIDs(func() string { return "req-1" }))
	require.NoError(t, err)
	f.coordinator = c
	return f
}

func request() Request {
	return Request{Message: "KAIST dorms?", Identity: core.UserIdentity("u-1")}
}

func TestNewCoordinator_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewCoordinator(nil, f.router, f.retriever, f.synthesizer)
	assert.ErrorIs(t, err, ErrGovernorRequired)
	_, err = NewCoordinator(f.governor, nil, f.retriever, f.synthesizer)
	assert.ErrorIs(t, err, ErrRouterRequired)
	_, err = NewCoordinator(f.governor, f.router, nil, f.synthesizer)
	assert.ErrorIs(t, err, ErrRetrieverRequired)
	_, err = NewCoordinator(f.governor, f.router, f.retriever, nil)
	assert.ErrorIs(t, err, ErrSynthesizerRequired)
}

func TestHandle_HappyPath(t *testing.T) {
	f := newFixture(t)

	res := f.coordinator.Handle(context.Background(), request())

	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, StageDone, res.State)
	assert.Equal(t, []Stage{StageReceived, StageQuotaChecked, StageRouted, StageRetrieved, StageSynthesized, StageDone}, res.Stages)
	assert.Nil(t, res.Failure)
	require.NotNil(t, res.Quota)
	assert.Equal(t, 1, res.Quota.Count)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, "answer to KAIST dorms?", res.Answer.Text)

	assert.EqualValues(t, 1, f.auditor.routerAudits.Load())
	assert.EqualValues(t, 1, f.auditor.resultAudits.Load())
	assert.Equal(t, "req-1", f.auditor.requestID.Load())
}

func TestHandle_QuotaExceeded(t *testing.T) {
	f := newFixture(t)
	f.governor.decision = quota.Decision{Allowed: false, Count: 50, Limit: 50}

	res := f.coordinator.Handle(context.Background(), request())

	assert.Equal(t, StageError, res.State)
	assert.Equal(t, []Stage{StageReceived, StageError}, res.Stages)
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeQuotaExceeded, res.Failure.Code)
	assert.Equal(t, StageReceived, res.Failure.Stage)
	assert.Contains(t, res.Failure.Message, "50 of 50")
	assert.ErrorIs(t, res.Failure, core.ErrQuotaExceeded)

	assert.Zero(t, f.router.calls.Load())
	assert.Zero(t, f.retriever.calls.Load())
	assert.Zero(t, f.synthesizer.calls.Load())
	assert.Zero(t, f.auditor.routerAudits.Load())
}

func TestHandle_FailOpenProceeds(t *testing.T) {
	f := newFixture(t)
	f.governor.decision = quota.Decision{Allowed: true, FailOpen: true, Limit: 50, Err: errors.New("db down")}

	res := f.coordinator.Handle(context.Background(), request())

	assert.Equal(t, StageDone, res.State)
	assert.True(t, res.Quota.FailOpen)
}

func TestHandle_InvalidIdentity(t *testing.T) {
	f := newFixture(t)

	res := f.coordinator.Handle(context.Background(), Request{Message: "hi", Identity: core.UserIdentity("  ")})

	assert.Equal(t, StageError, res.State)
	assert.Equal(t, CodeInvalidIdentity, res.Failure.Code)
	assert.ErrorIs(t, res.Failure, core.ErrInvalidIdentity)
}

func TestHandle_RouterErrorStillAdvances(t *testing.T) {
	f := newFixture(t)
	f.router.out = &core.RouterOutput{FunctionCalls: []core.FunctionCall{}, Err: core.ErrRouterParse}

	res := f.coordinator.Handle(context.Background(), request())

	assert.Equal(t, StageDone, res.State)
	assert.ErrorIs(t, res.Router.Err, core.ErrRouterParse)
	assert.EqualValues(t, 1, f.retriever.calls.Load())
	assert.Empty(t, f.retriever.got)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
}

func TestHandle_RouterUpstreamFailureDegradesAnswer(t *testing.T) {
	f := newFixture(t)
	routerErr := fmt.Errorf("%w: %w", core.ErrUpstreamProvider, errors.New("connection refused"))
	f.router.out = &core.RouterOutput{FunctionCalls: []core.FunctionCall{}, Err: routerErr}

	res := f.coordinator.Handle(context.Background(), request())

	assert.Equal(t, StageDone, res.State)
	assert.Nil(t, res.Failure)
	require.NotNil(t, res.Answer)
	assert.True(t, res.Answer.Degraded)
	assert.Equal(t, synthesis.FallbackAnswer, res.Answer.Text)
	assert.ErrorIs(t, res.Answer.Err, core.ErrUpstreamProvider)
	assert.Empty(t, res.Answer.Sources)
	assert.Zero(t, f.synthesizer.calls.Load())
}

func TestHandle_RouterParseFailureUsesSynthesizer(t *testing.T) {
	f := newFixture(t)
	f.router.out = &core.RouterOutput{FunctionCalls: []core.FunctionCall{}, Err: core.ErrRouterParse}

	res := f.coordinator.Handle(context.Background(), request())

	assert.Equal(t, StageDone, res.State)
	assert.EqualValues(t, 1, f.synthesizer.calls.Load())
	assert.False(t, res.Answer.Degraded)
}

func TestHandle_NilRouterOutput(t *testing.T) {
	f := newFixture(t)
	f.router.out = nil

	res := f.coordinator.Handle(context.Background(), request())

	assert.Equal(t, StageDone, res.State)
	assert.NotNil(t, res.Router.FunctionCalls)
}

func TestHandle_StagePanic(t *testing.T) {
	f := newFixture(t)
	f.retriever.execute = func(calls []core.FunctionCall) core.ResultSet {
		panic("index corrupted")
	}

	res := f.coordinator.Handle(context.Background(), request())

	assert.Equal(t, StageError, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeInternal, res.Failure.Code)
	assert.Equal(t, StageRouted, res.Failure.Stage)
	assert.Contains(t, res.Failure.Message, "index corrupted")
	assert.Zero(t, f.synthesizer.calls.Load())
}

func TestHandle_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.coordinator.Handle(ctx, request())

	assert.Equal(t, StageError, res.State)
	assert.Equal(t, CodeCancelled, res.Failure.Code)
	assert.Equal(t, StageReceived, res.Failure.Stage)
	assert.Zero(t, f.governor.calls.Load())
}

func TestHandle_CancelledDuringRouting(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.router.route = func(ctx context.Context) *core.RouterOutput {
		cancel()
		return &core.RouterOutput{FunctionCalls: []core.FunctionCall{}, Err: ctx.Err()}
	}

	res := f.coordinator.Handle(ctx, request())

	assert.Equal(t, StageError, res.State)
	assert.Equal(t, CodeCancelled, res.Failure.Code)
	assert.Equal(t, StageRouted, res.Failure.Stage)
	assert.ErrorIs(t, res.Failure, context.Canceled)
	assert.Zero(t, f.retriever.calls.Load())
	assert.EqualValues(t, 1, f.auditor.routerAudits.Load())
}

func TestRunPipeline_SkipsQuota(t *testing.T) {
	f := newFixture(t)

	res := f.coordinator.RunPipeline(context.Background(), "KAIST dorms?", nil)

	assert.Equal(t, StageDone, res.State)
	assert.Equal(t, []Stage{StageReceived, StageRouted, StageRetrieved, StageSynthesized, StageDone}, res.Stages)
	assert.Nil(t, res.Quota)
	assert.Zero(t, f.governor.calls.Load())
}

func TestWithoutAuditor(t *testing.T) {
	f := newFixture(t)
	c, err := NewCoordinator(f.governor, f.router, f.retriever, f.synthesizer)
	require.NoError(t, err)

	res := c.Handle(context.Background(), request())
	assert.Equal(t, StageDone, res.State)
	assert.NotEmpty(t, res.RequestID)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "QUOTA_CHECKED", StageQuotaChecked.String())
	assert.Equal(t, "ERROR", StageError.String())
	assert.True(t, StageDone.Terminal())
	assert.False(t, StageRouted.Terminal())
}

func TestFailureError(t *testing.T) {
	f := &Failure{Stage: StageReceived, Code: CodeQuotaExceeded, Message: "limit", Err: core.ErrQuotaExceeded}
	assert.Equal(t, "quota_exceeded at RECEIVED: limit", f.Error())
	assert.ErrorIs(t, f, core.ErrQuotaExceeded)
}
