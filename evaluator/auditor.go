package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/admissions/core"
)

const (
	// DefaultAuditWorkers is the number of concurrent evaluations.
	DefaultAuditWorkers = 8
	// DefaultAuditTimeout bounds one evaluation including its sinks.
	DefaultAuditTimeout = 2 * time.Minute
)

// Auditor runs evaluations in the background and hands reports to sinks.
// Submitting never blocks the caller: when every worker is busy the audit
// is dropped and logged.
type Auditor struct {
	evaluator *Evaluator
	sinks     []Sink
	pool      *ants.Pool
	poolSize  int
	timeout   time.Duration
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
	dropped   atomic.Int64
	logger    *slog.Logger
}

// AuditorOption configures an Auditor.
type AuditorOption func(*Auditor) error

// WithAuditLogger sets a custom logger.
// Default is slog.Default().
func WithAuditLogger(logger *slog.Logger) AuditorOption {
	return func(a *Auditor) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// WithSinks adds report sinks.
func WithSinks(sinks ...Sink) AuditorOption {
	return func(a *Auditor) error {
		for _, s := range sinks {
			if s != nil {
				a.sinks = append(a.sinks, s)
			}
		}
		return nil
	}
}

// WithAuditWorkers sets the number of concurrent evaluations.
func WithAuditWorkers(n int) AuditorOption {
	return func(a *Auditor) error {
		if n < 1 {
			n = 1
		}
		a.poolSize = n
		return nil
	}
}

// WithAuditTimeout bounds each evaluation.
func WithAuditTimeout(d time.Duration) AuditorOption {
	return func(a *Auditor) error {
		if d > 0 {
			a.timeout = d
		}
		return nil
	}
}

// NewAuditor creates an auditor around evaluator.
func NewAuditor(evaluator *Evaluator, opts ...AuditorOption) (*Auditor, error) {
	if evaluator == nil {
		return nil, ErrEvaluatorRequired
	}

	a := &Auditor{
		evaluator: evaluator,
		poolSize:  DefaultAuditWorkers,
		timeout:   DefaultAuditTimeout,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "auditor")

	pool, err := ants.NewPool(a.poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	a.pool = pool

	return a, nil
}

// AuditRouterOutput schedules an audit of a router decision and returns immediately.
func (a *Auditor) AuditRouterOutput(ctx context.Context, requestID, question string, out *core.RouterOutput) error {
	return a.submit(ctx, requestID, core.ReportRouterOutput, func(ctx context.Context) *core.EvaluationReport {
		return a.evaluator.EvaluateRouterOutput(ctx, question, out)
	})
}

// AuditFunctionResult schedules an audit of retrieval results and returns immediately.
func (a *Auditor) AuditFunctionResult(ctx context.Context, requestID, question string, calls []core.FunctionCall, results core.ResultSet) error {
	return a.submit(ctx, requestID, core.ReportFunctionResult, func(ctx context.Context) *core.EvaluationReport {
		return a.evaluator.EvaluateFunctionResult(ctx, question, calls, results)
	})
}

// submit detaches the audit from the request context so it outlives
// cancellation of the request, bounded by the audit timeout.
func (a *Auditor) submit(ctx context.Context, requestID string, kind core.ReportKind, evaluate func(context.Context) *core.EvaluationReport) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrAuditorClosed
	}
	a.wg.Add(1)
	a.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	err := a.pool.Submit(func() {
		defer a.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				a.logger.Error("audit task panicked", "request_id", requestID, "kind", kind, "panic", p)
			}
		}()

		taskCtx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()

		report := evaluate(taskCtx)
		report.RequestID = requestID
		a.record(taskCtx, report)
	})
	if err != nil {
		a.wg.Done()
		a.dropped.Add(1)
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrAuditorClosed
		}
		a.logger.Warn("audit dropped", "request_id", requestID, "kind", kind, "err", err)
		return err
	}
	return nil
}

func (a *Auditor) record(ctx context.Context, report *core.EvaluationReport) {
	for _, sink := range a.sinks {
		if err := sink.Record(ctx, report); err != nil {
			a.logger.Error("error recording evaluation report",
				"request_id", report.RequestID, "report_id", report.Id, "err", err)
		}
	}
}

// Dropped returns the number of audits rejected because the pool was saturated or closed.
func (a *Auditor) Dropped() int64 {
	return a.dropped.Load()
}

// Wait blocks until every scheduled audit has finished.
func (a *Auditor) Wait() {
	a.wg.Wait()
}

// Close stops accepting audits and waits up to timeout for in-flight audits.
// It returns context.DeadlineExceeded when audits were still running.
func (a *Auditor) Close(timeout time.Duration) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		a.logger.Warn("timed out waiting for audits", "timeout", timeout)
		err = context.DeadlineExceeded
	}
	a.pool.Release()
	return err
}
