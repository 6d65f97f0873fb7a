// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package admissions wires the admissions question-answering pipeline.
package admissions

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/ai/openai"
	"github.com/poiesic/admissions/config"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/evaluator"
	"github.com/poiesic/admissions/ingestion"
	"github.com/poiesic/admissions/pipeline"
	"github.com/poiesic/admissions/quota"
	"github.com/poiesic/admissions/retrieval"
	"github.com/poiesic/admissions/router"
	"github.com/poiesic/admissions/storage"
	"github.com/poiesic/admissions/storage/badger"
	"github.com/poiesic/admissions/storage/sqlite"
	"github.com/poiesic/admissions/synthesis"
)

// Service owns the stores, the AI provider and every pipeline component.
type Service struct {
	cfg         *config.Config
	repos       *badger.Repositories
	usage       storage.UsageRepository
	provider    ai.AIProvider
	governor    *quota.Governor
	router      *router.Router
	gateway     *retrieval.Gateway
	evaluator   *evaluator.Evaluator
	auditor     *evaluator.Auditor
	auditLog    *evaluator.LogSink
	synthesizer *synthesis.Synthesizer
	coordinator *pipeline.Coordinator
	closed      atomic.Bool
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	provider    ai.AIProvider
	memoryStore bool
	clock       func() time.Time
	logger      *slog.Logger
}

// WithProvider uses provider instead of building one from the AI configuration.
// The service takes ownership and closes it.
func WithProvider(provider ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithMemoryStore keeps chunks, usage and audits in memory.
func WithMemoryStore() ServiceOption {
	return func(o *serviceOptions) {
		o.memoryStore = true
	}
}

// WithClock overrides the quota clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.clock = now
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService opens the stores named by cfg and wires the pipeline.
func NewService(cfg *config.Config, opts ...ServiceOption) (svc *Service, err error) {
	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, logger: options.logger.With("component", "service")}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	storePath := ""
	if !options.memoryStore {
		if err := cfg.EnsureDirs(); err != nil {
			return nil, err
		}
		storePath = cfg.ChunkDBPath()
	}
	if s.repos, err = badger.OpenRepositories(storePath); err != nil {
		return nil, err
	}

	s.usage = s.repos.Usage
	if cfg.UsageBackend == config.UsageSQLite && !options.memoryStore {
		if s.usage, err = sqlite.NewUsageRepository(cfg.SQLitePath); err != nil {
			return nil, err
		}
	}

	s.provider = options.provider
	if s.provider == nil {
		if s.provider, err = openai.NewProvider(cfg.AI); err != nil {
			return nil, err
		}
	}

	if err := s.wire(options); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) wire(options *serviceOptions) (err error) {
	cfg := s.cfg
	logger := options.logger

	quotaOpts := []quota.Option{
		quota.WithLogger(logger),
		quota.WithLimits(cfg.UserDailyLimit, cfg.AnonymousDailyLimit),
		quota.WithLocation(cfg.Location),
	}
	if options.clock != nil {
		quotaOpts = append(quotaOpts, quota.WithClock(options.clock))
	}
	if s.governor, err = quota.NewGovernor(s.usage, quotaOpts...); err != nil {
		return err
	}

	if s.router, err = router.NewRouter(s.provider.Generator(),
		router.WithLogger(logger),
		router.WithHistoryTurns(cfg.HistoryTurns)); err != nil {
		return err
	}

	if s.gateway, err = retrieval.NewGateway(s.repos.Chunks, s.provider.Embedder(),
		retrieval.WithLogger(logger),
		retrieval.WithPoolSize(cfg.RetrievalWorkers)); err != nil {
		return err
	}

	if s.synthesizer, err = synthesis.NewSynthesizer(s.provider.Generator(),
		synthesis.WithLogger(logger),
		synthesis.WithHistoryTurns(cfg.HistoryTurns)); err != nil {
		return err
	}

	if s.evaluator, err = evaluator.NewEvaluator(s.provider.Generator(), evaluator.WithLogger(logger)); err != nil {
		return err
	}
	sinks := []evaluator.Sink{evaluator.NewRepositorySink(s.repos.Audit)}
	if cfg.AuditLogPath != "" && !options.memoryStore {
		s.auditLog = evaluator.NewRotatingLogSink(evaluator.DefaultLogFileConfig(cfg.AuditLogPath))
		sinks = append(sinks, s.auditLog)
	}
	if s.auditor, err = evaluator.NewAuditor(s.evaluator,
		evaluator.WithAuditLogger(logger),
		evaluator.WithSinks(sinks...),
		evaluator.WithAuditWorkers(cfg.EvaluatorWorkers),
		evaluator.WithAuditTimeout(cfg.AuditTimeout)); err != nil {
		return err
	}

	s.coordinator, err = pipeline.NewCoordinator(s.governor, s.router, s.gateway, s.synthesizer,
		pipeline.WithLogger(logger),
		pipeline.WithAuditor(s.auditor))
	return err
}

// Handle answers a question from an identified caller, enforcing its quota.
func (s *Service) Handle(ctx context.Context, req pipeline.Request) *pipeline.Result {
	return s.coordinator.Handle(ctx, req)
}

// RunPipeline answers a question without a quota check.
func (s *Service) RunPipeline(ctx context.Context, message string, history []core.ChatTurn) *pipeline.Result {
	return s.coordinator.RunPipeline(ctx, message, history)
}

// Route returns the router's function calls for message.
func (s *Service) Route(ctx context.Context, message string, history []core.ChatTurn) *core.RouterOutput {
	return s.router.Route(ctx, message, history)
}

// Execute runs function calls against the chunk store.
func (s *Service) Execute(ctx context.Context, calls []core.FunctionCall) core.ResultSet {
	return s.gateway.Execute(ctx, calls)
}

// EvaluateRouterOutput audits a router decision synchronously.
func (s *Service) EvaluateRouterOutput(ctx context.Context, question string, out *core.RouterOutput) *core.EvaluationReport {
	return s.evaluator.EvaluateRouterOutput(ctx, question, out)
}

// EvaluateFunctionResult audits retrieval results synchronously.
func (s *Service) EvaluateFunctionResult(ctx context.Context, question string, calls []core.FunctionCall, results core.ResultSet) *core.EvaluationReport {
	return s.evaluator.EvaluateFunctionResult(ctx, question, calls, results)
}

// CheckAndIncrementUsage counts one request for id.
func (s *Service) CheckAndIncrementUsage(ctx context.Context, id core.Identity) (quota.Decision, error) {
	return s.governor.CheckAndIncrement(ctx, id)
}

// PeekUsage reports today's usage for id without counting a request.
func (s *Service) PeekUsage(ctx context.Context, id core.Identity) (quota.Decision, error) {
	return s.governor.Peek(ctx, id)
}

// LoadDocuments embeds and stores pre-chunked documents.
func (s *Service) LoadDocuments(ctx context.Context, docs []ingestion.Document, opts ...ingestion.Option) (ingestion.LoadStats, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(s.logger)}, opts...)
	loader, err := ingestion.NewLoader(s.repos.Chunks, s.provider.Embedder(), opts...)
	if err != nil {
		return ingestion.LoadStats{}, err
	}
	defer loader.Release()
	return loader.Load(ctx, docs)
}

// CountChunks returns the number of stored chunks.
func (s *Service) CountChunks(ctx context.Context) (int, error) {
	return s.repos.Chunks.CountChunks(ctx)
}

// ListReports returns up to limit evaluation reports, newest first.
func (s *Service) ListReports(ctx context.Context, limit int) ([]*core.EvaluationReport, error) {
	return s.repos.Audit.ListReports(ctx, limit)
}

// WaitForAudits blocks until scheduled audits have been recorded.
func (s *Service) WaitForAudits() {
	if s.auditor != nil {
		s.auditor.Wait()
	}
}

// Close waits for in-flight audits, then releases components and stores.
// Calls after the first are no-ops.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if s.auditor != nil {
		timeout := s.cfg.AuditTimeout
		if err := s.auditor.Close(timeout); err != nil {
			s.logger.Error("error closing auditor", "err", err)
			errs = append(errs, err)
		}
	}
	if s.auditLog != nil {
		if err := s.auditLog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.gateway != nil {
		s.gateway.Release()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
		}
	}
	if s.usage != nil && s.repos != nil && s.usage != s.repos.Usage {
		if err := s.usage.Close(); err != nil {
			s.logger.Error("error closing usage store", "err", err)
			errs = append(errs, err)
		}
	}
	if s.repos != nil {
		if err := s.repos.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
