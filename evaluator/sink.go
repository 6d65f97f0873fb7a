package evaluator

import (
	"context"
	"io"
	"log/slog"

	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink receives finished evaluation reports.
type Sink interface {
	Record(ctx context.Context, report *core.EvaluationReport) error
}

// RepositorySink persists reports to an audit repository.
type RepositorySink struct {
	repo storage.AuditRepository
}

// NewRepositorySink creates a sink writing to repo.
func NewRepositorySink(repo storage.AuditRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Record(ctx context.Context, report *core.EvaluationReport) error {
	return s.repo.SaveReport(ctx, report)
}

// LogSink writes each report as one structured log record.
type LogSink struct {
	logger *slog.Logger
	closer io.Closer
}

// NewLogSink writes reports through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// LogFileConfig controls rotation of the audit log file.
type LogFileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultLogFileConfig returns rotation settings for filename.
func DefaultLogFileConfig(filename string) LogFileConfig {
	return LogFileConfig{
		Filename:   filename,
		MaxSizeMB:  15,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// NewRotatingLogSink writes reports as JSON lines to a size-rotated file.
func NewRotatingLogSink(cfg LogFileConfig) *LogSink {
	file := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &LogSink{
		logger: slog.New(slog.NewJSONHandler(file, nil)),
		closer: file,
	}
}

func (s *LogSink) Record(ctx context.Context, report *core.EvaluationReport) error {
	level := slog.LevelInfo
	if report.Failed {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "evaluation report",
		slog.String("id", report.Id),
		slog.String("request_id", report.RequestID),
		slog.String("kind", report.Kind.String()),
		slog.String("question", report.Question),
		slog.String("digest", report.Digest),
		verdictAttr("format", report.Format),
		verdictAttr("function_selection", report.FunctionSelection),
		verdictAttr("parameter_soundness", report.ParameterSoundness),
		slog.String("comment", report.Comment),
		slog.Bool("failed", report.Failed),
		slog.Time("created_at", report.CreatedAt),
	)
	return nil
}

// Close closes the underlying log file, if any.
func (s *LogSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func verdictAttr(name string, v core.Verdict) slog.Attr {
	return slog.Group(name,
		slog.Bool("valid", v.Valid),
		slog.String("rationale", v.Rationale))
}
