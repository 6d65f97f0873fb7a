package evaluator

import "errors"

var (
	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrEvaluatorRequired is returned when an auditor is created without an evaluator.
	ErrEvaluatorRequired = errors.New("evaluator required")

	// ErrAuditorClosed is returned when an audit is submitted after Close.
	ErrAuditorClosed = errors.New("auditor closed")
)
