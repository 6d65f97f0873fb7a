package pipeline

import "fmt"

// Stage is a state of the request state machine.
type Stage int

const (
	StageReceived Stage = iota + 1
	StageQuotaChecked
	StageRouted
	StageRetrieved
	StageSynthesized
	StageDone
	StageError
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "RECEIVED"
	case StageQuotaChecked:
		return "QUOTA_CHECKED"
	case StageRouted:
		return "ROUTED"
	case StageRetrieved:
		return "RETRIEVED"
	case StageSynthesized:
		return "SYNTHESIZED"
	case StageDone:
		return "DONE"
	case StageError:
		return "ERROR"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError
}

// Failure codes.
const (
	CodeQuotaExceeded   = "quota_exceeded"
	CodeInvalidIdentity = "invalid_identity"
	CodeCancelled       = "cancelled"
	CodeInternal        = "internal"
)

// Failure describes why a request ended in StageError.
// Stage is the last state reached before the failure.
type Failure struct {
	Stage   Stage
	Code    string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s at %s: %s", f.Code, f.Stage, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
