package core

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Role identifies the author of a chat turn.
type Role int

const (
	// RoleUser is the person asking about admissions.
	RoleUser Role = iota + 1
	// RoleAssistant is a previously generated answer.
	RoleAssistant
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ChatTurn is one message of the conversation history.
// Router and Synthesizer read history but never modify it.
type ChatTurn struct {
	Role Role
	Text string
}

// RecentTurns returns at most n turns from the end of history.
// n <= 0 returns nil.
func RecentTurns(history []ChatTurn, n int) []ChatTurn {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// Params holds the arguments of a function call. Values are scalars
// (string, float64, bool) or nil as decoded from the router's JSON.
type Params map[string]any

// String returns the trimmed string value for key, formatting numbers and booleans.
// Missing or nil values return "".
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}

// Float returns the numeric value for key. Numeric strings are accepted.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// FunctionCall is a single retrieval request chosen by the Router.
// It is immutable once created and consumed exactly once by the Retrieval Gateway.
type FunctionCall struct {
	Name   FunctionName
	Params Params
}

// TokenUsage reports provider token accounting for one generation.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add returns the sum of two usages.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// RouterOutput is the Router's decision for a single request.
// Err is non-nil when the model could not be reached or its output could not
// be parsed; FunctionCalls is empty in that case.
type RouterOutput struct {
	FunctionCalls []FunctionCall
	RawText       string
	Usage         TokenUsage
	Err           error
}

// Chunk is a unit of previously ingested document text with its embedding.
// Id comes from a database sequence, so it also records insertion order.
type Chunk struct {
	Id          ID
	ContentHash ID
	DocumentID  string
	Source      string
	Text        string
	Vector      []float32
	Metadata    map[string]string
	InsertedAt  time.Time
}

// ChunkMatch is a chunk returned from similarity search with its score.
type ChunkMatch struct {
	Chunk *Chunk
	Score float32
}

// Source identifies a document referenced by retrieved chunks.
type Source struct {
	DocumentID string
	Title      string
}

// CallResult is the outcome of one function call.
// Exactly one of Matches (possibly empty) or Err is meaningful.
type CallResult struct {
	Index    int
	Function FunctionName
	Params   Params
	Matches  []*ChunkMatch
	Sources  []Source
	Count    int
	Err      error
}

// Failed reports whether the call produced an error entry.
func (r *CallResult) Failed() bool {
	return r != nil && r.Err != nil
}

// ResultSet maps call keys (see CallKey) to per-call results.
type ResultSet map[string]*CallResult

// CallKey returns the result key for the call at index i.
func CallKey(i int) string {
	return fmt.Sprintf("call_%d", i)
}

// Ordered returns results sorted by call index.
func (rs ResultSet) Ordered() []*CallResult {
	ordered := make([]*CallResult, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			ordered = append(ordered, r)
		}
	}
	slices.SortFunc(ordered, func(a, b *CallResult) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return ordered
}

// ReportKind distinguishes what an evaluation report audits.
type ReportKind int

const (
	// ReportRouterOutput audits a router decision.
	ReportRouterOutput ReportKind = iota + 1
	// ReportFunctionResult audits retrieval results.
	ReportFunctionResult
)

// String returns the wire name of the report kind.
func (k ReportKind) String() string {
	switch k {
	case ReportRouterOutput:
		return "router_output"
	case ReportFunctionResult:
		return "function_result"
	default:
		return fmt.Sprintf("report_kind(%d)", int(k))
	}
}

// Verdict is the outcome for one evaluation dimension.
type Verdict struct {
	Valid     bool
	Rationale string
}

// EvaluationReport is the Evaluator's audit of one pipeline stage.
// It is observational only and never feeds back into the pipeline.
type EvaluationReport struct {
	Id                 string
	RequestID          string
	Kind               ReportKind
	Question           string
	Digest             string // canonical digest of the evaluated payload
	Format             Verdict
	FunctionSelection  Verdict
	ParameterSoundness Verdict
	Comment            string
	Failed             bool // evaluation itself failed; all verdicts are false
	CreatedAt          time.Time
}

// IdentityKind selects the quota class of a caller.
type IdentityKind int

const (
	// IdentityUser is an externally authenticated user id.
	IdentityUser IdentityKind = iota + 1
	// IdentityAddress is a best-effort network address of an anonymous caller.
	IdentityAddress
)

// String returns the key prefix of the identity kind.
func (k IdentityKind) String() string {
	switch k {
	case IdentityUser:
		return "user"
	case IdentityAddress:
		return "ip"
	default:
		return fmt.Sprintf("identity(%d)", int(k))
	}
}

// Identity is either a user id or an address, never both.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// UserIdentity returns the identity of an authenticated user.
func UserIdentity(userID string) Identity {
	return Identity{Kind: IdentityUser, Value: strings.TrimSpace(userID)}
}

// AddressIdentity returns the identity of an anonymous caller.
func AddressIdentity(addr string) Identity {
	return Identity{Kind: IdentityAddress, Value: strings.TrimSpace(addr)}
}

// Key returns the storage key of the identity, e.g. "user:42" or "ip:10.0.0.1".
func (i Identity) Key() string {
	return i.Kind.String() + ":" + i.Value
}

// UsageRecord tracks daily request volume for one identity.
// ResetDate is a calendar date formatted with DateLayout.
type UsageRecord struct {
	Identity  Identity
	Count     int
	ResetDate string
	UpdatedAt time.Time
}

// DateLayout is the calendar date format used for ResetDate.
const DateLayout = "2006-01-02"

// Answer is the Synthesizer's final response.
type Answer struct {
	Text     string
	Sources  []Source
	Usage    TokenUsage
	Degraded bool  // true when the answer is a fallback rather than model output
	Err      error // upstream failure behind a degraded answer
}
