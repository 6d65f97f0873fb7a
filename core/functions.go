package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

// FunctionName is the closed set of retrieval functions the Router may select.
type FunctionName string

const (
	// FunctionUnivSearch looks up university and department information.
	FunctionUnivSearch FunctionName = "univ_search"
	// FunctionScoreConsult matches an applicant score to admission outcomes.
	FunctionScoreConsult FunctionName = "score_consult"
	// FunctionAdmissionGuide answers general rules, schedules and document requirements.
	FunctionAdmissionGuide FunctionName = "admission_guide"
)

// FunctionNames lists every supported function in manifest order.
var FunctionNames = []FunctionName{
	FunctionUnivSearch,
	FunctionScoreConsult,
	FunctionAdmissionGuide,
}

// Valid reports whether the name belongs to the supported function set.
func (f FunctionName) Valid() bool {
	_, ok := capabilities[f]
	return ok
}

// ParamType is the JSON type of a function parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
)

// ParamSpec describes one function parameter.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
	// MetadataKey is the chunk metadata key this parameter filters on, if any.
	MetadataKey string
}

// Capability describes a function to the Router and fixes its result ceiling.
type Capability struct {
	Name        FunctionName
	Description string
	Params      []ParamSpec
	// Limit is the fixed top-N ceiling for similarity search.
	Limit int
}

var capabilities = map[FunctionName]Capability{
	FunctionUnivSearch: {
		Name:        FunctionUnivSearch,
		Description: "Search information about a specific university or department: programs, quotas, campus, tuition, selection methods.",
		Params: []ParamSpec{
			{Name: "university", Type: ParamString, Required: true, Description: "University name", MetadataKey: "university"},
			{Name: "department", Type: ParamString, Description: "Department or major, if mentioned"},
			{Name: "query", Type: ParamString, Description: "What the user wants to know"},
		},
		Limit: 5,
	},
	FunctionScoreConsult: {
		Name:        FunctionScoreConsult,
		Description: "Consult admission chances for a given exam score or grade, optionally within a track or region.",
		Params: []ParamSpec{
			{Name: "score", Type: ParamNumber, Required: true, Description: "Applicant score or grade average"},
			{Name: "track", Type: ParamString, Description: "Academic track, e.g. humanities or sciences", MetadataKey: "track"},
			{Name: "region", Type: ParamString, Description: "Preferred region", MetadataKey: "region"},
			{Name: "query", Type: ParamString, Description: "Additional context for the consultation"},
		},
		Limit: 8,
	},
	FunctionAdmissionGuide: {
		Name:        FunctionAdmissionGuide,
		Description: "General admission rules, schedules, required documents and application procedures.",
		Params: []ParamSpec{
			{Name: "topic", Type: ParamString, Required: true, Description: "Admission topic, e.g. schedule, documents, early admission"},
			{Name: "year", Type: ParamString, Description: "Admission year", MetadataKey: "year"},
		},
		Limit: 5,
	},
}

// CapabilityFor returns the capability of a supported function.
func CapabilityFor(name FunctionName) (Capability, bool) {
	c, ok := capabilities[name]
	return c, ok
}

// Capabilities returns the manifest in FunctionNames order.
func Capabilities() []Capability {
	out := make([]Capability, 0, len(FunctionNames))
	for _, name := range FunctionNames {
		out = append(out, capabilities[name])
	}
	return out
}

// Fingerprint returns a canonical digest of a payload. Keys are sorted and
// numbers normalized per RFC 8785, so equal payloads always hash the same.
func Fingerprint(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Wire returns the JSON shape of a call as the Router emits it.
func (c FunctionCall) Wire() map[string]any {
	params := c.Params
	if params == nil {
		params = Params{}
	}
	return map[string]any{
		"name":   string(c.Name),
		"params": map[string]any(params),
	}
}

// DescribeCapabilities renders the capability manifest as an indented list for prompts.
func DescribeCapabilities() string {
	var b strings.Builder
	for _, c := range Capabilities() {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		for _, p := range c.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    - %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
