package retrieval

import (
	"context"
	"strings"

	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
)

// Handler executes one function call against the chunk store.
type Handler func(ctx context.Context, call core.FunctionCall) ([]*core.ChunkMatch, error)

// similarityHandler builds a handler that turns the call's parameters into a
// search query plus metadata filter and caps results at the capability limit.
func similarityHandler(s *Searcher, capability core.Capability) Handler {
	return func(ctx context.Context, call core.FunctionCall) ([]*core.ChunkMatch, error) {
		query, filter := buildQuery(capability, call.Params)
		return s.FindSimilar(ctx, query, keywords(capability, call.Params), filter, capability.Limit)
	}
}

// buildQuery renders parameters in manifest order as "name: value" lines.
// Parameters with a metadata key also become filter entries.
func buildQuery(capability core.Capability, params core.Params) (string, storage.Filter) {
	var b strings.Builder
	filter := storage.Filter{}
	for _, spec := range capability.Params {
		v := params.String(spec.Name)
		if v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(spec.Name)
		b.WriteString(": ")
		b.WriteString(v)
		if spec.MetadataKey != "" {
			filter[spec.MetadataKey] = v
		}
	}
	return b.String(), filter
}

// keywords joins the free-text parameter values. Filter values and
// numeric parameters are left out.
func keywords(capability core.Capability, params core.Params) string {
	var words []string
	for _, spec := range capability.Params {
		if spec.MetadataKey != "" || spec.Type != core.ParamString {
			continue
		}
		if v := params.String(spec.Name); v != "" {
			words = append(words, v)
		}
	}
	return strings.Join(words, " ")
}

// defaultHandlers maps every supported function to its handler.
func defaultHandlers(s *Searcher) map[core.FunctionName]Handler {
	univ, _ := core.CapabilityFor(core.FunctionUnivSearch)
	score, _ := core.CapabilityFor(core.FunctionScoreConsult)
	guide, _ := core.CapabilityFor(core.FunctionAdmissionGuide)

	return map[core.FunctionName]Handler{
		core.FunctionUnivSearch:     similarityHandler(s, univ),
		core.FunctionScoreConsult:   similarityHandler(s, score),
		core.FunctionAdmissionGuide: similarityHandler(s, guide),
	}
}
