package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/pipeline"
	"github.com/urfave/cli/v2"
)

// identityFromFlags resolves --user or --ip. Exactly one must be set.
func identityFromFlags(c *cli.Context) (core.Identity, error) {
	user := strings.TrimSpace(c.String("user"))
	addr := strings.TrimSpace(c.String("ip"))
	switch {
	case user != "" && addr != "":
		return core.Identity{}, fmt.Errorf("only one of --user or --ip may be set")
	case user != "":
		return core.UserIdentity(user), nil
	case addr != "":
		return core.AddressIdentity(addr), nil
	default:
		return core.Identity{}, fmt.Errorf("one of --user or --ip is required")
	}
}

// parseTurns converts "role:text" values into chat history.
func parseTurns(values []string) ([]core.ChatTurn, error) {
	turns := make([]core.ChatTurn, 0, len(values))
	for _, v := range values {
		role, text, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("invalid turn %q: expected role:text", v)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("invalid turn %q: text is empty", v)
		}
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "user":
			turns = append(turns, core.ChatTurn{Role: core.RoleUser, Text: text})
		case "assistant":
			turns = append(turns, core.ChatTurn{Role: core.RoleAssistant, Text: text})
		default:
			return nil, fmt.Errorf("invalid turn %q: role must be user or assistant", v)
		}
	}
	return turns, nil
}

func pipelineRequest(question string, history []core.ChatTurn, id core.Identity) pipeline.Request {
	return pipeline.Request{
		Message:  question,
		History:  history,
		Identity: id,
	}
}

func printAnswer(w io.Writer, answer *core.Answer) {
	if answer == nil {
		return
	}
	fmt.Fprintln(w, answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for _, src := range answer.Sources {
			if src.Title != "" && src.Title != src.DocumentID {
				fmt.Fprintf(w, "  - %s (%s)\n", src.Title, src.DocumentID)
			} else {
				fmt.Fprintf(w, "  - %s\n", src.DocumentID)
			}
		}
	}
	if answer.Degraded {
		fmt.Fprintln(w, "(degraded answer)")
	}
}

// formatParams renders params as key=value pairs in key order.
func formatParams(p core.Params) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, p.String(k)))
	}
	return strings.Join(parts, " ")
}
