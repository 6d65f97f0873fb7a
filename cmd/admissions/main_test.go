package main

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func quietApp() *cli.App {
	app := newApp()
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	return app
}

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	names := make([]string, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.ElementsMatch(t, []string{"ask", "route", "load", "usage", "audit"}, names)
}

func TestAskCommandFlags(t *testing.T) {
	t.Run("question is required", func(t *testing.T) {
		err := quietApp().Run([]string{"admissions", "ask", "--user", "u1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "question is required")
	})

	t.Run("identity is required", func(t *testing.T) {
		err := quietApp().Run([]string{"admissions", "ask", "what is the deadline?"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--user or --ip")
	})

	t.Run("user and ip are exclusive", func(t *testing.T) {
		err := quietApp().Run([]string{"admissions", "ask", "--user", "u1", "--ip", "10.0.0.1", "deadline?"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only one of")
	})

	t.Run("malformed turn is rejected", func(t *testing.T) {
		err := quietApp().Run([]string{"admissions", "ask", "--user", "u1", "--turn", "no separator", "deadline?"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "role:text")
	})
}

func TestLoadCommandFlags(t *testing.T) {
	t.Run("file is required", func(t *testing.T) {
		err := quietApp().Run([]string{"admissions", "load"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file")
	})

	t.Run("batch-size must be positive", func(t *testing.T) {
		err := quietApp().Run([]string{"admissions", "load", "--file", "docs.jsonl", "--batch-size", "0"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch-size must be greater than 0")
	})

	t.Run("max-retries must be positive", func(t *testing.T) {
		err := quietApp().Run([]string{"admissions", "load", "--file", "docs.jsonl", "--max-retries", "0"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max-retries must be greater than 0")
	})

	t.Run("defaults follow the loader", func(t *testing.T) {
		cmd := findCommand(t, newApp(), "load")
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok {
				switch f.Name {
				case "batch-size":
					assert.Equal(t, ingestion.DefaultBatchSize, f.Value)
				case "max-retries":
					assert.Equal(t, ingestion.DefaultMaxRetries, f.Value)
				}
			}
		}
	})
}

func TestAuditCommandFlags(t *testing.T) {
	err := quietApp().Run([]string{"admissions", "audit", "--limit", "0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be greater than 0")
}

func TestSetupLogger(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	t.Run("rejects unknown level", func(t *testing.T) {
		err := quietApp().Run([]string{"admissions", "--log-level", "verbose", "audit"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("accepts mixed case", func(t *testing.T) {
		app := &cli.App{
			Name:   "admissions",
			Flags:  []cli.Flag{&cli.StringFlag{Name: "log-level", Value: "info"}},
			Before: setupLogger,
			Action: func(*cli.Context) error { return nil },
		}
		require.NoError(t, app.Run([]string{"admissions", "--log-level", "DEBUG"}))
		assert.True(t, slog.Default().Enabled(t.Context(), slog.LevelDebug))
	})
}

func TestParseTurns(t *testing.T) {
	turns, err := parseTurns([]string{"user: When is the deadline?", "Assistant:January 15."})
	require.NoError(t, err)
	assert.Equal(t, []core.ChatTurn{
		{Role: core.RoleUser, Text: "When is the deadline?"},
		{Role: core.RoleAssistant, Text: "January 15."},
	}, turns)

	_, err = parseTurns([]string{"system:be nice"})
	assert.ErrorContains(t, err, "role must be user or assistant")

	_, err = parseTurns([]string{"user:   "})
	assert.ErrorContains(t, err, "text is empty")

	turns, err = parseTurns(nil)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestFormatParams(t *testing.T) {
	got := formatParams(core.Params{"program": "Nursing", "year": float64(2025), "term": nil})
	assert.Equal(t, `program="Nursing" term="" year="2025"`, got)
}

func TestPrintAnswer(t *testing.T) {
	var buf bytes.Buffer
	printAnswer(&buf, &core.Answer{
		Text:    "Applications close January 15.",
		Sources: []core.Source{{DocumentID: "deadlines-2025", Title: "Deadlines"}, {DocumentID: "faq"}},
	})
	out := buf.String()
	assert.Contains(t, out, "Applications close January 15.")
	assert.Contains(t, out, "Deadlines (deadlines-2025)")
	assert.Contains(t, out, "  - faq\n")
	assert.NotContains(t, out, "degraded")

	buf.Reset()
	printAnswer(&buf, &core.Answer{Text: "fallback", Degraded: true})
	assert.Contains(t, buf.String(), "(degraded answer)")

	buf.Reset()
	printAnswer(&buf, nil)
	assert.Empty(t, buf.String())
}
