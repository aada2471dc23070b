package research

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportURL = regexp.MustCompile(`https?://[^\s<>()\[\]"'` + "`" + `]+`)

func writerNotes() []Note {
	return []Note{
		{SubQuestion: "Q1", Summary: "Solar costs fell 80% since 2010.", SourceURLs: []string{"https://a.example/solar", "https://b.example/iea"}},
		{SubQuestion: "Q2", Summary: "Research failed: search failed", SourceURLs: []string{}, Failed: true},
		{SubQuestion: "Q3", Summary: "Wind capacity doubled. See https://b.example/iea for details.", SourceURLs: []string{"https://b.example/iea"}, Fetched: true, Iteration: 1},
	}
}

func TestWriterFallbackReport(t *testing.T) {
	w := NewWriter(nil, testConfig(), testLogger())

	report, err := w.Write(context.Background(), "Energy transition", writerNotes(), false)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(report, "# Research Report: Energy transition\n"))
	assert.Contains(t, report, "## Summary")
	assert.Contains(t, report, "## Findings")
	assert.Contains(t, report, "### Q1")
	assert.Contains(t, report, "## Sources\n\n1. https://a.example/solar\n2. https://b.example/iea\n")
	assert.Contains(t, report, "Solar costs fell 80% since 2010. [1] [2]")
	assert.Contains(t, report, "**Q3** (iteration 1, full page) [2]")
	assert.Contains(t, report, "**Q2** (iteration 0, failed)")
	assert.NotContains(t, report, "iteration limit")
}

func TestWriterUsesModelDraft(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{
		"summary": "Renewables are now the cheapest new power [1].",
		"themes": [
			{"title": "Cost", "findings": ["Solar fell 80% [1], see https://evil.example/track", "Bogus citation [9]"]},
			{"title": "Empty theme", "findings": []}
		]
	}`}}
	w := NewWriter(llm, testConfig(), testLogger())

	report, err := w.Write(context.Background(), "Energy transition", writerNotes(), true)
	require.NoError(t, err)

	assert.Contains(t, report, "> Research stopped at the iteration limit.")
	assert.Contains(t, report, "Renewables are now the cheapest new power [1].")
	assert.Contains(t, report, "### Cost")
	assert.NotContains(t, report, "Empty theme")
	assert.NotContains(t, report, "evil.example")
	assert.NotContains(t, report, "[9]")
	assert.Contains(t, report, "**Q1**", "every note is kept in the report")
	assert.Contains(t, report, "**Q2**")
	assert.Contains(t, report, "**Q3**")

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Findings: Solar costs fell 80% since 2010.")
	assert.NotContains(t, llm.prompts[0], "Research failed")
}

func TestWriterKeepsBracketsOutsideDraft(t *testing.T) {
	notes := []Note{
		{SubQuestion: "How does arr[5] index?", Summary: "Indexing arr[5] reads the sixth element, per the [2024] edition.", SourceURLs: []string{"https://go.example/arrays"}},
	}
	llm := &scriptedLLM{responses: []string{`{"summary": "Arrays are zero based [1] [7].", "themes": [{"title": "Indexing [3]", "findings": ["Index 5 is the sixth slot [1]."]}]}`}}
	w := NewWriter(llm, testConfig(), testLogger())

	report, err := w.Write(context.Background(), "Go arrays [2024]", notes, false)
	require.NoError(t, err)

	assert.Contains(t, report, "# Research Report: Go arrays [2024]\n")
	assert.Contains(t, report, "**How does arr[5] index?**")
	assert.Contains(t, report, "Indexing arr[5] reads the sixth element, per the [2024] edition.")
	assert.Contains(t, report, "Arrays are zero based [1] .")
	assert.Contains(t, report, "### Indexing\n")
	assert.NotContains(t, report, "[7]")
}

func TestWriterFallsBackOnUnusableDraft(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"summary": "", "themes": []}`}}
	w := NewWriter(llm, testConfig(), testLogger())

	report, err := w.Write(context.Background(), "Energy transition", writerNotes(), false)
	require.NoError(t, err)
	assert.Contains(t, report, "Research produced 3 notes across 3 sub-questions, 2 of them answered, drawing on 2 distinct sources.")
}

func TestWriterCitationRoundTrip(t *testing.T) {
	notes := writerNotes()
	llm := &scriptedLLM{responses: []string{`{"summary": "See http://made-up.example/x and https://a.example/solar.", "themes": [{"title": "T", "findings": ["f"]}]}`}}
	w := NewWriter(llm, testConfig(), testLogger())

	report, err := w.Write(context.Background(), "Energy transition", notes, false)
	require.NoError(t, err)

	want := make(map[string]bool)
	for _, n := range notes {
		for _, u := range n.SourceURLs {
			want[u] = true
		}
	}
	for u := range want {
		assert.Contains(t, report, u)
	}
	for _, u := range reportURL.FindAllString(report, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		assert.True(t, want[u], "report cites %s which no note returned", u)
	}

	sourcesSection := report[strings.Index(report, "## Sources"):]
	assert.Equal(t, len(want), strings.Count(sourcesSection, "https://"))
}

func TestWriterEmptyNotes(t *testing.T) {
	report, err := NewWriter(nil, testConfig(), testLogger()).Write(context.Background(), "q", nil, true)
	require.NoError(t, err)
	assert.Contains(t, report, "No notes were recorded.")
	assert.Contains(t, report, "No sources were found.")
}

func TestWriterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := CompleterFunc(func(ctx context.Context, _ string) (string, error) {
		return "", errors.New("request aborted")
	})

	_, err := NewWriter(llm, testConfig(), testLogger()).Write(ctx, "q", writerNotes(), false)
	assert.ErrorIs(t, err, context.Canceled)
}
