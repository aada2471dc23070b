package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdPolicy(t *testing.T) {
	policy := ThresholdPolicy{MinChars: 50, MinScore: 0.3}
	long := strings.Repeat("a", 60)

	tests := []struct {
		name    string
		results []SearchResult
		want    bool
	}{
		{"No results", nil, false},
		{"Too short", []SearchResult{{Snippet: "tiny"}}, false},
		{"Long unscored", []SearchResult{{Snippet: long}}, true},
		{"Aggregated", []SearchResult{{Snippet: long[:30]}, {Snippet: long[:30]}}, true},
		{"Long but low confidence", []SearchResult{{Snippet: long, Score: 0.1}}, false},
		{"Long and confident", []SearchResult{{Snippet: long, Score: 0.1}, {Snippet: "x", Score: 0.9}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Sufficient(tt.results))
		})
	}
}

func TestResearcherUsesSnippetsWhenSufficient(t *testing.T) {
	searcher := &stubSearcher{results: map[string][]SearchResult{
		"Q1": {
			{Title: "A", URL: "https://a.example", Snippet: richSnippet("alpha")},
			{Title: "B", URL: "https://b.example", Snippet: richSnippet("beta")},
			{Title: "A again", URL: "https://a.example", Snippet: "duplicate"},
		},
	}}
	fetcher := &stubFetcher{}
	r := NewResearcher(searcher, fetcher, nil, testConfig(), testLogger())

	notes, err := r.Research(context.Background(), []string{"Q1"}, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	n := notes[0]
	assert.Equal(t, "Q1", n.SubQuestion)
	assert.False(t, n.Fetched)
	assert.False(t, n.Failed)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, n.SourceURLs)
	assert.Contains(t, n.Summary, "alpha")
	assert.Empty(t, fetcher.urls)
}

func TestResearcherEscalatesToFetch(t *testing.T) {
	searcher := &stubSearcher{results: map[string][]SearchResult{
		"Q1": {
			{Title: "A", URL: "https://a.example/paper", Snippet: "vague"},
			{Title: "B", URL: "https://b.example", Snippet: "also vague"},
		},
	}}
	fetcher := &stubFetcher{pages: map[string]string{"https://a.example/paper": "Full text with the actual answer."}}
	llm := CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, "Full text with the actual answer.") {
			return "", errors.New("summary prompt is missing the fetched text")
		}
		return "The page gives the actual answer.", nil
	})
	r := NewResearcher(searcher, fetcher, llm, testConfig(), testLogger())

	notes, err := r.Research(context.Background(), []string{"Q1"}, 2)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	n := notes[0]
	assert.True(t, n.Fetched)
	assert.Equal(t, 2, n.Iteration)
	assert.Equal(t, []string{"https://a.example/paper"}, n.SourceURLs)
	assert.Equal(t, "The page gives the actual answer.", n.Summary)
	assert.Equal(t, []string{"https://a.example/paper"}, fetcher.urls)
}

func TestResearcherCapsFetchedText(t *testing.T) {
	searcher := &stubSearcher{results: map[string][]SearchResult{
		"Q1": {{URL: "https://a.example", Snippet: "vague"}},
	}}
	fetcher := &stubFetcher{pages: map[string]string{"https://a.example": strings.Repeat("word ", 5000)}}
	var got string
	llm := CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		got = prompt
		return "summary", nil
	})
	cfg := testConfig()
	cfg.MaxFetchChars = 500
	r := NewResearcher(searcher, fetcher, llm, cfg, testLogger())

	_, err := r.Research(context.Background(), []string{"Q1"}, 0)
	require.NoError(t, err)
	assert.Less(t, strings.Count(got, "word"), 150)
}

func TestResearcherRecordsFetchFailure(t *testing.T) {
	searcher := &stubSearcher{results: map[string][]SearchResult{
		"Q1": {{URL: "https://a.example", Snippet: "vague"}},
	}}
	fetcher := &stubFetcher{err: errors.New("connection reset")}
	r := NewResearcher(searcher, fetcher, nil, testConfig(), testLogger())

	notes, err := r.Research(context.Background(), []string{"Q1"}, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	assert.True(t, notes[0].Failed)
	assert.Empty(t, notes[0].SourceURLs)
	assert.Contains(t, notes[0].Summary, "fetch of https://a.example failed")
	assert.Len(t, fetcher.urls, 2, "fetch is retried")
}

func TestResearcherZeroResultsIsNotFailure(t *testing.T) {
	r := NewResearcher(&stubSearcher{}, &stubFetcher{}, nil, testConfig(), testLogger())

	notes, err := r.Research(context.Background(), []string{"Q1"}, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	assert.False(t, notes[0].Failed)
	assert.Empty(t, notes[0].SourceURLs)
	assert.Contains(t, notes[0].Summary, "No search results")
}

func TestResearcherIsolatesFailuresAndKeepsOrder(t *testing.T) {
	questions := make([]string, 8)
	results := make(map[string][]SearchResult)
	for i := range questions {
		q := fmt.Sprintf("Q%d", i)
		questions[i] = q
		results[q] = []SearchResult{{URL: "https://example.com/" + q, Snippet: richSnippet(q)}}
	}
	searcher := &stubSearcher{results: results, fail: map[string]bool{"Q3": true}}
	r := NewResearcher(searcher, nil, nil, testConfig(), testLogger())

	notes, err := r.Research(context.Background(), questions, 0)
	require.NoError(t, err)
	require.Len(t, notes, len(questions))

	for i, n := range notes {
		assert.Equal(t, questions[i], n.SubQuestion)
		if n.SubQuestion == "Q3" {
			assert.True(t, n.Failed)
			assert.Empty(t, n.SourceURLs)
			assert.Contains(t, n.Summary, `search for "Q3" failed`)
			continue
		}
		assert.False(t, n.Failed)
		assert.Equal(t, []string{"https://example.com/" + n.SubQuestion}, n.SourceURLs)
	}
	assert.Equal(t, 2, searcher.calls["Q3"])
	assert.Equal(t, 1, searcher.calls["Q0"])
}

func TestResearcherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResearcher(&stubSearcher{}, nil, nil, testConfig(), testLogger())
	notes, err := r.Research(ctx, []string{"Q1", "Q2"}, 0)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, notes)
}
