package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() Config {
	return Config{
		PerCallTimeout: time.Second,
		MaxAttempts:    2,
		RetryBackoff:   time.Millisecond,
	}.withDefaults()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedLLM returns its responses in order and records every prompt.
// The last response repeats once the script is exhausted.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if len(s.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

type planCall struct {
	critique string
	existing []string
}

// stubPlanner returns the existing plan followed by the next scripted batch.
type stubPlanner struct {
	batches [][]string
	err     error
	calls   []planCall
}

func (p *stubPlanner) Plan(_ context.Context, _, critique string, existing []string) ([]string, error) {
	p.calls = append(p.calls, planCall{critique: critique, existing: append([]string(nil), existing...)})
	if p.err != nil {
		return nil, p.err
	}
	var batch []string
	if i := len(p.calls) - 1; i < len(p.batches) {
		batch = p.batches[i]
	} else {
		batch = []string{fmt.Sprintf("Follow-up question %d", i)}
	}
	return append(append([]string(nil), existing...), batch...), nil
}

// stubResearcher answers every question with a deterministic sourced note.
type stubResearcher struct {
	calls     [][]string
	iteration []int
	hook      func(ctx context.Context) error
}

func (r *stubResearcher) Research(ctx context.Context, questions []string, iteration int) ([]Note, error) {
	r.calls = append(r.calls, append([]string(nil), questions...))
	r.iteration = append(r.iteration, iteration)
	if r.hook != nil {
		if err := r.hook(ctx); err != nil {
			return nil, err
		}
	}
	notes := make([]Note, len(questions))
	for i, q := range questions {
		notes[i] = Note{
			SubQuestion: q,
			Summary:     "Detailed findings for " + q + " gathered from several reliable sources.",
			SourceURLs:  []string{"https://example.com/" + slug(q)},
			Iteration:   iteration,
		}
	}
	return notes, nil
}

// stubCritic returns scripted verdicts by call index, repeating the last one.
type stubCritic struct {
	verdicts   []Verdict
	err        error
	iterations []int
}

func (c *stubCritic) Evaluate(_ context.Context, _ string, _ []string, _ []Note, iteration, _ int) (Verdict, error) {
	c.iterations = append(c.iterations, iteration)
	if c.err != nil {
		return Verdict{}, c.err
	}
	i := len(c.iterations) - 1
	if i >= len(c.verdicts) {
		i = len(c.verdicts) - 1
	}
	return c.verdicts[i], nil
}

type writeCall struct {
	notes   int
	partial bool
}

type stubWriter struct {
	calls []writeCall
}

func (w *stubWriter) Write(_ context.Context, query string, notes []Note, partial bool) (string, error) {
	w.calls = append(w.calls, writeCall{notes: len(notes), partial: partial})
	return fmt.Sprintf("# %s\n\n%d notes\n", query, len(notes)), nil
}

// stubSearcher maps queries to results. Queries listed in fail always return
// errors; queries in failFirst fail that many calls before succeeding.
type stubSearcher struct {
	mu        sync.Mutex
	results   map[string][]SearchResult
	fail      map[string]bool
	failFirst map[string]int
	calls     map[string]int
}

func (s *stubSearcher) Search(_ context.Context, query string, _ int) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[query]++
	if s.fail[query] || s.calls[query] <= s.failFirst[query] {
		return nil, errors.New("search provider returned 503")
	}
	return s.results[query], nil
}

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	err   error
	urls  []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.err != nil {
		return "", f.err
	}
	page, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("unexpected url %s", url)
	}
	return page, nil
}

type stubIndexer struct {
	batches [][]Note
	err     error
}

func (i *stubIndexer) IndexNotes(_ context.Context, _ string, notes []Note) error {
	i.batches = append(i.batches, notes)
	return i.err
}

func slug(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "-"))
}

func richSnippet(topic string) string {
	return strings.Repeat(topic+" is described in depth with figures and dates. ", 8)
}
