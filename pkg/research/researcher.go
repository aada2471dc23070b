package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/deep-research/pkg/splitter"
)

// SufficiencyPolicy decides whether search snippets answer a sub-question or
// the researcher should fetch the top result in full.
type SufficiencyPolicy interface {
	Sufficient(results []SearchResult) bool
}

// ThresholdPolicy treats snippets as insufficient when there are none, when
// their combined text is shorter than MinChars runes, or when the provider
// scored them and the best score is below MinScore.
type ThresholdPolicy struct {
	MinChars int
	MinScore float64
}

func (p ThresholdPolicy) Sufficient(results []SearchResult) bool {
	if len(results) == 0 {
		return false
	}
	total := 0
	scored := false
	best := 0.0
	for _, r := range results {
		total += utf8.RuneCountInString(strings.TrimSpace(r.Snippet))
		if r.Score > 0 {
			scored = true
			best = max(best, r.Score)
		}
	}
	if total < p.MinChars {
		return false
	}
	return !scored || best >= p.MinScore
}

// WebResearcher answers sub-questions with a search provider, escalating to a
// full-page fetch when the snippets are not informative enough.
type WebResearcher struct {
	Search   Searcher
	Fetch    Fetcher
	LLM      Completer
	Policy   SufficiencyPolicy
	Splitter *splitter.TextSplitter
	Config   Config
	Logger   *slog.Logger
}

func NewResearcher(searcher Searcher, fetcher Fetcher, llm Completer, cfg Config, logger *slog.Logger) *WebResearcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &WebResearcher{
		Search:   searcher,
		Fetch:    fetcher,
		LLM:      llm,
		Policy:   ThresholdPolicy{MinChars: cfg.SufficiencyThreshold, MinScore: cfg.MinScore},
		Splitter: splitter.NewRecursiveCharacterTextSplitter(1000, 0),
		Config:   cfg,
		Logger:   logger,
	}
}

// Research processes every question concurrently and returns one note per
// question, in question order. A failing question never cancels its siblings.
func (r *WebResearcher) Research(ctx context.Context, questions []string, iteration int) ([]Note, error) {
	r.Logger.Info("Starting research phase", "questions", len(questions), "iteration", iteration)

	notes := make([]Note, len(questions))
	var g errgroup.Group
	g.SetLimit(r.Config.Concurrency)

	for i, q := range questions {
		g.Go(func() error {
			notes[i] = r.researchOne(ctx, q, iteration)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *WebResearcher) researchOne(ctx context.Context, question string, iteration int) Note {
	logger := r.Logger.With("sub_question", question)

	if r.Search == nil {
		return failedNote(question, iteration, &SearchFailure{Query: question, Err: fmt.Errorf("no search provider configured")})
	}

	results, err := callWithRetry(ctx, r.Config, logger, "search", func(ctx context.Context) ([]SearchResult, error) {
		return r.Search.Search(ctx, question, r.Config.SearchResultCount)
	})
	if err != nil {
		failure := &SearchFailure{Query: question, Err: err}
		logger.Error("Search failed", "error", err)
		return failedNote(question, iteration, failure)
	}
	results = normalizeResults(results, r.Config.SearchResultCount)
	logger.Info("Search successful", "count", len(results))

	top := topURL(results)
	if r.Policy.Sufficient(results) || r.Fetch == nil || top == "" {
		if len(results) == 0 {
			return Note{
				SubQuestion: question,
				Summary:     "No search results were returned for this sub-question.",
				SourceURLs:  []string{},
				Iteration:   iteration,
			}
		}
		return Note{
			SubQuestion: question,
			Summary:     r.summarize(ctx, logger, question, snippetText(results)),
			SourceURLs:  resultURLs(results),
			Iteration:   iteration,
		}
	}

	logger.Info("Snippets insufficient, fetching full page", "url", top)
	text, err := callWithRetry(ctx, r.Config, logger, "fetch", func(ctx context.Context) (string, error) {
		return r.Fetch.Fetch(ctx, top)
	})
	if err != nil {
		failure := &FetchFailure{URL: top, Err: err}
		logger.Error("Fetch failed", "url", top, "error", err)
		return failedNote(question, iteration, failure)
	}

	if budgeted, err := r.Splitter.Budget(text, r.Config.MaxFetchChars); err != nil {
		logger.Warn("Failed to split fetched text, truncating", "error", err)
		text = truncateRunes(text, r.Config.MaxFetchChars)
	} else {
		text = budgeted
	}

	return Note{
		SubQuestion: question,
		Summary:     r.summarize(ctx, logger, question, text),
		SourceURLs:  []string{top},
		Fetched:     true,
		Iteration:   iteration,
	}
}

// summarize condenses material with the model, falling back to an excerpt
// when no model is configured or the call fails.
func (r *WebResearcher) summarize(ctx context.Context, logger *slog.Logger, question, material string) string {
	material = strings.TrimSpace(material)
	if r.LLM == nil || material == "" {
		return excerpt(material)
	}

	prompt := fmt.Sprintf(`Summarize what the following material says about the question below.
Write 3-6 factual sentences. Keep concrete numbers, names and dates. Do not invent facts.

Question: %s

Material:
%s`, question, material)

	summary, err := complete(ctx, r.LLM, r.Config, logger, "summarize", prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		logger.Warn("Summarization failed, using excerpt", "error", err)
		return excerpt(material)
	}
	return strings.TrimSpace(summary)
}

func failedNote(question string, iteration int, err error) Note {
	return Note{
		SubQuestion: question,
		Summary:     fmt.Sprintf("Research failed: %v", err),
		SourceURLs:  []string{},
		Failed:      true,
		Iteration:   iteration,
	}
}

// normalizeResults drops duplicate URLs and caps the result count.
func normalizeResults(results []SearchResult, limit int) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	seen := make(map[string]bool)
	for _, res := range results {
		u := strings.TrimSpace(res.URL)
		if u != "" {
			if seen[u] {
				continue
			}
			seen[u] = true
		}
		res.URL = u
		out = append(out, res)
		if len(out) == limit {
			break
		}
	}
	return out
}

func topURL(results []SearchResult) string {
	for _, r := range results {
		if r.URL != "" {
			return r.URL
		}
	}
	return ""
}

func resultURLs(results []SearchResult) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

func snippetText(results []SearchResult) string {
	var sb strings.Builder
	for _, r := range results {
		snippet := strings.TrimSpace(r.Snippet)
		if snippet == "" {
			continue
		}
		if r.Title != "" {
			sb.WriteString(r.Title)
			sb.WriteString(": ")
		}
		sb.WriteString(snippet)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

const excerptChars = 600

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "No information found."
	}
	return truncateRunes(text, excerptChars)
}

// truncateRunes cuts s to at most n runes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
