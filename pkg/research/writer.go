package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var (
	urlPattern      = regexp.MustCompile(`https?://[^\s<>()\[\]"'` + "`" + `]+`)
	citationPattern = regexp.MustCompile(`\[(\d+)\]`)
)

// ReportWriter renders the final Markdown report. The model only drafts the
// summary and themed findings; section layout and the source list are built
// from the notes, so every note and every distinct source always appears.
type ReportWriter struct {
	LLM    Completer
	Config Config
	Logger *slog.Logger
}

func NewWriter(llm Completer, cfg Config, logger *slog.Logger) *ReportWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportWriter{LLM: llm, Config: cfg.withDefaults(), Logger: logger}
}

type reportTheme struct {
	Title    string   `json:"title"`
	Findings []string `json:"findings"`
}

type reportDraft struct {
	Summary string        `json:"summary"`
	Themes  []reportTheme `json:"themes"`
}

func (w *ReportWriter) Write(ctx context.Context, query string, notes []Note, partial bool) (string, error) {
	w.Logger.Info("Compiling final report", "notes", len(notes), "partial", partial)

	sources := distinctSources(notes)
	draft, err := w.draft(ctx, query, notes, sources)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		w.Logger.Warn("Model draft unavailable, using deterministic report", "error", err)
		draft = fallbackDraft(notes, sources)
	}

	report := renderReport(query, notes, sources, draft, partial)
	w.Logger.Info("Final report generated", "length", len(report), "sources", len(sources))
	return report, nil
}

func (w *ReportWriter) draft(ctx context.Context, query string, notes []Note, sources []string) (reportDraft, error) {
	if w.LLM == nil {
		return reportDraft{}, errors.New("no language model configured")
	}

	content, err := complete(ctx, w.LLM, w.Config, w.Logger, "write", buildWriterPrompt(query, notes, sources))
	if err != nil {
		return reportDraft{}, err
	}
	raw, err := extractJSON(content)
	if err != nil {
		return reportDraft{}, err
	}
	var d reportDraft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return reportDraft{}, fmt.Errorf("json parse error: %w", err)
	}

	d.Summary = strings.TrimSpace(scrubCitations(d.Summary, len(sources)))
	themes := d.Themes[:0]
	for _, t := range d.Themes {
		t.Title = strings.TrimSpace(scrubCitations(t.Title, len(sources)))
		var findings []string
		for _, f := range t.Findings {
			if f = strings.TrimSpace(scrubCitations(f, len(sources))); f != "" {
				findings = append(findings, f)
			}
		}
		if t.Title == "" || len(findings) == 0 {
			continue
		}
		t.Findings = findings
		themes = append(themes, t)
	}
	d.Themes = themes
	if d.Summary == "" || len(d.Themes) == 0 {
		return reportDraft{}, errors.New("draft is missing a summary or findings")
	}
	return d, nil
}

// fallbackDraft groups findings by sub-question when no model draft exists.
func fallbackDraft(notes []Note, sources []string) reportDraft {
	answered := 0
	var themes []reportTheme
	index := make(map[string]int)
	for _, n := range notes {
		finding := n.Summary
		if !n.Failed {
			answered++
			finding += citeList(n.SourceURLs, sources)
		}
		i, ok := index[n.SubQuestion]
		if !ok {
			i = len(themes)
			index[n.SubQuestion] = i
			themes = append(themes, reportTheme{Title: n.SubQuestion})
		}
		themes[i].Findings = append(themes[i].Findings, finding)
	}
	return reportDraft{
		Summary: fmt.Sprintf("Research produced %d notes across %d sub-questions, %d of them answered, drawing on %d distinct sources.",
			len(notes), len(themes), answered, len(sources)),
		Themes: themes,
	}
}

func renderReport(query string, notes []Note, sources []string, d reportDraft, partial bool) string {
	known := make(map[string]bool, len(sources))
	for _, u := range sources {
		known[u] = true
	}
	clean := func(s string) string { return scrubURLs(s, known) }

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research Report: %s\n\n", clean(query))
	if partial {
		sb.WriteString("> Research stopped at the iteration limit. Coverage may be partial.\n\n")
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(clean(d.Summary))
	sb.WriteString("\n\n## Findings\n\n")
	if len(d.Themes) == 0 {
		sb.WriteString("No findings were gathered.\n\n")
	}
	for _, t := range d.Themes {
		fmt.Fprintf(&sb, "### %s\n\n", clean(t.Title))
		for _, f := range t.Findings {
			fmt.Fprintf(&sb, "- %s\n", oneLine(clean(f)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Research Notes\n\n")
	if len(notes) == 0 {
		sb.WriteString("No notes were recorded.\n\n")
	}
	for i, n := range notes {
		method := "search snippets"
		switch {
		case n.Failed:
			method = "failed"
		case n.Fetched:
			method = "full page"
		}
		fmt.Fprintf(&sb, "%d. **%s** (iteration %d, %s)%s\n", i+1, oneLine(clean(n.SubQuestion)), n.Iteration, method, citeList(n.SourceURLs, sources))
		fmt.Fprintf(&sb, "   %s\n", oneLine(clean(n.Summary)))
	}
	if len(notes) > 0 {
		sb.WriteString("\n")
	}

	sb.WriteString("## Sources\n\n")
	if len(sources) == 0 {
		sb.WriteString("No sources were found.\n")
	}
	for i, u := range sources {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, u)
	}
	return sb.String()
}

// scrubURLs replaces URLs no note returned.
func scrubURLs(s string, known map[string]bool) string {
	return urlPattern.ReplaceAllStringFunc(s, func(u string) string {
		trimmed := strings.TrimRight(u, ".,;:!?")
		if known[trimmed] {
			return u
		}
		return "[link removed]" + u[len(trimmed):]
	})
}

// scrubCitations drops citation markers in drafted text that point past the
// source list.
func scrubCitations(s string, sourceCount int) string {
	return citationPattern.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || n < 1 || n > sourceCount {
			return ""
		}
		return m
	})
}

func citeList(urls, sources []string) string {
	var refs []string
	for _, u := range urls {
		for i, s := range sources {
			if s == u {
				refs = append(refs, fmt.Sprintf("[%d]", i+1))
				break
			}
		}
	}
	if len(refs) == 0 {
		return ""
	}
	return " " + strings.Join(refs, " ")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func buildWriterPrompt(query string, notes []Note, sources []string) string {
	var sb strings.Builder
	for _, n := range notes {
		if n.Failed {
			continue
		}
		fmt.Fprintf(&sb, "Question: %s\nFindings: %s\nSources:%s\n\n", n.SubQuestion, n.Summary, citeList(n.SourceURLs, sources))
	}
	return fmt.Sprintf(`You are a research writer. Draft a report answering the query from the research notes below.

Query: %s

Research Notes:
%s
Cite sources only with their bracketed numbers, for example [1]. Do not write URLs.
Respond with JSON:
{
    "summary": "executive summary, one paragraph",
    "themes": [
        {"title": "theme name", "findings": ["finding with citations [1]", "..."]}
    ]
}`, query, sb.String())
}
