package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

var errGenericFeedback = errors.New("incomplete verdict without actionable feedback")

// CoverageCritic first checks that every sub-question has an informative
// note, naming the ones that do not. When coverage holds and a model is
// configured, the model judges whether the notes answer the query.
type CoverageCritic struct {
	LLM    Completer
	Config Config
	Logger *slog.Logger
}

func NewCritic(llm Completer, cfg Config, logger *slog.Logger) *CoverageCritic {
	if logger == nil {
		logger = slog.Default()
	}
	return &CoverageCritic{LLM: llm, Config: cfg.withDefaults(), Logger: logger}
}

type coverageGap struct {
	question string
	reason   string
}

func (c *CoverageCritic) Evaluate(ctx context.Context, query string, plan []string, notes []Note, iteration, maxIterations int) (Verdict, error) {
	c.Logger.Info("Starting critique phase", "iteration", iteration, "plan", len(plan), "notes", len(notes))

	if gaps := coverageGaps(plan, notes, c.Config.MinSummaryChars); len(gaps) > 0 {
		c.Logger.Info("Coverage gaps found", "gaps", len(gaps))
		return Verdict{IsComplete: false, Feedback: gapFeedback(gaps)}, nil
	}
	if c.LLM == nil {
		return Verdict{IsComplete: true}, nil
	}

	prompt := buildCritiquePrompt(query, notes, iteration, maxIterations)
	content, err := complete(ctx, c.LLM, c.Config, c.Logger, "critique", prompt)
	if err != nil {
		return Verdict{}, &CritiqueError{Err: err}
	}

	raw, err := extractJSON(content)
	if err != nil {
		return Verdict{}, &CritiqueError{Err: err}
	}
	var resp struct {
		IsComplete     *bool    `json:"is_complete"`
		Feedback       string   `json:"feedback"`
		MissingAspects []string `json:"missing_aspects"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Verdict{}, &CritiqueError{Err: fmt.Errorf("json parse error: %w (content: %s)", err, content)}
	}
	if resp.IsComplete == nil {
		return Verdict{}, &CritiqueError{Err: errors.New("missing is_complete field")}
	}
	if *resp.IsComplete {
		return Verdict{IsComplete: true}, nil
	}

	feedback := composeFeedback(resp.Feedback, resp.MissingAspects)
	if feedback == "" {
		return Verdict{}, &CritiqueError{Err: errGenericFeedback}
	}
	return Verdict{IsComplete: false, Feedback: feedback}, nil
}

// coverageGaps lists sub-questions without a successful, sourced note whose
// summary has at least minChars runes.
func coverageGaps(plan []string, notes []Note, minChars int) []coverageGap {
	byQuestion := make(map[string][]Note, len(notes))
	for _, n := range notes {
		byQuestion[n.SubQuestion] = append(byQuestion[n.SubQuestion], n)
	}

	var gaps []coverageGap
	for _, q := range plan {
		related := byQuestion[q]
		if len(related) == 0 {
			gaps = append(gaps, coverageGap{question: q, reason: "not researched"})
			continue
		}
		reason := ""
		covered := false
		for _, n := range related {
			switch {
			case n.Failed:
				reason = "research failed"
			case !n.Answered():
				reason = "no sources found"
			case utf8.RuneCountInString(strings.TrimSpace(n.Summary)) < minChars:
				reason = "summary too thin"
			default:
				covered = true
			}
		}
		if !covered {
			gaps = append(gaps, coverageGap{question: q, reason: reason})
		}
	}
	return gaps
}

func gapFeedback(gaps []coverageGap) string {
	var sb strings.Builder
	sb.WriteString("The following sub-questions are not adequately covered:")
	for _, g := range gaps {
		sb.WriteString(fmt.Sprintf("\n- %q (%s)", g.question, g.reason))
	}
	return sb.String()
}

func composeFeedback(feedback string, missing []string) string {
	feedback = strings.TrimSpace(feedback)
	var aspects []string
	for _, a := range missing {
		if a = strings.TrimSpace(a); a != "" {
			aspects = append(aspects, a)
		}
	}
	if len(aspects) == 0 {
		return feedback
	}
	list := "Missing aspects: " + strings.Join(aspects, "; ")
	if feedback == "" {
		return list
	}
	return feedback + "\n" + list
}

func buildCritiquePrompt(query string, notes []Note, iteration, maxIterations int) string {
	var sb strings.Builder
	for _, n := range notes {
		sb.WriteString(fmt.Sprintf("Question: %s\nSummary: %s\nFull page read: %t\n\n", n.SubQuestion, n.Summary, n.Fetched))
	}
	return fmt.Sprintf(`You are a research quality critic. Evaluate if the gathered research adequately answers the original query.

Original Query: %s
Iteration: %d of %d

Research Gathered:
%s
Respond with JSON:
{
    "is_complete": true/false,
    "feedback": "specific gaps, naming the topics or sub-questions that need more research",
    "missing_aspects": ["aspect 1", "aspect 2"]
}

Be strict but fair. Be more lenient as the iteration limit approaches.`, query, iteration, maxIterations, sb.String())
}
