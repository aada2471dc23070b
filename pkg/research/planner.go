package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	minInitialQuestions  = 3
	maxInitialQuestions  = 5
	maxFollowUpQuestions = 3
)

// ModelPlanner decomposes the query into sub-questions with a language model.
type ModelPlanner struct {
	LLM    Completer
	Config Config
	Logger *slog.Logger
}

func NewPlanner(llm Completer, cfg Config, logger *slog.Logger) *ModelPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelPlanner{LLM: llm, Config: cfg.withDefaults(), Logger: logger}
}

// Plan returns 3-5 sub-questions on the first call. On later calls it returns
// existing unchanged, followed by up to three new questions addressing critique.
func (p *ModelPlanner) Plan(ctx context.Context, query, critique string, existing []string) ([]string, error) {
	if p.LLM == nil {
		return nil, &PlanningError{Err: errors.New("no language model configured")}
	}

	followUp := len(existing) > 0
	p.Logger.Info("Starting planning phase", "follow_up", followUp, "existing", len(existing))

	var prompt string
	if followUp {
		prompt = buildFollowUpPrompt(query, critique, existing)
	} else {
		prompt = buildInitialPlanPrompt(query)
	}

	content, err := complete(ctx, p.LLM, p.Config, p.Logger, "plan", prompt)
	if err != nil {
		return nil, &PlanningError{Err: err}
	}

	proposed, err := parseQuestions(content)
	switch {
	case followUp && errors.Is(err, errNoQuestions):
		// An empty follow-up list keeps the existing plan.
		proposed = nil
	case err != nil:
		return nil, &PlanningError{Err: err}
	}

	if !followUp {
		if len(proposed) > maxInitialQuestions {
			proposed = proposed[:maxInitialQuestions]
		}
		if len(proposed) < minInitialQuestions {
			p.Logger.Warn("Planner returned fewer sub-questions than requested", "count", len(proposed))
		}
		p.Logger.Info("Generated plan", "questions", proposed)
		return proposed, nil
	}

	known := make(map[string]bool, len(existing))
	for _, q := range existing {
		known[q] = true
	}
	var fresh []string
	for _, q := range proposed {
		if known[q] {
			continue
		}
		fresh = append(fresh, q)
		if len(fresh) == maxFollowUpQuestions {
			break
		}
	}
	if len(fresh) == 0 {
		p.Logger.Warn("Planner proposed no new sub-questions")
	} else {
		p.Logger.Info("Extended plan", "new_questions", fresh)
	}

	plan := make([]string, 0, len(existing)+len(fresh))
	plan = append(plan, existing...)
	return append(plan, fresh...), nil
}

func buildInitialPlanPrompt(query string) string {
	return fmt.Sprintf(`You are a research planner. Break down this query into %d-%d specific,
researchable sub-questions. Make them concrete and answerable.

Query: %s

Return ONLY a JSON array of strings. Example: ["question 1", "question 2"]`,
		minInitialQuestions, maxInitialQuestions, query)
}

func buildFollowUpPrompt(query, critique string, existing []string) string {
	var sb strings.Builder
	for i, q := range existing {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, q))
	}
	if strings.TrimSpace(critique) == "" {
		critique = "No specific gaps were named. Propose angles the existing questions miss."
	}
	return fmt.Sprintf(`You are a research planner. The previous research was incomplete.

Original Query: %s

Already researched sub-questions:
%s
Critique: %s

Create 2-%d additional specific sub-questions that address the gaps. Do not repeat or reword
the existing questions.
Return ONLY a JSON array of strings. Example: ["question 1", "question 2"]`,
		query, sb.String(), critique, maxFollowUpQuestions)
}
