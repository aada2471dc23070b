package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlannerInitialPlan(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"```json\n[\"What is X?\", \"Who uses X?\", \"What does X cost?\"]\n```"}}
	p := NewPlanner(llm, testConfig(), testLogger())

	plan, err := p.Plan(context.Background(), "Explain X", "", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"What is X?", "Who uses X?", "What does X cost?"}, plan)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Query: Explain X")
}

func TestPlannerTruncatesToFive(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"questions": ["a", "b", "c", "d", "e", "f", "g"]}`}}
	p := NewPlanner(llm, testConfig(), testLogger())

	plan, err := p.Plan(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, plan)
}

func TestPlannerFollowUpKeepsExisting(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`["Q2", "Cost in 2023?", "Cost in 2024?", "Regional costs?", "Hidden costs?"]`}}
	p := NewPlanner(llm, testConfig(), testLogger())

	existing := []string{"Q1", "Q2"}
	plan, err := p.Plan(context.Background(), "q", "missing cost data", existing)
	require.NoError(t, err)

	assert.Equal(t, []string{"Q1", "Q2", "Cost in 2023?", "Cost in 2024?", "Regional costs?"}, plan)
	assert.Equal(t, []string{"Q1", "Q2"}, existing)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Critique: missing cost data")
	assert.Contains(t, llm.prompts[0], "1. Q1")
}

func TestPlannerFollowUpWithoutNewQuestions(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`["Q1"]`}}
	p := NewPlanner(llm, testConfig(), testLogger())

	plan, err := p.Plan(context.Background(), "q", "", []string{"Q1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1"}, plan)
}

func TestPlannerFollowUpEmptyList(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"```json\n[]\n```"}}
	p := NewPlanner(llm, testConfig(), testLogger())

	plan, err := p.Plan(context.Background(), "topic", "Q1 lacks cost data", []string{"Q1", "Q2", "Q3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, plan)
}

func TestPlannerInitialEmptyListFails(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"[]"}}
	p := NewPlanner(llm, testConfig(), testLogger())

	_, err := p.Plan(context.Background(), "topic", "", nil)

	var planningErr *PlanningError
	require.ErrorAs(t, err, &planningErr)
	assert.ErrorIs(t, err, errNoQuestions)
}

func TestPlannerUnparsableOutput(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"I think you should research X first."}}
	p := NewPlanner(llm, testConfig(), testLogger())

	_, err := p.Plan(context.Background(), "q", "", nil)

	var planningErr *PlanningError
	require.ErrorAs(t, err, &planningErr)
	assert.ErrorIs(t, err, errNoJSON)
	assert.Equal(t, 1, llm.calls(), "parse errors are not retried")
}

func TestPlannerCollaboratorUnavailable(t *testing.T) {
	boom := errors.New("503 from model")
	llm := &scriptedLLM{errs: []error{boom, boom}}
	p := NewPlanner(llm, testConfig(), testLogger())

	_, err := p.Plan(context.Background(), "q", "", nil)

	var planningErr *PlanningError
	require.ErrorAs(t, err, &planningErr)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, llm.calls())
}

func TestPlannerWithoutModel(t *testing.T) {
	_, err := NewPlanner(nil, testConfig(), testLogger()).Plan(context.Background(), "q", "", nil)

	var planningErr *PlanningError
	assert.ErrorAs(t, err, &planningErr)
}
