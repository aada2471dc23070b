package research

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Phase is a state of the research loop.
type Phase int

const (
	PhasePlanning Phase = iota
	PhaseResearching
	PhaseCritiquing
	PhaseWriting
	PhaseDone
)

var phaseNames = [...]string{"planning", "researching", "critiquing", "writing", "done"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// StopReason records why the loop stopped iterating.
type StopReason string

const (
	StopReasonNone         StopReason = ""
	StopReasonComplete     StopReason = "complete"
	StopReasonIterationCap StopReason = "iteration_cap"
)

// Note is the researcher's record of findings for one sub-question.
// Notes are values and are never modified after they are appended.
type Note struct {
	SubQuestion string   `json:"sub_question"`
	Summary     string   `json:"summary"`
	SourceURLs  []string `json:"source_urls"`
	Fetched     bool     `json:"fetched"`
	Failed      bool     `json:"failed,omitempty"`
	Iteration   int      `json:"iteration"`
}

// ResearchState is threaded through every stage of a run.
//
// Query never changes after NewResearchState. Plan and Notes only grow.
// Iteration is bumped exactly once per Critic -> Planner loop-back.
type ResearchState struct {
	RunID          string     `json:"run_id"`
	Query          string     `json:"query"`
	Plan           []string   `json:"plan"`
	Notes          []Note     `json:"notes"`
	Iteration      int        `json:"iteration"`
	Critique       string     `json:"critique,omitempty"`
	FinalReport    string     `json:"final_report,omitempty"`
	ShouldContinue bool       `json:"should_continue"`
	Phase          Phase      `json:"phase"`
	StopReason     StopReason `json:"stop_reason,omitempty"`
}

// NewResearchState starts a run for query.
func NewResearchState(query string) (*ResearchState, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return &ResearchState{
		RunID:          uuid.NewString(),
		Query:          query,
		Plan:           []string{},
		Notes:          []Note{},
		ShouldContinue: true,
		Phase:          PhasePlanning,
	}, nil
}

// Answered reports whether the note answers its sub-question: research
// succeeded and returned at least one source.
func (n Note) Answered() bool {
	return !n.Failed && len(n.SourceURLs) > 0
}

// OpenQuestions returns the plan items without an answering note, in plan
// order. Sub-questions whose research failed or found no sources stay open
// and are researched again in the next iteration.
func (s *ResearchState) OpenQuestions() []string {
	covered := make(map[string]bool, len(s.Notes))
	for _, n := range s.Notes {
		if n.Answered() {
			covered[n.SubQuestion] = true
		}
	}
	var open []string
	for _, q := range s.Plan {
		if covered[q] {
			continue
		}
		covered[q] = true
		open = append(open, q)
	}
	return open
}

// AppendNotes adds notes to the end of the state.
func (s *ResearchState) AppendNotes(notes ...Note) {
	s.Notes = append(s.Notes, notes...)
}

// Sources returns every distinct non-empty source URL in first-seen order.
func (s *ResearchState) Sources() []string {
	return distinctSources(s.Notes)
}

// Snapshot returns a deep copy that observers may keep.
func (s *ResearchState) Snapshot() ResearchState {
	cp := *s
	cp.Plan = make([]string, len(s.Plan))
	copy(cp.Plan, s.Plan)
	cp.Notes = make([]Note, len(s.Notes))
	for i, n := range s.Notes {
		urls := make([]string, len(n.SourceURLs))
		copy(urls, n.SourceURLs)
		n.SourceURLs = urls
		cp.Notes[i] = n
	}
	return cp
}

// mergePlan keeps every existing item in place and appends new, distinct ones.
func mergePlan(existing, proposed []string) []string {
	merged := make([]string, 0, len(existing)+len(proposed))
	seen := make(map[string]bool, len(existing)+len(proposed))
	for _, q := range existing {
		merged = append(merged, q)
		seen[q] = true
	}
	for _, q := range proposed {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		merged = append(merged, q)
	}
	return merged
}

func distinctSources(notes []Note) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, n := range notes {
		for _, u := range n.SourceURLs {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls
}
