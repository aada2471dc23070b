package research

import "context"

// Completer is the language model capability used by the planner, critic,
// researcher summaries and writer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Searcher returns ranked results for a query. Zero results is not an error.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Fetcher retrieves the full text of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Planner produces the initial plan, or the existing plan extended with
// questions that address the critique.
type Planner interface {
	Plan(ctx context.Context, query, critique string, existing []string) ([]string, error)
}

// Researcher answers open sub-questions. Per-question failures are recorded
// in the returned notes; the only error is cancellation.
type Researcher interface {
	Research(ctx context.Context, questions []string, iteration int) ([]Note, error)
}

// Critic judges whether the notes cover the plan.
type Critic interface {
	Evaluate(ctx context.Context, query string, plan []string, notes []Note, iteration, maxIterations int) (Verdict, error)
}

// Writer renders the final report. partial is set when the iteration cap
// ended the loop.
type Writer interface {
	Write(ctx context.Context, query string, notes []Note, partial bool) (string, error)
}

// NoteIndexer receives every batch of new notes. Errors are logged and ignored.
type NoteIndexer interface {
	IndexNotes(ctx context.Context, query string, notes []Note) error
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
