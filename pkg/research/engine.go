package research

import (
	"context"
	"errors"
	"log/slog"
)

// Engine drives a research run through planning, research, critique and
// writing until the critic is satisfied or the iteration cap is reached.
type Engine struct {
	Config     Config
	Planner    Planner
	Researcher Researcher
	Critic     Critic
	Writer     Writer
	Indexer    NoteIndexer
	Logger     *slog.Logger

	// OnStateUpdate receives a snapshot after every phase transition.
	OnStateUpdate func(state ResearchState)

	summarizer Completer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.Logger = logger }
}

func WithIndexer(indexer NoteIndexer) Option {
	return func(e *Engine) { e.Indexer = indexer }
}

func WithPlanner(p Planner) Option {
	return func(e *Engine) { e.Planner = p }
}

func WithResearcher(r Researcher) Option {
	return func(e *Engine) { e.Researcher = r }
}

func WithCritic(c Critic) Option {
	return func(e *Engine) { e.Critic = c }
}

func WithWriter(w Writer) Option {
	return func(e *Engine) { e.Writer = w }
}

// WithSummarizer sets a separate, usually faster, model for note summaries.
func WithSummarizer(llm Completer) Option {
	return func(e *Engine) { e.summarizer = llm }
}

func WithStateHook(fn func(state ResearchState)) Option {
	return func(e *Engine) { e.OnStateUpdate = fn }
}

// NewEngine wires the default stages around llm, searcher and fetcher.
// Stages set through options replace the defaults.
func NewEngine(cfg Config, llm Completer, searcher Searcher, fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{Config: cfg.withDefaults()}
	for _, opt := range opts {
		opt(e)
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.summarizer == nil {
		e.summarizer = llm
	}

	if e.Planner == nil {
		e.Planner = NewPlanner(llm, e.Config, e.Logger)
	}
	if e.Researcher == nil {
		e.Researcher = NewResearcher(searcher, fetcher, e.summarizer, e.Config, e.Logger)
	}
	if e.Critic == nil {
		e.Critic = NewCritic(llm, e.Config, e.Logger)
	}
	if e.Writer == nil {
		e.Writer = NewWriter(llm, e.Config, e.Logger)
	}
	return e
}

// Run researches query and returns the Markdown report. A negative
// maxIterations selects the configured cap.
func (e *Engine) Run(ctx context.Context, query string, maxIterations int) (string, error) {
	state, err := e.RunState(ctx, query, maxIterations)
	if err != nil {
		return "", err
	}
	return state.FinalReport, nil
}

// RunState is Run returning the whole final state. On a fatal error the
// partial state is returned together with a *StageError.
func (e *Engine) RunState(ctx context.Context, query string, maxIterations int) (*ResearchState, error) {
	state, err := NewResearchState(query)
	if err != nil {
		return nil, err
	}
	if maxIterations < 0 {
		maxIterations = e.Config.MaxIterations
	}

	logger := e.Logger.With("run_id", state.RunID)
	logger.Info("Starting research loop", "query", state.Query, "max_iterations", maxIterations)
	e.publish(state)

	for state.Phase != PhaseDone {
		if err := ctx.Err(); err != nil {
			return state, e.abort(logger, state, err)
		}

		switch state.Phase {
		case PhasePlanning:
			plan, err := e.Planner.Plan(ctx, state.Query, state.Critique, state.Plan)
			if err != nil {
				return state, e.abort(logger, state, asPlanningError(ctx, err))
			}
			state.Plan = mergePlan(state.Plan, plan)
			if len(state.Plan) == 0 {
				return state, e.abort(logger, state, &PlanningError{Err: errors.New("planner returned an empty plan")})
			}
			logger.Info("Plan ready", "iteration", state.Iteration, "questions", len(state.Plan))
			state.Phase = PhaseResearching

		case PhaseResearching:
			open := state.OpenQuestions()
			if len(open) == 0 {
				logger.Warn("No open sub-questions to research", "iteration", state.Iteration)
			} else {
				notes, err := e.Researcher.Research(ctx, open, state.Iteration)
				if err != nil {
					return state, e.abort(logger, state, err)
				}
				state.AppendNotes(notes...)
				e.index(ctx, logger, state.Query, notes)
			}
			state.Phase = PhaseCritiquing

		case PhaseCritiquing:
			verdict, err := e.Critic.Evaluate(ctx, state.Query, state.Plan, state.Notes, state.Iteration, maxIterations)
			if err != nil {
				err = asCritiqueError(ctx, err)
				var ce *CritiqueError
				if ctx.Err() != nil || !e.Config.CritiqueRecovery || !errors.As(err, &ce) {
					return state, e.abort(logger, state, err)
				}
				logger.Warn("Critique failed, treating as incomplete", "error", err)
				verdict = Verdict{IsComplete: false}
			}

			switch {
			case verdict.IsComplete:
				logger.Info("Research complete", "iteration", state.Iteration)
				state.Critique = ""
				state.ShouldContinue = false
				state.StopReason = StopReasonComplete
				state.Phase = PhaseWriting
			case state.Iteration >= maxIterations:
				logger.Info("Iteration cap reached, writing with current notes", "iteration", state.Iteration)
				state.Critique = verdict.Feedback
				state.ShouldContinue = false
				state.StopReason = StopReasonIterationCap
				state.Phase = PhaseWriting
			default:
				state.Iteration++
				state.Critique = verdict.Feedback
				logger.Info("Research incomplete, replanning", "iteration", state.Iteration, "critique", verdict.Feedback)
				state.Phase = PhasePlanning
			}

		case PhaseWriting:
			report, err := e.Writer.Write(ctx, state.Query, state.Notes, state.StopReason == StopReasonIterationCap)
			if err != nil {
				return state, e.abort(logger, state, err)
			}
			state.FinalReport = report
			state.Phase = PhaseDone
		}

		e.publish(state)
	}

	logger.Info("Research loop finished", "iterations", state.Iteration, "notes", len(state.Notes), "stop_reason", state.StopReason)
	return state, nil
}

func (e *Engine) index(ctx context.Context, logger *slog.Logger, query string, notes []Note) {
	if e.Indexer == nil || len(notes) == 0 {
		return
	}
	if err := e.Indexer.IndexNotes(ctx, query, notes); err != nil {
		logger.Warn("Failed to index notes", "error", err)
	}
}

func (e *Engine) publish(state *ResearchState) {
	if e.OnStateUpdate != nil {
		e.OnStateUpdate(state.Snapshot())
	}
}

func (e *Engine) abort(logger *slog.Logger, state *ResearchState, err error) error {
	logger.Error("Research run failed", "stage", state.Phase.String(), "error", err)
	return &StageError{Phase: state.Phase, Err: err}
}

func asPlanningError(ctx context.Context, err error) error {
	var pe *PlanningError
	if ctx.Err() != nil || errors.As(err, &pe) {
		return err
	}
	return &PlanningError{Err: err}
}

func asCritiqueError(ctx context.Context, err error) error {
	var ce *CritiqueError
	if ctx.Err() != nil || errors.As(err, &ce) {
		return err
	}
	return &CritiqueError{Err: err}
}
