package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mikeboe/deep-research/pkg/knowledge"
	"github.com/mikeboe/deep-research/pkg/research"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type execCall struct {
	sql  string
	args []any
}

// fakeDB records writes and answers the job insert. Reads are served by
// pgxmock in the tests that need them.
type fakeDB struct {
	mu    sync.Mutex
	execs []execCall
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: Query not supported")
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	return insertRow{args: args}
}

// statusWrites returns the status column of every status update, in order.
func (f *fakeDB) statusWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.execs {
		if i := strings.Index(e.sql, "status = '"); i >= 0 {
			rest := e.sql[i+len("status = '"):]
			out = append(out, rest[:strings.Index(rest, "'")])
		}
	}
	return out
}

func (f *fakeDB) last() execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execs[len(f.execs)-1]
}

func (f *fakeDB) stateWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.execs {
		if strings.Contains(e.sql, "SET state = $2") {
			n++
		}
	}
	return n
}

// insertRow echoes the INSERT arguments back as the RETURNING row.
type insertRow struct {
	args []any
}

func (r insertRow) Scan(dest ...any) error {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	*dest[0].(*uuid.UUID) = r.args[0].(uuid.UUID)
	*dest[1].(*string) = r.args[1].(string)
	*dest[2].(*string) = StatusPending
	*dest[3].(*int) = r.args[2].(int)
	*dest[4].(*int) = 0
	*dest[5].(*string) = "planning"
	*dest[6].(*time.Time) = now
	*dest[7].(*time.Time) = now
	return nil
}

type stubPlanner struct{ err error }

func (p stubPlanner) Plan(_ context.Context, _, _ string, existing []string) ([]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	return append(existing, "What is X?"), nil
}

// stubResearcher answers every question, or blocks until cancelled when
// started is set.
type stubResearcher struct {
	started chan struct{}
}

func (r stubResearcher) Research(ctx context.Context, questions []string, iteration int) ([]research.Note, error) {
	if r.started != nil {
		close(r.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	notes := make([]research.Note, len(questions))
	for i, q := range questions {
		notes[i] = research.Note{SubQuestion: q, Summary: "X is a protocol.", SourceURLs: []string{"https://x.example"}, Iteration: iteration}
	}
	return notes, nil
}

type stubCritic struct{}

func (stubCritic) Evaluate(context.Context, string, []string, []research.Note, int, int) (research.Verdict, error) {
	return research.Verdict{IsComplete: true}, nil
}

type stubWriter struct{}

func (stubWriter) Write(_ context.Context, query string, notes []research.Note, _ bool) (string, error) {
	return "# Research Report: " + query + "\n\nX is a protocol [1].\n", nil
}

func stubFactory(planner research.Planner, researcher research.Researcher) EngineFactory {
	return func(_ uuid.UUID, logger *slog.Logger) (*research.Engine, error) {
		return research.NewEngine(research.Config{MaxIterations: 2}, nil, nil, nil,
			research.WithLogger(logger),
			research.WithPlanner(planner),
			research.WithResearcher(researcher),
			research.WithCritic(stubCritic{}),
			research.WithWriter(stubWriter{}),
		), nil
	}
}

func newTestService(db *fakeDB, factory EngineFactory) *Service {
	s := NewService(db, research.Config{MaxIterations: 2}, factory, discardLogger())
	s.LogHandler = func(uuid.UUID) slog.Handler { return discardLogger().Handler() }
	return s
}

type fakeKnowledge struct {
	hits    []knowledge.Hit
	err     error
	query   string
	topK    int
	runID   string
	deleted []string
}

func (f *fakeKnowledge) Search(_ context.Context, text string, topK int, runID string) ([]knowledge.Hit, error) {
	f.query, f.topK, f.runID = text, topK, runID
	return f.hits, f.err
}

func (f *fakeKnowledge) DeleteRun(_ context.Context, runID string) (int64, error) {
	f.deleted = append(f.deleted, runID)
	return 2, f.err
}

// waitForWorkers blocks until every job worker of s has returned.
func waitForWorkers(s *Service) {
	s.wg.Wait()
}

func ptr[T any](v T) *T { return &v }
