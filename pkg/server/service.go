package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/knowledge"
	"github.com/mikeboe/deep-research/pkg/research"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	ErrInvalidJob    = errors.New("invalid job request")
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotRunning = errors.New("job is not running")
	ErrJobRunning    = errors.New("job is still running")
	ErrReportPending = errors.New("report is not ready")
	ErrNoKnowledge   = errors.New("note search is not configured")
)

// EngineFactory builds the engine for one job. logger already writes to the
// job's log table.
type EngineFactory func(jobID uuid.UUID, logger *slog.Logger) (*research.Engine, error)

// NoteIndex searches and purges indexed research notes.
type NoteIndex interface {
	Search(ctx context.Context, text string, topK int, runID string) ([]knowledge.Hit, error)
	DeleteRun(ctx context.Context, runID string) (int64, error)
}

type Service struct {
	DB        database.Querier
	Cfg       research.Config
	NewEngine EngineFactory
	Knowledge NoteIndex
	Logger    *slog.Logger
	LogLevel  slog.Leveler

	// LogHandler builds the per-job log handler. Defaults to a DBLogHandler
	// teeing to Logger.
	LogHandler func(jobID uuid.UUID) slog.Handler

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
	base    context.Context
	stop    context.CancelFunc
}

func NewService(db database.Querier, cfg research.Config, newEngine EngineFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIterations < 0 {
		cfg.MaxIterations = research.DefaultMaxIterations
	}
	base, stop := context.WithCancel(context.Background())
	s := &Service{
		DB:        db,
		Cfg:       cfg,
		NewEngine: newEngine,
		Logger:    logger,
		LogLevel:  slog.LevelInfo,
		cancels:   make(map[uuid.UUID]context.CancelFunc),
		base:      base,
		stop:      stop,
	}
	s.LogHandler = func(jobID uuid.UUID) slog.Handler {
		return NewDBLogHandler(s.DB, jobID, s.LogLevel, s.Logger.Handler())
	}
	return s
}

type Job struct {
	ID            uuid.UUID       `json:"id"`
	Query         string          `json:"query"`
	Status        string          `json:"status"`
	MaxIterations int             `json:"max_iterations"`
	Iteration     int             `json:"iteration"`
	Phase         string          `json:"phase"`
	StopReason    *string         `json:"stop_reason,omitempty"`
	Report        *string         `json:"report,omitempty"`
	Error         *string         `json:"error,omitempty"`
	FailedStage   *string         `json:"failed_stage,omitempty"`
	State         json.RawMessage `json:"state,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateJobRequest struct {
	Query string `json:"query"`
	// MaxIterations overrides the configured cap when set.
	MaxIterations *int `json:"max_iterations,omitempty"`
}

func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, research.ErrEmptyQuery
	}
	maxIterations := s.Cfg.MaxIterations
	if req.MaxIterations != nil {
		if *req.MaxIterations < 0 {
			return nil, fmt.Errorf("%w: max_iterations must not be negative", ErrInvalidJob)
		}
		maxIterations = *req.MaxIterations
	}

	query := `
		INSERT INTO research_jobs (id, query, status, max_iterations)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, query, status, max_iterations, iteration, phase, created_at, updated_at
	`
	job := &Job{}
	err := s.DB.QueryRow(ctx, query, uuid.New(), q, maxIterations).Scan(
		&job.ID, &job.Query, &job.Status, &job.MaxIterations, &job.Iteration, &job.Phase, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	runCtx, cancel := context.WithCancel(s.base)
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(job.ID)
		s.runWorker(runCtx, job.ID, q, maxIterations)
	}()

	return job, nil
}

const jobColumns = `id, query, status, max_iterations, iteration, phase, stop_reason, report, error, failed_stage, state, created_at, updated_at`

func scanJob(row pgx.Row, job *Job) error {
	return row.Scan(
		&job.ID, &job.Query, &job.Status, &job.MaxIterations, &job.Iteration, &job.Phase,
		&job.StopReason, &job.Report, &job.Error, &job.FailedStage, &job.State, &job.CreatedAt, &job.UpdatedAt,
	)
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM research_jobs WHERE id = $1`
	job := &Job{}
	if err := scanJob(s.DB.QueryRow(ctx, query, id), job); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the 50 most recent jobs without their state snapshots.
func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	query := `
		SELECT id, query, status, max_iterations, iteration, phase, error, failed_stage, created_at, updated_at
		FROM research_jobs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Query, &job.Status, &job.MaxIterations, &job.Iteration, &job.Phase,
			&job.Error, &job.FailedStage, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	logs := []LogEntry{}
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	return logs, nil
}

// GetReport returns the Markdown report of a finished job.
func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*Job, string, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if job.Report == nil {
		return job, "", ErrReportPending
	}
	return job, *job.Report, nil
}

// CancelJob stops a running job. The worker records the cancellation.
func (s *Service) CancelJob(id uuid.UUID) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		return ErrJobNotRunning
	}
	cancel()
	return nil
}

// DeleteJob removes a finished job with its logs and indexed notes. Running
// jobs must be cancelled first. It returns the number of note chunks removed.
func (s *Service) DeleteJob(ctx context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	_, running := s.cancels[id]
	s.mu.Unlock()
	if running {
		return 0, ErrJobRunning
	}

	tag, err := s.DB.Exec(ctx, "DELETE FROM research_jobs WHERE id = $1", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrJobNotFound
	}

	if s.Knowledge == nil {
		return 0, nil
	}
	n, err := s.Knowledge.DeleteRun(ctx, id.String())
	if err != nil {
		s.Logger.Warn("Job deleted but its notes remain indexed", "job_id", id, "error", err)
		return 0, err
	}
	return n, nil
}

// SearchNotes runs a semantic search over indexed notes.
func (s *Service) SearchNotes(ctx context.Context, text string, topK int, jobID string) ([]knowledge.Hit, error) {
	if s.Knowledge == nil {
		return nil, ErrNoKnowledge
	}
	return s.Knowledge.Search(ctx, text, topK, jobID)
}

// Shutdown cancels all running jobs and waits for their workers.
func (s *Service) Shutdown() {
	s.stop()
	s.wg.Wait()
}

func (s *Service) release(id uuid.UUID) {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Service) runWorker(ctx context.Context, jobID uuid.UUID, query string, maxIterations int) {
	// Status writes must land even after the run context is cancelled.
	dbCtx := context.WithoutCancel(ctx)
	logger := slog.New(s.LogHandler(jobID))

	if _, err := s.DB.Exec(dbCtx, "UPDATE research_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", jobID); err != nil {
		logger.Error("Failed to mark job running", "error", err)
	}

	if s.NewEngine == nil {
		s.failJob(dbCtx, logger, jobID, "", errors.New("no engine configured"))
		return
	}
	engine, err := s.NewEngine(jobID, logger)
	if err != nil {
		s.failJob(dbCtx, logger, jobID, "", fmt.Errorf("failed to init engine: %w", err))
		return
	}

	engine.OnStateUpdate = func(state research.ResearchState) {
		stateJSON, err := json.Marshal(state)
		if err != nil {
			logger.Error("Failed to marshal state", "error", err)
			return
		}
		_, err = s.DB.Exec(dbCtx,
			"UPDATE research_jobs SET state = $2, phase = $3, iteration = $4, updated_at = NOW() WHERE id = $1",
			jobID, stateJSON, state.Phase.String(), state.Iteration)
		if err != nil {
			logger.Error("Failed to save state to DB", "error", err)
		}
	}

	state, err := engine.RunState(ctx, query, maxIterations)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Research cancelled")
			if _, err := s.DB.Exec(dbCtx, "UPDATE research_jobs SET status = 'cancelled', updated_at = NOW() WHERE id = $1", jobID); err != nil {
				logger.Error("Failed to mark job cancelled", "error", err)
			}
			return
		}
		stage := ""
		var stageErr *research.StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Phase.String()
		}
		s.failJob(dbCtx, logger, jobID, stage, err)
		return
	}

	_, err = s.DB.Exec(dbCtx,
		"UPDATE research_jobs SET status = 'completed', report = $2, stop_reason = $3, updated_at = NOW() WHERE id = $1",
		jobID, state.FinalReport, string(state.StopReason))
	if err != nil {
		logger.Error("Failed to save final report to DB", "error", err)
		return
	}
	logger.Info("Research completed", "iterations", state.Iteration, "stop_reason", state.StopReason)
}

func (s *Service) failJob(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, stage string, err error) {
	logger.Error("Research failed", "error", err, "stage", stage)

	var failedStage *string
	if stage != "" {
		failedStage = &stage
	}
	_, dbErr := s.DB.Exec(ctx,
		"UPDATE research_jobs SET status = 'failed', error = $2, failed_stage = $3, updated_at = NOW() WHERE id = $1",
		jobID, err.Error(), failedStage)
	if dbErr != nil {
		logger.Error("Failed to mark job failed", "error", dbErr)
	}
}
