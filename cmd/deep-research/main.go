package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/app"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
)

type options struct {
	query         string
	maxIterations int
	outDir        string
	search        string
	notesPath     string
	index         bool
}

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based research agent",
		Long: `deep-research answers a question by planning sub-questions, researching them on the web,
critiquing the coverage and looping back until the critic is satisfied or the
iteration limit is reached. The result is a cited Markdown report.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("query") {
				q, err := promptQuery(cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
				opts.query = q
			}
			if strings.TrimSpace(opts.query) == "" {
				slog.Error("Query cannot be empty")
				return research.ErrEmptyQuery
			}
			if opts.search != "" {
				cfg.SearchProvider = strings.ToLower(opts.search)
			}
			if opts.outDir == "" {
				opts.outDir = cfg.ReportDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "The research question")
	cmd.Flags().IntVarP(&opts.maxIterations, "max-iterations", "n", -1, "Maximum critique loop-backs (default from MAX_ITERATIONS)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Directory for the report (default from REPORT_DIR)")
	cmd.Flags().StringVar(&opts.search, "search", "", "Search provider: duckduckgo, tavily, brave or arxiv")
	cmd.Flags().StringVar(&opts.notesPath, "notes", "", "Also write the research notes as JSON to this file")
	cmd.Flags().BoolVar(&opts.index, "index", false, "Index the notes into the pgvector collection")

	return cmd
}

func promptQuery(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter research question: ")
	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read question: %w", err)
	}
	return strings.TrimSpace(input), nil
}

func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	logger := slog.Default()

	stack, err := app.NewStack(ctx, cfg, logger)
	if err != nil {
		slog.Error("Error initializing research stack", "error", err)
		return err
	}

	var engineOpts []research.Option
	if opts.index {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			return err
		}
		defer db.Close()

		if err := db.InitSchema(ctx, cfg.CollectionName, cfg.EmbeddingDimensions); err != nil {
			slog.Error("Failed to initialize schema", "error", err)
			return err
		}
		indexer, err := app.NewKnowledge(ctx, cfg, db.Pool, logger)
		if err != nil {
			slog.Error("Failed to initialize note index", "error", err)
			return err
		}
		engineOpts = append(engineOpts, research.WithIndexer(indexer))
	}

	engine := stack.Engine(logger, engineOpts...)
	state, err := engine.RunState(ctx, opts.query, opts.maxIterations)
	if err != nil {
		var stageErr *research.StageError
		if errors.As(err, &stageErr) {
			fmt.Fprintf(out, "Research failed during %s: %v\n", stageErr.Phase, stageErr.Err)
		}
		slog.Error("Error running research", "error", err)
		return err
	}

	reportPath, err := writeOutputs(state, opts, time.Now())
	if err != nil {
		slog.Error("Failed to write outputs", "error", err)
		return err
	}

	if state.StopReason == research.StopReasonIterationCap {
		fmt.Fprintf(out, "Iteration limit reached after %d iterations; the report may be incomplete.\n", state.Iteration)
	}
	fmt.Fprintf(out, "Report written to %s\n", reportPath)
	return nil
}

// writeOutputs saves the report as report_<unix>.md in opts.outDir and the
// notes to opts.notesPath when set.
func writeOutputs(state *research.ResearchState, opts options, now time.Time) (string, error) {
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	reportPath := filepath.Join(opts.outDir, fmt.Sprintf("report_%d.md", now.Unix()))
	if err := os.WriteFile(reportPath, []byte(state.FinalReport), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	if opts.notesPath != "" {
		data, err := json.MarshalIndent(state.Notes, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode notes: %w", err)
		}
		if err := os.WriteFile(opts.notesPath, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write notes: %w", err)
		}
	}
	return reportPath, nil
}
