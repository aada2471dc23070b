package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/deep-research/pkg/knowledge"
)

type startResearchInput struct {
	Query         string `json:"query" jsonschema:"the research question to investigate"`
	MaxIterations *int   `json:"max_iterations,omitempty" jsonschema:"maximum number of critique loop-backs"`
}

type getResearchInput struct {
	ID string `json:"id" jsonschema:"the research job id"`
}

type searchNotesInput struct {
	Query string `json:"query" jsonschema:"text to search the research notes for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of results, default 5"`
	JobID string `json:"job_id,omitempty" jsonschema:"restrict results to one research job"`
}

type jobOutput struct {
	ID          string `json:"id"`
	Query       string `json:"query"`
	Status      string `json:"status"`
	Phase       string `json:"phase"`
	Iteration   int    `json:"iteration"`
	StopReason  string `json:"stop_reason,omitempty"`
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`
	Report      string `json:"report,omitempty"`
}

type searchNotesOutput struct {
	Hits []knowledge.Hit `json:"hits"`
}

// NewMCPServer exposes the research service as MCP tools.
func NewMCPServer(s *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "deep-research", Version: "1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_research",
		Description: "Start a research job. Returns the job id; poll get_research for the report.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in startResearchInput) (*mcp.CallToolResult, jobOutput, error) {
		job, err := s.CreateJob(ctx, CreateJobRequest{Query: in.Query, MaxIterations: in.MaxIterations})
		if err != nil {
			return nil, jobOutput{}, err
		}
		return textResult(toJobOutput(job))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_research",
		Description: "Get the status of a research job, including the Markdown report once it has completed.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in getResearchInput) (*mcp.CallToolResult, jobOutput, error) {
		id, err := uuid.Parse(in.ID)
		if err != nil {
			return nil, jobOutput{}, fmt.Errorf("invalid job id %q", in.ID)
		}
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, jobOutput{}, err
		}
		return textResult(toJobOutput(job))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_notes",
		Description: "Semantic search over the notes gathered by past research jobs.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in searchNotesInput) (*mcp.CallToolResult, searchNotesOutput, error) {
		topK := in.TopK
		if topK <= 0 {
			topK = 5
		}
		hits, err := s.SearchNotes(ctx, in.Query, topK, in.JobID)
		if err != nil {
			return nil, searchNotesOutput{}, err
		}
		if hits == nil {
			hits = []knowledge.Hit{}
		}
		return textResult(searchNotesOutput{Hits: hits})
	})

	return server
}

// NewMCPHandler serves the MCP tools over streamable HTTP.
func NewMCPHandler(s *Service) http.Handler {
	server := NewMCPServer(s)
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func textResult[T any](out T) (*mcp.CallToolResult, T, error) {
	data, err := json.Marshal(out)
	if err != nil {
		var zero T
		return nil, zero, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, out, nil
}

func toJobOutput(job *Job) jobOutput {
	out := jobOutput{
		ID:        job.ID.String(),
		Query:     job.Query,
		Status:    job.Status,
		Phase:     job.Phase,
		Iteration: job.Iteration,
	}
	if job.StopReason != nil {
		out.StopReason = *job.StopReason
	}
	if job.FailedStage != nil {
		out.FailedStage = *job.FailedStage
	}
	if job.Error != nil {
		out.Error = *job.Error
	}
	if job.Report != nil {
		out.Report = *job.Report
	}
	return out
}
