// Package app wires configuration into the collaborators shared by the CLI
// and the API server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/knowledge"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// Stack holds the collaborators every run shares.
type Stack struct {
	Config    *config.Config
	Reasoning research.Completer
	Fast      research.Completer
	Searcher  research.Searcher
	Fetcher   research.Fetcher
}

func NewStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	reasoning, fast, err := clients.Completers(ctx, cfg)
	if err != nil {
		return nil, err
	}
	searcher, err := tools.NewSearcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Stack{
		Config:    cfg,
		Reasoning: reasoning,
		Fast:      fast,
		Searcher:  searcher,
		Fetcher:   tools.NewFetcher(cfg),
	}, nil
}

// Engine builds a research engine logging to logger. opts are applied after
// the stack defaults.
func (s *Stack) Engine(logger *slog.Logger, opts ...research.Option) *research.Engine {
	base := []research.Option{research.WithLogger(logger), research.WithSummarizer(s.Fast)}
	return research.NewEngine(s.Config.Research(), s.Reasoning, s.Searcher, s.Fetcher, append(base, opts...)...)
}

// NewKnowledge builds the note indexer backed by the pgvector table named in
// cfg.CollectionName.
func NewKnowledge(ctx context.Context, cfg *config.Config, db database.Querier, logger *slog.Logger) (*knowledge.Indexer, error) {
	embedder, err := embeddings.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init embedder: %w", err)
	}
	store, err := vectorstore.NewPGVectorStore(db, cfg.CollectionName)
	if err != nil {
		return nil, err
	}
	return knowledge.NewIndexer(embedder, store, cfg.ChunkSize, cfg.ChunkOverlap, logger), nil
}
