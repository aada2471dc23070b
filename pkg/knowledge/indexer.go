package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/splitter"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// Embedder turns text into vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists embedded chunks and searches them.
type Store interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]any) ([]vectorstore.SimilaritySearchResult, error)
	DeleteByMetadata(ctx context.Context, filter map[string]any) (int64, error)
}

// Indexer embeds research notes into a vector store so later runs and the
// API can search them.
type Indexer struct {
	embedder Embedder
	store    Store
	splitter *splitter.TextSplitter
	logger   *slog.Logger
	runID    string
}

func NewIndexer(embedder Embedder, store Store, chunkSize, chunkOverlap int, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		embedder: embedder,
		store:    store,
		splitter: splitter.NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap),
		logger:   logger,
	}
}

// ForRun returns a copy that tags every chunk with runID.
func (ix *Indexer) ForRun(runID string) *Indexer {
	cp := *ix
	cp.runID = runID
	return &cp
}

// IndexNotes chunks and embeds every successful note. Failed notes carry no
// findings and are skipped.
func (ix *Indexer) IndexNotes(ctx context.Context, query string, notes []research.Note) error {
	var docs []vectorstore.Document
	for _, note := range notes {
		if note.Failed || strings.TrimSpace(note.Summary) == "" {
			continue
		}
		chunks, err := ix.splitter.SplitText(note.Summary)
		if err != nil {
			return fmt.Errorf("failed to split note %q: %w", note.SubQuestion, err)
		}
		for _, chunk := range chunks {
			docs = append(docs, vectorstore.Document{
				Content:  chunk,
				Metadata: ix.metadata(query, note),
			})
		}
	}
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vecs, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed notes: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(docs))
	}
	for i := range docs {
		docs[i].Embedding = vecs[i]
	}

	if err := ix.store.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("failed to store notes: %w", err)
	}
	ix.logger.Debug("Indexed notes", "notes", len(notes), "chunks", len(docs))
	return nil
}

func (ix *Indexer) metadata(query string, note research.Note) map[string]any {
	md := map[string]any{
		"query":        query,
		"sub_question": note.SubQuestion,
		"sources":      note.SourceURLs,
		"fetched":      note.Fetched,
		"iteration":    note.Iteration,
	}
	if len(note.SourceURLs) > 0 {
		md["source"] = note.SourceURLs[0]
	}
	if ix.runID != "" {
		md["run_id"] = ix.runID
	}
	return md
}

// Hit is one search match.
type Hit struct {
	Content     string   `json:"content"`
	Query       string   `json:"query,omitempty"`
	SubQuestion string   `json:"sub_question,omitempty"`
	Sources     []string `json:"sources,omitempty"`
	RunID       string   `json:"run_id,omitempty"`
	Score       float64  `json:"score"`
}

// Search finds the notes closest to text. runID narrows the search to one
// run when set.
func (ix *Indexer) Search(ctx context.Context, text string, topK int, runID string) ([]Hit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("search text is empty")
	}
	vec, err := ix.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search text: %w", err)
	}

	var filter map[string]any
	if runID != "" {
		filter = map[string]any{"run_id": runID}
	}
	results, err := ix.store.SimilaritySearch(ctx, vec, topK, filter)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		md := r.Document.Metadata
		hits = append(hits, Hit{
			Content:     r.Document.Content,
			Query:       stringField(md, "query"),
			SubQuestion: stringField(md, "sub_question"),
			Sources:     stringsField(md, "sources"),
			RunID:       stringField(md, "run_id"),
			Score:       r.Score,
		})
	}
	return hits, nil
}

// DeleteRun removes every chunk indexed for runID.
func (ix *Indexer) DeleteRun(ctx context.Context, runID string) (int64, error) {
	if runID == "" {
		return 0, fmt.Errorf("run id is empty")
	}
	n, err := ix.store.DeleteByMetadata(ctx, map[string]any{"run_id": runID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes of run %s: %w", runID, err)
	}
	ix.logger.Info("Deleted indexed notes", "run_id", runID, "chunks", n)
	return n, nil
}

func stringField(md map[string]any, key string) string {
	s, _ := md[key].(string)
	return s
}

// stringsField reads a string list that went through JSON and came back as
// []any.
func stringsField(md map[string]any, key string) []string {
	switch v := md[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
