package tools

import (
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// NewSearcher builds the search provider named by cfg.SearchProvider.
func NewSearcher(cfg *config.Config, logger *slog.Logger) (research.Searcher, error) {
	switch cfg.SearchProvider {
	case "tavily":
		return NewTavily(cfg.TavilyApiKey, "advanced"), nil
	case "brave":
		return NewBrave(cfg.BraveApiKey), nil
	case "duckduckgo", "ddg", "":
		return NewDuckDuckGo(), nil
	case "arxiv":
		return NewArxiv(logger), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.SearchProvider)
	}
}

// NewFetcher returns a web fetcher, routing PDFs through OCR when a Mistral
// key is configured.
func NewFetcher(cfg *config.Config) research.Fetcher {
	r := &RoutingFetcher{Web: NewHTTPFetcher()}
	if cfg.MistralApiKey != "" {
		r.PDF = NewMistralOCR(cfg.MistralApiKey)
	}
	return r
}
