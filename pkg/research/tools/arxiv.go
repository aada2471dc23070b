package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

const arxivURL = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches the arXiv Atom API. Result URLs point at the PDF when the
// entry has one, so the OCR fetcher can read the full paper.
type Arxiv struct {
	BaseURL string
	Logger  *slog.Logger
	client  *http.Client
}

func NewArxiv(logger *slog.Logger) *Arxiv {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arxiv{BaseURL: arxivURL, Logger: logger, client: &http.Client{Timeout: 20 * time.Second}}
}

func (a *Arxiv) Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := a.BaseURL + "?" + params.Encode()

	resp, err := doWithBackoff(ctx, a.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.Logger.Error("API returned non-200 status code", "status", resp.StatusCode)
		return nil, statusError("arxiv", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}
	a.Logger.Debug("arXiv search finished", "query", query, "entries", len(feed.Entry))

	n := capResults(len(feed.Entry), maxResults)
	results := make([]research.SearchResult, 0, n)
	for _, entry := range feed.Entry[:n] {
		link := collapseSpace(entry.ID)
		for _, l := range entry.Link {
			if l.Type == "application/pdf" {
				link = l.Href
				break
			}
		}
		snippet := collapseSpace(entry.Summary)
		if entry.Published != "" {
			snippet = fmt.Sprintf("(published %s) %s", entry.Published, snippet)
		}
		results = append(results, research.SearchResult{
			Title:   collapseSpace(entry.Title),
			URL:     link,
			Snippet: snippet,
		})
	}
	return results, nil
}
