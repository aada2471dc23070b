package tools

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikeboe/deep-research/pkg/research"
)

const duckDuckGoURL = "https://lite.duckduckgo.com/lite/"

// ddgRateLimit enforces one query per second across all DuckDuckGo searchers.
var ddgRateLimit struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
}

func init() {
	ddgRateLimit.interval = time.Second
}

// DuckDuckGo scrapes the DuckDuckGo lite HTML page. No API key is needed.
type DuckDuckGo struct {
	BaseURL string
	client  *http.Client
}

func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{BaseURL: duckDuckGoURL, client: &http.Client{Timeout: 15 * time.Second}}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if err := ddgWait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("q", query)

	resp, err := doWithBackoff(ctx, d.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("duckduckgo", resp)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGo(doc, maxResults), nil
}

func ddgWait(ctx context.Context) error {
	ddgRateLimit.mu.Lock()
	defer ddgRateLimit.mu.Unlock()
	if wait := time.Until(ddgRateLimit.last.Add(ddgRateLimit.interval)); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ddgRateLimit.last = time.Now()
	return nil
}

// parseDuckDuckGo pairs each result link with the snippet cell that follows it.
func parseDuckDuckGo(doc *goquery.Document, maxResults int) []research.SearchResult {
	links := doc.Find("a.result-link")
	snippets := doc.Find("td.result-snippet")

	var results []research.SearchResult
	seen := make(map[string]bool)
	links.EachWithBreak(func(i int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u := resolveDuckDuckGoLink(href)
		title := strings.TrimSpace(a.Text())
		if u == "" || title == "" || seen[u] {
			return true
		}
		seen[u] = true

		snippet := ""
		if i < snippets.Length() {
			snippet = collapseSpace(snippets.Eq(i).Text())
		}
		results = append(results, research.SearchResult{Title: title, URL: u, Snippet: snippet})
		return maxResults <= 0 || len(results) < maxResults
	})
	return results
}

// resolveDuckDuckGoLink unwraps "//duckduckgo.com/l/?uddg=<url>" redirects.
func resolveDuckDuckGoLink(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(parsed.Host, "duckduckgo.com") {
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return href
}
