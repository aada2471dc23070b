package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxBodyBytes  = 4 << 20
	maxFetchBytes = 32 * 1024
)

// ErrUnsupportedContent is returned for responses the fetcher cannot turn
// into text, such as PDFs without an OCR fetcher.
var ErrUnsupportedContent = errors.New("unsupported content type")

// HTTPFetcher downloads a page and extracts its readable text.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: 20 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", errors.New("fetch url is empty")
	}

	resp, err := doWithBackoff(ctx, f.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("fetch", resp)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	var text string
	switch {
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return "", fmt.Errorf("failed to parse html: %w", err)
		}
		title := collapseSpace(doc.Find("title").First().Text())
		text = extractText(doc)
		if title != "" {
			text = title + "\n\n" + text
		}
	case strings.HasPrefix(mediaType, "text/"):
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		text = collapseLines(string(raw))
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}

	if len(text) > maxFetchBytes {
		text = strings.ToValidUTF8(text[:maxFetchBytes], "")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("page has no readable text")
	}
	return text, nil
}
