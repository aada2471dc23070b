package tools

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

// RoutingFetcher sends PDF links to the PDF fetcher and everything else to
// the web fetcher.
type RoutingFetcher struct {
	Web research.Fetcher
	PDF research.Fetcher
}

func (r *RoutingFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if r.PDF != nil && isPDF(rawURL) {
		return r.PDF.Fetch(ctx, rawURL)
	}
	if r.Web == nil {
		return "", errors.New("no web fetcher configured")
	}
	return r.Web.Fetch(ctx, rawURL)
}

func isPDF(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if strings.EqualFold(path.Ext(u.Path), ".pdf") {
		return true
	}
	return strings.HasSuffix(u.Host, "arxiv.org") && strings.HasPrefix(u.Path, "/pdf/")
}
