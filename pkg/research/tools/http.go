package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// doWithBackoff sends the request built by newReq and retries 429 responses,
// doubling the delay each time up to maxBackoff.
func doWithBackoff(ctx context.Context, client *http.Client, newReq func() (*http.Request, error)) (*http.Response, error) {
	delay := initialBackoff
	for {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxBackoff {
			delay *= 2
		}
	}
}

// statusError reads a short excerpt of a failed response body into the error.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s http %d: %s", provider, resp.StatusCode, string(body))
}

func capResults(n, maxResults int) int {
	if maxResults <= 0 || maxResults > n {
		return n
	}
	return maxResults
}
