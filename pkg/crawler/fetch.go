package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const maxBodyBytes = 16 << 20

// HTTPFetcher fetches HTML pages and decodes them to UTF-8.
type HTTPFetcher struct {
	userAgent string
	client    *http.Client
}

func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Add("Accept", "text/html")
	req.Header.Add("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !validateHTMLContentTypeHeader(contentType) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotHTML, url, contentType)
	}

	r, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return io.ReadAll(r)
}

func validateHTMLContentTypeHeader(header string) bool {
	header = strings.ToLower(header)
	return strings.Contains(header, "text/html") || strings.Contains(header, "application/xhtml")
}
