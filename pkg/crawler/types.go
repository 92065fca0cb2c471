package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/devraulu/normkb/pkg/storage"
)

var (
	// ErrNoDocuments means discovery finished without a single document
	// page. Seeds or classifier thresholds need attention.
	ErrNoDocuments = errors.New("no document pages discovered")
	// ErrNoSnippets means a harvest produced nothing to index.
	ErrNoSnippets = errors.New("harvest produced no snippets")
	ErrNotHTML    = errors.New("response is not html")
)

// Fetcher downloads a page body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchError is a non-2xx answer.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

// harvested is one document's outcome, delivered to the ledger writer.
type harvested struct {
	seq      int
	url      string
	snippets []storage.Snippet
	skipped  bool
	err      error
}
