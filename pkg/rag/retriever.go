// Package rag answers questions from a built knowledge base: it embeds the
// query, searches the index, and grounds the language model on what it finds.
package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/devraulu/normkb/pkg/index"
	"github.com/devraulu/normkb/pkg/storage"
)

var (
	ErrNotBuilt = errors.New("knowledge base not built, run the crawler first")
	// ErrServiceUnavailable wraps embedding and language model failures so
	// callers can tell "service is down" from "nothing relevant found".
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Searcher is the similarity search over index rows.
type Searcher interface {
	Search(query []float32, k int) ([]index.Hit, error)
}

type Result struct {
	Score  float32
	Record storage.Record
	Text   string
}

// Retriever maps search hits back to ledger records and their texts. It holds
// no mutable state and is safe for concurrent use.
type Retriever struct {
	embedder index.Embedder
	searcher Searcher
	records  []storage.Record
	texts    []string
}

// NewRetriever serves records and texts held in memory; texts[i] belongs to
// records[i].
func NewRetriever(e index.Embedder, s Searcher, records []storage.Record, texts []string) *Retriever {
	return &Retriever{embedder: e, searcher: s, records: records, texts: texts}
}

// Retrieve returns up to k results scoring at least minScore, best first.
// An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float64) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrServiceUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embed query: got %d vectors", ErrServiceUnavailable, len(vectors))
	}
	q := vectors[0]
	index.Normalize(q)

	hits, err := r.searcher.Search(q, k)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, h := range hits {
		if h.Row < 0 || h.Row >= len(r.records) || h.Row >= len(r.texts) {
			continue
		}
		if float64(h.Score) < minScore {
			continue
		}

		results = append(results, Result{Score: h.Score, Record: r.records[h.Row], Text: r.texts[h.Row]})
	}
	return results, nil
}
