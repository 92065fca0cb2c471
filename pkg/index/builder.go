package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devraulu/normkb/pkg/storage"
)

var (
	// ErrLedgerMissing means there is nothing to index yet.
	ErrLedgerMissing = storage.ErrLedgerMissing
	ErrCountMismatch = errors.New("embedding count does not match snippet count")
	ErrEmptyLedger   = errors.New("snippet ledger is empty")
)

// Embedder turns texts into fixed-dimension vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Builder struct {
	embedder  Embedder
	batchSize int
}

func NewBuilder(e Embedder, batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Builder{embedder: e, batchSize: batchSize}
}

// Build embeds every snippet of the layout in ledger order and writes the
// index next to the ledger. Row N of the result is ledger row N.
func (b *Builder) Build(ctx context.Context, l storage.Layout) (*Flat, error) {
	start := time.Now()

	records, err := storage.ReadLedger(l)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyLedger, l.LedgerPath())
	}

	texts, err := storage.LoadTexts(l, records)
	if err != nil {
		return nil, err
	}

	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	flat := NewFlat(len(vectors[0]))
	if err := flat.Add(vectors...); err != nil {
		return nil, err
	}
	if flat.Len() != len(records) {
		return nil, fmt.Errorf("%w: %d rows for %d ledger records", ErrCountMismatch, flat.Len(), len(records))
	}

	if err := flat.WriteFile(l.IndexPath()); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}

	slog.Info("index built",
		slog.Int("vectors", flat.Len()),
		slog.Int("dim", flat.Dim()),
		slog.String("path", l.IndexPath()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return flat, nil
}

func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hi := min(lo+b.batchSize, len(texts))
		batch, err := b.embedder.Embed(ctx, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("embed snippets %d-%d: %w", lo, hi-1, err)
		}
		if len(batch) != hi-lo {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrCountMismatch, len(batch), hi-lo)
		}
		out = append(out, batch...)

		slog.Debug("embedded batch", slog.Int("done", hi), slog.Int("total", len(texts)))
	}
	return out, nil
}
