package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/devraulu/normkb/pkg/index"
	"github.com/devraulu/normkb/pkg/storage"
)

type snapshot struct {
	layout    storage.Layout
	retriever *Retriever
	rows      int
}

// Engine serves retrieval over the current knowledge base build. The ledger,
// its texts and the index are held in memory and swapped as one pointer, so a
// query sees either the old build or the new one, even after the loaded build
// directory has been pruned.
type Engine struct {
	kb       storage.KnowledgeBase
	embedder index.Embedder
	current  atomic.Pointer[snapshot]
}

// NewEngine returns an engine with nothing loaded. Retrieve fails with
// ErrNotBuilt until a Reload succeeds.
func NewEngine(kb storage.KnowledgeBase, e index.Embedder) *Engine {
	return &Engine{kb: kb, embedder: e}
}

// Open loads the current build. It fails with ErrNotBuilt when nothing has
// been promoted yet.
func Open(kb storage.KnowledgeBase, e index.Embedder) (*Engine, error) {
	eng := NewEngine(kb, e)
	if err := eng.Reload(); err != nil {
		return nil, err
	}
	return eng, nil
}

// Reload swaps in whatever CURRENT points to. On failure the previous build
// keeps serving.
func (e *Engine) Reload() error {
	l, err := e.kb.Current()
	if err != nil {
		if errors.Is(err, storage.ErrNoCurrent) {
			return fmt.Errorf("%w: %s", ErrNotBuilt, e.kb.Root)
		}
		return err
	}

	if prev := e.current.Load(); prev != nil && prev.layout == l {
		return nil
	}

	snap, err := e.load(l)
	if err != nil {
		return err
	}
	e.current.Store(snap)

	slog.Info("retrieval engine loaded",
		slog.String("build", filepath.Base(l.Dir)),
		slog.Int("snippets", snap.rows),
	)
	return nil
}

func (e *Engine) load(l storage.Layout) (*snapshot, error) {
	if !l.HasLedger() || !l.HasIndex() {
		return nil, fmt.Errorf("%w: %s has no ledger or index", ErrNotBuilt, l.Dir)
	}

	records, err := storage.ReadLedger(l)
	if err != nil {
		return nil, err
	}
	flat, err := index.ReadFile(l.IndexPath())
	if err != nil {
		return nil, err
	}
	if flat.Len() != len(records) {
		return nil, fmt.Errorf("%w: ledger has %d rows, index has %d", storage.ErrCorrupt, len(records), flat.Len())
	}
	texts, err := storage.LoadTexts(l, records)
	if err != nil {
		return nil, err
	}

	return &snapshot{
		layout:    l,
		retriever: NewRetriever(e.embedder, flat, records, texts),
		rows:      len(records),
	}, nil
}

func (e *Engine) Retrieve(ctx context.Context, query string, k int, minScore float64) ([]Result, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, ErrNotBuilt
	}
	return snap.retriever.Retrieve(ctx, query, k, minScore)
}

// Build names the build being served.
func (e *Engine) Build() string {
	if snap := e.current.Load(); snap != nil {
		return filepath.Base(snap.layout.Dir)
	}
	return ""
}

// Len is the number of snippets in the build being served.
func (e *Engine) Len() int {
	if snap := e.current.Load(); snap != nil {
		return snap.rows
	}
	return 0
}
