package crawler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/devraulu/normkb/pkg/storage"
)

// Harvest chunks every document page into w. Pages are fetched by
// crawler.workers goroutines, but snippets reach the ledger strictly in
// docs order. Per-page failures are logged and skipped. It returns the
// number of snippets written.
func (c *Crawler) Harvest(ctx context.Context, docs []string, w *storage.Writer) (int, error) {
	workers := max(c.cfg.Crawler.Workers, 1)
	slog.Info("harvest started",
		slog.Int("documents", len(docs)),
		slog.Int("workers", workers),
		slog.Int("chunk_size", c.chunker.Size()),
		slog.Int("chunk_overlap", c.chunker.Overlap()),
	)

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan harvested, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(hctx, id, docs, jobs, results)
		}(i)
	}

	go func() {
		defer close(jobs)
		for seq := range docs {
			select {
			case jobs <- seq:
			case <-hctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]harvested)
	next := 0
	var writeErr error

	for res := range results {
		pending[res.seq] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if writeErr != nil || ctx.Err() != nil {
				continue
			}
			if err := c.write(w, r); err != nil {
				writeErr = err
				cancel()
			}
		}
	}

	if writeErr != nil {
		return w.Count(), writeErr
	}
	if err := ctx.Err(); err != nil {
		return w.Count(), err
	}

	slog.Info("harvest complete",
		slog.Int("documents", len(docs)),
		slog.Int("harvested", c.Stats.DocumentsHarvested),
		slog.Int("snippets", w.Count()),
	)

	if w.Count() == 0 {
		return 0, ErrNoSnippets
	}
	return w.Count(), nil
}

func (c *Crawler) write(w *storage.Writer, r harvested) error {
	switch {
	case r.err != nil:
		c.Stats.PagesErrored++
		slog.Warn("harvest failed", slog.String("url", r.url), slog.Any("err", r.err))
		return nil
	case r.skipped:
		c.Stats.PagesSkipped++
		return nil
	}

	for _, sn := range r.snippets {
		if err := w.Append(sn); err != nil {
			return err
		}
	}
	c.Stats.DocumentsHarvested++
	c.Stats.Snippets += len(r.snippets)
	slog.Debug("document harvested", slog.String("url", r.url), slog.Int("snippets", len(r.snippets)))
	return nil
}
