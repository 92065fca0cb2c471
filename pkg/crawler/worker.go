package crawler

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/devraulu/normkb/pkg/process"
	"github.com/devraulu/normkb/pkg/storage"
)

func (c *Crawler) worker(ctx context.Context, id int, docs []string, jobs <-chan int, results chan<- harvested) {
	slog.Debug("harvest worker started", "id", id)
	for seq := range jobs {
		results <- c.harvestOne(ctx, seq, docs[seq])
	}
}

// harvestOne fetches a document page again and chunks its text.
func (c *Crawler) harvestOne(ctx context.Context, seq int, url string) harvested {
	res := harvested{seq: seq, url: url}

	if err := c.limiter.Wait(ctx); err != nil {
		res.err = err
		return res
	}

	body, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		res.err = err
		return res
	}

	title, text := process.ExtractMain(body, url)
	if n := utf8.RuneCountInString(text); n < c.cfg.Chunking.MinPageChars {
		slog.Info("page too short, skipping",
			slog.String("url", url),
			slog.Int("chars", n),
			slog.Int("min", c.cfg.Chunking.MinPageChars),
		)
		res.skipped = true
		return res
	}

	for i, chunk := range c.chunker.Split(text) {
		n := i + 1
		res.snippets = append(res.snippets, storage.Snippet{
			ID:        storage.SnippetID(url, n, chunk),
			SourceURL: url,
			Title:     title,
			Text:      chunk,
			ChunkNo:   n,
		})
	}
	return res
}
