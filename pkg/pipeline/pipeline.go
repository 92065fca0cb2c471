// Package pipeline runs the two phases of a knowledge base rebuild: crawl
// (discover and harvest into staging) and index (embed, then promote).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	frontier "github.com/devraulu/normkb/pkg"
	"github.com/devraulu/normkb/pkg/config"
	"github.com/devraulu/normkb/pkg/crawler"
	"github.com/devraulu/normkb/pkg/index"
	"github.com/devraulu/normkb/pkg/storage"
)

// ErrHarvestIncomplete means staging holds a ledger from a harvest that did
// not finish. It is never indexed.
var ErrHarvestIncomplete = errors.New("staging harvest incomplete, run the crawl again")

type Pipeline struct {
	cfg      *config.Config
	kb       storage.KnowledgeBase
	fetcher  crawler.Fetcher
	embedder index.Embedder
	archive  storage.Archive
}

// New wires a pipeline. A nil fetcher means plain HTTP and a nil archive
// records nothing.
func New(cfg *config.Config, embedder index.Embedder, fetcher crawler.Fetcher, archive storage.Archive) *Pipeline {
	if archive == nil {
		archive = storage.NopArchive{}
	}
	return &Pipeline{
		cfg:      cfg,
		kb:       storage.KnowledgeBase{Root: cfg.OutDir, Keep: 2},
		fetcher:  fetcher,
		embedder: embedder,
		archive:  archive,
	}
}

func (p *Pipeline) KnowledgeBase() storage.KnowledgeBase { return p.kb }

// Seeds collects configured seeds and the seeds file, falling back to the
// base URL.
func (p *Pipeline) Seeds() ([]string, error) {
	raw := append([]string(nil), p.cfg.Crawler.Seeds...)
	if p.cfg.Crawler.SeedsFile != "" {
		fromFile, err := frontier.LoadSeedsFile(p.cfg.Crawler.SeedsFile)
		if err != nil {
			return nil, fmt.Errorf("load seeds file: %w", err)
		}
		raw = append(raw, fromFile...)
	}
	return frontier.ParseSeeds(raw, p.cfg.Crawler.BaseURL)
}

// Crawl rebuilds staging from scratch and marks it harvested on success.
func (p *Pipeline) Crawl(ctx context.Context) (crawler.CrawlStats, error) {
	seeds, err := p.Seeds()
	if err != nil {
		return crawler.CrawlStats{}, err
	}

	c, err := crawler.New(p.cfg, p.fetcher, p.archive)
	if err != nil {
		return crawler.CrawlStats{}, err
	}

	staging := p.kb.Staging()
	w, err := storage.NewWriter(staging)
	if err != nil {
		return crawler.CrawlStats{}, err
	}

	n, err := p.crawl(ctx, c, seeds, w)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return c.Stats, err
	}

	if err := staging.MarkHarvested(n); err != nil {
		return c.Stats, err
	}
	slog.Info("crawl phase complete",
		slog.Int("documents", c.Stats.DocumentsFound),
		slog.Int("snippets", n),
		slog.String("staging", staging.Dir),
	)
	return c.Stats, nil
}

func (p *Pipeline) crawl(ctx context.Context, c *crawler.Crawler, seeds []string, w *storage.Writer) (int, error) {
	docs, err := c.Discover(ctx, seeds)
	if err != nil {
		return 0, err
	}
	return c.Harvest(ctx, docs, w)
}

// Index embeds the harvested staging layout and promotes it to current.
// On failure the current build is left untouched.
func (p *Pipeline) Index(ctx context.Context) (storage.Layout, error) {
	staging := p.kb.Staging()
	if !staging.HasLedger() {
		return storage.Layout{}, fmt.Errorf("%w: %s", index.ErrLedgerMissing, staging.LedgerPath())
	}
	if !staging.Harvested() {
		return storage.Layout{}, ErrHarvestIncomplete
	}

	records, err := storage.ReadLedger(staging)
	if err != nil {
		return storage.Layout{}, err
	}
	if err := storage.Verify(staging, records); err != nil {
		return storage.Layout{}, err
	}

	flat, err := index.NewBuilder(p.embedder, p.cfg.Embedder.BatchSize).Build(ctx, staging)
	if err != nil {
		return storage.Layout{}, err
	}
	if flat.Len() != len(records) {
		return storage.Layout{}, fmt.Errorf("%w: ledger %d, index %d", index.ErrCountMismatch, len(records), flat.Len())
	}

	return p.kb.Promote()
}

// Run does a full rebuild and records the run summary in the archive.
func (p *Pipeline) Run(ctx context.Context) error {
	run := storage.Run{StartedAt: time.Now()}

	stats, err := p.Crawl(ctx)
	if err == nil {
		_, err = p.Index(ctx)
	}

	run.FinishedAt = time.Now()
	run.PagesVisited = stats.PagesVisited
	run.PagesErrored = stats.PagesErrored
	run.PagesSkipped = stats.PagesSkipped
	run.DocumentsFound = stats.DocumentsFound
	run.Snippets = stats.Snippets
	if err != nil {
		run.Error = err.Error()
	}

	// the run context may already be cancelled
	if serr := p.archive.SaveRun(context.WithoutCancel(ctx), run); serr != nil {
		slog.Error("failed to archive run", slog.Any("err", serr))
	}

	if err != nil {
		return err
	}
	slog.Info("knowledge base rebuilt",
		slog.Int("snippets", run.Snippets),
		slog.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	return nil
}
