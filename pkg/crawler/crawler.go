// Package crawler discovers document pages with a bounded breadth-first
// crawl and harvests them into snippets.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	frontier "github.com/devraulu/normkb/pkg"
	"github.com/devraulu/normkb/pkg/chunker"
	"github.com/devraulu/normkb/pkg/config"
	"github.com/devraulu/normkb/pkg/process"
	"github.com/devraulu/normkb/pkg/storage"
)

type CrawlStats struct {
	StartTime          time.Time
	PagesVisited       int
	PagesErrored       int
	PagesSkipped       int
	DocumentsFound     int
	DocumentsHarvested int
	Snippets           int
}

func (s *CrawlStats) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}

func (s *CrawlStats) PagesPerSecond() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(s.PagesVisited) / elapsed
}

type Crawler struct {
	cfg        *config.Config
	fetcher    Fetcher
	archive    storage.Archive
	robots     *process.Robots
	limiter    *rate.Limiter
	classifier process.Classifier
	chunker    *chunker.Chunker
	Stats      CrawlStats
}

// New builds a crawler. A nil fetcher means plain HTTP, a nil archive
// records nothing.
func New(cfg *config.Config, fetcher Fetcher, archive storage.Archive) (*Crawler, error) {
	ch, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher(cfg.Crawler.UserAgent, cfg.Crawler.GetFetchTimeout())
	}
	if archive == nil {
		archive = storage.NopArchive{}
	}

	c := &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		archive: archive,
		limiter: newLimiter(cfg.Politeness.GetDelay()),
		classifier: process.Classifier{
			MinChars:  cfg.Classifier.MinDocChars,
			LongChars: cfg.Classifier.LongDocChars,
		},
		chunker: ch,
	}
	if cfg.Crawler.RespectRobots {
		c.robots = process.NewRobots(cfg.Crawler.UserAgent, cfg.Politeness.GetRobotsTimeout(), c.limiter)
	}
	return c, nil
}

// newLimiter spaces consecutive fetches at least delay apart.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Discover walks the link graph breadth first from seeds and returns the
// sorted set of document pages. Seeds must be canonical. Documents are
// leaves; sections are expanded until max_depth.
func (c *Crawler) Discover(ctx context.Context, seeds []string) ([]string, error) {
	c.Stats.StartTime = time.Now()

	f := frontier.NewFrontier()
	hosts := make(map[string]bool)
	for _, s := range seeds {
		hosts[process.Host(s)] = true
		f.Push(s, 0, "")
	}

	docs := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.Stats.PagesVisited >= c.cfg.Crawler.MaxPages {
			slog.Info("page budget exhausted", slog.Int("limit", c.cfg.Crawler.MaxPages))
			break
		}
		if len(docs) >= c.cfg.Crawler.MaxDocs {
			slog.Info("document budget exhausted", slog.Int("limit", c.cfg.Crawler.MaxDocs))
			break
		}

		cand, ok := f.Pop()
		if !ok {
			slog.Info("frontier empty, discovery complete")
			break
		}
		if !f.Visit(cand.URL) {
			continue
		}

		if c.robots != nil && !c.robots.Allowed(ctx, cand.URL) {
			c.Stats.PagesSkipped++
			slog.Info("robots.txt disallowed", slog.String("url", cand.URL))
			c.record(ctx, storage.Page{URL: cand.URL, Depth: cand.Depth, Kind: storage.PageSkipped, Error: "robots.txt"})
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		c.Stats.PagesVisited++
		body, err := c.fetcher.Fetch(ctx, cand.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.Stats.PagesErrored++
			slog.Warn("fetch failed", slog.String("url", cand.URL), slog.Int("depth", cand.Depth), slog.Any("err", err))
			c.record(ctx, storage.Page{URL: cand.URL, Depth: cand.Depth, Kind: storage.PageFailed, Error: err.Error()})
			continue
		}

		title, text := process.ExtractMain(body, cand.URL)
		page := storage.Page{URL: cand.URL, Depth: cand.Depth, Title: title, TextLength: len([]rune(text))}

		if c.classifier.IsDocument(title, text) {
			docs[cand.URL] = true
			page.Kind = storage.PageDocument
			c.record(ctx, page)
			slog.Info("document found",
				slog.String("url", cand.URL),
				slog.String("title", title),
				slog.Int("documents", len(docs)),
			)
			continue
		}

		page.Kind = storage.PageSection
		c.record(ctx, page)

		if cand.Depth >= c.cfg.Crawler.MaxDepth {
			continue
		}

		links, err := process.ExtractLinks(body, cand.URL)
		if err != nil {
			slog.Warn("failed to extract links", slog.String("url", cand.URL), slog.Any("err", err))
			continue
		}

		queued := 0
		for _, link := range links {
			if !hosts[process.Host(link)] {
				continue
			}
			if f.Push(link, cand.Depth+1, cand.URL) {
				queued++
			}
		}
		slog.Debug("section expanded",
			slog.String("url", cand.URL),
			slog.Int("links", len(links)),
			slog.Int("queued", queued),
		)
	}

	c.Stats.DocumentsFound = len(docs)
	slog.Info("discovery complete",
		slog.Int("visited", c.Stats.PagesVisited),
		slog.Int("errored", c.Stats.PagesErrored),
		slog.Int("skipped", c.Stats.PagesSkipped),
		slog.Int("documents", len(docs)),
		slog.Duration("elapsed", c.Stats.Elapsed()),
		slog.Float64("pages_per_sec", c.Stats.PagesPerSecond()),
	)

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w after visiting %d pages", ErrNoDocuments, c.Stats.PagesVisited)
	}

	out := make([]string, 0, len(docs))
	for url := range docs {
		out = append(out, url)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Crawler) record(ctx context.Context, p storage.Page) {
	p.Timestamp = time.Now()
	if err := c.archive.SavePage(ctx, p); err != nil {
		slog.Error("failed to archive page", slog.String("url", p.URL), slog.Any("err", err))
	}
}
