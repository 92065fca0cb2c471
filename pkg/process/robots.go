package process

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benjaminestes/robots"
)

// Pacer blocks until the next request to a site may start.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Robots answers robots.txt checks, caching one parsed file per robots URL.
// A robots.txt that cannot be fetched or parsed allows everything.
type Robots struct {
	agent  string
	client *http.Client
	pacer  Pacer

	mu    sync.Mutex
	cache map[string]*robots.Robots
}

// NewRobots returns a checker whose robots.txt fetches each wait on pacer,
// so they share the crawl's request spacing. A nil pacer never waits.
func NewRobots(agent string, timeout time.Duration, pacer Pacer) *Robots {
	return &Robots{
		agent:  agent,
		client: &http.Client{Timeout: timeout},
		pacer:  pacer,
		cache:  make(map[string]*robots.Robots),
	}
}

func (r *Robots) Allowed(ctx context.Context, url string) bool {
	rb := r.lookup(ctx, url)
	if rb == nil {
		return true
	}
	return rb.Test(r.agent, url)
}

func (r *Robots) lookup(ctx context.Context, url string) (rb *robots.Robots) {
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("panic in robots.txt parsing, assuming allowed", slog.String("url", url), slog.Any("panic", p))
			rb = nil
		}
	}()

	robotsURL, err := robots.Locate(url)
	if err != nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[robotsURL]; ok {
		return cached
	}

	rb, err = r.get(ctx, robotsURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("failed to fetch robots.txt", slog.String("url", robotsURL), slog.Any("err", err))
		r.cache[robotsURL] = nil
		return nil
	}

	r.cache[robotsURL] = rb
	return rb
}

func (r *Robots) get(ctx context.Context, url string) (*robots.Robots, error) {
	if r.pacer != nil {
		if err := r.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	slog.Debug("robots.txt response",
		slog.String("url", url),
		slog.Int("status_code", resp.StatusCode),
		slog.Int("body_length", len(body)),
	)

	return robots.From(resp.StatusCode, bytes.NewReader(body))
}
