// Package llm generates answers from a language model server, trying an
// ordered list of wire protocols until one works.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.1"
	DefaultTimeout = 120 * time.Second

	maxResponseBytes = 8 << 20
)

type Options struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Strategies []Strategy
}

type Client struct {
	baseURL    string
	model      string
	http       *http.Client
	strategies []Strategy
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultStrategies()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		http:       &http.Client{Timeout: opts.Timeout},
		strategies: opts.Strategies,
	}
}

// Generate returns the first successful strategy's text. When every
// strategy fails the error is an *UnavailableError.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	unavailable := &UnavailableError{BaseURL: c.baseURL, Model: c.model}

	for _, s := range c.strategies {
		text, err := c.try(ctx, s, system, user)
		if err == nil {
			slog.Debug("llm answered", slog.String("strategy", s.Name()), slog.Int("chars", len(text)))
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		slog.Debug("llm strategy failed", slog.String("strategy", s.Name()), slog.Any("err", err))
		unavailable.Attempts = append(unavailable.Attempts, Attempt{Strategy: s.Name(), Err: err})
	}
	return "", unavailable
}

func (c *Client) try(ctx context.Context, s Strategy, system, user string) (string, error) {
	payload, err := json.Marshal(s.Request(c.model, system, user))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+s.Path(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrEndpointNotFound, s.Path())
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return "", &HTTPError{Endpoint: s.Path(), StatusCode: resp.StatusCode, Body: snippet}
	}

	return s.Parse(body)
}
