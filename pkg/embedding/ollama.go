// Package embedding calls an Ollama server to turn snippet and query texts
// into vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnavailable means the embedding backend could not be reached or
	// refused to serve the request.
	ErrUnavailable = errors.New("embedding backend unavailable")
	// ErrMalformedResponse means the backend answered with an unexpected shape.
	ErrMalformedResponse = errors.New("malformed embedding response")
)

const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "paraphrase-multilingual"
	DefaultTimeout    = 120 * time.Second
	DefaultMaxRetries = 2
)

type Options struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Ollama embeds texts through the batch /api/embed endpoint.
type Ollama struct {
	baseURL    string
	model      string
	maxRetries int
	client     *http.Client
}

func NewOllama(opts Options) *Ollama {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Ollama{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		maxRetries: opts.MaxRetries,
		client:     &http.Client{Timeout: opts.Timeout},
	}
}

func (o *Ollama) Model() string { return o.model }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per text, same length and order as texts.
// Transport failures, 429 and 5xx answers are retried with backoff.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying embedding request",
				slog.Int("attempt", attempt),
				slog.Any("err", lastErr),
			)
		}

		vectors, wait, err := o.post(ctx, body, len(texts))
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if wait < 0 || attempt == o.maxRetries {
			break
		}
		if wait == 0 {
			wait = retryDelay(attempt)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// post sends one request. wait < 0 means the failure is not retryable, a
// positive wait is a server-requested delay.
func (o *Ollama) post(ctx context.Context, body []byte, want int) ([][]float32, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, -1, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		var wait time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		return nil, wait, fmt.Errorf("%w: ollama embed returned %s", ErrUnavailable, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, -1, fmt.Errorf("%w: ollama embed returned %s: %s", ErrUnavailable, resp.Status, strings.TrimSpace(string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, -1, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Embeddings) != want {
		return nil, -1, fmt.Errorf("%w: expected %d embeddings, got %d", ErrMalformedResponse, want, len(out.Embeddings))
	}
	dim := len(out.Embeddings[0])
	for i, v := range out.Embeddings {
		if len(v) == 0 || len(v) != dim {
			return nil, -1, fmt.Errorf("%w: embedding %d has %d dims, want %d", ErrMalformedResponse, i, len(v), dim)
		}
	}
	return out.Embeddings, 0, nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
