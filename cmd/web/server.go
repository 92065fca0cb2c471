package main

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/devraulu/normkb/pkg/rag"
)

type reloader interface {
	Reload() error
	Build() string
	Len() int
}

type server struct {
	source   rag.Source
	answerer *rag.Answerer
	engine   reloader
	tmpl     *template.Template
	topK     int
	minScore float64
}

type snippetJSON struct {
	Score     float32 `json:"score"`
	Title     string  `json:"title"`
	SourceURL string  `json:"source_url"`
	ChunkNo   int     `json:"chunk_no"`
	Text      string  `json:"text"`
}

type searchResponse struct {
	Query   string        `json:"query"`
	Results []snippetJSON `json:"results"`
}

type askResponse struct {
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Known    bool          `json:"known"`
	Sources  []snippetJSON `json:"sources"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// pageData feeds the HTML templates.
type pageData struct {
	Query  string
	Answer *askResponse
	Error  string
	Build  string
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /ask", s.handleAsk)
	mux.HandleFunc("POST /reload", s.handleReload)
	return mux
}

func toJSON(results []rag.Result) []snippetJSON {
	out := make([]snippetJSON, len(results))
	for i, r := range results {
		out[i] = snippetJSON{
			Score:     r.Score,
			Title:     r.Record.Title,
			SourceURL: r.Record.SourceURL,
			ChunkNo:   r.Record.ChunkNo,
			Text:      r.Text,
		}
	}
	return out
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	slog.Info("request", "method", r.Method, "path", r.URL.Path)

	data := pageData{Query: strings.TrimSpace(r.URL.Query().Get("q")), Build: s.engine.Build()}
	if data.Query != "" {
		ans, err := s.answer(r.Context(), data.Query)
		if err != nil {
			status, code := s.failure(err, data.Query)
			w.WriteHeader(status)
			data.Error = "Something went wrong (code " + code + ")."
		} else {
			data.Answer = ans
		}
	}

	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.Error("failed to render template", slog.Any("err", err))
	}
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}

	slog.Info("search", slog.String("query", query))

	results, err := s.source.Retrieve(r.Context(), query, s.topK, s.minScore)
	if err != nil {
		s.writeFailure(w, err, query)
		return
	}

	slog.Info("search complete", slog.String("query", query), slog.Int("results", len(results)))
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: toJSON(results)})
}

func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question := strings.TrimSpace(r.URL.Query().Get("q"))
	if question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}

	ans, err := s.answer(r.Context(), question)
	if err != nil {
		s.writeFailure(w, err, question)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *server) answer(ctx context.Context, question string) (*askResponse, error) {
	slog.Info("ask", slog.String("question", question))

	ans, err := s.answerer.Answer(ctx, question)
	if err != nil {
		return nil, err
	}
	return &askResponse{
		Question: question,
		Answer:   ans.Text,
		Known:    ans.Known,
		Sources:  toJSON(ans.Sources),
	}, nil
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reload(); err != nil {
		s.writeFailure(w, err, "reload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"build":    s.engine.Build(),
		"snippets": s.engine.Len(),
	})
}

// failure logs err under a short code that is also shown to the user.
func (s *server) failure(err error, subject string) (int, string) {
	code := uuid.New().String()[:8]

	status := http.StatusInternalServerError
	if errors.Is(err, rag.ErrServiceUnavailable) || errors.Is(err, rag.ErrNotBuilt) {
		status = http.StatusServiceUnavailable
	}

	slog.Error("request failed",
		slog.String("code", code),
		slog.String("subject", subject),
		slog.Int("status", status),
		slog.Any("err", err),
	)
	return status, code
}

func (s *server) writeFailure(w http.ResponseWriter, err error, subject string) {
	status, code := s.failure(err, subject)

	msg := "internal error"
	switch {
	case errors.Is(err, rag.ErrNotBuilt):
		msg = "knowledge base not built yet"
	case errors.Is(err, rag.ErrServiceUnavailable):
		msg = "model backend unavailable, try again later"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to write response", slog.Any("err", err))
	}
}
