package main

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devraulu/normkb/pkg/rag"
	"github.com/devraulu/normkb/pkg/storage"
)

type stubSource struct {
	results []rag.Result
	err     error
}

func (s stubSource) Retrieve(context.Context, string, int, float64) ([]rag.Result, error) {
	return s.results, s.err
}

type stubGenerator struct{ out string }

func (g stubGenerator) Generate(context.Context, string, string) (string, error) { return g.out, nil }

type stubEngine struct {
	reloads int
	err     error
}

func (e *stubEngine) Reload() error { e.reloads++; return e.err }
func (e *stubEngine) Build() string { return "20260101T000000Z" }
func (e *stubEngine) Len() int      { return 3 }

func newTestServer(t *testing.T, src rag.Source, eng *stubEngine) http.Handler {
	t.Helper()
	s := &server{
		source:   src,
		answerer: rag.NewAnswerer(src, stubGenerator{out: "Не менее 0,9 м."}, 5, 0.25, "Я не знаю."),
		engine:   eng,
		tmpl:     template.Must(template.New("").ParseFS(templates, "templates/*.html")),
		topK:     5,
		minScore: 0.25,
	}
	return s.routes()
}

var oneResult = []rag.Result{{
	Score:  0.8,
	Record: storage.Record{ID: "abc", SourceURL: "http://site.test/sp-1", Title: "СП 1", ChunkNo: 1},
	Text:   "1.1 Высота ограждения не менее 0,9 м.",
}}

func TestSearch(t *testing.T) {
	h := newTestServer(t, stubSource{results: oneResult}, &stubEngine{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q="+url.QueryEscape("ограждения"), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ограждения", body.Query)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "СП 1", body.Results[0].Title)
	assert.Equal(t, "http://site.test/sp-1", body.Results[0].SourceURL)
}

func TestSearch_MissingQuery(t *testing.T) {
	h := newTestServer(t, stubSource{}, &stubEngine{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk(t *testing.T) {
	h := newTestServer(t, stubSource{results: oneResult}, &stubEngine{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask?q="+url.QueryEscape("высота"), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Не менее 0,9 м.", body.Answer)
	assert.True(t, body.Known)
	assert.Len(t, body.Sources, 1)
}

func TestAsk_NothingRelevant(t *testing.T) {
	h := newTestServer(t, stubSource{}, &stubEngine{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask?q="+url.QueryEscape("погода"), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Я не знаю.", body.Answer)
	assert.False(t, body.Known)
}

func TestAsk_BackendDownCarriesErrorCode(t *testing.T) {
	down := stubSource{err: errors.Join(rag.ErrServiceUnavailable, errors.New("refused"))}
	h := newTestServer(t, down, &stubEngine{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask?q="+url.QueryEscape("высота"), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Code, 8)
	assert.NotEmpty(t, body.Error)
}

func TestReload(t *testing.T) {
	eng := &stubEngine{}
	h := newTestServer(t, stubSource{}, eng)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, eng.reloads)
	assert.Contains(t, rec.Body.String(), `"snippets":3`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	eng.err = rag.ErrNotBuilt
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIndexPage(t *testing.T) {
	h := newTestServer(t, stubSource{results: oneResult}, &stubEngine{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?q="+url.QueryEscape("высота"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Не менее 0,9 м.")
	assert.Contains(t, rec.Body.String(), "http://site.test/sp-1")
	assert.Contains(t, rec.Body.String(), "20260101T000000Z")
}
